package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hurricanerix/ocrchat/internal/logging"
)

// MaxInputLength is the largest accepted instruction or message, in bytes.
const MaxInputLength = 10 * 1024

// ErrUnknownChat is returned when selecting a chat that does not exist.
var ErrUnknownChat = errors.New("unknown chat")

// Warning messages shown to the user.
const (
	msgNothingToSend = "Nothing to send. Upload an image or type an instruction first."
	msgEmptyMessage  = "Please type a message first."
	msgNoText        = "No readable text found in the image."
	msgOCRFailed     = "Error during OCR"
)

var msgTooLong = fmt.Sprintf("Input is too long (max %d KiB).", MaxInputLength/1024)

// Extractor reads text out of an image. An image with no text yields "".
type Extractor interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// Generator produces a model reply for a prompt. It never fails; problems
// are reported in the returned text.
type Generator interface {
	Reply(ctx context.Context, prompt string) string
}

// Manager performs conversation operations on sessions. It holds no session
// state itself; callers pass a Session they have locked.
type Manager struct {
	ocr       Extractor
	generator Generator
	logger    *logging.Logger
}

// NewManager creates a Manager backed by the given OCR and generation
// collaborators.
func NewManager(ocr Extractor, generator Generator, logger *logging.Logger) *Manager {
	return &Manager{
		ocr:       ocr,
		generator: generator,
		logger:    logger,
	}
}

// StartNewChat creates a chat named "Chat N", makes it active, and drops any
// pending input. It returns the new chat's ID.
func (m *Manager) StartNewChat(s *Session) string {
	s.chatCounter++
	id := fmt.Sprintf("chat_%d", s.chatCounter)

	s.chats[id] = &Chat{ID: id, Title: fmt.Sprintf("Chat %d", s.chatCounter)}
	s.order = append(s.order, id)
	s.activeChat = id
	s.Pending.Clear()

	m.logger.Debug("Session %s: started %s", s.ID, id)
	return id
}

// SelectChat makes id the active chat. Switching to a different chat drops
// pending input; re-selecting the active chat changes nothing.
func (m *Manager) SelectChat(s *Session, id string) error {
	if _, ok := s.chats[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChat, id)
	}
	if id == s.activeChat {
		return nil
	}
	s.activeChat = id
	s.Pending.Clear()
	return nil
}

// IngestImage runs OCR on img and parks the result for the next turn.
// A chat is started if none is active. An image that replaces an unsent
// pending one also replaces its queued thumbnail. Re-ingesting the image whose OCR has
// already finished returns the earlier text without running OCR again or
// queueing another thumbnail. OCR problems come back as a Warning; the
// pending text is then empty.
func (m *Manager) IngestImage(ctx context.Context, s *Session, img Image) (string, *Warning) {
	if s.activeChat == "" {
		m.StartNewChat(s)
	}

	if s.Pending.Upload.Matches(img.Digest) {
		return s.Pending.ExtractedText, nil
	}

	chatID := s.activeChat
	// An unsent pending image is superseded, thumbnail included.
	if s.Pending.Upload.queued {
		s.dropLastThumbnail(chatID)
	}
	s.Pending.Upload.begin(img.Digest, img.PreviewID)
	s.Pending.ExtractedText = ""

	if img.Thumbnail != "" {
		s.chatImages[chatID] = append(s.chatImages[chatID], img.Thumbnail)
		s.Pending.Upload.queued = true
	}
	if img.PreviewID != "" {
		s.lastPreview[chatID] = img.PreviewID
	}

	text, err := m.ocr.Extract(ctx, img.Data)
	if err != nil {
		s.Pending.Upload.finish(true)
		m.logger.Warn("Session %s: OCR failed: %v", s.ID, err)
		return "", &Warning{Message: fmt.Sprintf("%s: %v", msgOCRFailed, err)}
	}

	s.Pending.Upload.finish(false)
	s.Pending.ExtractedText = strings.TrimSpace(text)

	if s.Pending.ExtractedText == "" {
		return "", &Warning{Message: msgNoText}
	}

	m.logger.Debug("Session %s: extracted %d bytes of text", s.ID, len(s.Pending.ExtractedText))
	return s.Pending.ExtractedText, nil
}

// SubmitTurn sends an instruction about the pending image to the model.
//
// The active chat gains three entries in order: the composed ModelPrompt,
// the Assistant reply carrying extracted as context, and the DisplayBubble
// with the instruction (or ImagePlaceholder) and the oldest queued thumbnail.
// Pending input is cleared. With nothing to send, a Warning is returned and
// the session is left unchanged.
func (m *Manager) SubmitTurn(ctx context.Context, s *Session, instruction, extracted string) (string, *Warning) {
	instruction = strings.TrimSpace(instruction)
	extracted = strings.TrimSpace(extracted)

	if len(instruction) > MaxInputLength {
		return "", &Warning{Message: msgTooLong}
	}

	hasImage := s.activeChat != "" && len(s.chatImages[s.activeChat]) > 0

	prompt, err := ComposePrompt(instruction, extracted, hasImage)
	if err != nil {
		return "", &Warning{Message: msgNothingToSend}
	}

	if s.activeChat == "" {
		m.StartNewChat(s)
	}
	chat := s.chats[s.activeChat]

	history := BuildHistory(chat)
	chat.append(ModelPrompt{Prompt: prompt})

	reply := m.generator.Reply(ctx, generationPrompt(history, prompt))
	chat.append(Assistant{Reply: reply, Context: extracted})

	bubble := DisplayBubble{Text: instruction, Thumbnail: s.takeThumbnail(chat.ID)}
	if bubble.Text == "" {
		bubble.Text = ImagePlaceholder
	}
	chat.append(bubble)

	if chat.replies() == 1 {
		chat.Title = turnTitle(instruction, extracted)
	}

	s.Pending.Clear()

	m.logger.Debug("Session %s: %s turn complete (%d entries)", s.ID, chat.ID, chat.Len())
	return reply, nil
}

// SendMessage sends a plain chat message to the model. The active chat gains
// a PlainUser entry and the Assistant reply. Pending image input is kept.
func (m *Manager) SendMessage(ctx context.Context, s *Session, text string) (string, *Warning) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &Warning{Message: msgEmptyMessage}
	}
	if len(text) > MaxInputLength {
		return "", &Warning{Message: msgTooLong}
	}

	if s.activeChat == "" {
		m.StartNewChat(s)
	}
	chat := s.chats[s.activeChat]

	history := BuildHistory(chat)
	chat.append(PlainUser{Text: text})

	reply := m.generator.Reply(ctx, generationPrompt(history, text))
	chat.append(Assistant{Reply: reply})

	if chat.replies() == 1 {
		chat.Title = Title(text)
	}

	m.logger.Debug("Session %s: %s message complete (%d entries)", s.ID, chat.ID, chat.Len())
	return reply, nil
}
