// Package conversation holds per-visitor chat state and the operations that
// turn user input into model turns.
//
// # Design Overview
//
// A Session owns any number of chats, one of which is active. Each chat is an
// ordered log of entries. There are four kinds of entry and they are distinct
// types, not tagged strings:
//
//   - PlainUser: text typed into the message box. Shown and sent to the model.
//   - ModelPrompt: the exact prompt composed from OCR text and an instruction.
//     Sent to the model but never shown.
//   - DisplayBubble: what the user sees for a ModelPrompt (the instruction or a
//     placeholder label, plus a thumbnail). Shown but never sent to the model.
//   - Assistant: the model's reply, optionally with the OCR text it was
//     answering about.
//
// Only PlainUser, ModelPrompt and Assistant implement HistoryEntry, so a
// display bubble cannot leak into the model's context by construction.
//
// # Turn Flow
//
// An image upload runs OCR once per distinct image (identity is the SHA-256 of
// the bytes) and parks the text in Pending. SubmitTurn composes the prompt,
// appends ModelPrompt, Assistant and DisplayBubble in that order, and clears
// Pending. The transcript view puts the bubble before the reply.
//
// # Thread Safety
//
// Session is not safe for concurrent use on its own. Callers hold Session.Lock
// for the whole of an operation, including the model call, which also keeps a
// visitor to one in-flight turn. Store is safe for concurrent use.
package conversation

import "strings"

// Role identifies the kind of a chat entry.
type Role int

const (
	// RolePlainUser is a message typed directly into the chat input.
	RolePlainUser Role = iota
	// RoleModelPrompt is a composed prompt sent to the model but hidden.
	RoleModelPrompt
	// RoleDisplayBubble is the user-facing stand-in for a ModelPrompt.
	RoleDisplayBubble
	// RoleAssistant is a model reply.
	RoleAssistant
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RolePlainUser:
		return "user"
	case RoleModelPrompt:
		return "user_model"
	case RoleDisplayBubble:
		return "user_display"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Entry is one element of a chat's log. The set of implementations is closed.
type Entry interface {
	Role() Role
	// Content is the entry's text as stored in the log.
	Content() string
	isEntry()
}

// HistoryEntry is an Entry that is replayed to the model.
type HistoryEntry interface {
	Entry
	historyLine() string
}

// PlainUser is a message typed into the chat input.
type PlainUser struct {
	Text string
}

func (PlainUser) Role() Role            { return RolePlainUser }
func (e PlainUser) Content() string     { return e.Text }
func (PlainUser) isEntry()              {}
func (e PlainUser) historyLine() string { return "User: " + e.Text + "\n" }

// ModelPrompt is the prompt composed from extracted text and an instruction.
type ModelPrompt struct {
	Prompt string
}

func (ModelPrompt) Role() Role            { return RoleModelPrompt }
func (e ModelPrompt) Content() string     { return e.Prompt }
func (ModelPrompt) isEntry()              {}
func (e ModelPrompt) historyLine() string { return "User: " + e.Prompt + "\n" }

// DisplayBubble is shown in place of a ModelPrompt.
type DisplayBubble struct {
	// Text is the user's instruction, or ImagePlaceholder when there was none.
	Text string
	// Thumbnail is a data URI, empty when the turn had no image.
	Thumbnail string
}

func (DisplayBubble) Role() Role        { return RoleDisplayBubble }
func (e DisplayBubble) Content() string { return e.Text }
func (DisplayBubble) isEntry()          {}

// Assistant is a model reply.
type Assistant struct {
	Reply string
	// Context is the extracted text the reply answered about, if any.
	Context string
}

func (Assistant) Role() Role { return RoleAssistant }

// Content is the reply, preceded by the extracted text as a quoted banner
// when the turn carried OCR context.
func (e Assistant) Content() string {
	if e.Context == "" {
		return e.Reply
	}
	return ContextBanner(e.Context) + "\n\n" + e.Reply
}

func (Assistant) isEntry() {}

// historyLine replays only the reply. The context is already in the
// ModelPrompt that preceded it.
func (e Assistant) historyLine() string { return "Assistant: " + e.Reply + "\n" }

// ContextBanner renders extracted text as a markdown block quote under a
// heading.
func ContextBanner(context string) string {
	lines := strings.Split(strings.TrimSpace(context), "\n")
	var b strings.Builder
	b.WriteString("**📄 Extracted text:**\n")
	for _, l := range lines {
		b.WriteString("\n> ")
		b.WriteString(l)
	}
	return b.String()
}

// Chat is one conversation inside a session.
type Chat struct {
	ID      string
	Title   string
	entries []Entry
}

// Entries returns a copy of the chat's log in order.
func (c *Chat) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Chat) Len() int {
	return len(c.entries)
}

func (c *Chat) append(e Entry) {
	c.entries = append(c.entries, e)
}

// replies counts assistant entries, i.e. completed exchanges.
func (c *Chat) replies() int {
	n := 0
	for _, e := range c.entries {
		if _, ok := e.(Assistant); ok {
			n++
		}
	}
	return n
}

// UploadState tracks OCR progress for the pending image.
type UploadState int

const (
	// UploadIdle means no image is pending.
	UploadIdle UploadState = iota
	// UploadExtracting means OCR is running.
	UploadExtracting
	// UploadExtracted means OCR finished; the text may be empty.
	UploadExtracted
	// UploadFailed means OCR returned an error.
	UploadFailed
)

// String returns the state name.
func (s UploadState) String() string {
	switch s {
	case UploadIdle:
		return "idle"
	case UploadExtracting:
		return "extracting"
	case UploadExtracted:
		return "extracted"
	case UploadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Upload is the pending image's OCR state.
type Upload struct {
	State  UploadState
	Digest string
	// PreviewID refers to the stored original, empty if it was not kept.
	PreviewID string

	// queued is set while this image's thumbnail waits in the chat's queue.
	queued bool
}

// Matches reports whether digest is the pending image and OCR has already
// finished for it, successfully or not.
func (u Upload) Matches(digest string) bool {
	return digest != "" && u.Digest == digest &&
		(u.State == UploadExtracted || u.State == UploadFailed)
}

func (u *Upload) begin(digest, previewID string) {
	*u = Upload{State: UploadExtracting, Digest: digest, PreviewID: previewID}
}

func (u *Upload) finish(failed bool) {
	if failed {
		u.State = UploadFailed
		return
	}
	u.State = UploadExtracted
}

// Pending is input collected for the next turn of the active chat.
type Pending struct {
	ExtractedText string
	Instruction   string
	Upload        Upload
}

// Clear drops all pending input.
func (p *Pending) Clear() {
	*p = Pending{}
}

// Image is an upload handed to IngestImage.
type Image struct {
	Data []byte
	// Digest identifies the image; equal digests skip OCR.
	Digest string
	// Thumbnail is a data URI attached to the next turn's bubble.
	Thumbnail string
	// PreviewID is the stored original for the preview pane, optional.
	PreviewID string
}

// NoticeLevel is the severity of a Notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// String returns the level name, used as a CSS class.
func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a one-shot message shown on the next page render.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Warning is a user-facing problem that did not change chat state in an
// unexpected way, such as OCR failing or there being nothing to send.
type Warning struct {
	Message string
}

func (w *Warning) String() string {
	return w.Message
}
