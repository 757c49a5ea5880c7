package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/hurricanerix/ocrchat/internal/conversation"
	"github.com/hurricanerix/ocrchat/internal/image"
	"github.com/hurricanerix/ocrchat/internal/render"
)

const (
	msgTextExtracted = "Text extracted successfully!"
	msgUploadFailed  = "Upload failed"
	msgFormInvalid   = "Could not read the submitted form."
)

// formDecoder maps POST bodies onto the form structs below.
var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// sendForm is the body of POST /send.
type sendForm struct {
	Instruction string `schema:"instruction"`
}

// messageForm is the body of POST /message.
type messageForm struct {
	Message string `schema:"message"`
}

// parseForm decodes a url-encoded POST body into T.
func parseForm[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var data T
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		return data, err
	}
	err := formDecoder.Decode(&data, r.PostForm)
	return data, err
}

// chatLink is one entry of the sidebar chat selector.
type chatLink struct {
	ID     string
	Title  string
	Active bool
}

// preview is the image shown above the extracted text.
type preview struct {
	URL     string
	Caption string
}

// pageData is everything the index template renders.
type pageData struct {
	Chats         []chatLink
	HasActive     bool
	ActiveTitle   string
	Notices       []conversation.Notice
	Preview       *preview
	ExtractedText string
	Instruction   string
	Transcript    []render.Bubble
	MaxUploadMiB  int
}

// handleIndex renders the page from session state. It only consumes
// one-shot notices and never changes chats or pending input.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	sess.Lock()
	data := s.pageData(sess)
	sess.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("Failed to execute template: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// pageData builds the view model. Callers hold the session lock.
func (s *Server) pageData(sess *conversation.Session) pageData {
	data := pageData{
		Notices:       sess.TakeNotices(),
		ExtractedText: sess.Pending.ExtractedText,
		Instruction:   sess.Pending.Instruction,
		MaxUploadMiB:  image.MaxUploadSize / (1024 * 1024),
	}

	activeID := sess.ActiveChatID()
	for _, c := range sess.Chats() {
		data.Chats = append(data.Chats, chatLink{ID: c.ID, Title: c.Title, Active: c.ID == activeID})
	}

	active := sess.ActiveChat()
	if active == nil {
		return data
	}
	data.HasActive = true
	data.ActiveTitle = active.Title
	data.Transcript = s.renderer.Transcript(active.Entries())

	if id := sess.Pending.Upload.PreviewID; id != "" {
		data.Preview = &preview{URL: "/images/" + id, Caption: "Uploaded Image"}
	} else if id := sess.LastPreview(activeID); id != "" {
		data.Preview = &preview{URL: "/images/" + id, Caption: "Previously Uploaded Image"}
	}

	return data
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// handleNewChat starts a new chat.
// POST /chats
func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	sess.Lock()
	s.manager.StartNewChat(sess)
	sess.Unlock()

	redirectHome(w, r)
}

// handleSelectChat switches the active chat.
// POST /chats/{chatID}/select
func (s *Server) handleSelectChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	sess := s.session(r)
	sess.Lock()
	if err := s.manager.SelectChat(sess, chatID); err != nil {
		s.logger.Debug("Select chat failed: %v", err)
		sess.AddNotice(conversation.NoticeWarning, "That chat no longer exists.")
	}
	sess.Unlock()

	redirectHome(w, r)
}

// handleUpload validates an uploaded image and runs OCR on it.
// POST /upload (multipart field "image")
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)

	up, err := readUpload(w, r)
	if err != nil {
		s.logger.Debug("Rejected upload: %v", err)
		sess.Lock()
		sess.AddNotice(conversation.NoticeError, msgUploadFailed+": "+err.Error())
		sess.Unlock()
		redirectHome(w, r)
		return
	}

	sess.Lock()
	defer sess.Unlock()

	previewID := sess.Pending.Upload.PreviewID
	if !sess.Pending.Upload.Matches(up.Digest) {
		previewID, err = s.images.Store(up)
		if err != nil {
			s.logger.Warn("Failed to store upload for preview: %v", err)
			previewID = ""
		}
	}

	text, warn := s.manager.IngestImage(context.WithoutCancel(r.Context()), sess, conversation.Image{
		Data:      up.Data,
		Digest:    up.Digest,
		Thumbnail: up.Thumbnail,
		PreviewID: previewID,
	})
	switch {
	case warn != nil:
		sess.AddNotice(conversation.NoticeWarning, warn.Message)
	case text != "":
		sess.AddNotice(conversation.NoticeSuccess, msgTextExtracted)
	}

	redirectHome(w, r)
}

// readUpload reads and validates the "image" file of a multipart form.
func readUpload(w http.ResponseWriter, r *http.Request) (*image.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, image.MaxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, image.ErrImageTooLarge
		}
		return nil, errors.New("malformed upload")
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, errors.New("no image selected")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, image.MaxUploadSize+1))
	if err != nil {
		return nil, errors.New("failed to read image")
	}

	return image.Prepare(data)
}

// handleSend sends the instruction together with the pending extracted text.
// POST /send (field "instruction")
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	form, err := parseForm[sendForm](w, r)

	sess := s.session(r)
	sess.Lock()
	defer sess.Unlock()

	if err != nil {
		s.logger.Debug("Invalid send form: %v", err)
		sess.AddNotice(conversation.NoticeError, msgFormInvalid)
		redirectHome(w, r)
		return
	}

	// The turn runs to completion even if the browser goes away.
	ctx := context.WithoutCancel(r.Context())
	if _, warn := s.manager.SubmitTurn(ctx, sess, form.Instruction, sess.Pending.ExtractedText); warn != nil {
		sess.Pending.Instruction = form.Instruction
		sess.AddNotice(conversation.NoticeWarning, warn.Message)
	}

	redirectHome(w, r)
}

// handleMessage sends a plain chat message.
// POST /message (field "message")
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	form, err := parseForm[messageForm](w, r)

	sess := s.session(r)
	sess.Lock()
	defer sess.Unlock()

	if err != nil {
		s.logger.Debug("Invalid message form: %v", err)
		sess.AddNotice(conversation.NoticeError, msgFormInvalid)
		redirectHome(w, r)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if _, warn := s.manager.SendMessage(ctx, sess, form.Message); warn != nil {
		sess.AddNotice(conversation.NoticeWarning, warn.Message)
	}

	redirectHome(w, r)
}

// handleImage serves a stored upload by ID.
// GET /images/{id}
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, err := s.images.Get(id)
	if err != nil {
		switch {
		case errors.Is(err, image.ErrNotFound):
			http.Error(w, "Image not found", http.StatusNotFound)
		case errors.Is(err, image.ErrInvalidID):
			http.Error(w, "Invalid image ID", http.StatusBadRequest)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		s.logger.Debug("Failed to write image data for %s: %v", id, err)
	}
}
