package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	stdimage "image"
	"image/color"
	"image/png"

	"github.com/hurricanerix/ocrchat/internal/conversation"
	"github.com/hurricanerix/ocrchat/internal/image"
	"github.com/hurricanerix/ocrchat/internal/logging"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Extract(ctx context.Context, data []byte) (string, error) {
	return f.text, f.err
}

type fakeGenerator struct {
	reply   string
	prompts []string
}

func (f *fakeGenerator) Reply(ctx context.Context, prompt string) string {
	f.prompts = append(f.prompts, prompt)
	return f.reply
}

type testEnv struct {
	server *Server
	images *image.Storage
	ocr    *fakeOCR
	gen    *fakeGenerator
	http   *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.Discard()
	ocr := &fakeOCR{text: "Invoice 42\nTotal: 42.00"}
	gen := &fakeGenerator{reply: "The total is 42."}
	sessions := conversation.NewStore(logger)
	t.Cleanup(sessions.Shutdown)
	images := image.NewStorage()

	s, err := NewServerWithDeps("", conversation.NewManager(ocr, gen, logger), sessions, images, logger)
	if err != nil {
		t.Fatalf("NewServerWithDeps() error = %v", err)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}

	return &testEnv{
		server: s,
		images: images,
		ocr:    ocr,
		gen:    gen,
		http:   ts,
		client: &http.Client{Jar: jar, Timeout: 5 * time.Second},
	}
}

// readBody returns the body of resp and closes it.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(b)
}

func (e *testEnv) get(t *testing.T, path string) string {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	return readBody(t, resp)
}

// post submits a form and returns the page it redirects to.
func (e *testEnv) post(t *testing.T, path string, form url.Values) string {
	t.Helper()
	resp, err := e.client.PostForm(e.http.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s: status %d after redirect", path, resp.StatusCode)
	}
	return readBody(t, resp)
}

func (e *testEnv) upload(t *testing.T, filename string, data []byte) string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write(data)
	mw.Close()

	resp, err := e.client.Post(e.http.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /upload: status %d after redirect", resp.StatusCode)
	}
	return readBody(t, resp)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: 200, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestNewServerWithDeps(t *testing.T) {
	logger := logging.Discard()
	sessions := conversation.NewStore(logger)
	defer sessions.Shutdown()
	manager := conversation.NewManager(&fakeOCR{}, &fakeGenerator{}, logger)

	tests := []struct {
		name     string
		addr     string
		wantAddr string
	}{
		{"custom address", "localhost:9090", "localhost:9090"},
		{"empty address uses default", "", DefaultAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewServerWithDeps(tt.addr, manager, sessions, nil, nil)
			if err != nil {
				t.Fatalf("NewServerWithDeps() error = %v", err)
			}
			if s.addr != tt.wantAddr {
				t.Errorf("addr = %q, want %q", s.addr, tt.wantAddr)
			}
			if s.server.Addr != tt.wantAddr {
				t.Errorf("server.Addr = %q, want %q", s.server.Addr, tt.wantAddr)
			}
			if s.images == nil || s.logger == nil {
				t.Error("defaults were not filled in")
			}
		})
	}

	if _, err := NewServerWithDeps("", nil, sessions, nil, nil); err == nil {
		t.Error("expected error for nil manager")
	}
	if _, err := NewServerWithDeps("", manager, nil, nil, nil); err == nil {
		t.Error("expected error for nil session store")
	}
}

func TestServer_HandleIndex_EmptyState(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.Get(env.http.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := readBody(t, resp)

	for _, want := range []string{
		"OCR Chat",
		"Start New Chat",
		"Start a new chat or upload an image to begin!",
		`action="/upload"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, `id="extracted"`) {
		t.Error("extracted text shown with nothing uploaded")
	}
}

func TestServer_HandleHealth(t *testing.T) {
	env := newTestEnv(t)

	if body := env.get(t, "/healthz"); body != "ok\n" {
		t.Errorf("body = %q, want %q", body, "ok\n")
	}
}

func TestServer_StaticAssets(t *testing.T) {
	env := newTestEnv(t)

	body := env.get(t, "/static/style.css")
	if !strings.Contains(body, ".sidebar") {
		t.Error("stylesheet not served")
	}
}

func TestServer_NewChatAndSelect(t *testing.T) {
	env := newTestEnv(t)

	body := env.post(t, "/chats", nil)
	if !strings.Contains(body, "Chat 1") {
		t.Error("sidebar missing Chat 1")
	}

	body = env.post(t, "/chats", nil)
	if !strings.Contains(body, "Chat 2") {
		t.Error("sidebar missing Chat 2")
	}
	if !strings.Contains(body, `action="/chats/chat_2/select"`) {
		t.Error("missing select form for chat_2")
	}

	body = env.post(t, "/chats/chat_1/select", nil)
	if !strings.Contains(body, "<title>Chat 1 · OCR Chat</title>") {
		t.Error("chat_1 is not active after selecting it")
	}

	body = env.post(t, "/chats/chat_9/select", nil)
	if !strings.Contains(body, "That chat no longer exists.") {
		t.Error("missing notice for unknown chat")
	}
	if !strings.Contains(body, "<title>Chat 1 · OCR Chat</title>") {
		t.Error("active chat changed after selecting an unknown chat")
	}
}

func TestServer_SendWithNothingPending(t *testing.T) {
	env := newTestEnv(t)

	body := env.post(t, "/send", url.Values{"instruction": {""}})
	if !strings.Contains(body, "Nothing to send.") {
		t.Error("missing nothing-to-send warning")
	}
	if len(env.gen.prompts) != 0 {
		t.Errorf("generator called %d times, want 0", len(env.gen.prompts))
	}

	// Notices are shown once.
	if body := env.get(t, "/"); strings.Contains(body, "Nothing to send.") {
		t.Error("warning shown again on reload")
	}
}

func TestServer_UploadAndSend(t *testing.T) {
	env := newTestEnv(t)

	body := env.upload(t, "receipt.png", testPNG(t))
	for _, want := range []string{
		"Text extracted successfully!",
		"Uploaded Image",
		`src="/images/`,
		"Invoice 42",
		"Chat 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("upload page missing %q", want)
		}
	}
	if env.images.Count() != 1 {
		t.Errorf("stored images = %d, want 1", env.images.Count())
	}

	body = env.post(t, "/send", url.Values{"instruction": {"Summarize"}})

	if len(env.gen.prompts) != 1 {
		t.Fatalf("generator called %d times, want 1", len(env.gen.prompts))
	}
	prompt := env.gen.prompts[0]
	if !strings.Contains(prompt, "Summarize") || !strings.Contains(prompt, "Invoice 42") {
		t.Errorf("prompt missing instruction or extracted text: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "\nAssistant:") {
		t.Errorf("prompt does not end with the assistant cue: %q", prompt)
	}

	userAt := strings.Index(body, "<p>Summarize</p>")
	replyAt := strings.Index(body, "The total is 42.")
	if userAt < 0 || replyAt < 0 {
		t.Fatalf("transcript missing bubbles (user at %d, reply at %d)", userAt, replyAt)
	}
	if userAt > replyAt {
		t.Error("user bubble rendered after the reply")
	}
	if !strings.Contains(body, `class="thumb"`) {
		t.Error("user bubble missing thumbnail")
	}
	if !strings.Contains(body, "Previously Uploaded Image") {
		t.Error("preview caption not switched after send")
	}
	if strings.Contains(body, `id="extracted"`) {
		t.Error("pending extracted text not cleared after send")
	}
}

func TestServer_UploadSameImageTwice(t *testing.T) {
	env := newTestEnv(t)
	data := testPNG(t)

	env.upload(t, "a.png", data)
	env.upload(t, "a.png", data)

	if env.images.Count() != 1 {
		t.Errorf("stored images = %d, want 1", env.images.Count())
	}
}

func TestServer_UploadRejected(t *testing.T) {
	env := newTestEnv(t)

	body := env.upload(t, "notes.txt", []byte("just some text"))
	if !strings.Contains(body, "Upload failed") {
		t.Error("missing upload failure notice")
	}
	if env.images.Count() != 0 {
		t.Errorf("stored images = %d, want 0", env.images.Count())
	}
}

func TestServer_UploadOCRFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ocr.err = errors.New("tesseract exploded")

	body := env.upload(t, "receipt.png", testPNG(t))
	if !strings.Contains(body, "Error during OCR") {
		t.Error("missing OCR failure warning")
	}
	if strings.Contains(body, "Text extracted successfully!") {
		t.Error("success notice shown for failed OCR")
	}
}

func TestServer_HandleMessage(t *testing.T) {
	env := newTestEnv(t)

	body := env.post(t, "/message", url.Values{"message": {"Hello there"}, "submit": {"Send"}})
	if !strings.Contains(body, "Hello there") {
		t.Error("transcript missing user message")
	}
	if !strings.Contains(body, "The total is 42.") {
		t.Error("transcript missing reply")
	}

	body = env.post(t, "/message", url.Values{"message": {"   "}})
	if !strings.Contains(body, "Please type a message first.") {
		t.Error("missing empty message warning")
	}
	if len(env.gen.prompts) != 1 {
		t.Errorf("generator called %d times, want 1", len(env.gen.prompts))
	}
}

func TestHandleImage(t *testing.T) {
	env := newTestEnv(t)

	up, err := image.Prepare(testPNG(t))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	id, err := env.images.Store(up)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"stored image", "/images/" + id, http.StatusOK},
		{"unknown id", "/images/550e8400-e29b-41d4-a716-446655440000", http.StatusNotFound},
		{"invalid id", "/images/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if ct := w.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q, want image/png", ct)
			}
			if !bytes.Equal(w.Body.Bytes(), up.Data) {
				t.Error("served bytes differ from the upload")
			}
		})
	}
}

func TestServer_ListenAndServe_ContextCancellation(t *testing.T) {
	env := newTestEnv(t)
	s, err := NewServerWithDeps("localhost:0", env.server.manager, env.server.sessions, nil, logging.Discard())
	if err != nil {
		t.Fatalf("NewServerWithDeps() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server shutdown")
	}
}

func TestServer_ListenAndServe_InvalidAddress(t *testing.T) {
	env := newTestEnv(t)
	s, err := NewServerWithDeps("localhost:99999", env.server.manager, env.server.sessions, nil, logging.Discard())
	if err != nil {
		t.Fatalf("NewServerWithDeps() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.ListenAndServe(ctx); err == nil {
		t.Error("expected error for invalid address, got nil")
	}
}
