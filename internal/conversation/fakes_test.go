package conversation

import (
	"context"
	"testing"

	"github.com/hurricanerix/ocrchat/internal/logging"
)

// fakeOCR returns canned text or an error and counts calls.
type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Extract(ctx context.Context, image []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeGenerator records prompts and answers with a fixed reply.
type fakeGenerator struct {
	reply   string
	prompts []string
}

func (f *fakeGenerator) Reply(ctx context.Context, prompt string) string {
	f.prompts = append(f.prompts, prompt)
	return f.reply
}

func (f *fakeGenerator) lastPrompt(t *testing.T) string {
	t.Helper()
	if len(f.prompts) == 0 {
		t.Fatal("generator was not called")
	}
	return f.prompts[len(f.prompts)-1]
}

func newTestManager() (*Manager, *fakeOCR, *fakeGenerator) {
	ocr := &fakeOCR{}
	gen := &fakeGenerator{reply: "ok"}
	return NewManager(ocr, gen, logging.Discard()), ocr, gen
}

func testImage(digest string) Image {
	return Image{
		Data:      []byte("image-" + digest),
		Digest:    digest,
		Thumbnail: "data:image/png;base64,thumb-" + digest,
		PreviewID: "preview-" + digest,
	}
}

func roles(entries []Entry) []Role {
	out := make([]Role, len(entries))
	for i, e := range entries {
		out[i] = e.Role()
	}
	return out
}
