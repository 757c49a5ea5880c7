// Package ocr extracts text from images with the tesseract OCR engine.
//
// The engine is run as an external process reading the image from stdin and
// writing plain text to stdout, so no native libraries are linked into the
// binary. Only the tesseract executable and its language data are needed.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultBinary is the tesseract executable looked up on PATH.
	DefaultBinary = "tesseract"
	// DefaultLanguage is the tesseract language code.
	DefaultLanguage = "eng"
	// DefaultTimeout bounds a single extraction.
	DefaultTimeout = 60 * time.Second

	// maxStderr caps how much engine diagnostics are quoted in errors.
	maxStderr = 512
)

var (
	// ErrEngineNotFound is returned when the tesseract executable cannot be found
	ErrEngineNotFound = errors.New("tesseract OCR engine not found")
	// ErrExtractionFailed is returned when the engine exits with an error
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrEmptyImage is returned when no image bytes are given
	ErrEmptyImage = errors.New("image is empty")
)

// Tesseract runs the tesseract command line engine.
type Tesseract struct {
	binary   string
	language string
	timeout  time.Duration
}

// NewTesseract creates an extractor for the given executable and language.
// Empty arguments fall back to DefaultBinary and DefaultLanguage.
func NewTesseract(binary, language string) *Tesseract {
	if binary == "" {
		binary = DefaultBinary
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Tesseract{
		binary:   binary,
		language: language,
		timeout:  DefaultTimeout,
	}
}

// Binary returns the configured executable.
func (t *Tesseract) Binary() string {
	return t.binary
}

// Language returns the configured language code.
func (t *Tesseract) Language() string {
	return t.language
}

// Detect resolves the executable, returning ErrEngineNotFound when it is
// missing from PATH.
func (t *Tesseract) Detect() (string, error) {
	path, err := exec.LookPath(t.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s (install it or set --tesseract)", ErrEngineNotFound, t.binary)
	}
	return path, nil
}

// Extract returns the text found in image, trimmed of surrounding whitespace.
// An image without readable text yields an empty string and no error.
func (t *Tesseract) Extract(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	path, err := t.Detect()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = bytes.NewReader(image)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: timed out after %v", ErrExtractionFailed, t.timeout)
		}
		return "", fmt.Errorf("%w: %v: %s", ErrExtractionFailed, err, diagnostics(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// diagnostics keeps the tail of the engine's stderr, where the actual
// error is printed after progress messages.
func diagnostics(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
