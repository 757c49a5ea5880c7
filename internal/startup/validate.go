// Package startup wires the application together and checks its external
// dependencies (the ollama server and the tesseract engine) before serving.
package startup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hurricanerix/ocrchat/internal/logging"
	"github.com/hurricanerix/ocrchat/internal/ocr"
	"github.com/hurricanerix/ocrchat/internal/ollama"
)

// ollamaTimeout is the timeout for the ollama validation request
const ollamaTimeout = 5 * time.Second

// ErrDependencyCheck is returned by CheckDependencies when a required
// dependency is unavailable.
var ErrDependencyCheck = errors.New("dependency check failed")

// ValidateOllama checks that ollama is reachable and serves the configured model.
func ValidateOllama(ctx context.Context, client *ollama.Client) error {
	ctx, cancel := context.WithTimeout(ctx, ollamaTimeout)
	defer cancel()

	return client.Connect(ctx)
}

// ValidateTesseract checks that the tesseract executable can be found.
// It returns the resolved path.
func ValidateTesseract(engine *ocr.Tesseract) (string, error) {
	return engine.Detect()
}

// OllamaHints returns the advice printed when ValidateOllama fails.
func OllamaHints(err error, model string) string {
	switch {
	case errors.Is(err, ollama.ErrModelNotFound):
		return fmt.Sprintf("\nThe model is not available. Pull it with:\n  ollama pull %s\n", model)
	case ollama.IsConnectionError(err):
		return "\nPlease ensure ollama is running:\n  ollama serve\n"
	default:
		return ""
	}
}

// CheckDependencies validates ollama and tesseract. A missing tesseract is
// only logged. An ollama failure is written to stderr with hints and
// returned wrapped in ErrDependencyCheck, unless skip is set, in which case
// it is logged as a warning and nil is returned.
func CheckDependencies(ctx context.Context, c *Components, skip bool, stderr io.Writer, logger *logging.Logger) error {
	if path, err := ValidateTesseract(c.OCR); err != nil {
		logger.Warn("%v; image uploads will report OCR errors", err)
	} else {
		logger.Info("Using tesseract at %s (lang: %s)", path, c.OCR.Language())
	}

	logger.Debug("Validating ollama connection...")
	err := ValidateOllama(ctx, c.OllamaClient)
	if err == nil {
		logger.Info("Connected to ollama at %s (model: %s)", c.OllamaClient.Endpoint(), c.OllamaClient.Model())
		return nil
	}

	if skip {
		logger.Warn("Ollama validation failed, continuing: %v", err)
		return nil
	}

	logger.Error("Ollama validation failed: %v", err)
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprint(stderr, OllamaHints(err, c.OllamaClient.Model()))
	fmt.Fprintf(stderr, "\nRun with --skip-checks to start anyway.\n")
	return fmt.Errorf("%w: %w", ErrDependencyCheck, err)
}
