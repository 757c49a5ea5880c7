// Command ocrchat serves a browser chat that extracts text from uploaded
// images with tesseract and discusses it with a local ollama model.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hurricanerix/ocrchat/internal/config"
	"github.com/hurricanerix/ocrchat/internal/startup"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := config.Parse(args, stderr)
	if errors.Is(err, config.ErrShowHelp) || errors.Is(err, config.ErrShowVersion) {
		// Help or version was shown, exit successfully
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Create logger early
	logger := startup.CreateLogger(cfg)

	logger.Info("Starting ocrchat %s...", config.Version)
	logger.Debug("Configuration: port=%d, tesseract=%s, ocr-lang=%s, skip-checks=%t",
		cfg.Port, cfg.Tesseract, cfg.OCRLang, cfg.SkipChecks)
	logger.Debug("Ollama: url=%s, model=%s", cfg.OllamaURL, cfg.OllamaModel)
	logger.Debug("Log level: %s", cfg.LogLevel)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	components, err := startup.InitializeAll(ctx, cfg, logger)
	if err != nil {
		logger.Error("Initialization failed: %v", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer components.Shutdown()

	if err := startup.CheckDependencies(ctx, components, cfg.SkipChecks, stderr, logger); err != nil {
		return 1
	}

	logger.Info("Listening on http://%s", cfg.Addr())

	if err := startup.Run(ctx, components.WebServer, logger); err != nil {
		logger.Error("Server error: %v", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
