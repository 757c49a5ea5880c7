package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/hurricanerix/ocrchat/internal/config"
	"github.com/hurricanerix/ocrchat/internal/conversation"
	"github.com/hurricanerix/ocrchat/internal/image"
	"github.com/hurricanerix/ocrchat/internal/logging"
	"github.com/hurricanerix/ocrchat/internal/ocr"
	"github.com/hurricanerix/ocrchat/internal/ollama"
	"github.com/hurricanerix/ocrchat/internal/web"
)

// apiTimeout bounds non-streaming ollama requests such as the model check.
const apiTimeout = 10 * time.Second

// Components holds all initialized application components
type Components struct {
	OllamaClient *ollama.Client
	OCR          *ocr.Tesseract
	Sessions     *conversation.Store
	Manager      *conversation.Manager
	ImageStorage *image.Storage
	WebServer    *web.Server
	Logger       *logging.Logger
}

// CreateLogger creates a logger with the configured log level
func CreateLogger(cfg *config.Config) *logging.Logger {
	return logging.NewFromString(cfg.LogLevel, nil)
}

// CreateOllamaClient creates an ollama client with the configured URL and model.
// It does NOT validate connection - use ValidateOllama() separately.
func CreateOllamaClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClientWithConfig(cfg.OllamaURL, cfg.OllamaModel, apiTimeout)
}

// CreateOCR creates the tesseract extractor. The binary is not looked up here.
func CreateOCR(cfg *config.Config) *ocr.Tesseract {
	return ocr.NewTesseract(cfg.Tesseract, cfg.OCRLang)
}

// CreateSessionStore creates the per-visitor session store
func CreateSessionStore(logger *logging.Logger) *conversation.Store {
	return conversation.NewStore(logger)
}

// CreateImageStorage creates image storage and starts cleanup goroutine
func CreateImageStorage(ctx context.Context, logger *logging.Logger) *image.Storage {
	storage := image.NewStorage()
	storage.StartCleanup(ctx, logger)
	return storage
}

// CreateWebServer creates the HTTP server with all dependencies wired
func CreateWebServer(cfg *config.Config, manager *conversation.Manager, sessions *conversation.Store, imageStorage *image.Storage, logger *logging.Logger) (*web.Server, error) {
	server, err := web.NewServerWithDeps(cfg.Addr(), manager, sessions, imageStorage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create web server: %w", err)
	}

	return server, nil
}

// InitializeAll creates and initializes all application components.
// It does NOT validate dependencies - validation should be done separately.
// Background cleanup stops when ctx is cancelled; call Shutdown when done.
func InitializeAll(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Components, error) {
	logger.Debug("Initializing components")

	ollamaClient := CreateOllamaClient(cfg)
	logger.Debug("Created ollama client: endpoint=%s, model=%s", ollamaClient.Endpoint(), ollamaClient.Model())

	tesseract := CreateOCR(cfg)
	logger.Debug("Created OCR engine: binary=%s, lang=%s", tesseract.Binary(), tesseract.Language())

	sessions := CreateSessionStore(logger)
	manager := conversation.NewManager(tesseract, ollamaClient, logger)
	logger.Debug("Created session store and conversation manager")

	imageStorage := CreateImageStorage(ctx, logger)
	logger.Debug("Created image storage with cleanup enabled")

	webServer, err := CreateWebServer(cfg, manager, sessions, imageStorage, logger)
	if err != nil {
		sessions.Shutdown()
		return nil, err
	}
	logger.Debug("Created web server on %s", cfg.Addr())

	return &Components{
		OllamaClient: ollamaClient,
		OCR:          tesseract,
		Sessions:     sessions,
		Manager:      manager,
		ImageStorage: imageStorage,
		WebServer:    webServer,
		Logger:       logger,
	}, nil
}

// Shutdown stops background goroutines owned by the components.
func (c *Components) Shutdown() {
	if c == nil {
		return
	}
	if c.Sessions != nil {
		c.Sessions.Shutdown()
	}
}
