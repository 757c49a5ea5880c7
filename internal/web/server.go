// Package web serves the browser UI: a single page rendered from the
// visitor's session, and form endpoints that change it and redirect back.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hurricanerix/ocrchat/internal/conversation"
	"github.com/hurricanerix/ocrchat/internal/image"
	"github.com/hurricanerix/ocrchat/internal/logging"
	"github.com/hurricanerix/ocrchat/internal/render"
)

//go:embed templates/* static/*
var embeddedFS embed.FS

const (
	// DefaultAddr is the default address the server listens on.
	DefaultAddr = "localhost:8501"

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout bounds a whole request, including OCR and generation,
	// which can take minutes on a CPU-only machine.
	WriteTimeout = 10 * time.Minute

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 30 * time.Second

	// MaxRequestBodySize is the maximum size of form POST bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// maxMultipartMemory is held in memory before spilling to temp files.
	maxMultipartMemory = 1 * 1024 * 1024
	// multipartOverhead allows for boundaries and headers around the file.
	multipartOverhead = 64 * 1024
)

// Server provides HTTP serving for the web UI.
type Server struct {
	addr      string
	server    *http.Server
	templates *template.Template

	manager  *conversation.Manager
	sessions *conversation.Store
	images   *image.Storage
	renderer *render.Renderer
	logger   *logging.Logger
}

// NewServerWithDeps creates a Server with injected dependencies.
// If addr is empty, DefaultAddr is used. A nil images or logger gets a default.
// Returns an error if templates cannot be parsed.
func NewServerWithDeps(addr string, manager *conversation.Manager, sessions *conversation.Store, images *image.Storage, logger *logging.Logger) (*Server, error) {
	if manager == nil || sessions == nil {
		return nil, errors.New("manager and session store are required")
	}
	if addr == "" {
		addr = DefaultAddr
	}
	if images == nil {
		images = image.NewStorage()
	}
	if logger == nil {
		logger = logging.New(logging.LevelInfo, nil)
	}

	tmpl, err := template.ParseFS(embeddedFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		addr:      addr,
		templates: tmpl,
		manager:   manager,
		sessions:  sessions,
		images:    images,
		renderer:  render.New(),
		logger:    logger,
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// routes sets up middleware and all HTTP routes.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(SessionMiddleware)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/static/*", http.FileServer(http.FS(embeddedFS)))

	r.Post("/chats", s.handleNewChat)
	r.Post("/chats/{chatID}/select", s.handleSelectChat)
	r.Post("/upload", s.handleUpload)
	r.Post("/send", s.handleSend)
	r.Post("/message", s.handleMessage)

	r.Get("/images/{id}", s.handleImage)

	return r
}

// ListenAndServe starts the HTTP server and blocks until the context is cancelled.
// Returns an error if the server fails to start or encounters a non-graceful shutdown error.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("Starting web server on http://%s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		s.logger.Info("Web server stopped")
		return nil

	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// session returns the visitor's session, creating it on first use.
func (s *Server) session(r *http.Request) *conversation.Session {
	return s.sessions.GetOrCreate(GetSessionID(r.Context()))
}

// redirectHome finishes a POST by sending the browser back to the page.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
