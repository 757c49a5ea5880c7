// Package config provides configuration management for the ocrchat application.
//
// Values are layered: built-in defaults, then an optional TOML file
// (--config), then OCRCHAT_* environment variables (optionally loaded from a
// .env file given with --env), then CLI flags. The Config struct is passed to
// components during initialization.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// Version is the ocrchat application version
	Version = "0.1.0"

	// Default values
	defaultPort        = 8501
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama2"
	defaultTesseract   = "tesseract"
	defaultOCRLang     = "eng"
	defaultLogLevel    = "info"

	// Validation constraints
	minPort = 1024
	maxPort = 65535
)

var (
	// ErrInvalidPort is returned when port is out of valid range
	ErrInvalidPort = errors.New("port must be between 1024 and 65535")
	// ErrInvalidLogLevel is returned when log level is not recognized
	ErrInvalidLogLevel = errors.New("log-level must be one of: debug, info, warn, error")
	// ErrInvalidOllamaURL is returned when the ollama URL is not an absolute http(s) URL
	ErrInvalidOllamaURL = errors.New("ollama-url must be an absolute http or https URL")
	// ErrEmptyModel is returned when no ollama model is configured
	ErrEmptyModel = errors.New("ollama-model must not be empty")
	// ErrEmptyTesseract is returned when the tesseract binary name is blank
	ErrEmptyTesseract = errors.New("tesseract must not be empty")
	// ErrEmptyOCRLang is returned when the OCR language is blank
	ErrEmptyOCRLang = errors.New("ocr-lang must not be empty")
	// ErrShowHelp is returned when --help flag is requested
	ErrShowHelp = errors.New("help requested")
	// ErrShowVersion is returned when --version flag is requested
	ErrShowVersion = errors.New("version requested")
)

// Config holds all configuration values for the ocrchat application.
type Config struct {
	// Server configuration
	Port int `toml:"port" env:"OCRCHAT_PORT"`

	// Generation backend
	OllamaURL   string `toml:"ollama_url" env:"OCRCHAT_OLLAMA_URL"`
	OllamaModel string `toml:"ollama_model" env:"OCRCHAT_OLLAMA_MODEL"`

	// OCR engine
	Tesseract string `toml:"tesseract" env:"OCRCHAT_TESSERACT"`
	OCRLang   string `toml:"ocr_lang" env:"OCRCHAT_OCR_LANG"`

	// Logging configuration
	LogLevel string `toml:"log_level" env:"OCRCHAT_LOG_LEVEL"`

	// SkipChecks downgrades failed startup dependency checks to warnings.
	SkipChecks bool `toml:"skip_checks" env:"OCRCHAT_SKIP_CHECKS"`

	// Sources the values were loaded from, empty when unused.
	ConfigFile string `toml:"-"`
	EnvFile    string `toml:"-"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Port:        defaultPort,
		OllamaURL:   defaultOllamaURL,
		OllamaModel: defaultOllamaModel,
		Tesseract:   defaultTesseract,
		OCRLang:     defaultOCRLang,
		LogLevel:    defaultLogLevel,
	}
}

// Parse builds a Config from defaults, the optional config and env files,
// the process environment, and CLI flags, in that order of precedence.
// It returns ErrShowHelp or ErrShowVersion after printing the requested output.
func Parse(args []string, output io.Writer) (*Config, error) {
	var (
		f           Config
		showHelp    bool
		showVersion bool
	)

	fs := flag.NewFlagSet("ocrchat", flag.ContinueOnError)
	fs.SetOutput(output)

	// Source flags
	fs.StringVar(&f.ConfigFile, "config", "", "Path to a TOML configuration file")
	fs.StringVar(&f.EnvFile, "env", "", "Path to a .env file with OCRCHAT_* variables")

	// Server flags
	fs.IntVar(&f.Port, "port", defaultPort, "HTTP server port")

	// Backend flags
	fs.StringVar(&f.OllamaURL, "ollama-url", defaultOllamaURL, "Ollama API endpoint URL")
	fs.StringVar(&f.OllamaModel, "ollama-model", defaultOllamaModel, "Ollama model name")
	fs.StringVar(&f.Tesseract, "tesseract", defaultTesseract, "Tesseract executable name or path")
	fs.StringVar(&f.OCRLang, "ocr-lang", defaultOCRLang, "Tesseract language code")

	// Logging flags
	fs.StringVar(&f.LogLevel, "log-level", defaultLogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&f.SkipChecks, "skip-checks", false, "Continue when startup dependency checks fail")

	// Special flags
	fs.BoolVar(&showHelp, "help", false, "Show help message")
	fs.BoolVar(&showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if showHelp {
		printHelp(output)
		return nil, ErrShowHelp
	}

	if showVersion {
		printVersion(output)
		return nil, ErrShowVersion
	}

	c := Default()
	c.ConfigFile = f.ConfigFile
	c.EnvFile = f.EnvFile

	if c.ConfigFile != "" {
		if _, err := toml.DecodeFile(c.ConfigFile, c); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", c.ConfigFile, err)
		}
	}

	if c.EnvFile != "" {
		// Variables already present in the environment win over the file.
		if err := godotenv.Load(c.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", c.EnvFile, err)
		}
	}

	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Only flags given on the command line override lower layers.
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			c.Port = f.Port
		case "ollama-url":
			c.OllamaURL = f.OllamaURL
		case "ollama-model":
			c.OllamaModel = f.OllamaModel
		case "tesseract":
			c.Tesseract = f.Tesseract
		case "ocr-lang":
			c.OCRLang = f.OCRLang
		case "log-level":
			c.LogLevel = f.LogLevel
		case "skip-checks":
			c.SkipChecks = f.SkipChecks
		}
	})

	c.normalize()

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("localhost:%d", c.Port)
}

func (c *Config) normalize() {
	c.OllamaURL = strings.TrimRight(strings.TrimSpace(c.OllamaURL), "/")
	c.OllamaModel = strings.TrimSpace(c.OllamaModel)
	c.Tesseract = strings.TrimSpace(c.Tesseract)
	c.OCRLang = strings.TrimSpace(c.OCRLang)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// validate checks that all configuration values are within valid ranges
func (c *Config) validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return ErrInvalidPort
	}

	u, err := url.Parse(c.OllamaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidOllamaURL
	}

	if c.OllamaModel == "" {
		return ErrEmptyModel
	}

	if c.Tesseract == "" {
		return ErrEmptyTesseract
	}

	if c.OCRLang == "" {
		return ErrEmptyOCRLang
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	return nil
}

// printHelp prints usage information
func printHelp(w io.Writer) {
	fmt.Fprintf(w, `ocrchat - chat with a local LLM about text extracted from images

USAGE:
    ocrchat [FLAGS]

FLAGS:
    --config <PATH>            TOML configuration file
    --env <PATH>               .env file with OCRCHAT_* variables
    --port <PORT>              HTTP server port (default: %d)
    --ollama-url <URL>         Ollama API endpoint (default: %s)
    --ollama-model <MODEL>     Ollama model name (default: %s)
    --tesseract <PATH>         Tesseract executable (default: %s)
    --ocr-lang <LANG>          Tesseract language code (default: %s)
    --log-level <LEVEL>        Log level: debug, info, warn, error (default: %s)
    --skip-checks              Start even if ollama or the model is unavailable
    --help                     Show this help message
    --version                  Show version information

ENVIRONMENT:
    OCRCHAT_PORT, OCRCHAT_OLLAMA_URL, OCRCHAT_OLLAMA_MODEL, OCRCHAT_TESSERACT,
    OCRCHAT_OCR_LANG, OCRCHAT_LOG_LEVEL, OCRCHAT_SKIP_CHECKS

    Precedence: defaults < config file < environment < flags

EXAMPLES:
    # Start with defaults
    ocrchat

    # Use a different model
    ocrchat --ollama-model llama3.2:3b

    # OCR German documents
    ocrchat --ocr-lang deu

REQUIREMENTS:
    - ollama must be running (default: %s)
    - tesseract must be installed for image text extraction
`,
		defaultPort, defaultOllamaURL, defaultOllamaModel, defaultTesseract,
		defaultOCRLang, defaultLogLevel, defaultOllamaURL)
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "ocrchat %s\n", Version)
}
