package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultOllamaURL, cfg.OllamaURL)
	assert.Equal(t, defaultOllamaModel, cfg.OllamaModel)
	assert.Equal(t, defaultTesseract, cfg.Tesseract)
	assert.Equal(t, defaultOCRLang, cfg.OCRLang)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.SkipChecks)
	assert.Equal(t, "localhost:8501", cfg.Addr())
}

func TestParseFlags(t *testing.T) {
	args := []string{
		"--port", "9000",
		"--ollama-url", "http://gpu-box:11434/",
		"--ollama-model", "llama3.2:3b",
		"--tesseract", "/usr/local/bin/tesseract",
		"--ocr-lang", "deu",
		"--log-level", "DEBUG",
		"--skip-checks",
	}

	cfg, err := Parse(args, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "http://gpu-box:11434", cfg.OllamaURL, "trailing slash is trimmed")
	assert.Equal(t, "llama3.2:3b", cfg.OllamaModel)
	assert.Equal(t, "/usr/local/bin/tesseract", cfg.Tesseract)
	assert.Equal(t, "deu", cfg.OCRLang)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.SkipChecks)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"port too low", []string{"--port", "80"}, ErrInvalidPort},
		{"port too high", []string{"--port", "70000"}, ErrInvalidPort},
		{"bad log level", []string{"--log-level", "verbose"}, ErrInvalidLogLevel},
		{"non-http url", []string{"--ollama-url", "ftp://localhost:11434"}, ErrInvalidOllamaURL},
		{"relative url", []string{"--ollama-url", "localhost:11434"}, ErrInvalidOllamaURL},
		{"blank model", []string{"--ollama-model", "  "}, ErrEmptyModel},
		{"blank tesseract", []string{"--tesseract", ""}, ErrEmptyTesseract},
		{"blank language", []string{"--ocr-lang", ""}, ErrEmptyOCRLang},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args, &bytes.Buffer{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseHelpAndVersion(t *testing.T) {
	out := &bytes.Buffer{}
	_, err := Parse([]string{"--help"}, out)
	assert.True(t, errors.Is(err, ErrShowHelp))
	assert.Contains(t, out.String(), "USAGE:")
	assert.Contains(t, out.String(), "OCRCHAT_OLLAMA_MODEL")

	out.Reset()
	_, err = Parse([]string{"--version"}, out)
	assert.True(t, errors.Is(err, ErrShowVersion))
	assert.Equal(t, "ocrchat "+Version+"\n", out.String())
}

func TestParseUnknownFlag(t *testing.T) {
	_, err := Parse([]string{"--steps", "4"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseConfigFile(t *testing.T) {
	path := writeFile(t, "ocrchat.toml", `
port = 8600
ollama_model = "mistral:7b"
ocr_lang = "fra"
skip_checks = true
`)

	cfg, err := Parse([]string{"--config", path}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 8600, cfg.Port)
	assert.Equal(t, "mistral:7b", cfg.OllamaModel)
	assert.Equal(t, "fra", cfg.OCRLang)
	assert.True(t, cfg.SkipChecks)
	assert.Equal(t, defaultOllamaURL, cfg.OllamaURL, "unset keys keep defaults")
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestParseConfigFileMissing(t *testing.T) {
	_, err := Parse([]string{"--config", filepath.Join(t.TempDir(), "absent.toml")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParsePrecedence(t *testing.T) {
	path := writeFile(t, "ocrchat.toml", `
ollama_model = "from-file"
ocr_lang = "from-file"
port = 8600
`)
	t.Setenv("OCRCHAT_OLLAMA_MODEL", "from-env")
	t.Setenv("OCRCHAT_PORT", "8700")

	cfg, err := Parse([]string{"--config", path, "--port", "8800"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.OCRLang, "file overrides defaults")
	assert.Equal(t, "from-env", cfg.OllamaModel, "env overrides file")
	assert.Equal(t, 8800, cfg.Port, "flags override env")
}

func TestParseEnvFile(t *testing.T) {
	const key = "OCRCHAT_TESSERACT"
	if _, ok := os.LookupEnv(key); ok {
		t.Skipf("%s already set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeFile(t, ".env", key+"=/opt/tesseract/bin/tesseract\n")

	cfg, err := Parse([]string{"--env", path}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/opt/tesseract/bin/tesseract", cfg.Tesseract)
}

func TestParseInvalidEnvValue(t *testing.T) {
	t.Setenv("OCRCHAT_PORT", "not-a-number")

	_, err := Parse([]string{}, &bytes.Buffer{})
	assert.Error(t, err)
}
