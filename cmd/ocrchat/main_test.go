package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// closedURL returns the URL of a server that is no longer listening.
func closedURL(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
}

func TestRun_HelpAndVersion(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"help", []string{"--help"}, "USAGE"},
		{"version", []string{"--version"}, "ocrchat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stderr); code != 0 {
				t.Errorf("run() = %d, want 0", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", stderr.String(), tt.want)
			}
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"--port", "80"}, &stderr); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Error:") {
		t.Errorf("stderr = %q, want an error message", stderr.String())
	}
}

func TestRun_OllamaUnavailable(t *testing.T) {
	var stderr bytes.Buffer
	args := []string{
		"--ollama-url", closedURL(t),
		"--port", freePort(t),
		"--log-level", "error",
	}

	if code := run(context.Background(), args, &stderr); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "--skip-checks") {
		t.Errorf("stderr = %q, want a --skip-checks hint", stderr.String())
	}
}

func TestRun_SkipChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stderr bytes.Buffer
	args := []string{
		"--ollama-url", closedURL(t),
		"--port", freePort(t),
		"--log-level", "error",
		"--skip-checks",
	}

	// A cancelled context shuts the server down as soon as it starts.
	if code := run(ctx, args, &stderr); code != 0 {
		t.Errorf("run() = %d, want 0 (stderr: %s)", code, stderr.String())
	}
}
