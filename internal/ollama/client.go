package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors for ollama client operations
var (
	// ErrNotRunning is returned when ollama is not running at the configured endpoint
	ErrNotRunning = errors.New("ollama not running")
	// ErrModelNotFound is returned when the requested model is not available
	ErrModelNotFound = errors.New("model not available in ollama")
	// ErrConnectionTimeout is returned when the connection times out
	ErrConnectionTimeout = errors.New("ollama connection timeout")
	// ErrRequestFailed is returned when an API request fails
	ErrRequestFailed = errors.New("ollama request failed")
	// ErrConnectionFailed is returned when connection fails for unknown reasons
	ErrConnectionFailed = errors.New("ollama connection failed")
	// ErrEmptyPrompt is returned when Generate is called with a blank prompt
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrResponseTooLarge is returned when the streamed reply exceeds maxResponseSize
	ErrResponseTooLarge = errors.New("response too large")
)

const (
	// maxResponseSize caps the accumulated reply text.
	maxResponseSize = 1024 * 1024
	// maxLineSize caps a single NDJSON line.
	maxLineSize = 256 * 1024
	// maxErrorBody caps how much of a non-200 body is quoted in errors.
	maxErrorBody = 1024
)

// Client provides methods to communicate with the ollama API.
type Client struct {
	endpoint string
	model    string

	// api has a bounded timeout for short requests such as /api/tags.
	api *resty.Client
	// stream has no timeout; generation runs until the server finishes
	// or the caller's context is cancelled.
	stream *resty.Client
}

// NewClient creates a new ollama client with default settings.
func NewClient() *Client {
	return NewClientWithConfig(DefaultEndpoint, DefaultModel, DefaultTimeout*time.Second)
}

// NewClientWithConfig creates a new ollama client with custom configuration.
// Parameters:
//   - endpoint: Ollama API endpoint URL (e.g., "http://localhost:11434")
//   - model: Model name (e.g., "llama2")
//   - timeout: HTTP timeout for non-streaming requests
func NewClientWithConfig(endpoint, model string, timeout time.Duration) *Client {
	endpoint = strings.TrimRight(endpoint, "/")
	return &Client{
		endpoint: endpoint,
		model:    model,
		api:      resty.New().SetBaseURL(endpoint).SetTimeout(timeout),
		stream:   resty.New().SetBaseURL(endpoint),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the configured ollama endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Connect verifies that ollama is reachable and the configured model is available.
//
// Returns ErrNotRunning if ollama is not reachable.
// Returns ErrModelNotFound if the configured model is not available.
// Returns ErrConnectionTimeout if the connection times out.
func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.api.R().SetContext(ctx).Get(EndpointTags)
	if err != nil {
		return c.connectionError(err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode())
	}

	var tags TagsResponse
	if err := json.Unmarshal(resp.Body(), &tags); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !tags.Has(c.model) {
		return fmt.Errorf("%w: %s (pull with: ollama pull %s)", ErrModelNotFound, c.model, c.model)
	}

	return nil
}

// Has reports whether model is listed. A name without a tag matches the
// ":latest" tag, the same way ollama resolves it.
func (t TagsResponse) Has(model string) bool {
	for _, m := range t.Models {
		if m.Name == model || m.Name == model+":latest" {
			return true
		}
	}
	return false
}

// StreamCallback is called for each non-empty fragment of a streamed reply.
// Returning an error aborts the stream.
type StreamCallback func(token StreamToken) error

// Generate sends prompt to /api/generate and returns the concatenation of
// every streamed fragment, trimmed of surrounding whitespace. The call blocks
// until the server reports done, the stream ends, or ctx is cancelled.
// callback may be nil.
func (c *Client) Generate(ctx context.Context, prompt string, callback StreamCallback) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := c.stream.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(GenerateRequest{Model: c.model, Prompt: prompt}).
		SetDoNotParseResponse(true).
		Post(EndpointGenerate)
	if err != nil {
		return "", c.connectionError(err)
	}

	body := resp.RawBody()
	if body == nil {
		return "", fmt.Errorf("%w: empty response body", ErrRequestFailed)
	}
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		errBody, readErr := io.ReadAll(io.LimitReader(body, maxErrorBody))
		if readErr != nil {
			return "", fmt.Errorf("%w: status %d (failed to read error: %v)", ErrRequestFailed, resp.StatusCode(), readErr)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode(), strings.TrimSpace(string(errBody)))
	}

	text, err := parseGenerateStream(body, callback)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

// parseGenerateStream reads NDJSON lines until a chunk with done=true or EOF.
func parseGenerateStream(body io.Reader, callback StreamCallback) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var full strings.Builder
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var chunk GenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if chunk.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrRequestFailed, chunk.Error)
		}

		full.WriteString(chunk.Response)
		if full.Len() > maxResponseSize {
			return "", fmt.Errorf("%w (>%d bytes)", ErrResponseTooLarge, maxResponseSize)
		}

		if callback != nil && (chunk.Response != "" || chunk.Done) {
			if err := callback(StreamToken{Content: chunk.Response, Done: chunk.Done}); err != nil {
				return "", fmt.Errorf("callback error after %d bytes: %w", full.Len(), err)
			}
		}

		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read error: %w", err)
	}

	return full.String(), nil
}

// connectionError classifies a transport error and adds a start hint when
// nothing is listening on the endpoint.
func (c *Client) connectionError(err error) error {
	classified := classifyError(err)
	if errors.Is(classified, ErrNotRunning) {
		return fmt.Errorf("%w at %s (start with: ollama serve)", ErrNotRunning, c.endpoint)
	}
	return classified
}

// classifyError maps transport errors to the package sentinels.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectionTimeout
	}

	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectionTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrNotRunning
	}

	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

// IsConnectionError reports whether err means the model server could not
// be reached at all.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrConnectionTimeout)
}
