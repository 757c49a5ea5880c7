// Package ollama provides a client for a local ollama model server.
// It streams text completions from /api/generate and checks model
// availability through /api/tags.
package ollama

// Default configuration constants
const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "llama2"
	DefaultTimeout  = 10 // seconds, non-streaming requests only
)

// API endpoints
const (
	EndpointTags     = "/api/tags"
	EndpointGenerate = "/api/generate"
)

// GenerateRequest is the body sent to /api/generate.
// ollama streams the response as NDJSON unless told otherwise.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// GenerateChunk is one line of the /api/generate NDJSON stream.
type GenerateChunk struct {
	Model      string `json:"model"`
	CreatedAt  string `json:"created_at"`
	Response   string `json:"response"`              // Text fragment, may be empty
	Done       bool   `json:"done"`                  // True on the final line
	DoneReason string `json:"done_reason,omitempty"` // e.g. "stop"
	Error      string `json:"error,omitempty"`       // Set when the server aborts mid-stream

	// Final line only
	TotalDuration int64 `json:"total_duration,omitempty"`
	EvalCount     int   `json:"eval_count,omitempty"`
}

// TagsResponse represents the response from ollama's /api/tags endpoint.
// Used to verify ollama is running and check available models.
type TagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelInfo represents information about an available model.
type ModelInfo struct {
	Name       string `json:"name"`        // e.g. "llama2:latest"
	ModifiedAt string `json:"modified_at"` // Last modification time
	Size       int64  `json:"size"`        // Model size in bytes
}

// StreamToken is a fragment delivered to a StreamCallback.
type StreamToken struct {
	Content string
	Done    bool
}
