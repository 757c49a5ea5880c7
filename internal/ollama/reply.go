package ollama

import (
	"context"
	"fmt"
)

const (
	// NoReplyText is returned by Reply when the model produced only whitespace.
	NoReplyText = "Sorry, I couldn't generate a reply."

	// ConnectionErrorMarker prefixes replies produced when the server is unreachable.
	ConnectionErrorMarker = "⚠️ Connection error"

	// BackendErrorMarker prefixes replies produced for every other failure.
	BackendErrorMarker = "❌ Backend error"
)

// Reply generates a completion for prompt and never fails: transport and
// protocol errors are turned into a reply string the user can read.
func (c *Client) Reply(ctx context.Context, prompt string) string {
	text, err := c.Generate(ctx, prompt, nil)
	return ReplyText(text, err, c.endpoint)
}

// ReplyText maps the outcome of Generate to the text shown as the
// assistant's reply.
func ReplyText(text string, err error, endpoint string) string {
	switch {
	case err != nil && IsConnectionError(err):
		return fmt.Sprintf("%s: could not reach the model server at %s. Make sure ollama is running (ollama serve).", ConnectionErrorMarker, endpoint)
	case err != nil:
		return fmt.Sprintf("%s: %v", BackendErrorMarker, err)
	case text == "":
		return NoReplyText
	default:
		return text
	}
}
