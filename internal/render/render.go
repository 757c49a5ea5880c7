// Package render turns a chat log into sanitised HTML bubbles for the page.
//
// Assistant replies are markdown and go through goldmark. Everything ends up
// filtered by a bluemonday policy that keeps ordinary formatting and inline
// data-URI images (bubble thumbnails) and drops scripts, handlers, and
// remote resources.
package render

import (
	"bytes"
	"html"
	"html/template"
	"strings"

	"github.com/hurricanerix/ocrchat/internal/conversation"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Author is who a bubble belongs to.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Bubble is one rendered message in the transcript.
type Bubble struct {
	Author Author
	HTML   template.HTML
}

// Renderer converts entries to HTML. It is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New creates a Renderer.
func New() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowDataURIImages()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("img", "p", "code", "span")

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: policy,
	}
}

// Markdown renders markdown source to sanitised HTML. Raw HTML in the source
// is escaped by goldmark before the policy runs.
func (r *Renderer) Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return r.Text(src)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

// Text renders plain text, preserving line breaks.
func (r *Renderer) Text(s string) template.HTML {
	escaped := strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
	return template.HTML(r.policy.Sanitize("<p>" + escaped + "</p>"))
}

// Display renders a display bubble: its text and, if present, the thumbnail.
func (r *Renderer) Display(b conversation.DisplayBubble) template.HTML {
	var sb strings.Builder
	if b.Thumbnail != "" {
		sb.WriteString(`<img class="thumb" alt="uploaded image" src="`)
		sb.WriteString(html.EscapeString(b.Thumbnail))
		sb.WriteString(`">`)
	}
	sb.WriteString("<p>")
	sb.WriteString(strings.ReplaceAll(html.EscapeString(b.Text), "\n", "<br>"))
	sb.WriteString("</p>")
	return template.HTML(r.policy.Sanitize(sb.String()))
}

// Transcript renders a chat log in display order. Model prompts are hidden,
// and a display bubble recorded after its reply is shown before it.
func (r *Renderer) Transcript(entries []conversation.Entry) []Bubble {
	out := make([]Bubble, 0, len(entries))
	for i := 0; i < len(entries); i++ {
		switch e := entries[i].(type) {
		case conversation.ModelPrompt:
			continue
		case conversation.PlainUser:
			out = append(out, Bubble{Author: AuthorUser, HTML: r.Text(e.Text)})
		case conversation.DisplayBubble:
			out = append(out, Bubble{Author: AuthorUser, HTML: r.Display(e)})
		case conversation.Assistant:
			if i+1 < len(entries) {
				if d, ok := entries[i+1].(conversation.DisplayBubble); ok {
					out = append(out, Bubble{Author: AuthorUser, HTML: r.Display(d)})
					i++
				}
			}
			out = append(out, Bubble{Author: AuthorAssistant, HTML: r.Markdown(e.Content())})
		}
	}
	return out
}
