package conversation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// ImageOnlyPrompt is sent to the model for a turn that had an image but
	// neither extracted text nor an instruction.
	ImageOnlyPrompt = "The user shared an image."

	// ImagePlaceholder labels a display bubble for a turn without an instruction.
	ImagePlaceholder = "📷 Image"

	// MaxTitleLength is the number of characters kept from the first message.
	MaxTitleLength = 50
	titleEllipsis  = "..."
)

// ErrNothingToSend is returned when a turn has no instruction, no extracted
// text, and no image.
var ErrNothingToSend = errors.New("nothing to send")

// ComposePrompt builds the prompt for an instruction turn. With both inputs
// the extracted text comes first, separated by a blank line. With one input it
// is used verbatim. With neither, ImageOnlyPrompt is used if the chat has an
// image waiting, otherwise ErrNothingToSend is returned.
func ComposePrompt(instruction, extracted string, hasImage bool) (string, error) {
	instruction = strings.TrimSpace(instruction)
	extracted = strings.TrimSpace(extracted)

	switch {
	case extracted != "" && instruction != "":
		return extracted + "\n\n" + instruction, nil
	case extracted != "":
		return extracted, nil
	case instruction != "":
		return instruction, nil
	case hasImage:
		return ImageOnlyPrompt, nil
	default:
		return "", ErrNothingToSend
	}
}

// BuildHistory serialises a chat's log for the model, one line per
// user-side or assistant entry. Display bubbles are never included.
func BuildHistory(chat *Chat) string {
	if chat == nil {
		return ""
	}
	var b strings.Builder
	for _, e := range chat.entries {
		if h, ok := e.(HistoryEntry); ok {
			b.WriteString(h.historyLine())
		}
	}
	return b.String()
}

// generationPrompt appends the new user turn and the assistant cue to history.
// history must not already contain the current turn.
func generationPrompt(history, prompt string) string {
	return history + "User: " + prompt + "\nAssistant:"
}

// Title shortens s to MaxTitleLength characters, marking truncation with an
// ellipsis.
func Title(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxTitleLength]) + titleEllipsis
}

// turnTitle picks the title for an instruction turn: the instruction, else
// the first line of the extracted text, else the image placeholder.
func turnTitle(instruction, extracted string) string {
	if t := strings.TrimSpace(instruction); t != "" {
		return Title(t)
	}
	if t := strings.TrimSpace(extracted); t != "" {
		first, _, _ := strings.Cut(t, "\n")
		return Title(first)
	}
	return ImagePlaceholder
}
