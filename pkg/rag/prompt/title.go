package prompt

import (
	"strings"
)

const (
	FallbackTitle  = "Document Chat"
	maxTitleLength = 50
)

// TitlePrompt asks for a short session title derived from the first question.
func TitlePrompt(firstQuestion string) string {
	return "Generate a short, descriptive title (max 6 words) for a chat session that starts with this question:\n\n" +
		"\"" + firstQuestion + "\"\n\nTitle:"
}

// CleanTitle normalises a generated title: quotes and newlines removed,
// at most 50 characters, FallbackTitle when nothing is left.
func CleanTitle(raw string) string {
	title := strings.ReplaceAll(raw, "\"", "")
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.Join(strings.Fields(title), " ")

	runes := []rune(title)
	if len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength-3]) + "..."
	}
	if title == "" {
		return FallbackTitle
	}
	return title
}
