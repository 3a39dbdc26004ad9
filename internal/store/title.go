package store

import "unicode/utf8"

const (
	titleLimit   = 50
	defaultTitle = "New Chat"
)

// DeriveTitle returns the first user message cut to 50 runes, with "..."
// appended when it was cut, or "New Chat" when there is no user message.
func DeriveTitle(messages []ChatMessage) string {
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		if utf8.RuneCountInString(m.Content) <= titleLimit {
			return m.Content
		}
		return string([]rune(m.Content)[:titleLimit]) + "..."
	}
	return defaultTitle
}
