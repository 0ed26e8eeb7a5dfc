package model

// titleMaxLen is the number of leading characters of the first user message
// used for a derived conversation title.
const titleMaxLen = 30

// DeriveTitle derives a display title from a transcript: the first 30
// characters of the first user message, with "..." appended when truncated.
// Transcripts without a user message get the DefaultTitle sentinel.
func DeriveTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Role != RoleUser {
			continue
		}
		content := msg.Content
		if content == "" {
			break
		}
		// Truncate by characters, not bytes, so a multibyte rune at the
		// boundary is never split.
		if runes := []rune(content); len(runes) > titleMaxLen {
			return string(runes[:titleMaxLen]) + "..."
		}
		return content
	}
	return DefaultTitle
}
