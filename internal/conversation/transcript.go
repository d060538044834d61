package conversation

import "strings"

// RenderTranscript renders messages as the plain-text conversation stored
// with a chat-assembled patient message.
func RenderTranscript(messages []ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "Assistant"
		if m.Role == ChatRoleUser {
			speaker = "Patient"
		}
		parts = append(parts, speaker+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}
