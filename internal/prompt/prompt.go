// Package prompt converts structured chat histories into the flat prompt
// strings the inference backend consumes. The role-prefixed flattening here
// is a deliberately simple formatting strategy; a real chat template can
// replace Flatten without touching the HTTP layer.
package prompt

import "strings"

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Recognized roles. Messages with any other role are dropped.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Flatten renders a message history as a single newline-joined prompt,
// prefixing each message with its role label and appending a trailing
// "Assistant:" cue so the model continues as the assistant.
func Flatten(messages []Message) string {
	parts := make([]string, 0, len(messages)+1)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			parts = append(parts, "System: "+m.Content)
		case RoleUser:
			parts = append(parts, "User: "+m.Content)
		case RoleAssistant:
			parts = append(parts, "Assistant: "+m.Content)
		}
	}
	parts = append(parts, "Assistant:")
	return strings.Join(parts, "\n")
}

// CountTokens approximates a token count as the number of
// whitespace-separated words. It is not a real tokenizer; the wire format
// keeps this approximation until one is wired in, so usage numbers stay
// stable for clients that already depend on them.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}
