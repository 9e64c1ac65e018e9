package runner

import (
	"strings"

	"agentmux/internal/domain"
)

// BuildPrompt renders all messages into one prompt string, each prefixed
// with its role label. Used by runners whose CLI has no separate system
// prompt flag.
func BuildPrompt(messages []domain.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, "["+msg.Role+"]\n"+msg.Content)
	}
	return strings.Join(parts, "\n\n")
}

// BuildUserPrompt renders non-system messages only, for CLIs that accept
// the system message through a dedicated flag.
func BuildUserPrompt(messages []domain.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			continue
		}
		parts = append(parts, "["+msg.Role+"]\n"+msg.Content)
	}
	return strings.Join(parts, "\n\n")
}

// ExtractSystemMessage returns the content of the first system message, or
// "" if there is none.
func ExtractSystemMessage(messages []domain.ChatMessage) string {
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			return msg.Content
		}
	}
	return ""
}
