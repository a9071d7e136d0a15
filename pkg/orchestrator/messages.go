package orchestrator

import (
	"strings"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

// FilterHistory keeps well formed entries only, in their original order.
func FilterHistory(history []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history))
	for _, m := range history {
		if !m.Role.Valid() || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// BuildMessages appends the question to the filtered history and puts the
// system prompt in front unless the conversation already opens with one.
func BuildMessages(systemPrompt string, history []models.Message, question string) []models.Message {
	msgs := FilterHistory(history)
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: question})
	return withSystemPrompt(systemPrompt, msgs)
}

func withSystemPrompt(systemPrompt string, msgs []models.Message) []models.Message {
	if systemPrompt == "" {
		return msgs
	}
	if len(msgs) > 0 && msgs[0].Role == models.RoleSystem {
		return msgs
	}
	out := make([]models.Message, 0, len(msgs)+1)
	out = append(out, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	return append(out, msgs...)
}
