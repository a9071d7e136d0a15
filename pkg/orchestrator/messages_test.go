package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

func TestBuildMessages(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "Olá"},
		{Role: "tool", Content: "ignorado"},
		{Role: models.RoleAssistant, Content: "   "},
		{Role: models.RoleAssistant, Content: "Oi, como posso ajudar?"},
	}

	t.Run("prepends system prompt", func(t *testing.T) {
		msgs := BuildMessages("Seja breve.", history, "Qual a dose?")
		assert.Equal(t, []models.Message{
			{Role: models.RoleSystem, Content: "Seja breve."},
			{Role: models.RoleUser, Content: "Olá"},
			{Role: models.RoleAssistant, Content: "Oi, como posso ajudar?"},
			{Role: models.RoleUser, Content: "Qual a dose?"},
		}, msgs)
	})

	t.Run("keeps existing system message", func(t *testing.T) {
		withSystem := append([]models.Message{{Role: models.RoleSystem, Content: "Outro"}}, history...)
		msgs := BuildMessages("Seja breve.", withSystem, "Qual a dose?")
		assert.Equal(t, models.RoleSystem, msgs[0].Role)
		assert.Equal(t, "Outro", msgs[0].Content)
		assert.Len(t, msgs, 4)
	})

	t.Run("no system prompt", func(t *testing.T) {
		msgs := BuildMessages("", nil, "Oi")
		assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "Oi"}}, msgs)
	})
}

func TestFingerprint(t *testing.T) {
	msgs := []models.Message{{Role: models.RoleUser, Content: "Oi"}}

	a := Fingerprint(msgs, "llama3.1", 0.1, 256)
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint(msgs, "llama3.1", 0.1, 256))
	assert.NotEqual(t, a, Fingerprint([]models.Message{{Role: models.RoleAssistant, Content: "Oi"}}, "llama3.1", 0.1, 256))
	assert.NotEqual(t, a, Fingerprint(msgs, "llama3.2", 0.1, 256))
	assert.NotEqual(t, a, Fingerprint(msgs, "llama3.1", 0.2, 256))
	assert.NotEqual(t, a, Fingerprint(msgs, "llama3.1", 0.1, 512))
}
