package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

// Fingerprint is the cache key of a generation request: SHA-256 over the
// canonical JSON of its parameters. encoding/json writes map keys sorted, so
// the key is independent of field order.
func Fingerprint(msgs []models.Message, model string, temperature float64, maxTokens int) string {
	messages := make([]map[string]string, len(msgs))
	for i, m := range msgs {
		messages[i] = map[string]string{"role": string(m.Role), "content": m.Content}
	}
	payload := map[string]any{
		"messages":    messages,
		"model":       model,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	// Marshal of maps of strings and numbers cannot fail.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
