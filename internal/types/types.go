package types

import (
	"context"
	"time"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

// Embedder maps texts to one vector per text.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator performs a single chat completion against the generation service.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type GenerateRequest struct {
	Model       string
	Messages    []models.Message
	Temperature float64
	MaxTokens   int
	Timeout     TimeoutPolicy
}

// SnapshotStore persists the (texts, embeddings) pair behind the vector index.
// Load returns (nil, nil, nil) when nothing usable is stored.
type SnapshotStore interface {
	Load(ctx context.Context) ([]string, [][]float32, error)
	Save(ctx context.Context, texts []string, embeddings [][]float32) error
}

// CacheStore is a capacity bounded key/value store that evicts the
// oldest inserted entry when full.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Capacity() int
}

// Corpus enumerates the raw chunk texts of the indexable corpus.
type Corpus interface {
	Texts() ([]string, error)
}

// TimeoutPolicy carries the two independent bounds of an outbound call.
type TimeoutPolicy struct {
	Connect  time.Duration
	Response time.Duration
}
