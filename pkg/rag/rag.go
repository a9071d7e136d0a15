// Package rag answers questions straight from the indexed corpus, without a
// generation call.
package rag

import (
	"context"
	"strings"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

const (
	DefaultTopK = 3
	header      = "Resposta baseada em trechos:\n- "
)

// Searcher is the slice of the index manager the synthesizer needs.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.ScoredText, error)
}

type Synthesizer struct {
	searcher Searcher
	topK     int
}

func New(searcher Searcher, topK int) *Synthesizer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Synthesizer{searcher: searcher, topK: topK}
}

// Answer returns the templated answer together with the hits it was built from.
func (s *Synthesizer) Answer(ctx context.Context, query string, k int) (string, []models.ScoredText, error) {
	if k <= 0 {
		k = s.topK
	}
	hits, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		return "", nil, err
	}
	return Format(hits), hits, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, query string) (string, error) {
	answer, _, err := s.Answer(ctx, query, s.topK)
	return answer, err
}

func Format(hits []models.ScoredText) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return header + strings.Join(texts, "\n- ")
}
