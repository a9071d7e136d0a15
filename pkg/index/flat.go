package index

import (
	"fmt"
	"sort"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

// Flat is an exact inner-product index over unit vectors. It is immutable
// once built and safe for concurrent searches.
type Flat struct {
	texts   []string
	vectors [][]float32
	dims    int
}

func NewFlat(texts []string, vectors [][]float32) (*Flat, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("index needs one vector per text: %d texts, %d vectors", len(texts), len(vectors))
	}
	dims := 0
	for i, v := range vectors {
		if i == 0 {
			dims = len(v)
			continue
		}
		if len(v) != dims {
			return nil, fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), dims)
		}
	}
	return &Flat{texts: texts, vectors: vectors, dims: dims}, nil
}

func (f *Flat) Len() int {
	return len(f.texts)
}

func (f *Flat) Dims() int {
	return f.dims
}

func (f *Flat) Texts() []string {
	return f.texts
}

// Search returns the k best hits for query sorted by descending score, or
// every hit when the index holds fewer than k texts.
func (f *Flat) Search(query []float32, k int) ([]models.ScoredText, error) {
	if k <= 0 || len(f.texts) == 0 {
		return []models.ScoredText{}, nil
	}
	if len(query) != f.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), f.dims)
	}

	hits := make([]models.ScoredText, len(f.texts))
	for i, v := range f.vectors {
		hits[i] = models.ScoredText{Score: dot(query, v), Text: f.texts[i]}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
