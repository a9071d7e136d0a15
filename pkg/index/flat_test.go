package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatSearch(t *testing.T) {
	flat, err := NewFlat(
		[]string{"a", "b", "c"},
		[][]float32{{1, 0}, {0, 1}, {0.6, 0.8}},
	)
	require.NoError(t, err)

	tests := []struct {
		name  string
		k     int
		texts []string
	}{
		{"top one", 1, []string{"a"}},
		{"top two", 2, []string{"a", "c"}},
		{"all", 3, []string{"a", "c", "b"}},
		{"more than available", 10, []string{"a", "c", "b"}},
		{"zero", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := flat.Search([]float32{1, 0}, tt.k)
			require.NoError(t, err)

			texts := make([]string, 0, len(hits))
			for i, h := range hits {
				texts = append(texts, h.Text)
				if i > 0 {
					assert.GreaterOrEqual(t, hits[i-1].Score, h.Score)
				}
			}
			assert.Equal(t, tt.texts, texts)
		})
	}
}

func TestFlatRejectsMismatch(t *testing.T) {
	_, err := NewFlat([]string{"a"}, nil)
	assert.Error(t, err)

	_, err = NewFlat([]string{"a", "b"}, [][]float32{{1, 0}, {1}})
	assert.Error(t, err)

	flat, err := NewFlat([]string{"a"}, [][]float32{{1, 0}})
	require.NoError(t, err)
	_, err = flat.Search([]float32{1, 0, 0}, 1)
	assert.Error(t, err)
}
