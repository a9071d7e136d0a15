// Package index owns the process-wide vector index snapshot: building it from
// the corpus, reusing cached embeddings, and swapping in rebuilt snapshots.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
	"github.com/tonyzinh/system-hospital-backend/internal/types"
	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
	"github.com/tonyzinh/system-hospital-backend/pkg/metrics"
)

// SeedTexts stand in for the corpus when no document has been ingested yet.
var SeedTexts = []string{
	"Paracetamol: analgésico/antipirético; possíveis náuseas, rash.",
	"Ibuprofeno: AINE; risco GI; evitar em insuficiência renal.",
	"Amoxicilina: antibiótico; interação com anticoagulantes; alergia à penicilina.",
}

type ManagerConfig struct {
	BatchSize int
	Workers   int
}

// Snapshot is one immutable generation of the index.
type Snapshot struct {
	Index   *Flat
	BuiltAt time.Time
	Cached  bool
}

type Manager struct {
	config   ManagerConfig
	corpus   types.Corpus
	embedder types.Embedder
	store    types.SnapshotStore
	metrics  *metrics.Metrics
	logger   *slog.Logger

	current atomic.Pointer[Snapshot]
	loads   singleflight.Group
	// rebuilds serializes snapshot construction
	rebuilds sync.Mutex
}

func NewManager(config ManagerConfig, corpus types.Corpus, embedder types.Embedder, store types.SnapshotStore, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:   config,
		corpus:   corpus,
		embedder: embedder,
		store:    store,
		metrics:  m,
		logger:   logger,
	}
}

// Current returns the loaded snapshot or nil.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// EnsureLoaded builds the snapshot on first use. Concurrent callers share a
// single lazy build. With force set the cached embeddings are ignored and the
// corpus is read and embedded again; forced builds are never shared, so each
// one sees every chunk written before it was called.
func (m *Manager) EnsureLoaded(ctx context.Context, force bool) (*Snapshot, error) {
	if force {
		return m.build(context.WithoutCancel(ctx), true)
	}
	if snap := m.current.Load(); snap != nil {
		return snap, nil
	}

	v, err, _ := m.loads.Do("load", func() (interface{}, error) {
		return m.build(context.WithoutCancel(ctx), false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Rebuild recomputes every embedding, swaps the snapshot, and returns the
// number of indexed texts.
func (m *Manager) Rebuild(ctx context.Context) (int, error) {
	snap, err := m.EnsureLoaded(ctx, true)
	if err != nil {
		return 0, err
	}
	return snap.Index.Len(), nil
}

// Search embeds the query and returns the top k hits of the current snapshot.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]models.ScoredText, error) {
	snap, err := m.EnsureLoaded(ctx, false)
	if err != nil {
		return nil, err
	}
	vectors, err := m.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	return snap.Index.Search(vectors[0], k)
}

func (m *Manager) build(ctx context.Context, force bool) (*Snapshot, error) {
	m.rebuilds.Lock()
	defer m.rebuilds.Unlock()

	if !force {
		if snap := m.current.Load(); snap != nil {
			return snap, nil
		}
	}

	start := time.Now()
	texts, err := m.corpus.Texts()
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	seeded := len(texts) == 0
	if seeded {
		texts = slices.Clone(SeedTexts)
	}

	var embeddings [][]float32
	cached := false
	if !force {
		cachedTexts, cachedEmbeddings, err := m.store.Load(ctx)
		if err != nil {
			m.logger.Warn("Ignoring unreadable embedding cache", "error", err)
		} else if cachedTexts != nil && slices.Equal(cachedTexts, texts) {
			embeddings = cachedEmbeddings
			cached = true
		}
	}

	if !cached {
		embeddings, err = m.embedAll(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to embed %d texts: %v", apperr.ErrIndexUnavailable, len(texts), err)
		}
		if err := m.store.Save(ctx, texts, embeddings); err != nil {
			return nil, fmt.Errorf("failed to save embeddings: %w", err)
		}
	}

	flat, err := NewFlat(texts, embeddings)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Index: flat, BuiltAt: time.Now(), Cached: cached}
	m.current.Store(snap)

	source := "computed"
	if cached {
		source = "cached"
	}
	if m.metrics != nil {
		m.metrics.IndexSize.Set(float64(flat.Len()))
		m.metrics.IndexBuilds.WithLabelValues(source).Inc()
		m.metrics.IndexDuration.Observe(time.Since(start).Seconds())
	}
	m.logger.Info("Index snapshot ready",
		"documents", flat.Len(),
		"source", source,
		"seeded", seeded,
		"duration", time.Since(start))
	return snap, nil
}

// embedAll embeds texts in fixed size batches on a bounded set of workers,
// keeping the output aligned with the input.
func (m *Manager) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Workers)

	for start := 0; start < len(texts); start += m.config.BatchSize {
		end := min(start+m.config.BatchSize, len(texts))
		batch := texts[start:end]
		offset := start
		g.Go(func() error {
			vectors, err := m.embedder.CreateEmbedding(gctx, batch)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return errors.New("embedder returned a different number of vectors than texts")
			}
			copy(out[offset:], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
