package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
	"github.com/tonyzinh/system-hospital-backend/pkg/corpus"
	"github.com/tonyzinh/system-hospital-backend/pkg/logging"
	"github.com/tonyzinh/system-hospital-backend/pkg/metrics"
	"github.com/tonyzinh/system-hospital-backend/pkg/processor"
	"github.com/tonyzinh/system-hospital-backend/pkg/scraper"
)

func newTestPipeline(t *testing.T) (*Pipeline, *corpus.Corpus, *metrics.Metrics, string) {
	t.Helper()
	dataDir := t.TempDir()
	c, err := corpus.New(dataDir)
	require.NoError(t, err)
	m := metrics.New()
	p := NewPipeline(
		PipelineConfig{},
		scraper.NewWithConfig(scraper.ScraperConfig{RateLimit: 100}),
		processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 1200, OverlapRatio: 0.15}),
		c,
		m,
		logging.Discard(),
	)
	return p, c, m, dataDir
}

func serve(t *testing.T, html string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestIngestSplitsLongPage(t *testing.T) {
	p, c, m, dataDir := newTestPipeline(t)
	body := strings.Repeat("a", 1300)
	server := serve(t, "<html><head><title>Guia de Medicamentos</title></head><body><article><p>"+body+"</p></article></body></html>")

	before, err := c.Texts()
	require.NoError(t, err)

	chunks, err := p.Ingest(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1200, len(chunks[0].Text))
	assert.Equal(t, 280, len(chunks[1].Text))
	assert.Equal(t, 1, chunks[0].Seq)
	assert.Equal(t, 2, chunks[1].Seq)

	for _, name := range []string{"guia-de-medicamentos-001.txt", "guia-de-medicamentos-002.txt"} {
		_, err := os.Stat(filepath.Join(dataDir, corpus.WebDir, name))
		assert.NoError(t, err, name)
	}

	after, err := c.Texts()
	require.NoError(t, err)
	assert.Equal(t, len(before)+2, len(after))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestedChunks))
}

func TestIngestTitleFallsBackToFirstLine(t *testing.T) {
	p, _, _, dataDir := newTestPipeline(t)
	text := "Protocolo de Triagem\n" + strings.Repeat("Classificação de risco por cores. ", 20)
	server := serve(t, "<html><body><main><h1>Protocolo de Triagem</h1><p>"+text+"</p></main></body></html>")

	chunks, err := p.Ingest(context.Background(), server.URL)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, filepath.Join(dataDir, corpus.WebDir, "protocolo-de-triagem-001.txt"), chunks[0].Path)
}

func TestIngestValidation(t *testing.T) {
	p, _, m, _ := newTestPipeline(t)
	short := serve(t, "<html><body><article>Pouco texto.</article></body></html>")

	tests := []struct {
		name    string
		url     string
		message string
	}{
		{"empty", "", "url é obrigatório."},
		{"scheme", "ftp://example.com/file", "URL não suportada (apenas http/https)."},
		{"too short", short.URL, "Conteúdo muito curto para indexar."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Ingest(context.Background(), tt.url)
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err))
			assert.Equal(t, tt.message, err.(*apperr.ValidationError).Message)
		})
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestFailures.WithLabelValues("too_short")))
}

func TestIngestOversizedPage(t *testing.T) {
	dataDir := t.TempDir()
	c, err := corpus.New(dataDir)
	require.NoError(t, err)
	p := NewPipeline(
		PipelineConfig{},
		scraper.NewWithConfig(scraper.ScraperConfig{MaxBytes: 1000, RateLimit: 100}),
		processor.NewWithConfig(processor.ProcessorConfig{}),
		c,
		nil,
		logging.Discard(),
	)
	server := serve(t, "<html><body>"+strings.Repeat("x", 2000)+"</body></html>")

	_, err = p.Ingest(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	texts, err := c.Texts()
	require.NoError(t, err)
	assert.Empty(t, texts)
}

func TestIngestUpstreamFailure(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := p.Ingest(context.Background(), server.URL)
	require.Error(t, err)
	assert.False(t, apperr.IsValidation(err))
}
