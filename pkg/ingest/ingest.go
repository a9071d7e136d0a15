// Package ingest turns a web page into persisted corpus chunks.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
	"github.com/tonyzinh/system-hospital-backend/pkg/metrics"
	"github.com/tonyzinh/system-hospital-backend/pkg/processor"
	"github.com/tonyzinh/system-hospital-backend/pkg/scraper"
)

const DefaultMinContentLength = 300

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*scraper.Page, error)
}

type ChunkWriter interface {
	Save(source, title string, chunks []string) ([]models.Chunk, error)
}

type PipelineConfig struct {
	MinContentLength int
}

type Pipeline struct {
	config    PipelineConfig
	fetcher   Fetcher
	processor processor.Processor
	writer    ChunkWriter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewPipeline(config PipelineConfig, fetcher Fetcher, p processor.Processor, writer ChunkWriter, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if config.MinContentLength <= 0 {
		config.MinContentLength = DefaultMinContentLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:    config,
		fetcher:   fetcher,
		processor: p,
		writer:    writer,
		metrics:   m,
		logger:    logger,
	}
}

// Ingest fetches url, chunks its primary text and writes the chunks to the
// web corpus. The vector index is left untouched.
func (p *Pipeline) Ingest(ctx context.Context, rawURL string) ([]models.Chunk, error) {
	start := time.Now()
	rawURL = strings.TrimSpace(rawURL)

	if _, err := scraper.ValidateURL(rawURL); err != nil {
		p.fail("invalid_url", rawURL, err)
		return nil, err
	}

	page, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		reason := "fetch"
		if apperr.IsValidation(err) {
			reason = "too_large"
		}
		p.fail(reason, rawURL, err)
		return nil, err
	}

	if utf8.RuneCountInString(page.Text) < p.config.MinContentLength {
		err := apperr.Invalid("url", "Conteúdo muito curto para indexar.")
		p.fail("too_short", rawURL, err)
		return nil, err
	}

	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = firstLine(page.Text)
	}

	pieces := p.processor.Process(page.Text)
	chunks, err := p.writer.Save(rawURL, title, pieces)
	if err != nil {
		p.fail("write", rawURL, err)
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.IngestedChunks.Add(float64(len(chunks)))
	}
	p.logger.Info("Ingested page",
		"url", rawURL,
		"title", title,
		"bytes", page.Bytes,
		"chunks", len(chunks),
		"duration", time.Since(start))
	return chunks, nil
}

func (p *Pipeline) fail(reason, rawURL string, err error) {
	if p.metrics != nil {
		p.metrics.IngestFailures.WithLabelValues(reason).Inc()
	}
	p.logger.Warn("Ingestion failed", "url", rawURL, "reason", reason, "error", err)
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
