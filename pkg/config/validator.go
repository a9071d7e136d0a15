package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "model is required",
		})
	}

	if c.LLM.ConnectTimeout <= 0 || c.LLM.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "timeouts must be positive",
		})
	}

	// Validate index and its storage backend
	switch c.Index.Backend {
	case "file":
	case "pgvector":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown index backend: %s", c.Index.Backend),
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Index.BatchSize < 1 || c.Index.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.batch_size",
			Message: "batch_size and workers must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_bytes",
			Message: "max_bytes must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.OverlapRatio < 0 || c.Processor.OverlapRatio >= 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.overlap_ratio",
			Message: "overlap_ratio must be in [0, 1)",
		})
	}

	// Validate Cache config
	if c.Cache.MaxSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "cache.max_size",
			Message: "max_size must be positive",
		})
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errors = append(errors, ValidationError{
				Field:   "cache.redis_addr",
				Message: "redis address is required for the redis backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("unknown cache backend: %s", c.Cache.Backend),
		})
	}

	if c.Orchestrator.Retries() < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_retries",
			Message: "max_retries cannot be negative",
		})
	}

	if c.Orchestrator.TimeoutGrowth < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.timeout_growth",
			Message: "timeout_growth must be at least 1",
		})
	}

	return errors
}
