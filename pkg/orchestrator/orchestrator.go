// Package orchestrator shapes and executes chat requests against the
// generation service: tier classification, message assembly, the FIFO
// response cache, timeouts and retries.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
	"github.com/tonyzinh/system-hospital-backend/internal/types"
	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
	"github.com/tonyzinh/system-hospital-backend/pkg/metrics"
)

// Placeholder replaces an empty answer from the generation service.
const Placeholder = "Desculpe, não consegui gerar uma resposta."

type Config struct {
	Model          string
	SystemPrompt   string
	ConnectTimeout time.Duration
	CacheEnabled   bool
	MaxRetries     int
	RetryDelay     time.Duration
	TimeoutGrowth  float64
	MaxTimeout     time.Duration
	SlowThreshold  time.Duration
}

// Request is one question with its optional conversation and model override.
type Request struct {
	Question string
	History  []models.Message
	Model    string
}

type CacheStats struct {
	Size    int  `json:"size"`
	MaxSize int  `json:"max_size"`
	Enabled bool `json:"enabled"`
}

type HealthStatus struct {
	Status    string    `json:"status"`
	OllamaOK  bool      `json:"ollama_ok"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Orchestrator struct {
	config    Config
	generator types.Generator
	cache     types.CacheStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func New(config Config, generator types.Generator, cache types.CacheStore, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.TimeoutGrowth < 1 {
		config.TimeoutGrowth = 1.5
	}
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = 300 * time.Second
	}
	if config.SlowThreshold <= 0 {
		config.SlowThreshold = 60 * time.Second
	}
	if cache == nil {
		cache = NewMemoryCache(100)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:    config,
		generator: generator,
		cache:     cache,
		metrics:   m,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Complete answers with a single attempt, serving repeated requests from
// the cache.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (string, error) {
	return o.complete(ctx, req, 0)
}

// CompleteWithRetry retries failed attempts, growing the response timeout
// each time. The final error records how many attempts were made.
func (o *Orchestrator) CompleteWithRetry(ctx context.Context, req Request) (string, error) {
	return o.complete(ctx, req, o.config.MaxRetries)
}

func (o *Orchestrator) complete(ctx context.Context, req Request, retries int) (string, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", apperr.Invalid("question", "question é obrigatório.")
	}

	settings := Classify(question, len(req.History))
	msgs := BuildMessages(o.config.SystemPrompt, req.History, question)
	model := req.Model
	if model == "" {
		model = o.config.Model
	}
	key := Fingerprint(msgs, model, settings.Temperature, settings.MaxTokens)

	if answer, ok := o.lookup(ctx, key); ok {
		return answer, nil
	}

	genReq := types.GenerateRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Timeout: types.TimeoutPolicy{
			Connect:  o.config.ConnectTimeout,
			Response: settings.Timeout,
		},
	}

	answer, err := o.generateWithRetry(ctx, settings.Tier, genReq, retries)
	if err != nil {
		return "", err
	}
	if answer == "" {
		o.logger.Warn("Generation service returned empty content", "tier", settings.Tier, "model", model)
		return Placeholder, nil
	}

	o.store(ctx, key, answer)
	return answer, nil
}

func (o *Orchestrator) generateWithRetry(ctx context.Context, tier models.Tier, req types.GenerateRequest, retries int) (string, error) {
	start := time.Now()
	attempts := 0
	for {
		attempts++
		answer, err := o.generate(ctx, tier, req)
		if err == nil {
			if attempts > 1 {
				o.logger.Info("Generation succeeded after retry", "attempts", attempts, "elapsed", time.Since(start))
			}
			return answer, nil
		}
		if attempts > retries || !retryable(err) {
			return "", finalError(err, attempts, time.Since(start))
		}

		o.logger.Warn("Generation attempt failed, retrying",
			"attempt", attempts,
			"timeout", req.Timeout.Response,
			"error", err)
		if o.metrics != nil {
			o.metrics.UpstreamRetries.Inc()
		}
		if err := o.sleep(ctx, o.config.RetryDelay); err != nil {
			return "", finalError(err, attempts, time.Since(start))
		}
		req.Timeout.Response = o.grow(req.Timeout.Response)
	}
}

// generate performs one call. The call is detached from the caller's
// cancellation and bounded by its own timeouts instead.
func (o *Orchestrator) generate(ctx context.Context, tier models.Tier, req types.GenerateRequest) (string, error) {
	start := time.Now()
	answer, err := o.generator.Generate(context.WithoutCancel(ctx), req)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		kind := apperr.KindTransport
		if ue, ok := apperr.AsUpstream(err); ok {
			kind = ue.Kind
		}
		if o.metrics != nil {
			o.metrics.UpstreamErrors.WithLabelValues(string(kind)).Inc()
		}
		o.logger.Error("Generation call failed",
			"tier", tier,
			"model", req.Model,
			"kind", kind,
			"duration", elapsed,
			"error", err)
	} else if elapsed > o.config.SlowThreshold {
		o.logger.Warn("Slow generation response",
			"tier", tier,
			"model", req.Model,
			"duration", elapsed)
	}
	if o.metrics != nil {
		o.metrics.UpstreamDuration.WithLabelValues(string(tier), outcome).Observe(elapsed.Seconds())
	}
	return answer, err
}

func (o *Orchestrator) grow(timeout time.Duration) time.Duration {
	next := time.Duration(float64(timeout) * o.config.TimeoutGrowth)
	if next > o.config.MaxTimeout {
		return o.config.MaxTimeout
	}
	return next
}

// retryable leaves out client errors, which a second attempt cannot fix.
func retryable(err error) bool {
	ue, ok := apperr.AsUpstream(err)
	if !ok {
		return false
	}
	if ue.Kind == apperr.KindStatus && ue.Status < 500 {
		return false
	}
	return true
}

func finalError(err error, attempts int, elapsed time.Duration) error {
	if ue, ok := apperr.AsUpstream(err); ok {
		out := *ue
		out.Attempts = attempts
		out.Elapsed = elapsed
		return &out
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &apperr.UpstreamError{Kind: apperr.KindTimeout, Attempts: attempts, Elapsed: elapsed, Err: err}
	}
	return err
}

func (o *Orchestrator) lookup(ctx context.Context, key string) (string, bool) {
	if !o.config.CacheEnabled {
		return "", false
	}
	answer, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.logger.Warn("Response cache lookup failed", "error", err)
		return "", false
	}
	if o.metrics != nil {
		if ok {
			o.metrics.CacheHits.Inc()
		} else {
			o.metrics.CacheMisses.Inc()
		}
	}
	return answer, ok
}

func (o *Orchestrator) store(ctx context.Context, key, answer string) {
	if !o.config.CacheEnabled {
		return
	}
	var evicted int64
	var err error
	if ec, ok := o.cache.(evictingCache); ok {
		evicted, err = ec.put(ctx, key, answer)
	} else {
		err = o.cache.Put(ctx, key, answer)
	}
	if err != nil {
		o.logger.Warn("Response cache store failed", "error", err)
		return
	}
	if evicted > 0 && o.metrics != nil {
		o.metrics.CacheEvictions.Add(float64(evicted))
	}
}

// Warmup sends a tiny prompt so the model is resident before real traffic.
// It bypasses the cache.
func (o *Orchestrator) Warmup(ctx context.Context) error {
	_, err := o.generate(ctx, models.TierVeryShort, o.pingRequest("Oi", 50, 30*time.Second))
	if err != nil {
		o.logger.Warn("Model warmup failed", "error", err)
		return err
	}
	o.logger.Info("Model warmed up", "model", o.config.Model)
	return nil
}

// Health checks the generation service with a minimal prompt. A cached
// reply would hide a dead service, so the cache is never consulted.
func (o *Orchestrator) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Timestamp: time.Now().UTC()}
	answer, err := o.generate(ctx, models.TierVeryShort, o.pingRequest("test", 10, 15*time.Second))
	switch {
	case err != nil:
		status.Status = "unhealthy"
		status.Error = err.Error()
	case answer == "":
		status.Status = "unhealthy"
		status.Error = "empty response"
	default:
		status.Status = "healthy"
		status.OllamaOK = true
		status.Response = answer
	}
	return status
}

func (o *Orchestrator) pingRequest(content string, maxTokens int, timeout time.Duration) types.GenerateRequest {
	msgs := withSystemPrompt(o.config.SystemPrompt, []models.Message{{Role: models.RoleUser, Content: content}})
	return types.GenerateRequest{
		Model:       o.config.Model,
		Messages:    msgs,
		Temperature: 0.1,
		MaxTokens:   maxTokens,
		Timeout: types.TimeoutPolicy{
			Connect:  o.config.ConnectTimeout,
			Response: timeout,
		},
	}
}

func (o *Orchestrator) CacheStats(ctx context.Context) (CacheStats, error) {
	n, err := o.cache.Len(ctx)
	if err != nil {
		return CacheStats{}, err
	}
	return CacheStats{
		Size:    n,
		MaxSize: o.cache.Capacity(),
		Enabled: o.config.CacheEnabled,
	}, nil
}

func (o *Orchestrator) CacheCleanup(ctx context.Context) error {
	if err := o.cache.Clear(ctx); err != nil {
		return err
	}
	o.logger.Info("Response cache cleared")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
