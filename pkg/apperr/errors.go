// Package apperr defines the error taxonomy shared by ingestion, indexing and
// the request orchestrator, plus helpers to classify wrapped errors.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// ErrIndexUnavailable is returned when neither the corpus nor the seed texts
// could be embedded. It only fails the current request.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// ValidationError rejects input before any network or index work begins.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UpstreamKind classifies a failed call to the generation service.
type UpstreamKind string

const (
	KindConnectTimeout UpstreamKind = "connect_timeout"
	KindReadTimeout    UpstreamKind = "read_timeout"
	KindTimeout        UpstreamKind = "timeout"
	KindTransport      UpstreamKind = "transport"
	KindStatus         UpstreamKind = "status"
	KindMalformed      UpstreamKind = "malformed"
)

type UpstreamError struct {
	Kind     UpstreamKind
	Status   int
	Body     string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *UpstreamError) Error() string {
	var msg string
	switch e.Kind {
	case KindConnectTimeout:
		msg = "timeout connecting to generation service"
	case KindReadTimeout:
		msg = "timeout waiting for generation service response"
	case KindTimeout:
		msg = "generation service request timed out"
	case KindStatus:
		msg = fmt.Sprintf("generation service returned %d: %s", e.Status, e.Body)
	case KindMalformed:
		msg = "generation service returned a malformed response"
	default:
		msg = "failed to reach generation service"
	}
	if e.Err != nil && e.Kind != KindStatus {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts, %s)", msg, e.Attempts, e.Elapsed.Round(time.Millisecond))
	} else if e.Elapsed > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, e.Elapsed.Round(time.Millisecond))
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AsUpstream extracts the UpstreamError in err's chain, if any.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
