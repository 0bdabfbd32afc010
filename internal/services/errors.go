package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTransient marks retryable failures: timeouts, rate limits, 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks unrecoverable per-item failures: unknown ids, malformed responses.
	ErrPermanent = errors.New("permanent failure")
	// ErrParse marks payloads whose shape did not match the expected schema.
	ErrParse = errors.New("parse failure")
	// ErrPublish marks per-artifact destination failures.
	ErrPublish = errors.New("publish failure")
	// ErrNotFound marks lookups for entries that do not exist locally.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks caller mistakes (empty ids, bad arguments).
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or inconsistent configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RetryAfterError is a transient failure carrying the minimum delay the
// server asked callers to wait before retrying.
type RetryAfterError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string { return e.Err.Error() }

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryDelay extracts the server-directed retry delay from err, or zero when
// the error carries none.
func RetryDelay(err error) time.Duration {
	var retryErr *RetryAfterError
	if errors.As(err, &retryErr) {
		return retryErr.Delay
	}
	return 0
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err is a non-retryable per-item failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsParse reports whether err came from an unexpected payload shape.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsNotFound reports whether err marks a missing local entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
