package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestWrapTagsMarker(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")
	err := Wrap(ErrTransient, "kitsu", "fetch", "request failed", base)

	if !IsTransient(err) {
		t.Fatalf("expected transient classification: %v", err)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped cause lost")
	}
	for _, fragment := range []string{"kitsu", "fetch", "request failed", "connection reset"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("message missing %q: %v", fragment, err)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	t.Parallel()

	err := Wrap(nil, "resolver", "resolve", "", nil)
	if !IsTransient(err) {
		t.Errorf("expected transient default: %v", err)
	}
}

func TestWrapWithoutContextUsesFallbackDetail(t *testing.T) {
	t.Parallel()

	err := Wrap(ErrPermanent, "", "", "", nil)
	if !strings.Contains(err.Error(), "service failure") {
		t.Errorf("fallback detail missing: %v", err)
	}
}

func TestClassificationSurvivesFurtherWrapping(t *testing.T) {
	t.Parallel()

	err := Wrap(ErrPermanent, "kitsu", "fetch", "anime not found", nil)
	outer := fmt.Errorf("resolve id 404: %w", err)

	if !IsPermanent(outer) {
		t.Error("permanent classification lost through wrapping")
	}
	if IsTransient(outer) {
		t.Error("permanent error misclassified as transient")
	}
}

func TestRetryDelaySurvivesFurtherWrapping(t *testing.T) {
	t.Parallel()

	err := &RetryAfterError{
		Delay: 5 * time.Second,
		Err:   Wrap(ErrTransient, "kitsu", "fetch", "rate limited", nil),
	}
	outer := fmt.Errorf("resolve id 1: %w", err)

	if !IsTransient(outer) {
		t.Error("transient classification lost through retry-after wrapper")
	}
	if got := RetryDelay(outer); got != 5*time.Second {
		t.Errorf("RetryDelay = %v, want 5s", got)
	}
	if got := RetryDelay(errors.New("plain")); got != 0 {
		t.Errorf("RetryDelay on plain error = %v, want 0", got)
	}
}

func TestMarkersAreDistinct(t *testing.T) {
	t.Parallel()

	markers := []error{ErrTransient, ErrPermanent, ErrParse, ErrPublish, ErrNotFound, ErrValidation, ErrConfiguration}
	for i, a := range markers {
		for j, b := range markers {
			if i != j && errors.Is(a, b) {
				t.Errorf("markers %v and %v overlap", a, b)
			}
		}
	}
}
