package resolver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/resolver"
	"kitsusync/internal/services"
)

// stubFetcher serves canned payloads or errors and counts calls per id.
type stubFetcher struct {
	mu       sync.Mutex
	payloads map[string]json.RawMessage
	errs     map[string]error
	calls    map[string]int
	// failures before success, per id
	transientFirst map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		payloads:       make(map[string]json.RawMessage),
		errs:           make(map[string]error),
		calls:          make(map[string]int),
		transientFirst: make(map[string]int),
	}
}

func (f *stubFetcher) FetchAnime(ctx context.Context, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if remaining := f.transientFirst[id]; remaining > 0 {
		f.transientFirst[id] = remaining - 1
		return nil, services.Wrap(services.ErrTransient, "kitsu", "request", "stubbed 503", nil)
	}
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if payload, ok := f.payloads[id]; ok {
		return payload, nil
	}
	return nil, services.Wrap(services.ErrPermanent, "kitsu", "request", "stub has no payload for "+id, nil)
}

func (f *stubFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newTestCache(t *testing.T) *cachestore.Store {
	t.Helper()
	store, err := cachestore.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("cachestore.New: %v", err)
	}
	return store
}

func TestResolveCachedIDNeverFetches(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	cached := json.RawMessage(`{"data":{"id":"a"}}`)
	if err := cache.Write("a", cached, time.Now()); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	fetcher := newStubFetcher()
	r := resolver.New(cache, fetcher)

	result, err := r.Resolve(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if fetcher.callCount("a") != 0 {
		t.Errorf("fetcher invoked %d times for cached id", fetcher.callCount("a"))
	}
	if result.Hits != 1 || result.Fetched != 0 {
		t.Errorf("hits=%d fetched=%d, want 1/0", result.Hits, result.Fetched)
	}
	if string(result.Records["a"].Payload) != string(cached) {
		t.Errorf("cached payload not returned verbatim")
	}
}

func TestResolvePartialFailure(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	if err := cache.Write("a", json.RawMessage(`{"src":"cache"}`), time.Now()); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	fetcher := newStubFetcher()
	fetcher.payloads["b"] = json.RawMessage(`{"src":"fetch"}`)
	fetcher.errs["c"] = services.Wrap(services.ErrPermanent, "kitsu", "request", "kitsu returned 404", nil)

	r := resolver.New(cache, fetcher)
	result, err := r.Resolve(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if string(result.Records["a"].Payload) != `{"src":"cache"}` {
		t.Errorf("a should come from cache")
	}
	if string(result.Records["b"].Payload) != `{"src":"fetch"}` {
		t.Errorf("b should come from fetch")
	}

	if len(result.Failures) != 1 || result.Failures[0].EntityID != "c" {
		t.Fatalf("failures = %+v, want exactly c", result.Failures)
	}
	if !services.IsPermanent(result.Failures[0].Err) {
		t.Errorf("failure for c should stay permanent: %v", result.Failures[0].Err)
	}

	// Cache now holds a and b only.
	ids, err := cache.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("cache ids = %v, want [a b]", ids)
	}
}

func TestResolveRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	fetcher := newStubFetcher()
	fetcher.payloads["x"] = json.RawMessage(`{"ok":true}`)
	fetcher.transientFirst["x"] = 2

	r := resolver.New(cache, fetcher, resolver.WithRetry(3, time.Millisecond))
	result, err := r.Resolve(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("failures = %+v", result.Failures)
	}
	if fetcher.callCount("x") != 3 {
		t.Errorf("calls = %d, want 3 (two transient failures then success)", fetcher.callCount("x"))
	}
	if !cache.Has("x") {
		t.Error("successful fetch not written through to cache")
	}
}

// delayDirectedFetcher fails the first call with a server-directed retry
// delay, then succeeds.
type delayDirectedFetcher struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
}

func (f *delayDirectedFetcher) FetchAnime(ctx context.Context, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return nil, &services.RetryAfterError{
			Delay: f.delay,
			Err:   services.Wrap(services.ErrTransient, "kitsu", "request", "stubbed 429", nil),
		}
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func TestResolveWaitsForServerDirectedDelay(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	fetcher := &delayDirectedFetcher{delay: 60 * time.Millisecond}

	r := resolver.New(cache, fetcher, resolver.WithRetry(2, time.Millisecond))
	start := time.Now()
	result, err := r.Resolve(context.Background(), []string{"x"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("failures = %+v", result.Failures)
	}
	if elapsed < 60*time.Millisecond {
		t.Errorf("retried after %v, want at least the server-directed 60ms", elapsed)
	}
}

func TestResolveSurfacesTransientAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	fetcher := newStubFetcher()
	fetcher.transientFirst["x"] = 100

	r := resolver.New(cache, fetcher, resolver.WithRetry(3, time.Millisecond))
	result, err := r.Resolve(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v, want 1", result.Failures)
	}
	if !services.IsTransient(result.Failures[0].Err) {
		t.Errorf("expected transient marker after exhausted retries: %v", result.Failures[0].Err)
	}
	if fetcher.callCount("x") != 3 {
		t.Errorf("calls = %d, want exactly the retry budget", fetcher.callCount("x"))
	}
	if cache.Has("x") {
		t.Error("failed fetch must not write to cache")
	}
}

func TestResolvePermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	fetcher := newStubFetcher()
	fetcher.errs["bad"] = services.Wrap(services.ErrPermanent, "kitsu", "request", "kitsu returned 404", nil)

	r := resolver.New(cache, fetcher, resolver.WithRetry(5, time.Millisecond))
	result, err := r.Resolve(context.Background(), []string{"bad"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if fetcher.callCount("bad") != 1 {
		t.Errorf("permanent failure fetched %d times, want 1", fetcher.callCount("bad"))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v", result.Failures)
	}
}

func TestResolveDeduplicatesIDs(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	fetcher := newStubFetcher()
	fetcher.payloads["dup"] = json.RawMessage(`{}`)

	r := resolver.New(cache, fetcher, resolver.WithWorkers(8))
	result, err := r.Resolve(context.Background(), []string{"dup", "dup", "dup", "dup"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if fetcher.callCount("dup") != 1 {
		t.Errorf("duplicate ids triggered %d fetches, want 1", fetcher.callCount("dup"))
	}
	if len(result.Records) != 1 {
		t.Errorf("records = %d, want 1", len(result.Records))
	}
}

func TestResolveFailuresSortedByID(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	fetcher := newStubFetcher()
	for _, id := range []string{"z", "m", "a"} {
		fetcher.errs[id] = services.Wrap(services.ErrPermanent, "kitsu", "request", "nope", nil)
	}

	r := resolver.New(cache, fetcher, resolver.WithWorkers(3))
	result, err := r.Resolve(context.Background(), []string{"z", "m", "a"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Failures) != 3 {
		t.Fatalf("failures = %d", len(result.Failures))
	}
	for i, want := range []string{"a", "m", "z"} {
		if result.Failures[i].EntityID != want {
			t.Errorf("failures[%d] = %s, want %s", i, result.Failures[i].EntityID, want)
		}
	}
}

func TestResolveCancellationLeavesCacheConsistent(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)

	var fetched atomic.Int32
	blocker := make(chan struct{})
	fetcher := &blockingFetcher{release: blocker, fetched: &fetched}

	ctx, cancel := context.WithCancel(context.Background())

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%02d", i)
	}

	r := resolver.New(cache, fetcher, resolver.WithWorkers(2))
	done := make(chan struct{})
	var result *resolver.Result
	var resolveErr error
	go func() {
		result, resolveErr = r.Resolve(ctx, ids)
		close(done)
	}()

	// Let a couple of fetches complete, then cancel mid-batch.
	for fetched.Load() < 2 {
		blocker <- struct{}{}
	}
	cancel()
	close(blocker)
	<-done

	if resolveErr == nil {
		t.Fatal("expected context error from cancelled resolve")
	}

	// Every cache entry written before cancellation must be readable.
	cachedIDs, err := cache.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, id := range cachedIDs {
		if _, err := cache.Read(id); err != nil {
			t.Errorf("entry %s unreadable after cancel: %v", id, err)
		}
	}
	for id := range result.Records {
		if !cache.Has(id) {
			t.Errorf("resolved id %s missing from cache", id)
		}
	}
}

// blockingFetcher waits for a tick on release per call, so the test controls
// how many fetches complete before cancellation.
type blockingFetcher struct {
	release chan struct{}
	fetched *atomic.Int32
}

func (f *blockingFetcher) FetchAnime(ctx context.Context, id string) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case _, ok := <-f.release:
		if !ok {
			return nil, ctx.Err()
		}
	}
	f.fetched.Add(1)
	return json.RawMessage(`{"id":"` + id + `"}`), nil
}
