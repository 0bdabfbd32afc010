package resolver

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/logging"
	"kitsusync/internal/services"
)

// lockStripes bounds the per-id fetch locks. Two resolutions for the same id
// always hash to the same stripe, so at most one fetch per id is in flight.
const lockStripes = 64

// maxRetryDelay caps the sleep between attempts even when the server directs
// a longer Retry-After.
const maxRetryDelay = 30 * time.Second

// Fetcher performs the network call for a single entity id on cache miss.
type Fetcher interface {
	FetchAnime(ctx context.Context, id string) (json.RawMessage, error)
}

// Failure records one id that could not be resolved.
type Failure struct {
	EntityID string
	Err      error
}

// Result is the outcome of a batch resolution: the complete raw record set for
// every id that resolved, plus per-id failures. One bad id never aborts the
// batch.
type Result struct {
	Records  map[string]cachestore.RawRecord
	Failures []Failure
	Hits     int
	Fetched  int
}

// Resolver decides per id whether to read from cache or fetch from the
// upstream API, writing fetched records through to the cache.
type Resolver struct {
	cache    *cachestore.Store
	fetcher  Fetcher
	logger   *slog.Logger
	workers  int
	attempts int
	backoff  time.Duration
	locks    [lockStripes]sync.Mutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWorkers bounds the resolution worker pool.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRetry sets the bounded retry policy for transient fetch failures.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *Resolver) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if backoff > 0 {
			r.backoff = backoff
		}
	}
}

// WithLogger attaches a diagnostic sink. Nil keeps the no-op default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logging.NewComponentLogger(logger, "resolver")
	}
}

// New builds a Resolver over the given cache and fetcher.
func New(cache *cachestore.Store, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    cache,
		fetcher:  fetcher,
		logger:   logging.NewNop(),
		workers:  4,
		attempts: 3,
		backoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces a raw record for every id it can, reading from cache on
// hit and fetching (with write-through) on miss. Transient fetch failures are
// retried with exponential backoff before being surfaced; permanent failures
// surface immediately. On cancellation the already-resolved records and the
// context error are both returned; everything written to the cache before the
// cancel remains valid.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (*Result, error) {
	runID := uuid.NewString()
	logger := r.logger.With(logging.String(logging.FieldRunID, runID))

	unique := dedupe(ids)
	logger.Info("resolving batch",
		logging.Int("requested", len(ids)),
		logging.Int("unique", len(unique)))

	result := &Result{Records: make(map[string]cachestore.RawRecord, len(unique))}
	var mu sync.Mutex

	workers := r.workers
	if workers > len(unique) {
		workers = len(unique)
	}
	if workers < 1 {
		workers = 1
	}

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				record, hit, err := r.resolveOne(ctx, logger, id)
				mu.Lock()
				switch {
				case err != nil:
					result.Failures = append(result.Failures, Failure{EntityID: id, Err: err})
				case hit:
					result.Hits++
					result.Records[id] = record
				default:
					result.Fetched++
					result.Records[id] = record
				}
				mu.Unlock()
			}
		}()
	}

	var cancelled bool
dispatch:
	for _, id := range unique {
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case work <- id:
		}
	}
	close(work)
	wg.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].EntityID < result.Failures[j].EntityID
	})

	logger.Info("batch resolved",
		logging.Int("hits", result.Hits),
		logging.Int("fetched", result.Fetched),
		logging.Int("failed", len(result.Failures)))

	if cancelled {
		return result, ctx.Err()
	}
	return result, nil
}

// resolveOne handles a single id under its per-id lock. The second return
// value reports whether the record came from cache.
func (r *Resolver) resolveOne(ctx context.Context, logger *slog.Logger, id string) (cachestore.RawRecord, bool, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a concurrent resolution may have fetched this
	// id while we waited.
	if r.cache.Has(id) {
		record, err := r.cache.Read(id)
		if err == nil {
			logger.Debug("cache hit", logging.String(logging.FieldEntityID, id))
			return record, true, nil
		}
		// Corrupt entry: fall through and refetch.
		logger.Warn("unreadable cache entry, refetching",
			logging.String(logging.FieldEntityID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_entry_corrupt"),
			logging.String(logging.FieldErrorHint, "entry will be overwritten"))
	}

	payload, err := r.fetchWithRetry(ctx, logger, id)
	if err != nil {
		return cachestore.RawRecord{}, false, err
	}

	retrievedAt := time.Now().UTC()
	if err := r.cache.Write(id, payload, retrievedAt); err != nil {
		return cachestore.RawRecord{}, false, err
	}

	return cachestore.RawRecord{EntityID: id, RetrievedAt: retrievedAt, Payload: payload}, false, nil
}

func (r *Resolver) fetchWithRetry(ctx context.Context, logger *slog.Logger, id string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		payload, err := r.fetcher.FetchAnime(ctx, id)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if !services.IsTransient(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == r.attempts {
			break
		}

		delay := r.backoff << (attempt - 1)
		if server := services.RetryDelay(err); server > delay {
			delay = server
		}
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		logger.Debug("retrying after transient failure",
			logging.String(logging.FieldEntityID, id),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (r *Resolver) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockStripes]
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
