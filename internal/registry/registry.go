// Package registry implements the scoring and selection policy over a
// score-sorted endpoint store. The registry is the sole writer of score
// transitions: endpoints enter at an initial score, are promoted to the
// maximum when a health probe succeeds, decremented when one fails, and
// culled once their score would fall to the minimum.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/proxyrank/proxyrank/internal/endpoint"
	"github.com/proxyrank/proxyrank/internal/metrics"
	"github.com/proxyrank/proxyrank/internal/store"
)

// Default score bounds. A score always stays within [ScoreMin, ScoreMax];
// an endpoint whose score would drop to ScoreMin is removed instead.
const (
	ScoreMin  = 0
	ScoreMax  = 100
	ScoreInit = 10
)

// ErrPoolEmpty is returned by Sample when no endpoints are registered.
// Callers should treat it as "nothing available right now" and retry
// after a delay, not as a fatal condition.
var ErrPoolEmpty = errors.New("registry: no endpoints in pool")

// Config tunes a Registry. Zero values fall back to the defaults above.
type Config struct {
	ScoreMin  int64
	ScoreMax  int64
	ScoreInit int64

	// SampleTopK bounds the fallback branch of Sample to the best K
	// endpoints by rank. 0 samples the entire surviving population.
	SampleTopK int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Registry is a synchronous facade over a ScoreStore. It holds no state
// of its own beyond configuration, so a single instance may be shared
// freely across goroutines; concurrency guarantees are those of the
// underlying store.
type Registry struct {
	store store.ScoreStore
	cfg   Config
	log   *slog.Logger
	met   *metrics.Metrics
}

// New creates a Registry over the given store.
func New(st store.ScoreStore, cfg Config) *Registry {
	if cfg.ScoreMax == 0 {
		cfg.ScoreMax = ScoreMax
	}
	if cfg.ScoreInit == 0 {
		cfg.ScoreInit = ScoreInit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		store: st,
		cfg:   cfg,
		log:   cfg.Logger,
		met:   cfg.Metrics,
	}
}

// Add registers a new endpoint at the initial score. Malformed input is
// logged and dropped without error; an endpoint already present keeps
// its current score. Returns true if a record was created.
func (r *Registry) Add(ctx context.Context, raw string) (bool, error) {
	return r.AddWithScore(ctx, raw, r.cfg.ScoreInit)
}

// AddWithScore registers a new endpoint at an explicit starting score.
// The score is clamped into [ScoreMin, ScoreMax]; nothing outside the
// bounds is ever stored.
func (r *Registry) AddWithScore(ctx context.Context, raw string, score int64) (bool, error) {
	e, err := endpoint.Parse(raw)
	if err != nil {
		r.log.Info("invalid endpoint, dropped", "endpoint", raw, "error", err)
		r.countAdd("invalid")
		return false, nil
	}
	if score < r.cfg.ScoreMin {
		score = r.cfg.ScoreMin
	}
	if score > r.cfg.ScoreMax {
		score = r.cfg.ScoreMax
	}
	inserted, err := r.store.AddIfAbsent(ctx, e.String(), score)
	if err != nil {
		return false, fmt.Errorf("add %s: %w", e, err)
	}
	if inserted {
		r.countAdd("inserted")
		r.updatePoolSize(ctx)
	} else {
		r.countAdd("duplicate")
	}
	return inserted, nil
}

// Sample picks one endpoint at random. Endpoints at the maximum score
// are preferred and treated as interchangeable; when none are at the
// maximum, the pick falls back to the ranked population (bounded to the
// top K when configured). Returns ErrPoolEmpty when nothing is stored.
func (r *Registry) Sample(ctx context.Context) (endpoint.Endpoint, error) {
	keys, err := r.store.RangeByScore(ctx, r.cfg.ScoreMax, r.cfg.ScoreMax)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("sample max cohort: %w", err)
	}
	if len(keys) > 0 {
		r.countSample("max")
		return pick(keys)
	}

	stop := r.cfg.SampleTopK
	if stop <= 0 {
		stop = math.MaxInt64
	}
	keys, err = r.store.RangeByRankDesc(ctx, 0, stop)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("sample ranked: %w", err)
	}
	if len(keys) > 0 {
		r.countSample("fallback")
		return pick(keys)
	}

	r.countSample("empty")
	return endpoint.Endpoint{}, ErrPoolEmpty
}

// Penalize decrements the endpoint's score by 1; when the score would
// land at or below the minimum, or the endpoint is already gone, the
// record is removed instead. The store performs the check and the write
// as one atomic step, so concurrent penalties cannot interleave.
func (r *Registry) Penalize(ctx context.Context, e endpoint.Endpoint) (int64, bool, error) {
	score, removed, err := r.store.DecrOrRemove(ctx, e.String(), r.cfg.ScoreMin)
	if err != nil {
		return 0, false, fmt.Errorf("penalize %s: %w", e, err)
	}
	if removed {
		r.log.Info("endpoint culled", "endpoint", e.String())
		r.countPenalty("removed")
		r.updatePoolSize(ctx)
	} else {
		r.log.Debug("endpoint penalized", "endpoint", e.String(), "score", score)
		r.countPenalty("decremented")
	}
	return score, removed, nil
}

// Promote sets the endpoint's score to the maximum, creating the record
// if it does not exist. Returns the new score.
func (r *Registry) Promote(ctx context.Context, e endpoint.Endpoint) (int64, error) {
	if err := r.store.SetScore(ctx, e.String(), r.cfg.ScoreMax); err != nil {
		return 0, fmt.Errorf("promote %s: %w", e, err)
	}
	r.log.Debug("endpoint promoted", "endpoint", e.String(), "score", r.cfg.ScoreMax)
	if r.met != nil {
		r.met.Promotions.Inc()
	}
	r.updatePoolSize(ctx)
	return r.cfg.ScoreMax, nil
}

// Exists reports whether the endpoint is currently registered.
func (r *Registry) Exists(ctx context.Context, e endpoint.Endpoint) (bool, error) {
	_, err := r.store.Score(ctx, e.String())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", e, err)
	}
	return true, nil
}

// Score returns the endpoint's current score, or store.ErrNotFound.
func (r *Registry) Score(ctx context.Context, e endpoint.Endpoint) (int64, error) {
	return r.store.Score(ctx, e.String())
}

// Count returns the number of registered endpoints.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	n, err := r.store.Card(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// All returns every registered endpoint, score-ascending. Intended for
// bulk re-verification by an external prober; callers must not rely on
// the order.
func (r *Registry) All(ctx context.Context) ([]endpoint.Endpoint, error) {
	keys, err := r.store.RangeByScore(ctx, r.cfg.ScoreMin, r.cfg.ScoreMax)
	if err != nil {
		return nil, fmt.Errorf("all: %w", err)
	}
	return endpoint.ParseAll(keys), nil
}

// Batch returns the endpoints at rank positions [start, end) ordered
// best to worst. Out-of-range indices yield a shorter or empty slice.
func (r *Registry) Batch(ctx context.Context, start, end int64) ([]endpoint.Endpoint, error) {
	keys, err := r.store.RangeByRankDesc(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("batch [%d,%d): %w", start, end, err)
	}
	return endpoint.ParseAll(keys), nil
}

func pick(keys []string) (endpoint.Endpoint, error) {
	key := keys[rand.Intn(len(keys))]
	e, err := endpoint.Parse(key)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("corrupt store key %q: %w", key, err)
	}
	return e, nil
}

func (r *Registry) countAdd(outcome string) {
	if r.met != nil {
		r.met.Adds.WithLabelValues(outcome).Inc()
	}
}

func (r *Registry) countSample(branch string) {
	if r.met != nil {
		r.met.Samples.WithLabelValues(branch).Inc()
	}
}

func (r *Registry) countPenalty(outcome string) {
	if r.met != nil {
		r.met.Penalties.WithLabelValues(outcome).Inc()
	}
}

// updatePoolSize refreshes the size gauge on mutations. Best effort; a
// failed count never fails the mutation that triggered it.
func (r *Registry) updatePoolSize(ctx context.Context) {
	if r.met == nil {
		return
	}
	if n, err := r.store.Card(ctx); err == nil {
		r.met.PoolSize.Set(float64(n))
	}
}
