package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyrank/proxyrank/internal/endpoint"
	"github.com/proxyrank/proxyrank/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(store.NewMemoryStore(), Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func ep(t *testing.T, raw string) endpoint.Endpoint {
	t.Helper()
	e, err := endpoint.Parse(raw)
	require.NoError(t, err)
	return e
}

func TestAddSetsInitScore(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	inserted, err := reg.Add(ctx, "1.1.1.1:80")
	require.NoError(t, err)
	assert.True(t, inserted)

	ok, err := reg.Exists(ctx, ep(t, "1.1.1.1:80"))
	require.NoError(t, err)
	assert.True(t, ok)

	score, err := reg.Score(ctx, ep(t, "1.1.1.1:80"))
	require.NoError(t, err)
	assert.Equal(t, int64(ScoreInit), score)
}

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Add(ctx, "1.1.1.1:80")
	require.NoError(t, err)
	_, err = reg.Promote(ctx, ep(t, "1.1.1.1:80"))
	require.NoError(t, err)

	// re-adding must not reset the promoted score
	inserted, err := reg.Add(ctx, "1.1.1.1:80")
	require.NoError(t, err)
	assert.False(t, inserted)

	score, err := reg.Score(ctx, ep(t, "1.1.1.1:80"))
	require.NoError(t, err)
	assert.Equal(t, int64(ScoreMax), score)
}

func TestAddRejectsMalformedWithoutError(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	for _, raw := range []string{"", "not-an-endpoint", "1.1.1.1", "host:0"} {
		inserted, err := reg.Add(ctx, raw)
		require.NoError(t, err, "malformed input must not error")
		assert.False(t, inserted)
	}

	n, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestAddWithScoreClampsToBounds(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.AddWithScore(ctx, "1.1.1.1:80", 999)
	require.NoError(t, err)
	score, err := reg.Score(ctx, ep(t, "1.1.1.1:80"))
	require.NoError(t, err)
	assert.Equal(t, int64(ScoreMax), score)

	_, err = reg.AddWithScore(ctx, "2.2.2.2:80", -5)
	require.NoError(t, err)
	score, err = reg.Score(ctx, ep(t, "2.2.2.2:80"))
	require.NoError(t, err)
	assert.Equal(t, int64(ScoreMin), score)
}

func TestPenalizeLadder(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	e := ep(t, "1.1.1.1:80")

	_, err := reg.Add(ctx, e.String())
	require.NoError(t, err)

	// 10 → 1 decrements strictly by one
	for want := int64(ScoreInit - 1); want >= ScoreMin+1; want-- {
		score, removed, err := reg.Penalize(ctx, e)
		require.NoError(t, err)
		assert.False(t, removed)
		assert.Equal(t, want, score)
	}

	// the step that would land on the minimum removes the record
	_, removed, err := reg.Penalize(ctx, e)
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err := reg.Exists(ctx, e)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPenalizeAbsentReportsRemoved(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, removed, err := reg.Penalize(ctx, ep(t, "9.9.9.9:9"))
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestPromoteAlwaysLandsOnMax(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	e := ep(t, "1.1.1.1:80")

	// promote creates the record when absent
	score, err := reg.Promote(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(ScoreMax), score)

	_, _, err = reg.Penalize(ctx, e)
	require.NoError(t, err)

	score, err = reg.Promote(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(ScoreMax), score)

	got, err := reg.Score(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(ScoreMax), got)
}

func TestSampleEmptyPool(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Sample(ctx)
	assert.ErrorIs(t, err, ErrPoolEmpty)
}

func TestSampleReturnsLiveEndpoint(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	for i := 0; i < 5; i++ {
		_, err := reg.Add(ctx, fmt.Sprintf("10.0.0.%d:80", i+1))
		require.NoError(t, err)
	}

	for i := 0; i < 20; i++ {
		e, err := reg.Sample(ctx)
		require.NoError(t, err)
		ok, err := reg.Exists(ctx, e)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestSamplePrefersMaxScoreCohort(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Add(ctx, "1.1.1.1:80")
	require.NoError(t, err)
	_, err = reg.Add(ctx, "2.2.2.2:80")
	require.NoError(t, err)

	_, err = reg.Promote(ctx, ep(t, "1.1.1.1:80"))
	require.NoError(t, err)

	// while the promoted endpoint is the unique max-score entry, every
	// sample must return it
	for i := 0; i < 50; i++ {
		e, err := reg.Sample(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1.1.1.1:80", e.String())
	}

	// nine penalties take it from 100 to 91; the max cohort is now
	// empty and sampling falls back to the whole population
	for i := 0; i < 9; i++ {
		_, removed, err := reg.Penalize(ctx, ep(t, "1.1.1.1:80"))
		require.NoError(t, err)
		require.False(t, removed)
	}
	score, err := reg.Score(ctx, ep(t, "1.1.1.1:80"))
	require.NoError(t, err)
	require.Equal(t, int64(91), score)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		e, err := reg.Sample(ctx)
		require.NoError(t, err)
		seen[e.String()] = true
	}
	assert.True(t, seen["1.1.1.1:80"] || seen["2.2.2.2:80"])
	for got := range seen {
		assert.Contains(t, []string{"1.1.1.1:80", "2.2.2.2:80"}, got)
	}
}

func TestSampleTopKBoundsFallback(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemoryStore(), Config{
		SampleTopK: 2,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	for i, raw := range []string{"1.1.1.1:80", "2.2.2.2:80", "3.3.3.3:80"} {
		_, err := reg.AddWithScore(ctx, raw, int64(10+i*10)) // 10, 20, 30
		require.NoError(t, err)
	}

	// no endpoint is at the max, so sampling is bounded to the two
	// best-ranked entries
	for i := 0; i < 100; i++ {
		e, err := reg.Sample(ctx)
		require.NoError(t, err)
		assert.Contains(t, []string{"3.3.3.3:80", "2.2.2.2:80"}, e.String())
	}
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	for _, raw := range []string{"1.1.1.1:80", "2.2.2.2:80", "3.3.3.3:80"} {
		_, err := reg.Add(ctx, raw)
		require.NoError(t, err)
	}
	n, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAllReturnsEveryEndpoint(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Add(ctx, "1.1.1.1:80")
	require.NoError(t, err)
	_, err = reg.Add(ctx, "2.2.2.2:80")
	require.NoError(t, err)
	_, err = reg.Promote(ctx, ep(t, "2.2.2.2:80"))
	require.NoError(t, err)

	all, err := reg.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestBatchPagesDescending(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	scores := map[string]int64{
		"1.1.1.1:80": 40,
		"2.2.2.2:80": 30,
		"3.3.3.3:80": 20,
		"4.4.4.4:80": 10,
	}
	for raw, s := range scores {
		_, err := reg.AddWithScore(ctx, raw, s)
		require.NoError(t, err)
	}

	n, err := reg.Count(ctx)
	require.NoError(t, err)

	// Batch(0, Count) returns everything exactly once, best first
	all, err := reg.Batch(ctx, 0, n)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "1.1.1.1:80", all[0].String())
	assert.Equal(t, "4.4.4.4:80", all[3].String())
	for i := 1; i < len(all); i++ {
		prev, err := reg.Score(ctx, all[i-1])
		require.NoError(t, err)
		cur, err := reg.Score(ctx, all[i])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, prev, cur)
	}

	// half-open interval: Batch(k, k) is always empty
	for _, k := range []int64{0, 1, 4, 100} {
		page, err := reg.Batch(ctx, k, k)
		require.NoError(t, err)
		assert.Empty(t, page)
	}

	// out-of-range indices shorten rather than fail
	page, err := reg.Batch(ctx, 2, 100)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}
