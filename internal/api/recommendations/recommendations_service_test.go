package recommendations

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-poi-recommendations/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-recommendations/internal/api/catalog"
	"github.com/FACorreiaa/go-poi-recommendations/internal/api/places"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSelector picks the first n candidates of each bucket, or fails.
type fakeSelector struct {
	n        int
	err      error
	rejected map[types.Category]error
	calls    atomic.Int32
}

func (f *fakeSelector) Select(_ context.Context, buckets map[types.Category][]types.PlaceCandidate, _ types.TripContext) (Selection, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Selection{}, f.err
	}
	sel := Selection{Items: map[types.Category][]types.RecommendationItem{}, Rejected: map[types.Category]error{}}
	for cat, b := range buckets {
		if rerr, ok := f.rejected[cat]; ok {
			sel.Rejected[cat] = rerr
			continue
		}
		for i := 0; i < f.n && i < len(b); i++ {
			sel.Items[cat] = append(sel.Items[cat], aiItem(b[i], aiPick{Description: "AI"}, cat))
		}
	}
	return sel, nil
}

// uniquePlaces returns two distinct places per query.
func uniquePlaces(_ context.Context, kw string) ([]types.PlaceCandidate, error) {
	return []types.PlaceCandidate{
		{RawName: kw + " 1", RawAddress: "주소 " + kw + " 1"},
		{RawName: kw + " 2", RawAddress: "주소 " + kw + " 2"},
	}, nil
}

func newTestService(t *testing.T, p places.Provider, sel Selector, cache *RecommendationCache) *ServiceImpl {
	t.Helper()
	cat, err := catalog.New("", testLogger())
	require.NoError(t, err)
	s := NewServiceImpl(
		NewKeywordGenerator(3),
		NewSearchFanout(p, 4, time.Second, testLogger()),
		sel,
		cat,
		cache,
		ServiceConfig{OverallDeadline: 5 * time.Second, RankingTimeout: time.Second},
		testLogger(),
	)
	s.now = func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*60*60)) }
	return s
}

func tagsByCategory(set types.RecommendationSet) map[types.Category][]types.SourceTag {
	out := map[types.Category][]types.SourceTag{}
	for _, it := range set.Items {
		out[it.Category] = append(out[it.Category], it.SourceTag)
	}
	return out
}

func assertCategory(t *testing.T, set types.RecommendationSet, cat types.Category, tag types.SourceTag, n int) {
	t.Helper()
	tags := tagsByCategory(set)[cat]
	require.Len(t, tags, n, "category %s", cat)
	for _, got := range tags {
		assert.Equal(t, tag, got, "category %s", cat)
	}
}

func assertNoRepeats(t *testing.T, set types.RecommendationSet) {
	t.Helper()
	seen := map[string]bool{}
	for _, it := range set.Items {
		k := CandidateKey(it.Name, it.Address)
		assert.False(t, seen[k], "repeated place %q", it.Name)
		seen[k] = true
	}
}

func TestServiceImpl_GetRecommendations(t *testing.T) {
	ctx := context.Background()
	req := types.RecommendationRequest{Destination: "제주도", StyleTags: []string{"힐링"}}

	t.Run("search and ranking succeed", func(t *testing.T) {
		sel := &fakeSelector{n: 3}
		s := newTestService(t, &fakeProvider{search: uniquePlaces}, sel, nil)

		set := s.GetRecommendations(ctx, req)

		assert.Equal(t, "제주도", set.Destination)
		assert.Equal(t, time.UTC, set.GeneratedAt.Location())
		for _, cat := range types.Categories() {
			assertCategory(t, set, cat, types.SourceAISelected, 3)
		}
		assert.Equal(t, types.CategoryRestaurant, set.Items[0].Category)
		assert.Equal(t, types.CategoryAttraction, set.Items[8].Category)
		assertNoRepeats(t, set)
		assert.Equal(t, int32(1), sel.calls.Load())
	})

	t.Run("ranking failure falls back to raw search results", func(t *testing.T) {
		s := newTestService(t, &fakeProvider{search: uniquePlaces}, &fakeSelector{err: ErrSelectionTimeout}, nil)

		set := s.GetRecommendations(ctx, req)

		for _, cat := range types.Categories() {
			assertCategory(t, set, cat, types.SourceSearchRaw, 3)
		}
		assert.Equal(t, "제주도 맛집 1", set.Items[0].Name)
		assert.Equal(t, "제주도 맛집 2", set.Items[1].Name)
		assert.Equal(t, "제주도 음식점 1", set.Items[2].Name)
	})

	t.Run("search failure skips ranking and serves the catalog", func(t *testing.T) {
		p := &fakeProvider{search: func(context.Context, string) ([]types.PlaceCandidate, error) {
			return nil, &places.ProviderError{Kind: places.ErrAuth, Status: 401}
		}}
		sel := &fakeSelector{n: 3}
		s := newTestService(t, p, sel, nil)

		set := s.GetRecommendations(ctx, req)

		assert.Equal(t, int32(0), sel.calls.Load())
		assert.True(t, set.FullyStatic())
		for _, cat := range types.Categories() {
			assertCategory(t, set, cat, types.SourceStaticFallback, 3)
		}
		assert.False(t, set.Items[0].Verified)
	})

	t.Run("rejected category degrades alone", func(t *testing.T) {
		sel := &fakeSelector{n: 2, rejected: map[types.Category]error{types.CategoryActivity: ErrHallucinatedCandidate}}
		s := newTestService(t, &fakeProvider{search: uniquePlaces}, sel, nil)

		set := s.GetRecommendations(ctx, req)

		assertCategory(t, set, types.CategoryRestaurant, types.SourceAISelected, 2)
		assertCategory(t, set, types.CategoryActivity, types.SourceSearchRaw, 3)
		assertCategory(t, set, types.CategoryAttraction, types.SourceAISelected, 2)
	})

	t.Run("a place is never repeated across categories", func(t *testing.T) {
		p := &fakeProvider{search: func(context.Context, string) ([]types.PlaceCandidate, error) {
			return []types.PlaceCandidate{{RawName: "동문시장", RawAddress: "제주시 이도1동"}}, nil
		}}
		s := newTestService(t, p, &fakeSelector{err: ErrRankingUnavailable}, nil)

		set := s.GetRecommendations(ctx, req)

		assertCategory(t, set, types.CategoryRestaurant, types.SourceSearchRaw, 1)
		assertCategory(t, set, types.CategoryActivity, types.SourceStaticFallback, 3)
		assertCategory(t, set, types.CategoryAttraction, types.SourceStaticFallback, 3)
		assertNoRepeats(t, set)
	})

	t.Run("blank destination serves the generic catalog", func(t *testing.T) {
		p := &fakeProvider{search: uniquePlaces}
		sel := &fakeSelector{n: 3}
		s := newTestService(t, p, sel, nil)

		set := s.GetRecommendations(ctx, types.RecommendationRequest{Destination: "  "})

		assert.Equal(t, int32(0), p.calls.Load())
		assert.Equal(t, int32(0), sel.calls.Load())
		assert.True(t, set.FullyStatic())
		assert.Len(t, set.Items, 9)
	})

	t.Run("overall deadline bounds a hung provider", func(t *testing.T) {
		p := &fakeProvider{search: func(ctx context.Context, _ string) ([]types.PlaceCandidate, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		s := newTestService(t, p, &fakeSelector{n: 3}, nil)
		s.cfg.OverallDeadline = 50 * time.Millisecond

		start := time.Now()
		set := s.GetRecommendations(ctx, req)

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.True(t, set.FullyStatic())
	})

	t.Run("cached runs skip the pipeline", func(t *testing.T) {
		p := &fakeProvider{search: uniquePlaces}
		cache := NewRecommendationCache(NewMemoryCacheBackend(time.Hour, time.Hour), time.Hour, time.Minute, testLogger())
		s := newTestService(t, p, &fakeSelector{n: 3}, cache)

		first := s.GetRecommendations(ctx, req)
		searches := p.calls.Load()
		second := s.GetRecommendations(ctx, types.RecommendationRequest{Destination: "제주도 ", StyleTags: []string{"힐링"}})

		assert.Equal(t, first, second)
		assert.Equal(t, searches, p.calls.Load())

		s.GetRecommendations(ctx, types.RecommendationRequest{Destination: "제주도", StyleTags: []string{"힐링"}, Refresh: true})
		assert.Equal(t, 2*searches, p.calls.Load(), fmt.Sprintf("searches per run: %d", searches))
	})

	t.Run("caller cancellation aborts provider calls behind the cache", func(t *testing.T) {
		var aborted atomic.Int32
		p := &fakeProvider{search: func(ctx context.Context, _ string) ([]types.PlaceCandidate, error) {
			<-ctx.Done()
			aborted.Add(1)
			return nil, ctx.Err()
		}}
		cache := NewRecommendationCache(NewMemoryCacheBackend(time.Hour, time.Hour), time.Hour, time.Minute, testLogger())
		s := newTestService(t, p, &fakeSelector{n: 3}, cache)

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		set := s.GetRecommendations(cctx, req)

		assert.Less(t, time.Since(start), time.Second)
		assert.Empty(t, set.Items)
		assert.Eventually(t, func() bool { return aborted.Load() > 0 }, time.Second, 5*time.Millisecond)
	})
}

func TestServiceImpl_SearchOutageServesCatalog(t *testing.T) {
	rateLimited := func(_ context.Context, kw string) ([]types.PlaceCandidate, error) {
		return nil, &places.ProviderError{Kind: places.ErrRateLimited, Keyword: kw, Status: 429}
	}
	cat, err := catalog.New("", testLogger())
	require.NoError(t, err)

	tests := []struct {
		name        string
		destination string
	}{
		{name: "configured destination", destination: "제주도"},
		{name: "unknown destination uses the generic set", destination: "리스본"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := &fakeSelector{n: 3}
			s := newTestService(t, &fakeProvider{search: rateLimited}, sel, nil)

			set := s.GetRecommendations(context.Background(), types.RecommendationRequest{Destination: tt.destination})

			var want []types.RecommendationItem
			for _, c := range types.Categories() {
				want = append(want, cat.Items(tt.destination, c)...)
			}
			require.Len(t, want, 9)
			assert.Equal(t, want, set.Items)
			assert.Equal(t, int32(0), sel.calls.Load())
			for _, it := range set.Items {
				assert.Equal(t, types.SourceStaticFallback, it.SourceTag)
				assert.False(t, it.Verified)
			}
		})
	}

	t.Run("configured and generic sets differ", func(t *testing.T) {
		assert.NotEqual(t, cat.Items("제주도", types.CategoryRestaurant), cat.Items("리스본", types.CategoryRestaurant))
	})
}
