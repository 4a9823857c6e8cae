package recommendations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	generativeAI "github.com/FACorreiaa/go-poi-recommendations/internal/api/generative_ai"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

type MockRanker struct {
	mock.Mock
	provider string
}

func (m *MockRanker) Rank(ctx context.Context, req generativeAI.RankRequest) (generativeAI.RankResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(generativeAI.RankResponse), args.Error(1)
}

func (m *MockRanker) Provider() string { return m.provider }
func (m *MockRanker) Model() string    { return "test-model" }

type MockInteractionRepository struct {
	mock.Mock
}

func (m *MockInteractionRepository) SaveInteraction(ctx context.Context, interaction types.RankingInteraction) error {
	args := m.Called(ctx, interaction)
	return args.Error(0)
}

func outcomeIs(o types.RankingOutcome) interface{} {
	return mock.MatchedBy(func(in types.RankingInteraction) bool { return in.Outcome == o })
}

func selectorBuckets() map[types.Category][]types.PlaceCandidate {
	d := 850
	return map[types.Category][]types.PlaceCandidate{
		types.CategoryRestaurant: {
			{RawName: "흑돼지거리", RawAddress: "제주시 건입동", RawCategoryLabel: "음식점 > 한식", ProviderDistanceHint: &d},
			{RawName: "올래국수", RawAddress: "제주시 연동"},
		},
		types.CategoryActivity: {
			{RawName: "제주승마공원", RawAddress: "제주시 조천읍"},
		},
		types.CategoryAttraction: {
			{RawName: "성산일출봉", RawAddress: "서귀포시 성산읍"},
		},
	}
}

func newTestSelector(provider string) (*AIRankingSelector, *MockRanker, *MockInteractionRepository) {
	r := &MockRanker{provider: provider}
	repo := &MockInteractionRepository{}
	return NewAIRankingSelector(r, repo, 0.3, testLogger()), r, repo
}

func rankReturns(r *MockRanker, text string) {
	r.On("Rank", mock.Anything, mock.Anything).Return(generativeAI.RankResponse{Text: text, Model: "test-model"}, nil).Once()
}

func TestAIRankingSelector_Select(t *testing.T) {
	trip := types.TripContext{Destination: "제주도"}

	t.Run("accepts a valid array", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		rankReturns(r, `[
			{"name":"흑돼지거리","description":"제주 흑돼지 골목","category":"restaurant","accessibilityHint":""},
			{"name":"올래국수","description":"고기국수","category":"맛집","accessibilityHint":"버스 10분"},
			{"name":"성산일출봉","description":"일출 명소","category":"attraction","accessibilityHint":"주차 가능"}
		]`)
		repo.On("SaveInteraction", mock.Anything, outcomeIs(types.RankingAccepted)).Return(nil).Once()

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		assert.Empty(t, sel.Rejected)
		require.Len(t, sel.Items[types.CategoryRestaurant], 2)
		first := sel.Items[types.CategoryRestaurant][0]
		assert.Equal(t, "흑돼지거리", first.Name)
		assert.Equal(t, "제주시 건입동", first.Address)
		assert.Equal(t, "약 850m", first.AccessibilityHint)
		assert.Equal(t, types.SourceAISelected, first.SourceTag)
		assert.True(t, first.Verified)
		assert.Equal(t, "버스 10분", sel.Items[types.CategoryRestaurant][1].AccessibilityHint)
		assert.Empty(t, sel.Items[types.CategoryActivity])
		r.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("accepts the recommendations envelope", func(t *testing.T) {
		s, r, repo := newTestSelector("openai")
		rankReturns(r, `{"recommendations":[{"name":"제주승마공원","description":"승마","category":"activity","accessibilityHint":""}]}`)
		repo.On("SaveInteraction", mock.Anything, mock.Anything).Return(nil)

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		require.Len(t, sel.Items[types.CategoryActivity], 1)
		assert.Equal(t, "제주승마공원", sel.Items[types.CategoryActivity][0].Name)
	})

	invalid := []struct {
		name string
		body string
	}{
		{"unknown field", `[{"name":"올래국수","description":"","category":"restaurant","accessibilityHint":"","rating":5}]`},
		{"unknown category", `[{"name":"올래국수","description":"","category":"hotel","accessibilityHint":""}]`},
		{"empty name", `[{"name":"  ","description":"","category":"restaurant","accessibilityHint":""}]`},
		{"wrong type", `[{"name":3,"description":"","category":"restaurant","accessibilityHint":""}]`},
		{"trailing data", `[] []`},
		{"prose", `다음은 추천 목록입니다`},
		{"envelope without array", `{"recommendations":null}`},
		{"envelope with extra key", `{"recommendations":[],"note":"x"}`},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			s, r, repo := newTestSelector("gemini")
			rankReturns(r, tt.body)
			repo.On("SaveInteraction", mock.Anything, outcomeIs(types.RankingRejected)).Return(nil).Once()

			_, err := s.Select(context.Background(), selectorBuckets(), trip)

			assert.ErrorIs(t, err, ErrInvalidResponseShape)
			repo.AssertExpectations(t)
		})
	}

	t.Run("hallucinated name rejects only its category", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		rankReturns(r, `[
			{"name":"흑돼지거리","description":"","category":"restaurant","accessibilityHint":""},
			{"name":"없는식당","description":"","category":"restaurant","accessibilityHint":""},
			{"name":"제주승마공원","description":"","category":"activity","accessibilityHint":""}
		]`)
		repo.On("SaveInteraction", mock.Anything, outcomeIs(types.RankingPartial)).Return(nil).Once()

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		assert.ErrorIs(t, sel.Rejected[types.CategoryRestaurant], ErrHallucinatedCandidate)
		assert.Empty(t, sel.Items[types.CategoryRestaurant])
		assert.Len(t, sel.Items[types.CategoryActivity], 1)
		repo.AssertExpectations(t)
	})

	t.Run("name from another category is a hallucination", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		rankReturns(r, `[{"name":"성산일출봉","description":"","category":"activity","accessibilityHint":""}]`)
		repo.On("SaveInteraction", mock.Anything, outcomeIs(types.RankingRejected)).Return(nil).Once()

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		assert.ErrorIs(t, sel.Rejected[types.CategoryActivity], ErrHallucinatedCandidate)
		assert.Empty(t, sel.Items)
	})

	t.Run("repeated pick rejects only its category", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		rankReturns(r, `[
			{"name":"올래국수","description":"","category":"restaurant","accessibilityHint":""},
			{"name":" 올래국수 ","description":"","category":"restaurant","accessibilityHint":""},
			{"name":"성산일출봉","description":"","category":"attraction","accessibilityHint":""}
		]`)
		repo.On("SaveInteraction", mock.Anything, outcomeIs(types.RankingPartial)).Return(nil).Once()

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		assert.ErrorIs(t, sel.Rejected[types.CategoryRestaurant], ErrDuplicatePick)
		assert.Empty(t, sel.Items[types.CategoryRestaurant])
		assert.Len(t, sel.Items[types.CategoryAttraction], 1)
		repo.AssertExpectations(t)
	})

	t.Run("same name twice matches two distinct candidates", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		buckets := selectorBuckets()
		buckets[types.CategoryRestaurant] = append(buckets[types.CategoryRestaurant],
			types.PlaceCandidate{RawName: "올래국수", RawAddress: "제주시 노형동"})
		pick := `{"name":"올래국수","description":"","category":"restaurant","accessibilityHint":""}`
		rankReturns(r, "["+pick+","+pick+"]")
		repo.On("SaveInteraction", mock.Anything, mock.Anything).Return(nil)

		sel, err := s.Select(context.Background(), buckets, trip)

		require.NoError(t, err)
		assert.Empty(t, sel.Rejected)
		require.Len(t, sel.Items[types.CategoryRestaurant], 2)
		assert.Equal(t, "제주시 연동", sel.Items[types.CategoryRestaurant][0].Address)
		assert.Equal(t, "제주시 노형동", sel.Items[types.CategoryRestaurant][1].Address)
	})

	t.Run("more than three picks overflows the category", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		pick := `{"name":"올래국수","description":"","category":"restaurant","accessibilityHint":""}`
		rankReturns(r, "["+strings.Repeat(pick+",", 3)+pick+"]")
		repo.On("SaveInteraction", mock.Anything, mock.Anything).Return(nil)

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		assert.ErrorIs(t, sel.Rejected[types.CategoryRestaurant], ErrCategoryOverflow)
	})

	t.Run("long description is truncated", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		long := strings.Repeat("가", 200)
		rankReturns(r, `[{"name":"올래국수","description":"`+long+`","category":"restaurant","accessibilityHint":""}]`)
		repo.On("SaveInteraction", mock.Anything, mock.Anything).Return(nil)

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		desc := sel.Items[types.CategoryRestaurant][0].Description
		assert.Equal(t, types.MaxDescriptionLength, utf8.RuneCountInString(desc))
	})

	t.Run("retries once after a transient failure", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		r.On("Rank", mock.Anything, mock.Anything).Return(generativeAI.RankResponse{}, generativeAI.ErrUnavailable).Once()
		rankReturns(r, `[{"name":"올래국수","description":"","category":"restaurant","accessibilityHint":""}]`)
		repo.On("SaveInteraction", mock.Anything, outcomeIs(types.RankingAccepted)).Return(nil).Once()

		sel, err := s.Select(context.Background(), selectorBuckets(), trip)

		require.NoError(t, err)
		assert.Len(t, sel.Items[types.CategoryRestaurant], 1)
		r.AssertNumberOfCalls(t, "Rank", 2)
	})

	t.Run("gives up after the second transient failure", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		r.On("Rank", mock.Anything, mock.Anything).Return(generativeAI.RankResponse{}, generativeAI.ErrTimeout)
		repo.On("SaveInteraction", mock.Anything, outcomeIs(types.RankingFailed)).Return(nil).Once()

		_, err := s.Select(context.Background(), selectorBuckets(), trip)

		assert.ErrorIs(t, err, ErrSelectionTimeout)
		r.AssertNumberOfCalls(t, "Rank", 2)
	})

	t.Run("auth failure is not retried", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		r.On("Rank", mock.Anything, mock.Anything).Return(generativeAI.RankResponse{}, generativeAI.ErrAuth)
		repo.On("SaveInteraction", mock.Anything, mock.Anything).Return(nil)

		_, err := s.Select(context.Background(), selectorBuckets(), trip)

		assert.ErrorIs(t, err, ErrSelectionAuth)
		r.AssertNumberOfCalls(t, "Rank", 1)
	})

	t.Run("unconfigured ranker is not recorded", func(t *testing.T) {
		repo := &MockInteractionRepository{}
		s := NewAIRankingSelector(generativeAI.DisabledRanker{}, repo, 0, testLogger())

		_, err := s.Select(context.Background(), selectorBuckets(), trip)

		assert.ErrorIs(t, err, ErrRankingUnavailable)
		assert.ErrorIs(t, err, generativeAI.ErrNotConfigured)
		repo.AssertNotCalled(t, "SaveInteraction", mock.Anything, mock.Anything)
	})

	t.Run("recording failure does not fail selection", func(t *testing.T) {
		s, r, repo := newTestSelector("gemini")
		rankReturns(r, `[{"name":"올래국수","description":"","category":"restaurant","accessibilityHint":""}]`)
		repo.On("SaveInteraction", mock.Anything, mock.Anything).Return(errors.New("db down"))

		_, err := s.Select(context.Background(), selectorBuckets(), trip)

		assert.NoError(t, err)
	})

	t.Run("no candidates", func(t *testing.T) {
		s, r, _ := newTestSelector("gemini")

		_, err := s.Select(context.Background(), map[types.Category][]types.PlaceCandidate{}, trip)

		assert.ErrorIs(t, err, ErrNoCandidates)
		r.AssertNotCalled(t, "Rank", mock.Anything, mock.Anything)
	})
}

func TestBuildRankingPrompt(t *testing.T) {
	trip := types.TripContext{Destination: "제주도", StyleTags: []string{"힐링"}, VisitedPlaceNames: []string{"우도"}}

	array := buildRankingPrompt(trip, selectorBuckets(), false)
	assert.Contains(t, array, "제주도")
	assert.Contains(t, array, "힐링")
	assert.Contains(t, array, "우도")
	for _, name := range []string{"흑돼지거리", "올래국수", "제주승마공원", "성산일출봉"} {
		assert.Contains(t, array, name)
	}
	assert.NotContains(t, array, `"recommendations"`)

	assert.Contains(t, buildRankingPrompt(trip, selectorBuckets(), true), `"recommendations"`)
}
