package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/suite"

	"github.com/FACorreiaa/go-poi-recommendations/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-recommendations/config"
	"github.com/FACorreiaa/go-poi-recommendations/internal/container"
	"github.com/FACorreiaa/go-poi-recommendations/internal/router"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

var candidateLine = regexp.MustCompile(`^\d+\. (.+?) \| 주소:`)

// E2ETestSuite drives the real container and router against fake Kakao and
// OpenAI servers.
type E2ETestSuite struct {
	suite.Suite
	kakao        *httptest.Server
	openAI       *httptest.Server
	server       *httptest.Server
	container    *container.Container
	kakaoStatus  atomic.Int32
	openAIStatus atomic.Int32
	kakaoHits    atomic.Int32
	openAIHits   atomic.Int32
}

func (s *E2ETestSuite) SetupSuite() {
	metrics.InitAppMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.kakao = httptest.NewServer(http.HandlerFunc(s.fakeKakao))
	s.openAI = httptest.NewServer(http.HandlerFunc(s.fakeOpenAI))

	var cfg config.Config
	cfg.Places.Provider = "kakao"
	cfg.Places.BaseURL = s.kakao.URL
	cfg.Places.APIKey = "kakao-key"
	cfg.Ranking.Provider = "openai"
	cfg.Ranking.OpenAIAPIKey = "openai-key"
	cfg.Ranking.OpenAIBaseURL = s.openAI.URL
	cfg.Recommendations.OverallDeadline = 10 * time.Second
	cfg.Recommendations.RankingTimeout = 5 * time.Second
	cfg.Recommendations.PerQueryTimeout = 2 * time.Second
	cfg.Recommendations.ConcurrencyLimit = 6
	cfg.Cache.Backend = "memory"
	cfg.Cache.TTL = time.Hour
	cfg.Cache.DegradedTTL = time.Minute

	c, err := container.NewContainer(context.Background(), &cfg, logger)
	s.Require().NoError(err)
	s.container = c

	s.server = httptest.NewServer(router.SetupRouter(&router.Config{RecommendationHandler: c.RecommendationHandler}))
}

func (s *E2ETestSuite) TearDownSuite() {
	s.server.Close()
	s.container.Close()
	s.openAI.Close()
	s.kakao.Close()
}

func (s *E2ETestSuite) SetupTest() {
	s.kakaoStatus.Store(http.StatusOK)
	s.openAIStatus.Store(http.StatusOK)
}

// fakeKakao returns two places named after the query.
func (s *E2ETestSuite) fakeKakao(w http.ResponseWriter, r *http.Request) {
	s.kakaoHits.Add(1)
	if status := int(s.kakaoStatus.Load()); status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"errorType":"AccessDeniedError","message":"denied"}`))
		return
	}
	q := r.URL.Query().Get("query")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"documents": []map[string]string{
			{"id": q + "-a", "place_name": q + " 가게", "address_name": "주소 " + q + " 1", "category_name": "테스트", "distance": "350"},
			{"id": q + "-b", "place_name": q + " 상점", "address_name": "주소 " + q + " 2", "category_name": "테스트"},
		},
	})
}

// fakeOpenAI picks the first three candidates listed under each category.
func (s *E2ETestSuite) fakeOpenAI(w http.ResponseWriter, r *http.Request) {
	s.openAIHits.Add(1)
	if status := int(s.openAIStatus.Load()); status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	prompt := req.Messages[len(req.Messages)-1].Content

	type pick struct {
		Name              string `json:"name"`
		Description       string `json:"description"`
		Category          string `json:"category"`
		AccessibilityHint string `json:"accessibilityHint"`
	}
	var picks []pick
	counts := map[string]int{}
	category := ""
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "[") {
			category = strings.TrimPrefix(strings.SplitN(line, " ", 2)[0], "[")
			continue
		}
		if m := candidateLine.FindStringSubmatch(line); m != nil && category != "" && counts[category] < 3 {
			counts[category]++
			picks = append(picks, pick{Name: m[1], Description: "추천 장소", Category: category, AccessibilityHint: "도보 5분"})
		}
	}
	content, _ := json.Marshal(map[string]any{"recommendations": picks})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:    "cmpl-e2e",
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: string(content)},
		}},
	})
}

func (s *E2ETestSuite) recommend(body string) types.RecommendationSet {
	resp, err := http.Post(s.server.URL+"/api/v1/recommendations", "application/json", bytes.NewBufferString(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var set types.RecommendationSet
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&set))
	return set
}

func (s *E2ETestSuite) assertAll(set types.RecommendationSet, tag types.SourceTag) {
	s.Require().Len(set.Items, 9)
	counts := set.CountByCategory()
	for _, cat := range types.Categories() {
		s.Equal(3, counts[cat], "category %s", cat)
	}
	for _, it := range set.Items {
		s.Equal(tag, it.SourceTag, it.Name)
	}
}

func (s *E2ETestSuite) TestAISelectedAndCached() {
	set := s.recommend(`{"destination":"제주도","styleTags":["힐링"]}`)
	s.assertAll(set, types.SourceAISelected)
	s.Equal("제주도 맛집 가게", set.Items[0].Name)
	s.Equal("주소 제주도 맛집 1", set.Items[0].Address)
	s.True(set.Items[0].Verified)

	kakao, ai := s.kakaoHits.Load(), s.openAIHits.Load()
	again := s.recommend(`{"destination":" 제주도","styleTags":["힐링"]}`)
	s.Equal(set.Items, again.Items)
	s.Equal(kakao, s.kakaoHits.Load())
	s.Equal(ai, s.openAIHits.Load())
}

func (s *E2ETestSuite) TestRankerOutageServesRawResults() {
	s.openAIStatus.Store(http.StatusServiceUnavailable)
	before := s.openAIHits.Load()

	set := s.recommend(`{"destination":"부산","refresh":true}`)

	s.assertAll(set, types.SourceSearchRaw)
	s.Equal("부산 맛집 가게", set.Items[0].Name)
	s.Equal("약 350m", set.Items[0].AccessibilityHint)
	s.Equal(int32(2), s.openAIHits.Load()-before, "one retry after a transient failure")
}

func (s *E2ETestSuite) TestSearchOutageServesCatalog() {
	s.kakaoStatus.Store(http.StatusUnauthorized)
	before := s.openAIHits.Load()

	set := s.recommend(`{"destination":"강릉","refresh":true}`)

	s.assertAll(set, types.SourceStaticFallback)
	s.True(set.FullyStatic())
	s.Equal(before, s.openAIHits.Load())
	for _, it := range set.Items {
		s.False(it.Verified, fmt.Sprintf("%s must be unverified", it.Name))
	}
}

func (s *E2ETestSuite) TestMalformedRequest() {
	resp, err := http.Post(s.server.URL+"/api/v1/recommendations", "application/json", strings.NewReader(`{"destination":""}`))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestE2ETestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end suite in short mode")
	}
	suite.Run(t, new(E2ETestSuite))
}
