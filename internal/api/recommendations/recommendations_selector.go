package recommendations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-poi-recommendations/app/observability/metrics"
	generativeAI "github.com/FACorreiaa/go-poi-recommendations/internal/api/generative_ai"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

var (
	ErrSelectionTimeout      = errors.New("ai selection timed out")
	ErrSelectionAuth         = errors.New("ai selection rejected credentials")
	ErrRankingUnavailable    = errors.New("ai ranking unavailable")
	ErrInvalidResponseShape  = errors.New("ai response has an invalid shape")
	ErrHallucinatedCandidate = errors.New("ai selected a place that was not a candidate")
	ErrCategoryOverflow      = errors.New("ai selected too many places for a category")
	ErrDuplicatePick         = errors.New("ai selected the same place twice")
	ErrNoCandidates          = errors.New("no candidates to rank")
)

const (
	defaultRankingTemperature = 0.3
	minRetryBudget            = 500 * time.Millisecond
	interactionSaveTimeout    = 2 * time.Second
)

// aiPick is the only accepted shape of one ranked entry.
type aiPick struct {
	Name              string `json:"name" validate:"required"`
	Description       string `json:"description"`
	Category          string `json:"category" validate:"required"`
	AccessibilityHint string `json:"accessibilityHint"`
}

type aiEnvelope struct {
	Recommendations *[]aiPick `json:"recommendations"`
}

// Selection is the validated outcome of one ranking call. Categories missing
// from Items either had no picks or were rejected; Rejected says why.
type Selection struct {
	Items    map[types.Category][]types.RecommendationItem
	Rejected map[types.Category]error
}

// AIRankingSelector asks the ranker to pick places and cross-checks every
// pick against the candidates it was shown.
type AIRankingSelector struct {
	ranker      generativeAI.Ranker
	repo        InteractionRepository
	temperature float32
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewAIRankingSelector(ranker generativeAI.Ranker, repo InteractionRepository, temperature float32, logger *slog.Logger) *AIRankingSelector {
	if temperature <= 0 {
		temperature = defaultRankingTemperature
	}
	if repo == nil {
		repo = NoopInteractionRepo{}
	}
	return &AIRankingSelector{
		ranker:      ranker,
		repo:        repo,
		temperature: temperature,
		logger:      logger,
		validate:    validator.New(),
	}
}

func (s *AIRankingSelector) Select(ctx context.Context, buckets map[types.Category][]types.PlaceCandidate, trip types.TripContext) (Selection, error) {
	ctx, span := otel.Tracer("Recommendations").Start(ctx, "AIRankingSelector.Select", trace.WithAttributes(
		attribute.String("llm.provider", s.ranker.Provider()),
		attribute.String("llm.model", s.ranker.Model()),
	))
	defer span.End()

	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	if total == 0 {
		return Selection{}, ErrNoCandidates
	}

	prompt := buildRankingPrompt(trip, buckets, s.ranker.Provider() == "openai")
	req := generativeAI.RankRequest{SystemPrompt: rankingSystemPrompt, Prompt: prompt, Temperature: s.temperature}

	start := time.Now()
	resp, err := s.rankWithRetry(ctx, req)
	latency := time.Since(start)

	interaction := types.RankingInteraction{
		ID:           uuid.New(),
		Destination:  trip.Destination,
		Provider:     s.ranker.Provider(),
		ModelUsed:    s.ranker.Model(),
		Prompt:       prompt,
		ResponseText: resp.Text,
		LatencyMs:    int(latency.Milliseconds()),
		CreatedAt:    time.Now().UTC(),
	}

	if err != nil {
		err = mapRankerError(err)
		s.finish(ctx, span, interaction, types.RankingFailed, latency, err)
		return Selection{}, err
	}

	picks, err := decodePicks(resp.Text, s.validate)
	if err != nil {
		s.finish(ctx, span, interaction, types.RankingRejected, latency, err)
		return Selection{}, err
	}

	sel := crossCheck(picks, buckets)
	outcome := types.RankingAccepted
	if len(sel.Rejected) > 0 {
		outcome = types.RankingPartial
		if len(sel.Items) == 0 {
			outcome = types.RankingRejected
		}
		for cat, rerr := range sel.Rejected {
			s.logger.WarnContext(ctx, "Discarding AI picks for category",
				slog.String("stage", "ai_selection"),
				slog.String("category", string(cat)),
				slog.Any("error", rerr),
			)
		}
	}
	s.finish(ctx, span, interaction, outcome, latency, nil)
	return sel, nil
}

func (s *AIRankingSelector) rankWithRetry(ctx context.Context, req generativeAI.RankRequest) (generativeAI.RankResponse, error) {
	resp, err := s.ranker.Rank(ctx, req)
	if err == nil || !generativeAI.IsTransient(err) || !hasBudget(ctx, minRetryBudget) {
		return resp, err
	}
	s.logger.WarnContext(ctx, "Retrying AI ranking after transient failure",
		slog.String("stage", "ai_selection"),
		slog.Any("error", err),
	)
	return s.ranker.Rank(ctx, req)
}

func hasBudget(ctx context.Context, budget time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) >= budget
}

func (s *AIRankingSelector) finish(ctx context.Context, span trace.Span, in types.RankingInteraction, outcome types.RankingOutcome, latency time.Duration, err error) {
	in.Outcome = outcome
	if err != nil {
		in.ErrorMessage = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
		s.logger.WarnContext(ctx, "AI ranking failed",
			slog.String("stage", "ai_selection"),
			slog.String("outcome", string(outcome)),
			slog.Any("error", err),
		)
	} else {
		span.SetStatus(codes.Ok, string(outcome))
	}

	attrs := metric.WithAttributes(
		attribute.String("provider", in.Provider),
		attribute.String("outcome", string(outcome)),
	)
	m := metrics.Get()
	m.RankingRequestsTotal.Add(ctx, 1, attrs)
	m.RankingDurationSeconds.Record(ctx, latency.Seconds(), attrs)

	if errors.Is(err, ErrRankingUnavailable) && errors.Is(err, generativeAI.ErrNotConfigured) {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interactionSaveTimeout)
	defer cancel()
	if serr := s.repo.SaveInteraction(saveCtx, in); serr != nil {
		s.logger.WarnContext(ctx, "Failed to record ranking interaction", slog.Any("error", serr))
	}
}

func mapRankerError(err error) error {
	switch {
	case errors.Is(err, generativeAI.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrSelectionTimeout, err)
	case errors.Is(err, generativeAI.ErrAuth):
		return fmt.Errorf("%w: %w", ErrSelectionAuth, err)
	case errors.Is(err, generativeAI.ErrEmptyResponse):
		return fmt.Errorf("%w: %w", ErrInvalidResponseShape, err)
	default:
		return fmt.Errorf("%w: %w", ErrRankingUnavailable, err)
	}
}

// decodePicks accepts a JSON array of picks, or an object whose only key is
// "recommendations" holding that array. Anything else rejects the response.
func decodePicks(text string, v *validator.Validate) ([]aiPick, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidResponseShape)
	}

	var picks []aiPick
	switch text[0] {
	case '[':
		if err := strictDecode(text, &picks); err != nil {
			return nil, err
		}
	case '{':
		var env aiEnvelope
		if err := strictDecode(text, &env); err != nil {
			return nil, err
		}
		if env.Recommendations == nil {
			return nil, fmt.Errorf("%w: missing recommendations array", ErrInvalidResponseShape)
		}
		picks = *env.Recommendations
	default:
		return nil, fmt.Errorf("%w: body is not a JSON array or object", ErrInvalidResponseShape)
	}

	for i := range picks {
		picks[i].Name = strings.TrimSpace(picks[i].Name)
		if err := v.Struct(picks[i]); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrInvalidResponseShape, i, err)
		}
		if _, err := types.ParseCategory(picks[i].Category); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrInvalidResponseShape, i, err)
		}
	}
	return picks, nil
}

func strictDecode(text string, dst any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponseShape, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON value", ErrInvalidResponseShape)
	}
	return nil
}

// crossCheck validates picks per category. A category with an unknown name, a
// repeated pick or more than MaxItemsPerCategory picks is rejected in full.
func crossCheck(picks []aiPick, buckets map[types.Category][]types.PlaceCandidate) Selection {
	byCat := make(map[types.Category][]aiPick, 3)
	for _, p := range picks {
		cat, _ := types.ParseCategory(p.Category)
		byCat[cat] = append(byCat[cat], p)
	}

	sel := Selection{
		Items:    make(map[types.Category][]types.RecommendationItem, 3),
		Rejected: make(map[types.Category]error),
	}
	for _, cat := range types.Categories() {
		catPicks := byCat[cat]
		if len(catPicks) == 0 {
			continue
		}
		if len(catPicks) > types.MaxItemsPerCategory {
			sel.Rejected[cat] = fmt.Errorf("%w: %s has %d picks", ErrCategoryOverflow, cat, len(catPicks))
			continue
		}

		bucket := buckets[cat]
		used := make(map[int]bool, len(catPicks))
		items := make([]types.RecommendationItem, 0, len(catPicks))
		var rejectErr error
		for _, p := range catPicks {
			idx := findCandidate(bucket, p.Name, used)
			if idx < 0 {
				if alreadyPicked(bucket, p.Name, used) {
					rejectErr = fmt.Errorf("%w: %q in %s", ErrDuplicatePick, p.Name, cat)
					break
				}
				rejectErr = fmt.Errorf("%w: %q in %s", ErrHallucinatedCandidate, p.Name, cat)
				break
			}
			used[idx] = true
			items = append(items, aiItem(bucket[idx], p, cat))
		}
		if rejectErr != nil {
			sel.Rejected[cat] = rejectErr
			continue
		}
		sel.Items[cat] = items
	}
	return sel
}

func findCandidate(bucket []types.PlaceCandidate, name string, used map[int]bool) int {
	key := types.NormalizeText(name)
	for i, c := range bucket {
		if !used[i] && types.NormalizeText(c.RawName) == key {
			return i
		}
	}
	return -1
}

// alreadyPicked reports a repeated pick of a name whose candidates are all used.
func alreadyPicked(bucket []types.PlaceCandidate, name string, used map[int]bool) bool {
	key := types.NormalizeText(name)
	for i, c := range bucket {
		if used[i] && types.NormalizeText(c.RawName) == key {
			return true
		}
	}
	return false
}

func aiItem(c types.PlaceCandidate, p aiPick, cat types.Category) types.RecommendationItem {
	desc := truncateRunes(strings.TrimSpace(p.Description), types.MaxDescriptionLength)
	if desc == "" {
		desc = rawDescription(c, cat)
	}
	hint := strings.TrimSpace(p.AccessibilityHint)
	if hint == "" {
		hint = distanceHint(c.ProviderDistanceHint)
	}
	return types.RecommendationItem{
		Name:              c.RawName,
		Address:           c.RawAddress,
		Description:       desc,
		Category:          cat,
		CategoryLabel:     cat.Label(),
		AccessibilityHint: hint,
		Verified:          true,
		SourceTag:         types.SourceAISelected,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
