package recommendations

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-poi-recommendations/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

const (
	DefaultOverallDeadline = 12 * time.Second
	DefaultRankingTimeout  = 8 * time.Second
)

// Service builds recommendation sets. It never fails: every stage that cannot
// produce a validated result degrades to the next one.
type Service interface {
	GetRecommendations(ctx context.Context, req types.RecommendationRequest) types.RecommendationSet
}

// Selector ranks deduplicated candidates.
type Selector interface {
	Select(ctx context.Context, buckets map[types.Category][]types.PlaceCandidate, trip types.TripContext) (Selection, error)
}

// StaticSource serves curated items when search and ranking both fail.
type StaticSource interface {
	Items(dest string, category types.Category) []types.RecommendationItem
}

type ServiceConfig struct {
	OverallDeadline time.Duration
	RankingTimeout  time.Duration
}

type ServiceImpl struct {
	logger    *slog.Logger
	generator *KeywordGenerator
	fanout    *SearchFanout
	selector  Selector
	static    StaticSource
	cache     *RecommendationCache
	cfg       ServiceConfig
	now       func() time.Time
}

func NewServiceImpl(
	generator *KeywordGenerator,
	fanout *SearchFanout,
	selector Selector,
	static StaticSource,
	cache *RecommendationCache,
	cfg ServiceConfig,
	logger *slog.Logger,
) *ServiceImpl {
	if cfg.OverallDeadline <= 0 {
		cfg.OverallDeadline = DefaultOverallDeadline
	}
	if cfg.RankingTimeout <= 0 {
		cfg.RankingTimeout = DefaultRankingTimeout
	}
	return &ServiceImpl{
		logger:    logger,
		generator: generator,
		fanout:    fanout,
		selector:  selector,
		static:    static,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *ServiceImpl) GetRecommendations(ctx context.Context, req types.RecommendationRequest) types.RecommendationSet {
	ctx, span := otel.Tracer("Recommendations").Start(ctx, "GetRecommendations", trace.WithAttributes(
		attribute.String("recommendations.destination", req.Destination),
		attribute.Bool("recommendations.refresh", req.Refresh),
	))
	defer span.End()

	trip := req.Trip()
	if s.cache == nil {
		return s.compute(ctx, trip)
	}

	key := CacheKey(trip)
	set, hit, err := s.cache.GetOrCompute(ctx, key, req.Refresh, func(ctx context.Context) types.RecommendationSet {
		return s.compute(ctx, trip)
	})
	if err != nil {
		// The caller is gone; nobody reads this set.
		span.SetStatus(codes.Error, "caller cancelled")
		s.logger.InfoContext(ctx, "Recommendation request cancelled by caller",
			slog.String("destination", trip.Destination), slog.Any("error", err))
		return types.RecommendationSet{Destination: trip.Destination, GeneratedAt: s.now().UTC()}
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if hit {
		s.logger.DebugContext(ctx, "Recommendation cache hit", slog.String("stage", "cache"), slog.String("key", key))
	}
	return set
}

func (s *ServiceImpl) compute(ctx context.Context, trip types.TripContext) types.RecommendationSet {
	ctx, span := otel.Tracer("Recommendations").Start(ctx, "ComputeRecommendations")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallDeadline)
	defer cancel()

	start := s.now()
	l := s.logger.With(slog.String("destination", trip.Destination))

	var (
		buckets map[types.Category][]types.PlaceCandidate
		sel     Selection
		selErr  = ErrNoCandidates
	)
	if strings.TrimSpace(trip.Destination) != "" {
		queries := s.generator.Generate(trip)
		res := s.fanout.RunAll(ctx, queries, trip.GeoBias)
		buckets = DedupeAll(res.Buckets)

		total := 0
		for _, b := range buckets {
			total += len(b)
		}
		span.SetAttributes(attribute.Int("search.candidates", total))
		if total > 0 {
			rctx, rcancel := context.WithTimeout(ctx, s.cfg.RankingTimeout)
			sel, selErr = s.selector.Select(rctx, buckets, trip)
			rcancel()
		} else {
			l.WarnContext(ctx, "No search candidates, skipping AI ranking", slog.String("stage", StageAISelection))
		}
	}

	set := types.RecommendationSet{
		Destination: trip.Destination,
		GeneratedAt: s.now().UTC(),
		Items:       s.assemble(ctx, trip, buckets, sel, selErr),
	}

	m := metrics.Get()
	for _, it := range set.Items {
		m.RecommendationItemsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(it.Category)),
			attribute.String("source", string(it.SourceTag)),
		))
	}
	elapsed := s.now().Sub(start)
	m.RecommendationDuration.Record(ctx, elapsed.Seconds())

	if set.FullyStatic() {
		span.SetStatus(codes.Error, "fully degraded to static catalog")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	l.InfoContext(ctx, "Recommendation set assembled",
		slog.Int("items", len(set.Items)),
		slog.Bool("fully_static", set.FullyStatic()),
		slog.Duration("elapsed", elapsed),
	)
	return set
}

// assemble runs the fallback chain per category in canonical order. Places
// already used by an earlier category are never repeated.
func (s *ServiceImpl) assemble(
	ctx context.Context,
	trip types.TripContext,
	buckets map[types.Category][]types.PlaceCandidate,
	sel Selection,
	selErr error,
) []types.RecommendationItem {
	seen := make(map[string]struct{})
	items := make([]types.RecommendationItem, 0, len(types.Categories())*types.MaxItemsPerCategory)

	for _, cat := range types.Categories() {
		out := FirstSuccess(ctx, s.logger.With(slog.String("category", string(cat))),
			Attempt{Stage: StageAISelection, Run: func(context.Context) ([]types.RecommendationItem, error) {
				if selErr != nil {
					return nil, selErr
				}
				if rerr, rejected := sel.Rejected[cat]; rejected {
					return nil, rerr
				}
				return unseen(sel.Items[cat], seen), nil
			}},
			Attempt{Stage: StageSearchRaw, Run: func(context.Context) ([]types.RecommendationItem, error) {
				return rawTopN(buckets[cat], cat, seen, types.MaxItemsPerCategory), nil
			}},
			Attempt{Stage: StageStatic, Run: func(context.Context) ([]types.RecommendationItem, error) {
				return unseen(s.static.Items(trip.Destination, cat), seen), nil
			}},
		)

		if len(out.Items) > types.MaxItemsPerCategory {
			out.Items = out.Items[:types.MaxItemsPerCategory]
		}
		for _, it := range out.Items {
			seen[CandidateKey(it.Name, it.Address)] = struct{}{}
		}
		items = append(items, out.Items...)

		if out.Stage != StageAISelection {
			s.logger.InfoContext(ctx, "Category degraded",
				slog.String("stage", out.Stage),
				slog.String("category", string(cat)),
				slog.Int("items", len(out.Items)),
			)
		}
	}
	return items
}
