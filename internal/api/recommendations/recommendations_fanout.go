package recommendations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/FACorreiaa/go-poi-recommendations/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-recommendations/internal/api/places"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

const (
	DefaultConcurrencyLimit = 6
	DefaultPerQueryTimeout  = 3 * time.Second
)

// QueryOutcome is the result of one keyword search.
type QueryOutcome struct {
	Category   types.Category
	Query      string
	Candidates []types.PlaceCandidate
	Err        error
	Duration   time.Duration
}

// FanoutResult holds candidates per category in query-generation order.
type FanoutResult struct {
	Buckets           map[types.Category][]types.PlaceCandidate
	Outcomes          []QueryOutcome
	SuccessfulQueries int
	FailedQueries     int
}

func (r FanoutResult) TotalCandidates() int {
	n := 0
	for _, b := range r.Buckets {
		n += len(b)
	}
	return n
}

// SearchFanout runs every query against the provider with bounded
// concurrency. A failing query never affects the others.
type SearchFanout struct {
	provider        places.Provider
	limit           int64
	perQueryTimeout time.Duration
	logger          *slog.Logger
}

func NewSearchFanout(provider places.Provider, limit int64, perQueryTimeout time.Duration, logger *slog.Logger) *SearchFanout {
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	if perQueryTimeout <= 0 {
		perQueryTimeout = DefaultPerQueryTimeout
	}
	return &SearchFanout{
		provider:        provider,
		limit:           limit,
		perQueryTimeout: perQueryTimeout,
		logger:          logger,
	}
}

type searchTask struct {
	category types.Category
	query    string
}

func (f *SearchFanout) RunAll(ctx context.Context, queries map[types.Category][]string, bias *types.GeoBias) FanoutResult {
	ctx, span := otel.Tracer("Recommendations").Start(ctx, "SearchFanout.RunAll")
	defer span.End()

	var tasks []searchTask
	for _, cat := range types.Categories() {
		for _, q := range queries[cat] {
			tasks = append(tasks, searchTask{category: cat, query: q})
		}
	}
	span.SetAttributes(attribute.Int("search.queries", len(tasks)))

	outcomes := make([]QueryOutcome, len(tasks))
	sem := semaphore.NewWeighted(f.limit)
	var wg sync.WaitGroup

	for i, task := range tasks {
		outcomes[i] = QueryOutcome{Category: task.category, Query: task.query}
		if err := sem.Acquire(ctx, 1); err != nil {
			// Parent cancelled: everything not yet started fails.
			for j := i; j < len(tasks); j++ {
				outcomes[j] = QueryOutcome{Category: tasks[j].category, Query: tasks[j].query, Err: err}
			}
			break
		}
		wg.Add(1)
		go func(i int, task searchTask) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = f.runOne(ctx, task, bias)
		}(i, task)
	}
	wg.Wait()

	res := FanoutResult{
		Buckets:  make(map[types.Category][]types.PlaceCandidate, 3),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Err != nil {
			res.FailedQueries++
			continue
		}
		res.SuccessfulQueries++
		res.Buckets[o.Category] = append(res.Buckets[o.Category], o.Candidates...)
	}

	span.SetAttributes(
		attribute.Int("search.successful", res.SuccessfulQueries),
		attribute.Int("search.failed", res.FailedQueries),
		attribute.Int("search.candidates", res.TotalCandidates()),
	)
	f.logger.InfoContext(ctx, "Search fan-out finished",
		slog.String("stage", "search"),
		slog.Int("queries", len(tasks)),
		slog.Int("successful", res.SuccessfulQueries),
		slog.Int("failed", res.FailedQueries),
		slog.Int("candidates", res.TotalCandidates()),
	)
	return res
}

func (f *SearchFanout) runOne(ctx context.Context, task searchTask, bias *types.GeoBias) QueryOutcome {
	qctx, cancel := context.WithTimeout(ctx, f.perQueryTimeout)
	defer cancel()

	start := time.Now()
	found, err := f.provider.Search(qctx, task.query, bias)
	out := QueryOutcome{Category: task.category, Query: task.query, Err: err, Duration: time.Since(start)}

	attrs := metric.WithAttributes(
		attribute.String("category", string(task.category)),
		attribute.String("outcome", places.KindLabel(err)),
	)
	m := metrics.Get()
	m.SearchQueriesTotal.Add(ctx, 1, attrs)
	m.SearchQueryDuration.Record(ctx, out.Duration.Seconds(), attrs)

	if err != nil {
		f.logger.WarnContext(ctx, "Place search query failed",
			slog.String("stage", "search"),
			slog.String("category", string(task.category)),
			slog.String("query", task.query),
			slog.String("kind", places.KindLabel(err)),
			slog.Any("error", err),
		)
		return out
	}

	out.Candidates = make([]types.PlaceCandidate, len(found))
	for i, c := range found {
		c.Category = task.category
		out.Candidates[i] = c
	}
	m.SearchCandidatesTotal.Add(ctx, int64(len(found)), metric.WithAttributes(attribute.String("category", string(task.category))))
	return out
}
