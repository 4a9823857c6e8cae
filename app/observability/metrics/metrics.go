package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	SearchQueriesTotal       metric.Int64Counter
	SearchQueryDuration      metric.Float64Histogram
	SearchCandidatesTotal    metric.Int64Counter
	RankingRequestsTotal     metric.Int64Counter
	RankingDurationSeconds   metric.Float64Histogram
	RecommendationItemsTotal metric.Int64Counter
	RecommendationDuration   metric.Float64Histogram
	CacheLookupsTotal        metric.Int64Counter
	DbQueryDurationSeconds   metric.Float64Histogram
	DbQueryErrorsTotal       metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics creates the instruments once from the global MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("PlaceRecommendations")
		m := &AppMetrics{}

		m.SearchQueriesTotal = mustCounter(meter.Int64Counter(
			"place_search_queries_total",
			metric.WithDescription("Place search queries issued, by category and outcome"),
			metric.WithUnit("{query}"),
		))
		m.SearchQueryDuration = mustHistogram(meter.Float64Histogram(
			"place_search_query_duration_seconds",
			metric.WithDescription("Duration of a single place search query"),
			metric.WithUnit("s"),
		))
		m.SearchCandidatesTotal = mustCounter(meter.Int64Counter(
			"place_search_candidates_total",
			metric.WithDescription("Candidates returned by the place search provider"),
			metric.WithUnit("{candidate}"),
		))
		m.RankingRequestsTotal = mustCounter(meter.Int64Counter(
			"ranking_requests_total",
			metric.WithDescription("Generative ranking calls, by provider and outcome"),
			metric.WithUnit("{request}"),
		))
		m.RankingDurationSeconds = mustHistogram(meter.Float64Histogram(
			"ranking_duration_seconds",
			metric.WithDescription("Duration of generative ranking calls"),
			metric.WithUnit("s"),
		))
		m.RecommendationItemsTotal = mustCounter(meter.Int64Counter(
			"recommendation_items_total",
			metric.WithDescription("Recommendation items emitted, by category and source tag"),
			metric.WithUnit("{item}"),
		))
		m.RecommendationDuration = mustHistogram(meter.Float64Histogram(
			"recommendation_duration_seconds",
			metric.WithDescription("End to end duration of a recommendation run"),
			metric.WithUnit("s"),
		))
		m.CacheLookupsTotal = mustCounter(meter.Int64Counter(
			"recommendation_cache_lookups_total",
			metric.WithDescription("Recommendation cache lookups, by result"),
			metric.WithUnit("{lookup}"),
		))
		m.DbQueryDurationSeconds = mustHistogram(meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		))
		m.DbQueryErrorsTotal = mustCounter(meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		))

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the initialized instruments. Panics if InitAppMetrics was not called.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}

func mustCounter(c metric.Int64Counter, err error) metric.Int64Counter {
	if err != nil {
		log.Fatalf("Metrics: failed to create counter: %v", err)
	}
	return c
}

func mustHistogram(h metric.Float64Histogram, err error) metric.Float64Histogram {
	if err != nil {
		log.Fatalf("Metrics: failed to create histogram: %v", err)
	}
	return h
}
