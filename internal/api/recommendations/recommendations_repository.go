package recommendations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-poi-recommendations/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

var (
	_ InteractionRepository = (*PostgresInteractionRepo)(nil)
	_ InteractionRepository = NoopInteractionRepo{}
)

// InteractionRepository stores one row per ranking call for later prompt tuning.
type InteractionRepository interface {
	SaveInteraction(ctx context.Context, interaction types.RankingInteraction) error
}

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type PostgresInteractionRepo struct {
	logger *slog.Logger
	pgpool DBTX
}

func NewPostgresInteractionRepo(pgpool DBTX, logger *slog.Logger) *PostgresInteractionRepo {
	return &PostgresInteractionRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresInteractionRepo) SaveInteraction(ctx context.Context, interaction types.RankingInteraction) error {
	ctx, span := otel.Tracer("RecommendationsRepo").Start(ctx, "SaveInteraction", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "ranking_interactions"),
	))
	defer span.End()

	if interaction.ID == uuid.Nil {
		interaction.ID = uuid.New()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO ranking_interactions (
			id, destination, provider, model_used, prompt,
			response_text, outcome, error_message, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	start := time.Now()
	_, err := r.pgpool.Exec(ctx, query,
		interaction.ID, interaction.Destination, interaction.Provider, interaction.ModelUsed,
		interaction.Prompt, interaction.ResponseText, string(interaction.Outcome),
		interaction.ErrorMessage, interaction.LatencyMs, interaction.CreatedAt,
	)
	m := metrics.Get()
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("query", "save_ranking_interaction")))
	if err != nil {
		m.DbQueryErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("query", "save_ranking_interaction")))
		r.logger.ErrorContext(ctx, "Failed to save ranking interaction", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to save ranking interaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// NoopInteractionRepo discards interactions when persistence is disabled.
type NoopInteractionRepo struct{}

func (NoopInteractionRepo) SaveInteraction(context.Context, types.RankingInteraction) error {
	return nil
}
