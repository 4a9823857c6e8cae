package recommendations

import (
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-poi-recommendations/internal/api"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

type HandlerImpl struct {
	service Service
	logger  *slog.Logger
}

func NewHandlerImpl(service Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		service: service,
		logger:  logger,
	}
}

// GetRecommendations godoc
// @Summary      Recommend places for a destination
// @Description  Returns up to three places per category. Search, ranking and catalog failures degrade silently; only a malformed body is rejected.
// @Tags         Recommendations
// @Accept       json
// @Produce      json
// @Param        request body types.RecommendationRequest true "Trip context"
// @Success      200 {object} types.RecommendationSet
// @Failure      400 {object} api.ErrorEnvelope
// @Router       /recommendations [post]
func (h *HandlerImpl) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RecommendationsHandler").Start(r.Context(), "GetRecommendations", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/api/v1/recommendations"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetRecommendations"))

	var req types.RecommendationRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Invalid recommendation request body", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Destination = strings.TrimSpace(req.Destination)
	if err := api.ValidateStruct(req); err != nil {
		l.WarnContext(ctx, "Recommendation request failed validation", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("recommendations.destination", req.Destination))

	set := h.service.GetRecommendations(ctx, req)
	l.InfoContext(ctx, "Recommendations served",
		slog.String("destination", req.Destination),
		slog.Int("items", len(set.Items)),
	)
	api.WriteJSONResponse(w, r, http.StatusOK, set)
}

// GetCategories godoc
// @Summary      List recommendation categories
// @Tags         Recommendations
// @Produce      json
// @Success      200 {array} types.CategoryInfo
// @Router       /categories [get]
func (h *HandlerImpl) GetCategories(w http.ResponseWriter, r *http.Request) {
	api.WriteJSONResponse(w, r, http.StatusOK, types.CategoryTable())
}
