package generativeAI

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

var _ Ranker = (*GeminiRanker)(nil)

type GeminiRanker struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGeminiRanker(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiRanker, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiRanker{client: client, model: model, logger: logger}, nil
}

func (g *GeminiRanker) Provider() string { return "gemini" }
func (g *GeminiRanker) Model() string    { return g.model }

// recommendationSchema constrains the model to a bare array of picks.
var recommendationSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":              {Type: genai.TypeString},
			"description":       {Type: genai.TypeString},
			"category":          {Type: genai.TypeString, Enum: []string{"restaurant", "activity", "attraction"}},
			"accessibilityHint": {Type: genai.TypeString},
		},
		Required: []string{"name", "description", "category", "accessibilityHint"},
	},
}

func (g *GeminiRanker) Rank(ctx context.Context, req RankRequest) (RankResponse, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "GeminiRanker.Rank", trace.WithAttributes(
		attribute.String("llm.model", g.model),
		attribute.Int("llm.prompt_length", len(req.Prompt)),
	))
	defer span.End()

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](req.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   recommendationSchema,
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	if err != nil {
		err = classifyGeminiError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content failed")
		return RankResponse{}, err
	}

	text := cleanJSONResponse(result.Text())
	if text == "" {
		span.SetStatus(codes.Error, "empty response")
		return RankResponse{}, ErrEmptyResponse
	}

	span.SetAttributes(attribute.Int("llm.response_length", len(text)))
	span.SetStatus(codes.Ok, "")
	return RankResponse{Text: text, Model: g.model}, nil
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	return classifyStatus(code, err)
}

func classifyStatus(code int, err error) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case code == http.StatusBadRequest && err != nil:
		// Gemini reports an invalid API key as 400 INVALID_ARGUMENT.
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case code == 0:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("ranking request rejected (status %d): %w", code, err)
	}
}
