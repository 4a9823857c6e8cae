package generativeAI

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultOpenAIModel = openai.GPT4o

var _ Ranker = (*OpenAIRanker)(nil)

// OpenAIRanker uses chat completions in JSON mode. JSON mode only returns
// objects, so callers must accept {"recommendations": [...]}.
type OpenAIRanker struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIRanker(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIRanker {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	if model == "" || model == defaultGeminiModel {
		model = defaultOpenAIModel
	}
	return &OpenAIRanker{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}
}

func (o *OpenAIRanker) Provider() string { return "openai" }
func (o *OpenAIRanker) Model() string    { return o.model }

func (o *OpenAIRanker) Rank(ctx context.Context, req RankRequest) (RankResponse, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "OpenAIRanker.Rank", trace.WithAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.prompt_length", len(req.Prompt)),
	))
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		err = classifyOpenAIError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return RankResponse{}, err
	}

	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return RankResponse{}, ErrEmptyResponse
	}
	text := cleanJSONResponse(resp.Choices[0].Message.Content)
	if text == "" {
		span.SetStatus(codes.Error, "empty response")
		return RankResponse{}, ErrEmptyResponse
	}

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")
	return RankResponse{Text: text, Model: o.model}, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 400 {
			return fmt.Errorf("ranking request rejected (status 400): %w", err)
		}
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 400 {
			return fmt.Errorf("ranking request rejected (status 400): %w", err)
		}
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
