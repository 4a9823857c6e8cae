// Package generativeAI talks to the generative ranking providers. It only
// moves prompt text in and response text out; interpreting the response is
// the caller's job.
package generativeAI

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrNotConfigured = errors.New("ranking provider not configured")
	ErrAuth          = errors.New("ranking provider rejected credentials")
	ErrTimeout       = errors.New("ranking provider timed out")
	ErrUnavailable   = errors.New("ranking provider unavailable")
	ErrEmptyResponse = errors.New("ranking provider returned no content")
)

// RankRequest is one ranking prompt.
type RankRequest struct {
	SystemPrompt string
	Prompt       string
	Temperature  float32
}

type RankResponse struct {
	Text  string
	Model string
}

// Ranker sends a prompt to a generative model that answers in JSON.
type Ranker interface {
	Rank(ctx context.Context, req RankRequest) (RankResponse, error)
	Provider() string
	Model() string
}

type Config struct {
	Provider      string
	Model         string
	Temperature   float32
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewRanker builds the configured ranker. A missing key yields a
// DisabledRanker so the pipeline degrades to raw search results.
func NewRanker(ctx context.Context, cfg Config, logger *slog.Logger) (Ranker, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		if cfg.GeminiAPIKey == "" {
			logger.Warn("GOOGLE_GEMINI_API_KEY is not set, AI ranking disabled")
			return DisabledRanker{}, nil
		}
		return NewGeminiRanker(ctx, cfg.GeminiAPIKey, cfg.Model, logger)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY is not set, AI ranking disabled")
			return DisabledRanker{}, nil
		}
		return NewOpenAIRanker(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, logger), nil
	case "none":
		return DisabledRanker{}, nil
	default:
		return nil, fmt.Errorf("unknown ranking provider %q", cfg.Provider)
	}
}

// DisabledRanker always reports ErrNotConfigured.
type DisabledRanker struct{}

func (DisabledRanker) Rank(context.Context, RankRequest) (RankResponse, error) {
	return RankResponse{}, ErrNotConfigured
}

func (DisabledRanker) Provider() string { return "none" }
func (DisabledRanker) Model() string    { return "" }

// IsTransient reports whether a retry could plausibly succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// cleanJSONResponse strips markdown code fences some models wrap JSON in.
func cleanJSONResponse(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
