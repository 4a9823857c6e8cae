package types

import (
	"time"

	"github.com/google/uuid"
)

// RankingOutcome summarizes how a ranking call ended.
type RankingOutcome string

const (
	RankingAccepted RankingOutcome = "accepted"
	RankingPartial  RankingOutcome = "partial"
	RankingRejected RankingOutcome = "rejected"
	RankingFailed   RankingOutcome = "failed"
)

type RankingInteraction struct {
	ID           uuid.UUID      `json:"id"`
	Destination  string         `json:"destination"`
	Provider     string         `json:"provider"`
	ModelUsed    string         `json:"model_used"`
	Prompt       string         `json:"prompt"`
	ResponseText string         `json:"response_text"`
	Outcome      RankingOutcome `json:"outcome"`
	ErrorMessage string         `json:"error_message,omitempty"`
	LatencyMs    int            `json:"latency_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}
