package recommendations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

const (
	StageAISelection = "ai_selection"
	StageSearchRaw   = "search_raw"
	StageStatic      = "static_fallback"
)

var errEmptyAttempt = errors.New("attempt produced no items")

// Attempt is one stage of a fallback chain.
type Attempt struct {
	Stage string
	Run   func(ctx context.Context) ([]types.RecommendationItem, error)
}

type StageError struct {
	Stage string
	Err   error
}

// ChainOutcome reports which stage won and why the earlier ones lost.
type ChainOutcome struct {
	Items  []types.RecommendationItem
	Stage  string
	Errors []StageError
}

// FirstSuccess runs attempts strictly in order and returns the first one that
// produces at least one item without error.
func FirstSuccess(ctx context.Context, logger *slog.Logger, attempts ...Attempt) ChainOutcome {
	var out ChainOutcome
	for _, a := range attempts {
		items, err := a.Run(ctx)
		if err == nil && len(items) == 0 {
			err = errEmptyAttempt
		}
		if err != nil {
			out.Errors = append(out.Errors, StageError{Stage: a.Stage, Err: err})
			logger.DebugContext(ctx, "Fallback stage skipped",
				slog.String("stage", a.Stage),
				slog.Any("error", err),
			)
			continue
		}
		out.Items = items
		out.Stage = a.Stage
		return out
	}
	return out
}

// rawTopN turns the first n unseen candidates into unranked items.
func rawTopN(bucket []types.PlaceCandidate, cat types.Category, seen map[string]struct{}, n int) []types.RecommendationItem {
	out := make([]types.RecommendationItem, 0, n)
	for _, c := range bucket {
		if len(out) == n {
			break
		}
		if _, dup := seen[CandidateKey(c.RawName, c.RawAddress)]; dup {
			continue
		}
		out = append(out, types.RecommendationItem{
			Name:              c.RawName,
			Address:           c.RawAddress,
			Description:       rawDescription(c, cat),
			Category:          cat,
			CategoryLabel:     cat.Label(),
			AccessibilityHint: distanceHint(c.ProviderDistanceHint),
			Verified:          true,
			SourceTag:         types.SourceSearchRaw,
		})
	}
	return out
}

// unseen drops items already placed in the set.
func unseen(items []types.RecommendationItem, seen map[string]struct{}) []types.RecommendationItem {
	out := make([]types.RecommendationItem, 0, len(items))
	for _, it := range items {
		if _, dup := seen[CandidateKey(it.Name, it.Address)]; dup {
			continue
		}
		out = append(out, it)
	}
	return out
}

func rawDescription(c types.PlaceCandidate, cat types.Category) string {
	label := c.RawCategoryLabel
	if label == "" {
		label = cat.Label()
	}
	if c.RawAddress == "" {
		return truncateRunes(label, types.MaxDescriptionLength)
	}
	return truncateRunes(label+" - "+c.RawAddress, types.MaxDescriptionLength)
}

func distanceHint(meters *int) string {
	if meters == nil {
		return "정보 없음"
	}
	if *meters < 1000 {
		return fmt.Sprintf("약 %dm", *meters)
	}
	return fmt.Sprintf("약 %.1fkm", float64(*meters)/1000)
}
