// Package places wraps keyword place-search providers behind a single
// interface with a closed error taxonomy.
package places

import (
	"context"
	"errors"
	"fmt"

	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

// Provider runs one keyword search. An empty result is a success.
type Provider interface {
	Search(ctx context.Context, keyword string, bias *types.GeoBias) ([]types.PlaceCandidate, error)
}

var (
	ErrAuth        = errors.New("place search: authentication failed")
	ErrRateLimited = errors.New("place search: rate limited")
	ErrTimeout     = errors.New("place search: timeout")
	ErrUnavailable = errors.New("place search: provider unavailable")
)

// ProviderError carries the failing keyword alongside one of the sentinel kinds.
type ProviderError struct {
	Kind    error
	Keyword string
	Status  int
	Err     error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("%v (keyword=%q status=%d): %v", e.Kind, e.Keyword, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v (keyword=%q): %v", e.Kind, e.Keyword, e.Err)
	default:
		return fmt.Sprintf("%v (keyword=%q)", e.Kind, e.Keyword)
	}
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindLabel returns a short label for logs and metric attributes.
func KindLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}
