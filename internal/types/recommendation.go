package types

import "time"

const (
	MaxItemsPerCategory  = 3
	MaxDescriptionLength = 120
)

// SourceTag records which pipeline stage produced an item. Values are ordered
// by degradation depth.
type SourceTag string

const (
	SourceAISelected     SourceTag = "search_ai_selected"
	SourceSearchRaw      SourceTag = "search_raw"
	SourceStaticFallback SourceTag = "static_fallback"
)

// GeoBias optionally centers provider searches.
type GeoBias struct {
	Latitude     float64 `json:"latitude" validate:"latitude"`
	Longitude    float64 `json:"longitude" validate:"longitude"`
	RadiusMeters int     `json:"radiusMeters,omitempty" validate:"omitempty,min=0,max=20000"`
}

// TripContext is the immutable input to one pipeline run.
type TripContext struct {
	Destination       string
	StyleTags         []string
	VisitedPlaceNames []string
	GeoBias           *GeoBias
}

// RecommendationRequest is the HTTP body for a recommendation run.
type RecommendationRequest struct {
	Destination       string   `json:"destination" validate:"required,max=100"`
	StyleTags         []string `json:"styleTags,omitempty" validate:"max=20,dive,max=30"`
	VisitedPlaceNames []string `json:"visitedPlaceNames,omitempty" validate:"max=50,dive,max=100"`
	GeoBias           *GeoBias `json:"geoBias,omitempty" validate:"omitempty"`
	Refresh           bool     `json:"refresh,omitempty"`
}

func (r RecommendationRequest) Trip() TripContext {
	return TripContext{
		Destination:       r.Destination,
		StyleTags:         append([]string(nil), r.StyleTags...),
		VisitedPlaceNames: append([]string(nil), r.VisitedPlaceNames...),
		GeoBias:           r.GeoBias,
	}
}

// PlaceCandidate is one normalized provider search hit.
type PlaceCandidate struct {
	ExternalID           string   `json:"externalId"`
	RawName              string   `json:"name"`
	RawAddress           string   `json:"address"`
	RawCategoryLabel     string   `json:"categoryLabel"`
	Phone                string   `json:"phone,omitempty"`
	ProviderDistanceHint *int     `json:"distanceMeters,omitempty"`
	Category             Category `json:"category"`
}

// RecommendationItem is one entry of the final set.
type RecommendationItem struct {
	Name              string    `json:"name"`
	Address           string    `json:"address,omitempty"`
	Description       string    `json:"description"`
	Category          Category  `json:"category"`
	CategoryLabel     string    `json:"categoryLabel"`
	AccessibilityHint string    `json:"accessibilityHint"`
	Verified          bool      `json:"verified"`
	SourceTag         SourceTag `json:"sourceTag"`
}

// RecommendationSet is the pipeline output. It is never mutated after assembly.
type RecommendationSet struct {
	Destination string               `json:"destination"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Items       []RecommendationItem `json:"items"`
}

func (s RecommendationSet) CountByCategory() map[Category]int {
	out := make(map[Category]int, 3)
	for _, it := range s.Items {
		out[it.Category]++
	}
	return out
}

// FullyStatic reports whether every item came from the static catalog.
func (s RecommendationSet) FullyStatic() bool {
	for _, it := range s.Items {
		if it.SourceTag != SourceStaticFallback {
			return false
		}
	}
	return len(s.Items) > 0
}
