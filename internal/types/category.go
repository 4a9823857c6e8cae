package types

import (
	"fmt"
	"strings"
)

// Category is the closed set of recommendation buckets.
type Category string

const (
	CategoryRestaurant Category = "restaurant"
	CategoryActivity   Category = "activity"
	CategoryAttraction Category = "attraction"
)

// categoryLabels is the single translation table between the internal
// vocabulary and the Korean display / search vocabulary.
var categoryLabels = map[Category]struct {
	Label string
	Noun  string
}{
	CategoryRestaurant: {Label: "맛집", Noun: "맛집"},
	CategoryActivity:   {Label: "액티비티", Noun: "체험"},
	CategoryAttraction: {Label: "관광명소", Noun: "관광지"},
}

// Categories returns every category in canonical assembly order.
func Categories() []Category {
	return []Category{CategoryRestaurant, CategoryActivity, CategoryAttraction}
}

// Label returns the Korean display label.
func (c Category) Label() string {
	return categoryLabels[c].Label
}

// SearchNoun returns the noun used when composing "near a place" queries.
func (c Category) SearchNoun() string {
	return categoryLabels[c].Noun
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory accepts either the internal name or the Korean label.
func ParseCategory(s string) (Category, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for c, l := range categoryLabels {
		if v == string(c) || v == l.Label {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// CategoryInfo is the public view of the translation table.
type CategoryInfo struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
}

func CategoryTable() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(categoryLabels))
	for _, c := range Categories() {
		out = append(out, CategoryInfo{Category: c, Label: c.Label()})
	}
	return out
}
