// Package catalog serves the curated, versioned fallback recommendations.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

//go:embed catalog.yml
var embeddedCatalog []byte

// ConfigError reports a malformed catalog entry.
type ConfigError struct {
	Destination string
	Reason      string
}

func (e *ConfigError) Error() string {
	if e.Destination == "" {
		return fmt.Sprintf("catalog: generic set: %s", e.Reason)
	}
	return fmt.Sprintf("catalog: destination %q: %s", e.Destination, e.Reason)
}

type Entry struct {
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	AccessibilityHint string `yaml:"accessibilityHint"`
}

type destinationSpec struct {
	Name    string             `yaml:"name"`
	Aliases []string           `yaml:"aliases"`
	Items   map[string][]Entry `yaml:"items"`
}

type catalogFile struct {
	Version      int                `yaml:"version"`
	Generic      map[string][]Entry `yaml:"generic"`
	Destinations []destinationSpec  `yaml:"destinations"`
}

type destination struct {
	name  string
	keys  []string
	items map[types.Category][]Entry
}

// Catalog is immutable after loading.
type Catalog struct {
	version      int
	generic      map[types.Category][]Entry
	destinations []destination
}

// New loads the catalog at path, or the embedded one when path is empty or
// unusable.
func New(path string, logger *slog.Logger) (*Catalog, error) {
	if path != "" {
		c, err := LoadFile(path, logger)
		if err == nil {
			logger.Info("Loaded recommendation catalog", slog.String("path", path), slog.Int("version", c.version))
			return c, nil
		}
		logger.Error("Failed to load catalog override, using embedded catalog",
			slog.String("path", path), slog.Any("error", err))
	}
	c, err := Parse(embeddedCatalog, logger)
	if err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	return c, nil
}

func LoadFile(path string, logger *slog.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, logger)
}

// Parse decodes and validates a catalog document. A malformed generic set
// fails the whole document; a malformed destination is logged and dropped.
func Parse(data []byte, logger *slog.Logger) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	generic, err := validateItems(f.Generic)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}

	c := &Catalog{version: f.Version, generic: generic}
	for _, spec := range f.Destinations {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			logger.Error("Skipping catalog destination", slog.Any("error", &ConfigError{Reason: "missing name"}))
			continue
		}
		items, err := validateItems(spec.Items)
		if err != nil {
			logger.Error("Skipping catalog destination",
				slog.Any("error", &ConfigError{Destination: name, Reason: err.Error()}))
			continue
		}
		d := destination{name: name, items: items, keys: []string{types.NormalizeText(name)}}
		for _, a := range spec.Aliases {
			if k := types.NormalizeText(a); k != "" {
				d.keys = append(d.keys, k)
			}
		}
		c.destinations = append(c.destinations, d)
	}
	return c, nil
}

func validateItems(raw map[string][]Entry) (map[types.Category][]Entry, error) {
	out := make(map[types.Category][]Entry, len(raw))
	for key, entries := range raw {
		cat, err := types.ParseCategory(key)
		if err != nil {
			return nil, err
		}
		if len(entries) != types.MaxItemsPerCategory {
			return nil, fmt.Errorf("category %s has %d items, want %d", cat, len(entries), types.MaxItemsPerCategory)
		}
		for i, e := range entries {
			if strings.TrimSpace(e.Name) == "" {
				return nil, fmt.Errorf("category %s item %d has no name", cat, i)
			}
		}
		out[cat] = entries
	}
	for _, cat := range types.Categories() {
		if _, ok := out[cat]; !ok {
			return nil, errors.New("missing category " + string(cat))
		}
	}
	return out, nil
}

func (c *Catalog) Version() int { return c.version }

// Match resolves a free-text destination to a catalog destination name.
// Exact name or alias wins, then the first entry whose name or alias is
// contained in the destination.
func (c *Catalog) Match(dest string) (string, bool) {
	d := c.match(dest)
	if d == nil {
		return "", false
	}
	return d.name, true
}

func (c *Catalog) match(dest string) *destination {
	norm := types.NormalizeText(dest)
	if norm == "" {
		return nil
	}
	for i := range c.destinations {
		for _, k := range c.destinations[i].keys {
			if k == norm {
				return &c.destinations[i]
			}
		}
	}
	for i := range c.destinations {
		for _, k := range c.destinations[i].keys {
			if strings.Contains(norm, k) {
				return &c.destinations[i]
			}
		}
	}
	return nil
}

// Items returns the curated items for a destination and category, falling
// back to the generic set. It always returns MaxItemsPerCategory items.
func (c *Catalog) Items(dest string, category types.Category) []types.RecommendationItem {
	entries := c.generic[category]
	if d := c.match(dest); d != nil {
		entries = d.items[category]
	}

	out := make([]types.RecommendationItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.RecommendationItem{
			Name:              e.Name,
			Description:       e.Description,
			Category:          category,
			CategoryLabel:     category.Label(),
			AccessibilityHint: e.AccessibilityHint,
			Verified:          false,
			SourceTag:         types.SourceStaticFallback,
		})
	}
	return out
}
