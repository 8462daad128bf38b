// Package catalog maps canonical metric keys to provider wire codes,
// OAuth scopes, and unit conversions. The catalog ships as an embedded
// data asset, is loaded once at process start, and never changes for
// the process lifetime.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Entry describes one canonical metric: how to request it (scope,
// category), how to recognize it on the wire (measure type code or
// named field), and how to convert it into the canonical unit.
type Entry struct {
	Key         string  `yaml:"key"`
	DisplayName string  `yaml:"display_name"`
	Unit        string  `yaml:"unit"`
	Scope       string  `yaml:"scope"`
	Category    string  `yaml:"category"`
	MeasureType int     `yaml:"measure_type"`
	Field       string  `yaml:"field"`
	Factor      float64 `yaml:"factor"`
}

// Catalog is the immutable metric mapping for one provider.
type Catalog struct {
	provider string
	entries  []Entry
	byKey    map[string]*Entry
	byType   map[int]*Entry
	appli    map[string]int
}

type catalogFile struct {
	Provider string         `yaml:"provider"`
	Metrics  []Entry        `yaml:"metrics"`
	Appli    map[string]int `yaml:"appli"`
}

// Load parses the embedded catalog. Call once at startup.
func Load() (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(catalogYAML, &file); err != nil {
		return nil, fmt.Errorf("parsing metric catalog: %w", err)
	}

	if file.Provider == "" {
		return nil, fmt.Errorf("metric catalog missing provider name")
	}

	c := &Catalog{
		provider: file.Provider,
		entries:  file.Metrics,
		byKey:    make(map[string]*Entry, len(file.Metrics)),
		byType:   make(map[int]*Entry),
		appli:    file.Appli,
	}

	for i := range c.entries {
		e := &c.entries[i]
		if e.Key == "" {
			return nil, fmt.Errorf("metric catalog entry %d has no key", i)
		}

		if e.Factor == 0 {
			return nil, fmt.Errorf("metric %q has zero conversion factor", e.Key)
		}

		if _, dup := c.byKey[e.Key]; dup {
			return nil, fmt.Errorf("duplicate metric key %q in catalog", e.Key)
		}

		c.byKey[e.Key] = e

		if e.MeasureType != 0 {
			if _, dup := c.byType[e.MeasureType]; dup {
				return nil, fmt.Errorf("duplicate measure type %d in catalog", e.MeasureType)
			}

			c.byType[e.MeasureType] = e
		}
	}

	return c, nil
}

// Provider returns the fixed identifier of the data source.
func (c *Catalog) Provider() string { return c.provider }

// Keys returns all canonical metric keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.entries))
	for i := range c.entries {
		keys[i] = c.entries[i].Key
	}

	return keys
}

// ByKey returns the entry for a canonical key.
func (c *Catalog) ByKey(key string) (*Entry, bool) {
	e, ok := c.byKey[key]
	return e, ok
}

// ByMeasureType returns the entry for a provider measure type code.
// Unknown codes return false; callers skip those measurements so
// provider-side additions do not break fetches.
func (c *Catalog) ByMeasureType(code int) (*Entry, bool) {
	e, ok := c.byType[code]
	return e, ok
}

// ScopesFor resolves the OAuth scopes required to read the given
// canonical keys. Unknown keys are ignored; an empty result means none
// of the keys are served by this provider.
func (c *Catalog) ScopesFor(keys []string) []string {
	seen := make(map[string]struct{})

	var scopes []string

	for _, k := range keys {
		e, ok := c.byKey[k]
		if !ok || e.Scope == "" {
			continue
		}

		if _, dup := seen[e.Scope]; dup {
			continue
		}

		seen[e.Scope] = struct{}{}
		scopes = append(scopes, e.Scope)
	}

	return scopes
}

// CategoriesFor resolves the fetch categories covering the given keys,
// in catalog order.
func (c *Catalog) CategoriesFor(keys []string) []string {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	seen := make(map[string]struct{})

	var categories []string

	for i := range c.entries {
		e := &c.entries[i]
		if _, requested := want[e.Key]; !requested {
			continue
		}

		if _, dup := seen[e.Category]; dup {
			continue
		}

		seen[e.Category] = struct{}{}
		categories = append(categories, e.Category)
	}

	return categories
}

// AppliFor returns the webhook appli code for a fetch category.
func (c *Catalog) AppliFor(category string) (int, bool) {
	code, ok := c.appli[category]
	return code, ok
}

// MeasureTypesFor returns the measure type codes for the requested keys
// in the given category, used to build the meastypes request parameter.
func (c *Catalog) MeasureTypesFor(keys []string, category string) []int {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	var types []int

	for i := range c.entries {
		e := &c.entries[i]
		if e.Category != category || e.MeasureType == 0 {
			continue
		}

		if _, requested := want[e.Key]; !requested {
			continue
		}

		types = append(types, e.MeasureType)
	}

	return types
}
