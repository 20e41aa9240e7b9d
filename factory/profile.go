/*
Package factory provides JSON to Go billing-profile conversion.

PURPOSE:
  Converts JSON billing-profile definitions into engine configuration.
  This enables profile changes without code changes - property managers
  can define allocation rules in JSON, and the factory creates the proper
  Go structs.

WHY JSON?
  - Non-developers can adjust buffer rates and allocation keys
  - Easy integration with admin UI
  - Version control for profile definitions
  - Database storage of profile configs

JSON SCHEMA:
  {
    "id": "profile-standard",
    "name": "Standard operating-cost profile",
    "buffer_rate": 0.10,
    "categories": [
      {"name": "heating",  "allocation_key": "area_occupancy"},
      {"name": "cleaning", "allocation_key": "occupancy"},
      {"name": "water",    "allocation_key": "consumption"}
    ]
  }

KEY FEATURES:
  - Validates JSON structure and allocation keys
  - Sets sensible defaults (10% buffer, occupancy key)
  - Maps cost categories to their allocation key at import time

USAGE:
  f := factory.NewProfileFactory()
  profile, err := f.ParseProfile(jsonString)

  key := profile.KeyFor("heating")   // area_occupancy
  engine := settlement.NewEngine(profile.Config)

SEE ALSO:
  - settlement/engine.go: Config consumed by the engine
  - api/handlers.go: Applies KeyFor when importing cost items
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hauskit/settlement-engine/settlement"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProfileJSON is the JSON representation of a billing profile.
type ProfileJSON struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	BufferRate *float64       `json:"buffer_rate,omitempty"` // Default 0.10
	Categories []CategoryJSON `json:"categories,omitempty"`
}

// CategoryJSON maps one cost category to its allocation key.
type CategoryJSON struct {
	Name          string `json:"name"`
	AllocationKey string `json:"allocation_key"` // area_occupancy, occupancy, consumption
}

// =============================================================================
// PROFILE
// =============================================================================

// Profile is a parsed billing profile.
type Profile struct {
	ID     string
	Name   string
	Config settlement.Config

	keys map[settlement.CostCategory]settlement.AllocationKey
}

// KeyFor returns the allocation key configured for a category.
// Unmapped categories default to plain occupancy.
func (p *Profile) KeyFor(category settlement.CostCategory) settlement.AllocationKey {
	if key, ok := p.keys[category]; ok {
		return key
	}
	return settlement.KeyOccupancy
}

// Categories returns the configured category names, in no particular order.
func (p *Profile) Categories() []settlement.CostCategory {
	categories := make([]settlement.CostCategory, 0, len(p.keys))
	for c := range p.keys {
		categories = append(categories, c)
	}
	return categories
}

// =============================================================================
// PROFILE FACTORY
// =============================================================================

// ProfileFactory converts JSON profiles to engine configuration.
type ProfileFactory struct{}

// NewProfileFactory creates a new profile factory.
func NewProfileFactory() *ProfileFactory {
	return &ProfileFactory{}
}

// ParseProfile parses a JSON profile definition.
func (f *ProfileFactory) ParseProfile(jsonStr string) (*Profile, error) {
	var pj ProfileJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("invalid profile JSON: %w", err)
	}

	if pj.ID == "" {
		return nil, fmt.Errorf("profile ID is required")
	}
	if pj.Name == "" {
		return nil, fmt.Errorf("profile name is required")
	}

	bufferRate := settlement.DefaultBufferRate
	if pj.BufferRate != nil {
		if *pj.BufferRate < 0 || *pj.BufferRate > 1 {
			return nil, fmt.Errorf("buffer_rate must be between 0 and 1, got %v", *pj.BufferRate)
		}
		bufferRate = decimal.NewFromFloat(*pj.BufferRate)
	}

	keys := make(map[settlement.CostCategory]settlement.AllocationKey, len(pj.Categories))
	for _, c := range pj.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category name is required")
		}
		key, err := parseAllocationKey(c.AllocationKey)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Name, err)
		}
		keys[settlement.CostCategory(c.Name)] = key
	}

	return &Profile{
		ID:     pj.ID,
		Name:   pj.Name,
		Config: settlement.Config{BufferRate: bufferRate},
		keys:   keys,
	}, nil
}

func parseAllocationKey(raw string) (settlement.AllocationKey, error) {
	switch settlement.AllocationKey(raw) {
	case settlement.KeyAreaOccupancy, settlement.KeyOccupancy, settlement.KeyConsumption:
		return settlement.AllocationKey(raw), nil
	case "":
		return settlement.KeyOccupancy, nil
	default:
		return "", fmt.Errorf("unknown allocation key %q", raw)
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardProfileJSON builds the default German-style operating-cost
// profile: heating by heated area, general costs by occupancy, water by
// metered consumption.
func StandardProfileJSON(id, name string, bufferRate float64) string {
	pj := ProfileJSON{
		ID:         id,
		Name:       name,
		BufferRate: &bufferRate,
		Categories: []CategoryJSON{
			{Name: "heating", AllocationKey: string(settlement.KeyAreaOccupancy)},
			{Name: "building_maintenance", AllocationKey: string(settlement.KeyAreaOccupancy)},
			{Name: "cleaning", AllocationKey: string(settlement.KeyOccupancy)},
			{Name: "garbage", AllocationKey: string(settlement.KeyOccupancy)},
			{Name: "water", AllocationKey: string(settlement.KeyConsumption)},
		},
	}
	data, _ := json.Marshal(pj)
	return string(data)
}
