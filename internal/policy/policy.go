// Package policy defines the per-assembly-type business rules: component
// count bounds, optional total-cost bounds, and the markup fraction applied
// during cost roll-up.
package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"bomcore/pkg/domain"
)

// TypeRule is the rule set for one assembly type. Cost bounds are optional;
// nil means unbounded on that side.
type TypeRule struct {
	MinComponents int              `json:"min_components"`
	MaxComponents int              `json:"max_components"`
	MinTotalCost  *decimal.Decimal `json:"min_total_cost,omitempty"`
	MaxTotalCost  *decimal.Decimal `json:"max_total_cost,omitempty"`
	Markup        decimal.Decimal  `json:"markup"`
}

// Table maps every assembly type to its rule set.
type Table map[domain.AssemblyType]TypeRule

// Rule returns the rule set for a type, falling back to a zero-markup
// unbounded rule for unknown types so lookups never panic.
func (t Table) Rule(typ domain.AssemblyType) TypeRule {
	if rule, ok := t[typ]; ok {
		return rule
	}
	return TypeRule{MaxComponents: noComponentCap}
}

const noComponentCap = 1 << 30

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// DefaultTable returns the built-in rule table. Override files replace
// entries wholesale per type.
func DefaultTable() Table {
	return Table{
		domain.TypeGiftBox: {
			MinComponents: 2,
			MaxComponents: 12,
			MaxTotalCost:  money("250.00"),
			Markup:        decimal.RequireFromString("0.10"),
		},
		domain.TypeHamper: {
			MinComponents: 3,
			MaxComponents: 25,
			MinTotalCost:  money("20.00"),
			Markup:        decimal.RequireFromString("0.15"),
		},
		domain.TypeSampler: {
			MinComponents: 4,
			MaxComponents: 8,
			MaxTotalCost:  money("80.00"),
			Markup:        decimal.RequireFromString("0.08"),
		},
		domain.TypeBundle: {
			MinComponents: 2,
			MaxComponents: 6,
			Markup:        decimal.RequireFromString("0.05"),
		},
		domain.TypeSeasonal: {
			MinComponents: 2,
			MaxComponents: 15,
			MinTotalCost:  money("10.00"),
			MaxTotalCost:  money("400.00"),
			Markup:        decimal.RequireFromString("0.12"),
		},
	}
}

type overrideFile struct {
	Version int                 `json:"version"`
	Rules   map[string]TypeRule `json:"rules"`
}

// Load reads a JSON override file and merges it over the default table.
// Unknown types and malformed rules are rejected rather than skipped.
func Load(path string) (Table, error) {
	// #nosec G304 -- override path comes from deployment configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy overrides: %w", err)
	}
	var overrides overrideFile
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse policy overrides: %w", err)
	}
	table := DefaultTable()
	for name, rule := range overrides.Rules {
		typ := domain.AssemblyType(name)
		if !typ.Valid() {
			return nil, fmt.Errorf("policy overrides: unknown assembly type %q", name)
		}
		if err := validateRule(typ, rule); err != nil {
			return nil, err
		}
		table[typ] = rule
	}
	return table, nil
}

func validateRule(typ domain.AssemblyType, rule TypeRule) error {
	if rule.MinComponents < 0 {
		return fmt.Errorf("policy overrides: %s: min_components must not be negative", typ)
	}
	if rule.MaxComponents < rule.MinComponents {
		return fmt.Errorf("policy overrides: %s: max_components below min_components", typ)
	}
	if rule.Markup.IsNegative() {
		return fmt.Errorf("policy overrides: %s: markup must not be negative", typ)
	}
	if rule.MinTotalCost != nil && rule.MaxTotalCost != nil && rule.MaxTotalCost.LessThan(*rule.MinTotalCost) {
		return fmt.Errorf("policy overrides: %s: max_total_cost below min_total_cost", typ)
	}
	return nil
}
