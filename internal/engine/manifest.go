package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bomcore/internal/graph"
	"bomcore/pkg/domain"
)

// ManifestLine is one flattened leaf requirement with its cost contribution
// for a single unit of the root assembly.
type ManifestLine struct {
	LeafID       string          `json:"leaf_id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ExtendedCost decimal.Decimal `json:"extended_cost"`
}

// ManifestLevel is one direct child of the root with its rolled-up per-unit
// cost. Assembly children carry their own markup-compounded total.
type ManifestLevel struct {
	EdgeID       string              `json:"edge_id"`
	Component    domain.ComponentRef `json:"component"`
	Name         string              `json:"name"`
	Quantity     int                 `json:"quantity"`
	UnitCost     decimal.Decimal     `json:"unit_cost"`
	ExtendedCost decimal.Decimal     `json:"extended_cost"`
}

// AssemblyManifest is the archival projection of one assembly: identity,
// direct composition with per-level costs, and the flattened leaf bill.
type AssemblyManifest struct {
	AssemblyID  string              `json:"assembly_id"`
	Slug        string              `json:"slug"`
	Name        string              `json:"name"`
	Type        domain.AssemblyType `json:"type"`
	TotalCost   decimal.Decimal     `json:"total_cost"`
	GeneratedAt time.Time           `json:"generated_at"`
	Levels      []ManifestLevel     `json:"levels"`
	Lines       []ManifestLine      `json:"lines"`
}

// Manifest materialises the archival projection of an assembly from the
// committed state. The cached TotalCost is ignored in favour of a fresh
// roll-up so the manifest never reflects a stale projection.
func (s *Service) Manifest(ctx context.Context, assemblyID string) (AssemblyManifest, error) {
	var manifest AssemblyManifest
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		assembly, ok := view.FindAssembly(assemblyID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
		}
		total, err := computeTotalCost(view, s.rules, assemblyID)
		if err != nil {
			return fmt.Errorf("roll up %s: %w", assemblyID, err)
		}
		manifest = AssemblyManifest{
			AssemblyID:  assembly.ID,
			Slug:        assembly.Slug,
			Name:        assembly.Name,
			Type:        assembly.Type,
			TotalCost:   total,
			GeneratedAt: time.Now().UTC(),
		}
		for _, edge := range view.EdgesOwnedBy(assemblyID, true) {
			level := ManifestLevel{
				EdgeID:    edge.ID,
				Component: edge.Component,
				Quantity:  edge.Quantity,
			}
			if edge.Component.IsLeaf() {
				leaf, ok := view.FindLeafComponent(edge.Component.ID)
				if !ok {
					return domain.NotFoundError{Entity: domain.EntityLeafComponent, ID: edge.Component.ID}
				}
				level.Name = leaf.Name
				level.UnitCost = leaf.UnitCost
			} else {
				child, ok := view.FindAssembly(edge.Component.ID)
				if !ok {
					return domain.NotFoundError{Entity: domain.EntityAssembly, ID: edge.Component.ID}
				}
				childCost, err := computeTotalCost(view, s.rules, edge.Component.ID)
				if err != nil {
					return fmt.Errorf("roll up %s: %w", edge.Component.ID, err)
				}
				level.Name = child.Name
				level.UnitCost = childCost
			}
			level.ExtendedCost = level.UnitCost.Mul(decimal.NewFromInt(int64(edge.Quantity)))
			manifest.Levels = append(manifest.Levels, level)
		}
		requirements, err := graph.Flatten(view, assemblyID)
		if err != nil {
			return fmt.Errorf("flatten %s: %w", assemblyID, err)
		}
		for _, req := range requirements {
			leaf, ok := view.FindLeafComponent(req.Component.ID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityLeafComponent, ID: req.Component.ID}
			}
			manifest.Lines = append(manifest.Lines, ManifestLine{
				LeafID:       leaf.ID,
				Name:         leaf.Name,
				SKU:          leaf.SKU,
				Quantity:     req.Quantity,
				UnitCost:     leaf.UnitCost,
				ExtendedCost: leaf.UnitCost.Mul(decimal.NewFromInt(int64(req.Quantity))),
			})
		}
		return nil
	})
	if err != nil {
		return AssemblyManifest{}, err
	}
	return manifest, nil
}
