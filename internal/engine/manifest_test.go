package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"bomcore/pkg/domain"
)

func TestManifestCarriesLevelsAndFlattenedLines(t *testing.T) {
	svc := newTestService(t)
	jam := mkLeaf(t, svc, "Jam", "1.00", 100)
	ribbon := mkLeaf(t, svc, "Ribbon", "0.50", 100)
	inner := mkAssembly(t, svc, "Inner Box", domain.TypeGiftBox,
		ComponentInput{Component: domain.LeafRef(jam.ID), Quantity: 4})
	outer := mkAssembly(t, svc, "Outer Box", domain.TypeGiftBox,
		ComponentInput{Component: domain.AssemblyRef(inner.ID), Quantity: 2},
		ComponentInput{Component: domain.LeafRef(ribbon.ID), Quantity: 1})

	manifest, err := svc.Manifest(context.Background(), outer.ID)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if manifest.AssemblyID != outer.ID || manifest.Slug != "outer-box" || manifest.Type != domain.TypeGiftBox {
		t.Fatalf("unexpected manifest header: %+v", manifest)
	}
	// 2 x 4.40 + 0.50 = 9.30, plus the outer 10% -> 10.23.
	if !manifest.TotalCost.Equal(decimal.RequireFromString("10.23")) {
		t.Fatalf("total cost %s, want 10.23", manifest.TotalCost)
	}

	if len(manifest.Levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(manifest.Levels))
	}
	first := manifest.Levels[0]
	if first.Component.ID != inner.ID || !first.UnitCost.Equal(decimal.RequireFromString("4.40")) {
		t.Fatalf("unexpected first level: %+v", first)
	}
	if !first.ExtendedCost.Equal(decimal.RequireFromString("8.80")) {
		t.Fatalf("first level extended cost %s, want 8.80", first.ExtendedCost)
	}

	if len(manifest.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(manifest.Lines))
	}
	byLeaf := map[string]ManifestLine{}
	for _, line := range manifest.Lines {
		byLeaf[line.LeafID] = line
	}
	if byLeaf[jam.ID].Quantity != 8 {
		t.Fatalf("jam quantity %d, want 8", byLeaf[jam.ID].Quantity)
	}
	if !byLeaf[jam.ID].ExtendedCost.Equal(decimal.RequireFromString("8.00")) {
		t.Fatalf("jam extended cost %s, want 8.00", byLeaf[jam.ID].ExtendedCost)
	}
	if byLeaf[ribbon.ID].Quantity != 1 {
		t.Fatalf("ribbon quantity %d, want 1", byLeaf[ribbon.ID].Quantity)
	}
}

func TestManifestUnknownAssembly(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Manifest(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown assembly")
	}
}
