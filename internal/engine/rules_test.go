package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"bomcore/internal/policy"
	"bomcore/pkg/domain"
)

// fakeView is a hand-assembled rule view for exercising the commit-time
// defenses against states the layered guards would normally never produce.
type fakeView struct {
	assemblies []domain.Assembly
	leaves     []domain.LeafComponent
	edges      []domain.CompositionEdge
}

func (v fakeView) ListAssemblies() []domain.Assembly          { return v.assemblies }
func (v fakeView) ListLeafComponents() []domain.LeafComponent { return v.leaves }
func (v fakeView) ListEdges() []domain.CompositionEdge        { return v.edges }

func (v fakeView) FindAssembly(id string) (domain.Assembly, bool) {
	for _, a := range v.assemblies {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Assembly{}, false
}

func (v fakeView) FindAssemblyBySlug(slug string) (domain.Assembly, bool) {
	for _, a := range v.assemblies {
		if a.Slug == slug {
			return a, true
		}
	}
	return domain.Assembly{}, false
}

func (v fakeView) FindLeafComponent(id string) (domain.LeafComponent, bool) {
	for _, l := range v.leaves {
		if l.ID == id {
			return l, true
		}
	}
	return domain.LeafComponent{}, false
}

func (v fakeView) FindEdge(id string) (domain.CompositionEdge, bool) {
	for _, e := range v.edges {
		if e.ID == id {
			return e, true
		}
	}
	return domain.CompositionEdge{}, false
}

func (v fakeView) EdgesOwnedBy(assemblyID string, _ bool) []domain.CompositionEdge {
	var out []domain.CompositionEdge
	for _, e := range v.edges {
		if e.AssemblyID == assemblyID {
			out = append(out, e)
		}
	}
	return out
}

func (v fakeView) EdgesReferencing(ref domain.ComponentRef) []domain.CompositionEdge {
	var out []domain.CompositionEdge
	for _, e := range v.edges {
		if e.Component == ref {
			out = append(out, e)
		}
	}
	return out
}

func assemblyFixture(id, name string, typ domain.AssemblyType) domain.Assembly {
	a := domain.Assembly{Name: name, Slug: name, Type: typ}
	a.ID = id
	return a
}

func leafFixture(id, name, cost string) domain.LeafComponent {
	l := domain.LeafComponent{Name: name, UnitCost: decimal.RequireFromString(cost)}
	l.ID = id
	return l
}

func edgeFixture(id, owner string, component domain.ComponentRef, quantity int) domain.CompositionEdge {
	e := domain.CompositionEdge{AssemblyID: owner, Component: component, Quantity: quantity}
	e.ID = id
	return e
}

func TestEdgeIntegrityRuleBlocksDanglingEdges(t *testing.T) {
	engine := NewDefaultRulesEngine(policy.DefaultTable())
	view := fakeView{
		assemblies: []domain.Assembly{assemblyFixture("a1", "box", domain.TypeGiftBox)},
		edges: []domain.CompositionEdge{
			// Owner exists but the leaf endpoint does not.
			edgeFixture("e1", "a1", domain.LeafRef("ghost"), 1),
			// Owner itself is gone.
			edgeFixture("e2", "gone", domain.LeafRef("ghost"), 1),
		},
	}
	result, err := engine.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violations, got %+v", result.Violations)
	}
	integrity := violationsByRule(result)["edge_integrity"]
	if len(integrity) < 3 {
		t.Fatalf("expected findings for both dangling endpoints, got %+v", integrity)
	}
}

func TestEdgeIntegrityRuleFlagsDuplicatePairs(t *testing.T) {
	engine := NewDefaultRulesEngine(policy.DefaultTable())
	view := fakeView{
		assemblies: []domain.Assembly{assemblyFixture("a1", "box", domain.TypeGiftBox)},
		leaves:     []domain.LeafComponent{leafFixture("l1", "tea", "1.00")},
		edges: []domain.CompositionEdge{
			edgeFixture("e1", "a1", domain.LeafRef("l1"), 1),
			edgeFixture("e2", "a1", domain.LeafRef("l1"), 2),
		},
	}
	result, err := engine.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(violationsByRule(result)["edge_integrity"]) != 1 {
		t.Fatalf("expected one duplicate pair finding, got %+v", result.Violations)
	}
}

func TestAcyclicCompositionRuleDetectsCycle(t *testing.T) {
	engine := NewDefaultRulesEngine(policy.DefaultTable())
	view := fakeView{
		assemblies: []domain.Assembly{
			assemblyFixture("a1", "first", domain.TypeBundle),
			assemblyFixture("a2", "second", domain.TypeBundle),
		},
		edges: []domain.CompositionEdge{
			edgeFixture("e1", "a1", domain.AssemblyRef("a2"), 1),
			edgeFixture("e2", "a2", domain.AssemblyRef("a1"), 1),
		},
	}
	result, err := engine.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	cyclic := violationsByRule(result)["acyclic_composition"]
	if len(cyclic) != 1 {
		t.Fatalf("expected one cycle finding, got %+v", result.Violations)
	}
	if cyclic[0].Severity != domain.SeverityBlock || cyclic[0].Entity != domain.EntityAssembly {
		t.Fatalf("unexpected cycle violation: %+v", cyclic[0])
	}
}

func TestStructureAndCostRulesWarnOnly(t *testing.T) {
	engine := NewDefaultRulesEngine(policy.DefaultTable())
	view := fakeView{
		assemblies: []domain.Assembly{assemblyFixture("a1", "lonely", domain.TypeSampler)},
		leaves:     []domain.LeafComponent{leafFixture("l1", "soap", "200.00")},
		edges: []domain.CompositionEdge{
			// One component breaks the sampler minimum of four; 216.00
			// breaks the 80.00 ceiling.
			edgeFixture("e1", "a1", domain.LeafRef("l1"), 1),
		},
	}
	result, err := engine.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.HasBlocking() {
		t.Fatalf("structure and cost findings must not block commits: %+v", result.Violations)
	}
	byRule := violationsByRule(result)
	if len(byRule["assembly_structure"]) != 1 || len(byRule["assembly_cost_bounds"]) != 1 {
		t.Fatalf("expected one finding each, got %+v", result.Violations)
	}
}
