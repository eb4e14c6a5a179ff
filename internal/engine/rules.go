package engine

import (
	"context"
	"fmt"

	"bomcore/internal/policy"
	"bomcore/pkg/domain"
)

// NewDefaultRulesEngine returns the rules engine evaluated inside every
// transaction. Edge integrity and acyclicity block the commit; the per-type
// structure and cost bounds only warn, so callers can stage a composition
// and rely on ValidateAssembly for the strict report.
func NewDefaultRulesEngine(table policy.Table) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(edgeIntegrityRule{})
	engine.Register(acyclicCompositionRule{})
	engine.Register(assemblyStructureRule{table: table})
	engine.Register(assemblyCostBoundsRule{table: table})
	return engine
}

type edgeIntegrityRule struct{}

func (edgeIntegrityRule) Name() string { return "edge_integrity" }

func (edgeIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := map[string]string{}
	for _, edge := range view.ListEdges() {
		if err := edge.Component.Validate(); err != nil {
			res.Violations = append(res.Violations, violation("edge_integrity", edge.ID, err.Error()))
			continue
		}
		if edge.Quantity <= 0 {
			res.Violations = append(res.Violations, violation("edge_integrity", edge.ID, fmt.Sprintf("edge %s has non-positive quantity %d", edge.ID, edge.Quantity)))
		}
		if _, ok := view.FindAssembly(edge.AssemblyID); !ok {
			res.Violations = append(res.Violations, violation("edge_integrity", edge.ID, fmt.Sprintf("edge %s owner %s does not exist", edge.ID, edge.AssemblyID)))
		}
		exists := false
		if edge.Component.IsLeaf() {
			_, exists = view.FindLeafComponent(edge.Component.ID)
		} else {
			_, exists = view.FindAssembly(edge.Component.ID)
		}
		if !exists {
			res.Violations = append(res.Violations, violation("edge_integrity", edge.ID, fmt.Sprintf("edge %s component %s does not exist", edge.ID, edge.Component)))
		}
		pair := edge.AssemblyID + "|" + edge.Component.String()
		if other, dup := seen[pair]; dup {
			res.Violations = append(res.Violations, violation("edge_integrity", edge.ID, fmt.Sprintf("edges %s and %s duplicate pair %s", other, edge.ID, pair)))
		}
		seen[pair] = edge.ID
	}
	return res, nil
}

type acyclicCompositionRule struct{}

func (acyclicCompositionRule) Name() string { return "acyclic_composition" }

func (acyclicCompositionRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	children := map[string][]string{}
	for _, edge := range view.ListEdges() {
		if edge.Component.IsAssembly() {
			children[edge.AssemblyID] = append(children[edge.AssemblyID], edge.Component.ID)
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}
	var cyclic string
	var walk func(id string) bool
	walk = func(id string) bool {
		switch state[id] {
		case visiting:
			cyclic = id
			return true
		case done:
			return false
		}
		state[id] = visiting
		for _, child := range children[id] {
			if walk(child) {
				return true
			}
		}
		state[id] = done
		return false
	}

	res := domain.Result{}
	for id := range children {
		if state[id] != unvisited {
			continue
		}
		if walk(id) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "acyclic_composition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("assembly %s participates in a composition cycle", cyclic),
				Entity:   domain.EntityAssembly,
				EntityID: cyclic,
			})
			break
		}
	}
	return res, nil
}

type assemblyStructureRule struct {
	table policy.Table
}

func (assemblyStructureRule) Name() string { return "assembly_structure" }

func (r assemblyStructureRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, assembly := range view.ListAssemblies() {
		rule := r.table.Rule(assembly.Type)
		count := len(view.EdgesOwnedBy(assembly.ID, false))
		if count < rule.MinComponents || count > rule.MaxComponents {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "assembly_structure",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("assembly %s has %d components outside bounds [%d, %d] for type %s", assembly.Name, count, rule.MinComponents, rule.MaxComponents, assembly.Type),
				Entity:   domain.EntityAssembly,
				EntityID: assembly.ID,
			})
		}
	}
	return res, nil
}

type assemblyCostBoundsRule struct {
	table policy.Table
}

func (assemblyCostBoundsRule) Name() string { return "assembly_cost_bounds" }

func (r assemblyCostBoundsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, assembly := range view.ListAssemblies() {
		rule := r.table.Rule(assembly.Type)
		if rule.MinTotalCost == nil && rule.MaxTotalCost == nil {
			continue
		}
		cost, err := computeTotalCost(view, r.table, assembly.ID)
		if err != nil {
			// integrity problems are the other rules' findings
			continue
		}
		outOfBounds := (rule.MinTotalCost != nil && cost.LessThan(*rule.MinTotalCost)) ||
			(rule.MaxTotalCost != nil && cost.GreaterThan(*rule.MaxTotalCost))
		if outOfBounds {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "assembly_cost_bounds",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("assembly %s total cost %s is outside the bounds for type %s", assembly.Name, cost, assembly.Type),
				Entity:   domain.EntityAssembly,
				EntityID: assembly.ID,
			})
		}
	}
	return res, nil
}

func violation(rule, entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityCompositionEdge,
		EntityID: entityID,
	}
}
