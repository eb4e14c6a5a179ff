package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"bomcore/internal/policy"
	"bomcore/pkg/domain"
)

// costView is the read surface the roll-up needs. Both the transaction view
// and the rule view satisfy it.
type costView interface {
	FindAssembly(id string) (domain.Assembly, bool)
	FindLeafComponent(id string) (domain.LeafComponent, bool)
	EdgesOwnedBy(assemblyID string, ordered bool) []domain.CompositionEdge
}

// computeTotalCost rolls up the cost of one assembly: the sum over direct
// children of quantity times the child's cost (leaf unit cost, or the
// child assembly's own rolled-up total), multiplied by one plus the markup
// for the assembly's type. Nested assemblies therefore compound markup once
// per level.
func computeTotalCost(view costView, rules policy.Table, assemblyID string) (decimal.Decimal, error) {
	return computeCostFrom(view, rules, assemblyID, map[string]bool{})
}

func computeCostFrom(view costView, rules policy.Table, assemblyID string, onPath map[string]bool) (decimal.Decimal, error) {
	if onPath[assemblyID] {
		return decimal.Zero, domain.CircularReferenceError{Path: []string{assemblyID, assemblyID}}
	}
	assembly, ok := view.FindAssembly(assemblyID)
	if !ok {
		return decimal.Zero, domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
	}
	onPath[assemblyID] = true
	defer delete(onPath, assemblyID)

	total := decimal.Zero
	for _, edge := range view.EdgesOwnedBy(assemblyID, true) {
		quantity := decimal.NewFromInt(int64(edge.Quantity))
		if edge.Component.IsLeaf() {
			leaf, ok := view.FindLeafComponent(edge.Component.ID)
			if !ok {
				return decimal.Zero, domain.NotFoundError{Entity: domain.EntityLeafComponent, ID: edge.Component.ID}
			}
			total = total.Add(leaf.UnitCost.Mul(quantity))
			continue
		}
		childCost, err := computeCostFrom(view, rules, edge.Component.ID, onPath)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(childCost.Mul(quantity))
	}

	markup := rules.Rule(assembly.Type).Markup
	return total.Mul(decimal.NewFromInt(1).Add(markup)), nil
}

// recomputeCosts refreshes the cached total of every assembly affected by a
// change at the given roots: each root plus every assembly that transitively
// contains it, found through the reverse-usage walk.
func recomputeCosts(tx domain.Transaction, rules policy.Table, roots ...string) error {
	view := tx.Snapshot()
	affected := map[string]bool{}
	queue := append([]string{}, roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if affected[id] {
			continue
		}
		if _, ok := view.FindAssembly(id); !ok {
			continue
		}
		affected[id] = true
		for _, usage := range view.EdgesReferencing(domain.AssemblyRef(id)) {
			queue = append(queue, usage.AssemblyID)
		}
	}
	for id := range affected {
		cost, err := computeTotalCost(view, rules, id)
		if err != nil {
			return err
		}
		if _, err := tx.UpdateAssembly(id, func(a *domain.Assembly) error {
			a.TotalCost = cost
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// leafCostRoots returns the assemblies that directly contain the leaf, the
// starting points for a recomputation after a unit-cost change.
func leafCostRoots(view domain.TransactionView, leafID string) []string {
	usages := view.EdgesReferencing(domain.LeafRef(leafID))
	roots := make([]string, 0, len(usages))
	for _, usage := range usages {
		roots = append(roots, usage.AssemblyID)
	}
	return roots
}

// TotalCost recomputes an assembly's rolled-up cost against current
// structure, writes it back to the cached field, and returns it.
func (s *Service) TotalCost(ctx context.Context, assemblyID string) (decimal.Decimal, domain.Result, error) {
	var cost decimal.Decimal
	res, err := s.run(ctx, "total_cost", &assemblyID, func(tx domain.Transaction) error {
		var err error
		cost, err = computeTotalCost(tx.Snapshot(), s.rules, assemblyID)
		if err != nil {
			return err
		}
		_, err = tx.UpdateAssembly(assemblyID, func(a *domain.Assembly) error {
			a.TotalCost = cost
			return nil
		})
		return err
	})
	return cost, res, err
}
