package engine

import (
	"context"
	"errors"
	"fmt"

	"bomcore/internal/graph"
	"bomcore/pkg/domain"
)

// addComponentTx attaches one component inside an open transaction and
// recomputes the affected costs. The acyclicity re-check surfaces assembly
// names in the cycle path, which the graph layer reports by id only.
func (s *Service) addComponentTx(tx domain.Transaction, assemblyID string, input ComponentInput) (domain.CompositionEdge, error) {
	edge, err := graph.CreateEdge(tx, graph.EdgeSpec{
		AssemblyID: assemblyID,
		Component:  input.Component,
		Quantity:   input.Quantity,
		Note:       input.Note,
	})
	if err != nil {
		var cerr domain.CircularReferenceError
		if errors.As(err, &cerr) {
			return domain.CompositionEdge{}, namedCycleError(tx.Snapshot(), cerr)
		}
		return domain.CompositionEdge{}, err
	}
	if err := recomputeCosts(tx, s.rules, assemblyID); err != nil {
		return domain.CompositionEdge{}, err
	}
	return edge, nil
}

// namedCycleError rewrites the id path of a cycle error as "name (id)" hops
// so callers can read the offending chain without extra lookups.
func namedCycleError(view domain.TransactionView, cerr domain.CircularReferenceError) domain.CircularReferenceError {
	named := make([]string, len(cerr.Path))
	for i, id := range cerr.Path {
		if assembly, ok := view.FindAssembly(id); ok {
			named[i] = fmt.Sprintf("%s (%s)", assembly.Name, id)
			continue
		}
		named[i] = id
	}
	return domain.CircularReferenceError{Path: named}
}

// AddComponent attaches a component to an assembly.
func (s *Service) AddComponent(ctx context.Context, assemblyID string, component domain.ComponentRef, quantity int, note *string) (domain.CompositionEdge, domain.Result, error) {
	var edge domain.CompositionEdge
	res, err := s.run(ctx, "add_component", &assemblyID, func(tx domain.Transaction) error {
		var err error
		edge, err = s.addComponentTx(tx, assemblyID, ComponentInput{Component: component, Quantity: quantity, Note: note})
		return err
	})
	return edge, res, err
}

// RemoveComponent detaches an edge from an assembly. Removing an edge that
// is already gone reports false without erroring.
func (s *Service) RemoveComponent(ctx context.Context, assemblyID, edgeID string) (bool, domain.Result, error) {
	removed := false
	res, err := s.run(ctx, "remove_component", &assemblyID, func(tx domain.Transaction) error {
		if _, ok := tx.FindAssembly(assemblyID); !ok {
			return domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
		}
		edge, ok := tx.FindEdge(edgeID)
		if !ok {
			return nil
		}
		if edge.AssemblyID != assemblyID {
			return domain.ValidationError{Field: "edge_id", Message: "edge " + edgeID + " does not belong to the assembly"}
		}
		var err error
		removed, err = graph.DeleteEdge(tx, edgeID)
		if err != nil {
			return err
		}
		return recomputeCosts(tx, s.rules, assemblyID)
	})
	return removed, res, err
}

// UpdateComponentQuantity changes the quantity carried by an edge, the
// sanctioned way to have "more of the same component".
func (s *Service) UpdateComponentQuantity(ctx context.Context, edgeID string, quantity int) (domain.CompositionEdge, domain.Result, error) {
	var edge domain.CompositionEdge
	res, err := s.run(ctx, "update_component_quantity", &edgeID, func(tx domain.Transaction) error {
		var err error
		edge, err = graph.UpdateEdge(tx, edgeID, graph.UpdateEdgeSpec{Quantity: &quantity})
		if err != nil {
			return err
		}
		return recomputeCosts(tx, s.rules, edge.AssemblyID)
	})
	return edge, res, err
}

// UpdateComponentNote sets or clears an edge's note.
func (s *Service) UpdateComponentNote(ctx context.Context, edgeID string, note *string) (domain.CompositionEdge, domain.Result, error) {
	var edge domain.CompositionEdge
	res, err := s.run(ctx, "update_component_note", &edgeID, func(tx domain.Transaction) error {
		var err error
		edge, err = graph.UpdateEdge(tx, edgeID, graph.UpdateEdgeSpec{Note: &note})
		return err
	})
	return edge, res, err
}

// ReorderComponents rewrites the display order of an assembly's direct
// edges. The id list must cover the current child set exactly.
func (s *Service) ReorderComponents(ctx context.Context, assemblyID string, edgeIDs []string) (domain.Result, error) {
	return s.run(ctx, "reorder_components", &assemblyID, func(tx domain.Transaction) error {
		return graph.ReorderChildren(tx, assemblyID, edgeIDs)
	})
}

// BulkAddComponents attaches several components in one transaction,
// validating the whole batch before writing anything.
func (s *Service) BulkAddComponents(ctx context.Context, assemblyID string, inputs []ComponentInput) ([]domain.CompositionEdge, domain.Result, error) {
	var edges []domain.CompositionEdge
	res, err := s.run(ctx, "bulk_add_components", &assemblyID, func(tx domain.Transaction) error {
		specs := make([]graph.EdgeSpec, 0, len(inputs))
		for _, input := range inputs {
			specs = append(specs, graph.EdgeSpec{
				AssemblyID: assemblyID,
				Component:  input.Component,
				Quantity:   input.Quantity,
				Note:       input.Note,
			})
		}
		var err error
		edges, err = graph.BulkCreate(tx, specs)
		if err != nil {
			var cerr domain.CircularReferenceError
			if errors.As(err, &cerr) {
				return namedCycleError(tx.Snapshot(), cerr)
			}
			return err
		}
		return recomputeCosts(tx, s.rules, assemblyID)
	})
	return edges, res, err
}

// CopyComponents duplicates the source assembly's direct composition onto
// the target, re-running full validation against the target.
func (s *Service) CopyComponents(ctx context.Context, sourceID, targetID string) (domain.Result, error) {
	return s.run(ctx, "copy_components", &targetID, func(tx domain.Transaction) error {
		if err := graph.CopySubtree(tx, sourceID, targetID); err != nil {
			var cerr domain.CircularReferenceError
			if errors.As(err, &cerr) {
				return namedCycleError(tx.Snapshot(), cerr)
			}
			return err
		}
		return recomputeCosts(tx, s.rules, targetID)
	})
}
