// Package graph implements the composition graph operations over the domain
// persistence layer: edge lifecycle, reachability and cycle detection, and
// the multi-path flatten used for cost roll-up and inventory planning.
package graph

import (
	"sort"

	"bomcore/pkg/domain"
)

// EdgeSpec carries the caller-supplied fields for a new composition edge.
// Position is assigned by the graph; new edges append at the end of the
// owner's child order.
type EdgeSpec struct {
	AssemblyID string
	Component  domain.ComponentRef
	Quantity   int
	Note       *string
}

// UpdateEdgeSpec lists the mutable edge fields. Nil means leave unchanged;
// Note uses a double pointer so callers can clear it explicitly.
type UpdateEdgeSpec struct {
	Quantity *int
	Note     **string
}

// CreateEdge validates and stores a composition edge. Beyond the local store
// invariants it runs the reachability simulation: an edge whose component
// assembly can already reach the owner would close a cycle and is refused.
func CreateEdge(tx domain.Transaction, spec EdgeSpec) (domain.CompositionEdge, error) {
	view := tx.Snapshot()
	if err := spec.Component.Validate(); err != nil {
		return domain.CompositionEdge{}, err
	}
	if spec.Component.IsAssembly() {
		if path := reachPath(view, spec.Component.ID, spec.AssemblyID); path != nil {
			cycle := append([]string{spec.AssemblyID}, path...)
			return domain.CompositionEdge{}, domain.CircularReferenceError{Path: cycle}
		}
	}
	return tx.CreateEdge(domain.CompositionEdge{
		AssemblyID: spec.AssemblyID,
		Component:  spec.Component,
		Quantity:   spec.Quantity,
		Note:       spec.Note,
		Position:   nextPosition(view, spec.AssemblyID),
	})
}

// UpdateEdge applies the mutable fields of spec to an existing edge.
func UpdateEdge(tx domain.Transaction, id string, spec UpdateEdgeSpec) (domain.CompositionEdge, error) {
	return tx.UpdateEdge(id, func(e *domain.CompositionEdge) error {
		if spec.Quantity != nil {
			e.Quantity = *spec.Quantity
		}
		if spec.Note != nil {
			e.Note = *spec.Note
		}
		return nil
	})
}

// DeleteEdge removes an edge if present. Deleting an absent edge is not an
// error; the second result reports whether anything was removed.
func DeleteEdge(tx domain.Transaction, id string) (bool, error) {
	if _, ok := tx.FindEdge(id); !ok {
		return false, nil
	}
	if err := tx.DeleteEdge(id); err != nil {
		return false, err
	}
	return true, nil
}

// ChildrenOf returns the direct child edges of an assembly, ordered by
// position when requested.
func ChildrenOf(view domain.TransactionView, assemblyID string, ordered bool) []domain.CompositionEdge {
	return view.EdgesOwnedBy(assemblyID, ordered)
}

// UsagesOf returns every edge referencing the given component, i.e. the
// assemblies the component appears in directly.
func UsagesOf(view domain.TransactionView, ref domain.ComponentRef) []domain.CompositionEdge {
	return view.EdgesReferencing(ref)
}

// Flatten walks the subtree rooted at assemblyID depth-first and returns the
// total leaf requirements. Quantities multiply along each path and sum across
// paths, so a leaf reached through two sub-assemblies contributes both path
// products. Output is ordered by leaf id.
func Flatten(view domain.TransactionView, assemblyID string) ([]domain.Requirement, error) {
	if _, ok := view.FindAssembly(assemblyID); !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
	}
	totals := map[string]int{}
	onPath := map[string]bool{}
	if err := flattenInto(view, assemblyID, 1, totals, onPath); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	requirements := make([]domain.Requirement, 0, len(ids))
	for _, id := range ids {
		requirements = append(requirements, domain.Requirement{
			Component: domain.LeafRef(id),
			Quantity:  totals[id],
		})
	}
	return requirements, nil
}

func flattenInto(view domain.TransactionView, assemblyID string, multiplier int, totals map[string]int, onPath map[string]bool) error {
	if onPath[assemblyID] {
		return domain.CircularReferenceError{Path: []string{assemblyID, assemblyID}}
	}
	onPath[assemblyID] = true
	defer delete(onPath, assemblyID)

	for _, edge := range view.EdgesOwnedBy(assemblyID, true) {
		quantity := multiplier * edge.Quantity
		if edge.Component.IsLeaf() {
			totals[edge.Component.ID] += quantity
			continue
		}
		if err := flattenInto(view, edge.Component.ID, quantity, totals, onPath); err != nil {
			return err
		}
	}
	return nil
}

// DetectCycle walks the assembly edges reachable from startID and returns the
// first cycle found as a path ending in the repeated node, or nil when the
// subtree is acyclic.
func DetectCycle(view domain.TransactionView, startID string) []string {
	onPath := map[string]bool{}
	done := map[string]bool{}
	return detectFrom(view, startID, []string{}, onPath, done)
}

func detectFrom(view domain.TransactionView, id string, trail []string, onPath, done map[string]bool) []string {
	if onPath[id] {
		for i, node := range trail {
			if node == id {
				return append(append([]string{}, trail[i:]...), id)
			}
		}
		return append(append([]string{}, trail...), id)
	}
	if done[id] {
		return nil
	}
	onPath[id] = true
	trail = append(trail, id)
	for _, edge := range view.EdgesOwnedBy(id, false) {
		if !edge.Component.IsAssembly() {
			continue
		}
		if cycle := detectFrom(view, edge.Component.ID, trail, onPath, done); cycle != nil {
			return cycle
		}
	}
	delete(onPath, id)
	done[id] = true
	return nil
}

// BulkCreate validates every spec against the current state and the earlier
// specs in the same batch, then writes them all. A failure anywhere writes
// nothing.
func BulkCreate(tx domain.Transaction, specs []EdgeSpec) ([]domain.CompositionEdge, error) {
	view := tx.Snapshot()
	pending := make([]EdgeSpec, 0, len(specs))
	for _, spec := range specs {
		if err := validateBatchSpec(view, pending, spec); err != nil {
			return nil, err
		}
		pending = append(pending, spec)
	}

	positions := map[string]int{}
	created := make([]domain.CompositionEdge, 0, len(specs))
	for _, spec := range specs {
		position, ok := positions[spec.AssemblyID]
		if !ok {
			position = nextPosition(view, spec.AssemblyID)
		}
		positions[spec.AssemblyID] = position + 1
		edge, err := tx.CreateEdge(domain.CompositionEdge{
			AssemblyID: spec.AssemblyID,
			Component:  spec.Component,
			Quantity:   spec.Quantity,
			Note:       spec.Note,
			Position:   position,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, edge)
	}
	return created, nil
}

func validateBatchSpec(view domain.TransactionView, pending []EdgeSpec, spec EdgeSpec) error {
	if err := spec.Component.Validate(); err != nil {
		return err
	}
	if spec.Quantity <= 0 {
		return domain.ValidationError{Field: "quantity", Message: "quantity must be positive"}
	}
	if _, ok := view.FindAssembly(spec.AssemblyID); !ok {
		return domain.NotFoundError{Entity: domain.EntityAssembly, ID: spec.AssemblyID}
	}
	if !componentExists(view, spec.Component) {
		entity := domain.EntityLeafComponent
		if spec.Component.IsAssembly() {
			entity = domain.EntityAssembly
		}
		return domain.NotFoundError{Entity: entity, ID: spec.Component.ID}
	}
	for _, edge := range view.EdgesReferencing(spec.Component) {
		if edge.AssemblyID == spec.AssemblyID {
			return domain.DuplicateEdgeError{AssemblyID: spec.AssemblyID, Component: spec.Component, EdgeID: edge.ID}
		}
	}
	for _, earlier := range pending {
		if earlier.AssemblyID == spec.AssemblyID && earlier.Component == spec.Component {
			return domain.DuplicateEdgeError{AssemblyID: spec.AssemblyID, Component: spec.Component}
		}
	}
	if spec.Component.IsAssembly() {
		if path := batchReachPath(view, pending, spec.Component.ID, spec.AssemblyID); path != nil {
			return domain.CircularReferenceError{Path: append([]string{spec.AssemblyID}, path...)}
		}
	}
	return nil
}

// ReorderChildren rewrites the positions of an assembly's direct edges to
// match the given id order. The id list must be exactly the current child
// set.
func ReorderChildren(tx domain.Transaction, assemblyID string, edgeIDs []string) error {
	if _, ok := tx.FindAssembly(assemblyID); !ok {
		return domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
	}
	current := tx.Snapshot().EdgesOwnedBy(assemblyID, false)
	if len(edgeIDs) != len(current) {
		return domain.ValidationError{Field: "edge_ids", Message: "id list must cover every child edge exactly once"}
	}
	existing := make(map[string]bool, len(current))
	for _, edge := range current {
		existing[edge.ID] = true
	}
	seen := make(map[string]bool, len(edgeIDs))
	for _, id := range edgeIDs {
		if !existing[id] {
			return domain.ValidationError{Field: "edge_ids", Message: "edge " + id + " is not a child of the assembly"}
		}
		if seen[id] {
			return domain.ValidationError{Field: "edge_ids", Message: "edge " + id + " listed twice"}
		}
		seen[id] = true
	}
	for index, id := range edgeIDs {
		position := index
		if _, err := tx.UpdateEdge(id, func(e *domain.CompositionEdge) error {
			e.Position = position
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// CopySubtree duplicates the source assembly's direct edges onto the target,
// re-running full create validation for each so duplicate pairs and cycles
// against the target are refused.
func CopySubtree(tx domain.Transaction, sourceID, targetID string) error {
	if _, ok := tx.FindAssembly(sourceID); !ok {
		return domain.NotFoundError{Entity: domain.EntityAssembly, ID: sourceID}
	}
	if _, ok := tx.FindAssembly(targetID); !ok {
		return domain.NotFoundError{Entity: domain.EntityAssembly, ID: targetID}
	}
	for _, edge := range tx.Snapshot().EdgesOwnedBy(sourceID, true) {
		var note *string
		if edge.Note != nil {
			copied := *edge.Note
			note = &copied
		}
		if _, err := CreateEdge(tx, EdgeSpec{
			AssemblyID: targetID,
			Component:  edge.Component,
			Quantity:   edge.Quantity,
			Note:       note,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Helpers --------------------------------------------------------------------

func componentExists(view domain.TransactionView, ref domain.ComponentRef) bool {
	if ref.IsLeaf() {
		_, ok := view.FindLeafComponent(ref.ID)
		return ok
	}
	_, ok := view.FindAssembly(ref.ID)
	return ok
}

func nextPosition(view domain.TransactionView, assemblyID string) int {
	next := 0
	for _, edge := range view.EdgesOwnedBy(assemblyID, false) {
		if edge.Position >= next {
			next = edge.Position + 1
		}
	}
	return next
}

// reachPath returns the assembly-id path from `from` to `to` following
// composition edges downward, or nil when `to` is unreachable. A trivial
// from==to query returns the single-node path.
func reachPath(view domain.TransactionView, from, to string) []string {
	return reachVia(func(id string) []string {
		var children []string
		for _, edge := range view.EdgesOwnedBy(id, false) {
			if edge.Component.IsAssembly() {
				children = append(children, edge.Component.ID)
			}
		}
		return children
	}, from, to)
}

// batchReachPath runs the same walk with the pending batch specs overlaid on
// the committed state.
func batchReachPath(view domain.TransactionView, pending []EdgeSpec, from, to string) []string {
	return reachVia(func(id string) []string {
		var children []string
		for _, edge := range view.EdgesOwnedBy(id, false) {
			if edge.Component.IsAssembly() {
				children = append(children, edge.Component.ID)
			}
		}
		for _, spec := range pending {
			if spec.AssemblyID == id && spec.Component.IsAssembly() {
				children = append(children, spec.Component.ID)
			}
		}
		return children
	}, from, to)
}

func reachVia(childrenOf func(id string) []string, from, to string) []string {
	if from == to {
		return []string{from}
	}
	visited := map[string]bool{from: true}
	type node struct {
		id   string
		path []string
	}
	queue := []node{{id: from, path: []string{from}}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf(current.id) {
			if visited[child] {
				continue
			}
			path := append(append([]string{}, current.path...), child)
			if child == to {
				return path
			}
			visited[child] = true
			queue = append(queue, node{id: child, path: path})
		}
	}
	return nil
}
