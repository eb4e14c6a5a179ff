package memory

import (
	"sort"
	"time"

	"bomcore/pkg/domain"
)

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListAssemblies returns all assemblies within the transaction snapshot.
func (v transactionView) ListAssemblies() []Assembly {
	out := make([]Assembly, 0, len(v.state.assemblies))
	for _, a := range v.state.assemblies {
		out = append(out, cloneAssembly(a))
	}
	return out
}

// ListLeafComponents returns all leaf components in the snapshot.
func (v transactionView) ListLeafComponents() []LeafComponent {
	out := make([]LeafComponent, 0, len(v.state.leaves))
	for _, l := range v.state.leaves {
		out = append(out, cloneLeaf(l))
	}
	return out
}

// ListEdges returns all composition edges in the snapshot.
func (v transactionView) ListEdges() []CompositionEdge {
	out := make([]CompositionEdge, 0, len(v.state.edges))
	for _, e := range v.state.edges {
		out = append(out, cloneEdge(e))
	}
	return out
}

// FindAssembly retrieves an assembly by ID from the snapshot.
func (v transactionView) FindAssembly(id string) (Assembly, bool) {
	a, ok := v.state.assemblies[id]
	if !ok {
		return Assembly{}, false
	}
	return cloneAssembly(a), true
}

// FindAssemblyBySlug retrieves an assembly by slug from the snapshot.
func (v transactionView) FindAssemblyBySlug(slug string) (Assembly, bool) {
	for _, a := range v.state.assemblies {
		if a.Slug == slug {
			return cloneAssembly(a), true
		}
	}
	return Assembly{}, false
}

// FindLeafComponent retrieves a leaf component by ID from the snapshot.
func (v transactionView) FindLeafComponent(id string) (LeafComponent, bool) {
	l, ok := v.state.leaves[id]
	if !ok {
		return LeafComponent{}, false
	}
	return cloneLeaf(l), true
}

// FindEdge retrieves a composition edge by ID from the snapshot.
func (v transactionView) FindEdge(id string) (CompositionEdge, bool) {
	e, ok := v.state.edges[id]
	if !ok {
		return CompositionEdge{}, false
	}
	return cloneEdge(e), true
}

// EdgesOwnedBy returns the direct child edges of an assembly, sorted by
// position when ordered is true.
func (v transactionView) EdgesOwnedBy(assemblyID string, ordered bool) []CompositionEdge {
	return edgesOwnedBy(v.state, assemblyID, ordered)
}

// EdgesReferencing returns every edge whose component reference equals ref.
func (v transactionView) EdgesReferencing(ref domain.ComponentRef) []CompositionEdge {
	return edgesReferencing(v.state, ref)
}

func edgesOwnedBy(state *memoryState, assemblyID string, ordered bool) []CompositionEdge {
	var out []CompositionEdge
	for _, e := range state.edges {
		if e.AssemblyID == assemblyID {
			out = append(out, cloneEdge(e))
		}
	}
	if ordered {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Position != out[j].Position {
				return out[i].Position < out[j].Position
			}
			return out[i].ID < out[j].ID
		})
	}
	return out
}

func edgesReferencing(state *memoryState, ref domain.ComponentRef) []CompositionEdge {
	var out []CompositionEdge
	for _, e := range state.edges {
		if e.Component == ref {
			out = append(out, cloneEdge(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
