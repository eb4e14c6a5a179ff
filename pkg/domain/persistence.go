package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Operations invoked with an open
// Transaction join it; there is no nested begin.
type Transaction interface {
	Snapshot() TransactionView
	CreateAssembly(Assembly) (Assembly, error)
	UpdateAssembly(id string, mutator func(*Assembly) error) (Assembly, error)
	DeleteAssembly(id string) error
	CreateLeafComponent(LeafComponent) (LeafComponent, error)
	UpdateLeafComponent(id string, mutator func(*LeafComponent) error) (LeafComponent, error)
	DeleteLeafComponent(id string) error
	CreateEdge(CompositionEdge) (CompositionEdge, error)
	UpdateEdge(id string, mutator func(*CompositionEdge) error) (CompositionEdge, error)
	DeleteEdge(id string) error
	FindAssembly(id string) (Assembly, bool)
	FindAssemblyBySlug(slug string) (Assembly, bool)
	FindLeafComponent(id string) (LeafComponent, bool)
	FindEdge(id string) (CompositionEdge, bool)
}

// TransactionView provides read-only access to a consistent snapshot of the
// transactional state.
type TransactionView interface {
	ListAssemblies() []Assembly
	ListLeafComponents() []LeafComponent
	ListEdges() []CompositionEdge
	FindAssembly(id string) (Assembly, bool)
	FindAssemblyBySlug(slug string) (Assembly, bool)
	FindLeafComponent(id string) (LeafComponent, bool)
	FindEdge(id string) (CompositionEdge, bool)
	// EdgesOwnedBy returns the direct child edges of an assembly; the ordered
	// form sorts by position, the unordered form carries no guarantee.
	EdgesOwnedBy(assemblyID string, ordered bool) []CompositionEdge
	// EdgesReferencing is the reverse lookup: every edge whose component
	// reference equals ref. Used for delete-safety checks and cost-change
	// propagation.
	EdgesReferencing(ref ComponentRef) []CompositionEdge
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetAssembly(id string) (Assembly, bool)
	GetAssemblyBySlug(slug string) (Assembly, bool)
	GetLeafComponent(id string) (LeafComponent, bool)
	GetEdge(id string) (CompositionEdge, bool)
	ListAssemblies() []Assembly
	ListLeafComponents() []LeafComponent
	ListEdges() []CompositionEdge
}
