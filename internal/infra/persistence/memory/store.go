// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"bomcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Assembly aliases domain.Assembly for in-memory persistence operations.
	Assembly = domain.Assembly
	// LeafComponent aliases domain.LeafComponent.
	LeafComponent = domain.LeafComponent
	// CompositionEdge aliases domain.CompositionEdge.
	CompositionEdge = domain.CompositionEdge
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	assemblies map[string]Assembly
	leaves     map[string]LeafComponent
	edges      map[string]CompositionEdge
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Assemblies map[string]Assembly        `json:"assemblies"`
	Leaves     map[string]LeafComponent   `json:"leaves"`
	Edges      map[string]CompositionEdge `json:"edges"`
}

func newMemoryState() memoryState {
	return memoryState{
		assemblies: make(map[string]Assembly),
		leaves:     make(map[string]LeafComponent),
		edges:      make(map[string]CompositionEdge),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Assemblies: make(map[string]Assembly, len(state.assemblies)),
		Leaves:     make(map[string]LeafComponent, len(state.leaves)),
		Edges:      make(map[string]CompositionEdge, len(state.edges)),
	}
	for k, v := range state.assemblies {
		s.Assemblies[k] = cloneAssembly(v)
	}
	for k, v := range state.leaves {
		s.Leaves[k] = cloneLeaf(v)
	}
	for k, v := range state.edges {
		s.Edges[k] = cloneEdge(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Assemblies {
		state.assemblies[k] = cloneAssembly(v)
	}
	for k, v := range s.Leaves {
		state.leaves[k] = cloneLeaf(v)
	}
	for k, v := range s.Edges {
		state.edges[k] = cloneEdge(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots written by earlier revisions: missing
// buckets become empty maps, edges with dangling endpoints or malformed
// component references are dropped, and sibling positions are renumbered.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Assemblies == nil {
		snapshot.Assemblies = map[string]Assembly{}
	}
	if snapshot.Leaves == nil {
		snapshot.Leaves = map[string]LeafComponent{}
	}
	if snapshot.Edges == nil {
		snapshot.Edges = map[string]CompositionEdge{}
	}

	componentExists := func(ref domain.ComponentRef) bool {
		switch ref.Kind {
		case domain.ComponentLeaf:
			_, ok := snapshot.Leaves[ref.ID]
			return ok
		case domain.ComponentAssembly:
			_, ok := snapshot.Assemblies[ref.ID]
			return ok
		default:
			return false
		}
	}

	for id, edge := range snapshot.Edges {
		if edge.Component.Validate() != nil || !componentExists(edge.Component) {
			delete(snapshot.Edges, id)
			continue
		}
		if _, ok := snapshot.Assemblies[edge.AssemblyID]; !ok {
			delete(snapshot.Edges, id)
			continue
		}
		if edge.Quantity <= 0 {
			delete(snapshot.Edges, id)
		}
	}

	byOwner := make(map[string][]CompositionEdge)
	for _, edge := range snapshot.Edges {
		byOwner[edge.AssemblyID] = append(byOwner[edge.AssemblyID], edge)
	}
	for _, siblings := range byOwner {
		sort.Slice(siblings, func(i, j int) bool {
			if siblings[i].Position != siblings[j].Position {
				return siblings[i].Position < siblings[j].Position
			}
			return siblings[i].ID < siblings[j].ID
		})
		for pos, edge := range siblings {
			edge.Position = pos
			snapshot.Edges[edge.ID] = edge
		}
	}

	for id, assembly := range snapshot.Assemblies {
		if assembly.OnHand < 0 {
			assembly.OnHand = 0
			snapshot.Assemblies[id] = assembly
		}
	}
	for id, leaf := range snapshot.Leaves {
		if leaf.OnHand < 0 {
			leaf.OnHand = 0
			snapshot.Leaves[id] = leaf
		}
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.assemblies {
		cloned.assemblies[k] = cloneAssembly(v)
	}
	for k, v := range s.leaves {
		cloned.leaves[k] = cloneLeaf(v)
	}
	for k, v := range s.edges {
		cloned.edges[k] = cloneEdge(v)
	}
	return cloned
}

func cloneAssembly(a Assembly) Assembly {
	cp := a
	if a.Description != nil {
		d := *a.Description
		cp.Description = &d
	}
	return cp
}

func cloneLeaf(l LeafComponent) LeafComponent { return l }

func cloneEdge(e CompositionEdge) CompositionEdge {
	cp := e
	if e.Note != nil {
		n := *e.Note
		cp.Note = &n
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The clone is swapped in only when fn and every blocking rule succeed, so a
// failure anywhere leaves the committed state untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// Read helpers ---------------------------------------------------------------

// GetAssembly retrieves an assembly by ID from committed state.
func (s *Store) GetAssembly(id string) (Assembly, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.assemblies[id]
	if !ok {
		return Assembly{}, false
	}
	return cloneAssembly(a), true
}

// GetAssemblyBySlug retrieves an assembly by its unique slug.
func (s *Store) GetAssemblyBySlug(slug string) (Assembly, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.state.assemblies {
		if a.Slug == slug {
			return cloneAssembly(a), true
		}
	}
	return Assembly{}, false
}

// GetLeafComponent retrieves a leaf component by ID from committed state.
func (s *Store) GetLeafComponent(id string) (LeafComponent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.leaves[id]
	if !ok {
		return LeafComponent{}, false
	}
	return cloneLeaf(l), true
}

// GetEdge retrieves a composition edge by ID from committed state.
func (s *Store) GetEdge(id string) (CompositionEdge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.edges[id]
	if !ok {
		return CompositionEdge{}, false
	}
	return cloneEdge(e), true
}

// ListAssemblies returns all assemblies from committed state.
func (s *Store) ListAssemblies() []Assembly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Assembly, 0, len(s.state.assemblies))
	for _, a := range s.state.assemblies {
		out = append(out, cloneAssembly(a))
	}
	return out
}

// ListLeafComponents returns all leaf components from committed state.
func (s *Store) ListLeafComponents() []LeafComponent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LeafComponent, 0, len(s.state.leaves))
	for _, l := range s.state.leaves {
		out = append(out, cloneLeaf(l))
	}
	return out
}

// ListEdges returns all composition edges from committed state.
func (s *Store) ListEdges() []CompositionEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CompositionEdge, 0, len(s.state.edges))
	for _, e := range s.state.edges {
		out = append(out, cloneEdge(e))
	}
	return out
}
