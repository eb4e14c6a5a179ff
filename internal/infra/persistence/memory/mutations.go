package memory

import (
	"bomcore/pkg/domain"
)

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindAssembly exposes assembly lookup within the transaction scope.
func (tx *transaction) FindAssembly(id string) (Assembly, bool) {
	a, ok := tx.state.assemblies[id]
	if !ok {
		return Assembly{}, false
	}
	return cloneAssembly(a), true
}

// FindAssemblyBySlug exposes slug lookup within the transaction scope.
func (tx *transaction) FindAssemblyBySlug(slug string) (Assembly, bool) {
	for _, a := range tx.state.assemblies {
		if a.Slug == slug {
			return cloneAssembly(a), true
		}
	}
	return Assembly{}, false
}

// FindLeafComponent exposes leaf lookup within the transaction scope.
func (tx *transaction) FindLeafComponent(id string) (LeafComponent, bool) {
	l, ok := tx.state.leaves[id]
	if !ok {
		return LeafComponent{}, false
	}
	return cloneLeaf(l), true
}

// FindEdge exposes edge lookup within the transaction scope.
func (tx *transaction) FindEdge(id string) (CompositionEdge, bool) {
	e, ok := tx.state.edges[id]
	if !ok {
		return CompositionEdge{}, false
	}
	return cloneEdge(e), true
}

func (tx *transaction) validateAssembly(a Assembly, selfID string) error {
	if a.Name == "" {
		return domain.ValidationError{Field: "name", Message: "assembly name required"}
	}
	if !a.Type.Valid() {
		return domain.ValidationError{Field: "type", Message: "unknown assembly type " + string(a.Type)}
	}
	if a.Slug == "" {
		return domain.ValidationError{Field: "slug", Message: "assembly slug required"}
	}
	if a.OnHand < 0 {
		return domain.ValidationError{Field: "on_hand", Message: "inventory count cannot be negative"}
	}
	for _, existing := range tx.state.assemblies {
		if existing.Slug == a.Slug && existing.ID != selfID {
			return domain.ValidationError{Field: "slug", Message: "slug " + a.Slug + " already in use"}
		}
	}
	return nil
}

// CreateAssembly stores a new assembly within the transaction.
func (tx *transaction) CreateAssembly(a Assembly) (Assembly, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assemblies[a.ID]; exists {
		return Assembly{}, domain.ValidationError{Field: "id", Message: "assembly " + a.ID + " already exists"}
	}
	if err := tx.validateAssembly(a, a.ID); err != nil {
		return Assembly{}, err
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.assemblies[a.ID] = cloneAssembly(a)
	tx.recordChange(Change{Entity: domain.EntityAssembly, Action: domain.ActionCreate, After: cloneAssembly(a)})
	return cloneAssembly(a), nil
}

// UpdateAssembly mutates an assembly using the provided mutator function.
func (tx *transaction) UpdateAssembly(id string, mutator func(*Assembly) error) (Assembly, error) {
	current, ok := tx.state.assemblies[id]
	if !ok {
		return Assembly{}, domain.NotFoundError{Entity: domain.EntityAssembly, ID: id}
	}
	before := cloneAssembly(current)
	if err := mutator(&current); err != nil {
		return Assembly{}, err
	}
	current.ID = id
	if err := tx.validateAssembly(current, id); err != nil {
		return Assembly{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.assemblies[id] = cloneAssembly(current)
	tx.recordChange(Change{Entity: domain.EntityAssembly, Action: domain.ActionUpdate, Before: before, After: cloneAssembly(current)})
	return cloneAssembly(current), nil
}

// DeleteAssembly removes an assembly. It is refused while other assemblies
// still reference it as a component; the assembly's own outgoing edges are
// cascade-deleted.
func (tx *transaction) DeleteAssembly(id string) error {
	current, ok := tx.state.assemblies[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAssembly, ID: id}
	}
	if usages := edgesReferencing(&tx.state, domain.AssemblyRef(id)); len(usages) > 0 {
		owners := make([]string, 0, len(usages))
		for _, e := range usages {
			owners = append(owners, e.AssemblyID)
		}
		return domain.DependencyInUseError{Entity: domain.EntityAssembly, ID: id, ReferencedBy: owners}
	}
	for _, edge := range edgesOwnedBy(&tx.state, id, true) {
		delete(tx.state.edges, edge.ID)
		tx.recordChange(Change{Entity: domain.EntityCompositionEdge, Action: domain.ActionDelete, Before: cloneEdge(edge)})
	}
	delete(tx.state.assemblies, id)
	tx.recordChange(Change{Entity: domain.EntityAssembly, Action: domain.ActionDelete, Before: cloneAssembly(current)})
	return nil
}

func validateLeaf(l LeafComponent) error {
	if l.Name == "" {
		return domain.ValidationError{Field: "name", Message: "leaf component name required"}
	}
	if l.OnHand < 0 {
		return domain.ValidationError{Field: "on_hand", Message: "inventory count cannot be negative"}
	}
	if l.UnitCost.IsNegative() {
		return domain.ValidationError{Field: "unit_cost", Message: "unit cost cannot be negative"}
	}
	return nil
}

// CreateLeafComponent stores a new leaf component.
func (tx *transaction) CreateLeafComponent(l LeafComponent) (LeafComponent, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.leaves[l.ID]; exists {
		return LeafComponent{}, domain.ValidationError{Field: "id", Message: "leaf component " + l.ID + " already exists"}
	}
	if err := validateLeaf(l); err != nil {
		return LeafComponent{}, err
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.leaves[l.ID] = cloneLeaf(l)
	tx.recordChange(Change{Entity: domain.EntityLeafComponent, Action: domain.ActionCreate, After: cloneLeaf(l)})
	return cloneLeaf(l), nil
}

// UpdateLeafComponent mutates an existing leaf component.
func (tx *transaction) UpdateLeafComponent(id string, mutator func(*LeafComponent) error) (LeafComponent, error) {
	current, ok := tx.state.leaves[id]
	if !ok {
		return LeafComponent{}, domain.NotFoundError{Entity: domain.EntityLeafComponent, ID: id}
	}
	before := cloneLeaf(current)
	if err := mutator(&current); err != nil {
		return LeafComponent{}, err
	}
	current.ID = id
	if err := validateLeaf(current); err != nil {
		return LeafComponent{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.leaves[id] = cloneLeaf(current)
	tx.recordChange(Change{Entity: domain.EntityLeafComponent, Action: domain.ActionUpdate, Before: before, After: cloneLeaf(current)})
	return cloneLeaf(current), nil
}

// DeleteLeafComponent removes a leaf component. Deleting a leaf while edges
// still reference it is a referential-integrity violation, never a cascade.
func (tx *transaction) DeleteLeafComponent(id string) error {
	current, ok := tx.state.leaves[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityLeafComponent, ID: id}
	}
	if usages := edgesReferencing(&tx.state, domain.LeafRef(id)); len(usages) > 0 {
		owners := make([]string, 0, len(usages))
		for _, e := range usages {
			owners = append(owners, e.AssemblyID)
		}
		return domain.DependencyInUseError{Entity: domain.EntityLeafComponent, ID: id, ReferencedBy: owners}
	}
	delete(tx.state.leaves, id)
	tx.recordChange(Change{Entity: domain.EntityLeafComponent, Action: domain.ActionDelete, Before: cloneLeaf(current)})
	return nil
}

func (tx *transaction) componentExists(ref domain.ComponentRef) bool {
	switch ref.Kind {
	case domain.ComponentLeaf:
		_, ok := tx.state.leaves[ref.ID]
		return ok
	case domain.ComponentAssembly:
		_, ok := tx.state.assemblies[ref.ID]
		return ok
	default:
		return false
	}
}

// CreateEdge stores a new composition edge. The store enforces the local
// invariants (well-formed reference, live endpoints, positive quantity, no
// duplicate pair, no self-reference); reachability cycle checks belong to the
// graph layer and the commit-time rules.
func (tx *transaction) CreateEdge(e CompositionEdge) (CompositionEdge, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.edges[e.ID]; exists {
		return CompositionEdge{}, domain.ValidationError{Field: "id", Message: "edge " + e.ID + " already exists"}
	}
	if err := e.Component.Validate(); err != nil {
		return CompositionEdge{}, err
	}
	if e.Quantity <= 0 {
		return CompositionEdge{}, domain.ValidationError{Field: "quantity", Message: "quantity must be positive"}
	}
	if _, ok := tx.state.assemblies[e.AssemblyID]; !ok {
		return CompositionEdge{}, domain.NotFoundError{Entity: domain.EntityAssembly, ID: e.AssemblyID}
	}
	if !tx.componentExists(e.Component) {
		entity := domain.EntityLeafComponent
		if e.Component.IsAssembly() {
			entity = domain.EntityAssembly
		}
		return CompositionEdge{}, domain.NotFoundError{Entity: entity, ID: e.Component.ID}
	}
	if e.Component == domain.AssemblyRef(e.AssemblyID) {
		return CompositionEdge{}, domain.CircularReferenceError{Path: []string{e.AssemblyID, e.AssemblyID}}
	}
	for _, existing := range tx.state.edges {
		if existing.AssemblyID == e.AssemblyID && existing.Component == e.Component {
			return CompositionEdge{}, domain.DuplicateEdgeError{AssemblyID: e.AssemblyID, Component: e.Component, EdgeID: existing.ID}
		}
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.edges[e.ID] = cloneEdge(e)
	tx.recordChange(Change{Entity: domain.EntityCompositionEdge, Action: domain.ActionCreate, After: cloneEdge(e)})
	return cloneEdge(e), nil
}

// UpdateEdge mutates an edge. The owner and component reference are
// immutable; mutations to them are discarded.
func (tx *transaction) UpdateEdge(id string, mutator func(*CompositionEdge) error) (CompositionEdge, error) {
	current, ok := tx.state.edges[id]
	if !ok {
		return CompositionEdge{}, domain.NotFoundError{Entity: domain.EntityCompositionEdge, ID: id}
	}
	before := cloneEdge(current)
	if err := mutator(&current); err != nil {
		return CompositionEdge{}, err
	}
	current.ID = id
	current.AssemblyID = before.AssemblyID
	current.Component = before.Component
	if current.Quantity <= 0 {
		return CompositionEdge{}, domain.ValidationError{Field: "quantity", Message: "quantity must be positive"}
	}
	current.UpdatedAt = tx.now
	tx.state.edges[id] = cloneEdge(current)
	tx.recordChange(Change{Entity: domain.EntityCompositionEdge, Action: domain.ActionUpdate, Before: before, After: cloneEdge(current)})
	return cloneEdge(current), nil
}

// DeleteEdge removes a composition edge from state.
func (tx *transaction) DeleteEdge(id string) error {
	current, ok := tx.state.edges[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCompositionEdge, ID: id}
	}
	delete(tx.state.edges, id)
	tx.recordChange(Change{Entity: domain.EntityCompositionEdge, Action: domain.ActionDelete, Before: cloneEdge(current)})
	return nil
}
