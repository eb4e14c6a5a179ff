package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"bomcore/internal/infra/persistence/memory"
	"bomcore/pkg/domain"
)

type fixture struct {
	store *memory.Store
}

func newFixture() *fixture {
	return &fixture{store: memory.NewStore(nil)}
}

func (f *fixture) run(t *testing.T, fn func(tx domain.Transaction) error) {
	t.Helper()
	if _, err := f.store.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func (f *fixture) assembly(t *testing.T, slug string) string {
	t.Helper()
	var id string
	f.run(t, func(tx domain.Transaction) error {
		created, err := tx.CreateAssembly(domain.Assembly{Name: slug, Slug: slug, Type: domain.TypeGiftBox})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return id
}

func (f *fixture) leaf(t *testing.T, name string) string {
	t.Helper()
	var id string
	f.run(t, func(tx domain.Transaction) error {
		created, err := tx.CreateLeafComponent(domain.LeafComponent{Name: name, UnitCost: decimal.NewFromInt(1)})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return id
}

func (f *fixture) edge(t *testing.T, owner string, component domain.ComponentRef, quantity int) domain.CompositionEdge {
	t.Helper()
	var edge domain.CompositionEdge
	f.run(t, func(tx domain.Transaction) error {
		created, err := CreateEdge(tx, EdgeSpec{AssemblyID: owner, Component: component, Quantity: quantity})
		if err != nil {
			return err
		}
		edge = created
		return nil
	})
	return edge
}

func TestCreateEdgeRejectsCycle(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	b := f.assembly(t, "b")
	c := f.assembly(t, "c")
	f.edge(t, a, domain.AssemblyRef(b), 1)
	f.edge(t, b, domain.AssemblyRef(c), 1)

	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := CreateEdge(tx, EdgeSpec{AssemblyID: c, Component: domain.AssemblyRef(a), Quantity: 1})
		return err
	})
	var cerr domain.CircularReferenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected circular reference error, got %v", err)
	}
	if len(cerr.Path) < 2 || cerr.Path[0] != c || cerr.Path[len(cerr.Path)-1] != c {
		t.Fatalf("cycle path should start and end at the owner: %v", cerr.Path)
	}
	if len(f.store.ListEdges()) != 2 {
		t.Fatalf("rejected edge mutated state")
	}
}

func TestCreateEdgeRejectsSelfReference(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := CreateEdge(tx, EdgeSpec{AssemblyID: a, Component: domain.AssemblyRef(a), Quantity: 1})
		return err
	})
	var cerr domain.CircularReferenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected circular reference error, got %v", err)
	}
}

func TestCreateEdgeAppendsPosition(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	first := f.leaf(t, "first")
	second := f.leaf(t, "second")
	e1 := f.edge(t, a, domain.LeafRef(first), 1)
	e2 := f.edge(t, a, domain.LeafRef(second), 1)
	if e1.Position != 0 || e2.Position != 1 {
		t.Fatalf("positions not appended: %d, %d", e1.Position, e2.Position)
	}
}

func TestDeleteEdgeIdempotent(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	l := f.leaf(t, "l")
	edge := f.edge(t, a, domain.LeafRef(l), 1)

	var removed bool
	f.run(t, func(tx domain.Transaction) error {
		var err error
		removed, err = DeleteEdge(tx, edge.ID)
		return err
	})
	if !removed {
		t.Fatalf("first delete should remove the edge")
	}
	f.run(t, func(tx domain.Transaction) error {
		var err error
		removed, err = DeleteEdge(tx, edge.ID)
		return err
	})
	if removed {
		t.Fatalf("second delete should be a no-op")
	}
}

func TestFlattenMultipliesAlongPath(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	b := f.assembly(t, "b")
	l := f.leaf(t, "l")
	f.edge(t, a, domain.AssemblyRef(b), 2)
	f.edge(t, b, domain.LeafRef(l), 3)

	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		requirements, err := Flatten(view, a)
		if err != nil {
			return err
		}
		if len(requirements) != 1 {
			t.Fatalf("expected one requirement, got %d", len(requirements))
		}
		if requirements[0].Component != domain.LeafRef(l) || requirements[0].Quantity != 6 {
			t.Fatalf("unexpected requirement %+v", requirements[0])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
}

func TestFlattenSumsDiamondReuse(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	b := f.assembly(t, "b")
	c := f.assembly(t, "c")
	l := f.leaf(t, "l")
	f.edge(t, a, domain.AssemblyRef(b), 1)
	f.edge(t, a, domain.AssemblyRef(c), 1)
	f.edge(t, b, domain.LeafRef(l), 2)
	f.edge(t, c, domain.LeafRef(l), 3)

	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		requirements, err := Flatten(view, a)
		if err != nil {
			return err
		}
		if len(requirements) != 1 || requirements[0].Quantity != 5 {
			t.Fatalf("diamond reuse must sum path products, got %+v", requirements)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
}

func TestFlattenUnknownAssembly(t *testing.T) {
	f := newFixture()
	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		_, err := Flatten(view, "missing")
		return err
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDetectCycleOnAcyclicGraph(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	b := f.assembly(t, "b")
	f.edge(t, a, domain.AssemblyRef(b), 1)

	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		if cycle := DetectCycle(view, a); cycle != nil {
			t.Fatalf("unexpected cycle %v", cycle)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestBulkCreateAllOrNothing(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	first := f.leaf(t, "first")
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := BulkCreate(tx, []EdgeSpec{
			{AssemblyID: a, Component: domain.LeafRef(first), Quantity: 1},
			{AssemblyID: a, Component: domain.LeafRef(first), Quantity: 2},
		})
		return err
	})
	var dup domain.DuplicateEdgeError
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate edge error, got %v", err)
	}
	if len(f.store.ListEdges()) != 0 {
		t.Fatalf("failed batch wrote edges")
	}
}

func TestBulkCreateDetectsBatchCycle(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	b := f.assembly(t, "b")
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := BulkCreate(tx, []EdgeSpec{
			{AssemblyID: a, Component: domain.AssemblyRef(b), Quantity: 1},
			{AssemblyID: b, Component: domain.AssemblyRef(a), Quantity: 1},
		})
		return err
	})
	var cerr domain.CircularReferenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected circular reference error, got %v", err)
	}
	if len(f.store.ListEdges()) != 0 {
		t.Fatalf("cyclic batch wrote edges")
	}
}

func TestBulkCreateWritesValidBatch(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	first := f.leaf(t, "first")
	second := f.leaf(t, "second")
	f.run(t, func(tx domain.Transaction) error {
		created, err := BulkCreate(tx, []EdgeSpec{
			{AssemblyID: a, Component: domain.LeafRef(first), Quantity: 1},
			{AssemblyID: a, Component: domain.LeafRef(second), Quantity: 2},
		})
		if err != nil {
			return err
		}
		if len(created) != 2 {
			t.Fatalf("expected 2 edges, got %d", len(created))
		}
		if created[0].Position != 0 || created[1].Position != 1 {
			t.Fatalf("batch positions not sequential: %d, %d", created[0].Position, created[1].Position)
		}
		return nil
	})
}

func TestReorderChildrenRequiresExactSet(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	first := f.leaf(t, "first")
	second := f.leaf(t, "second")
	e1 := f.edge(t, a, domain.LeafRef(first), 1)
	e2 := f.edge(t, a, domain.LeafRef(second), 1)

	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return ReorderChildren(tx, a, []string{e1.ID})
	})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	f.run(t, func(tx domain.Transaction) error {
		return ReorderChildren(tx, a, []string{e2.ID, e1.ID})
	})
	err = f.store.View(context.Background(), func(view domain.TransactionView) error {
		children := ChildrenOf(view, a, true)
		if children[0].ID != e2.ID || children[1].ID != e1.ID {
			t.Fatalf("reorder not applied: %v", []string{children[0].ID, children[1].ID})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCopySubtreeValidatesAgainstTarget(t *testing.T) {
	f := newFixture()
	source := f.assembly(t, "source")
	target := f.assembly(t, "target")
	l := f.leaf(t, "l")
	f.edge(t, source, domain.LeafRef(l), 4)

	f.run(t, func(tx domain.Transaction) error {
		return CopySubtree(tx, source, target)
	})
	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		children := ChildrenOf(view, target, true)
		if len(children) != 1 || children[0].Quantity != 4 {
			t.Fatalf("copy missed edges: %+v", children)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	// copying a parent's children onto one of those children closes a cycle
	outer := f.assembly(t, "outer")
	f.edge(t, outer, domain.AssemblyRef(source), 1)
	_, err = f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return CopySubtree(tx, outer, source)
	})
	var cerr domain.CircularReferenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected copy rejection, got %v", err)
	}
}

func TestUsagesOfReverseLookup(t *testing.T) {
	f := newFixture()
	a := f.assembly(t, "a")
	b := f.assembly(t, "b")
	l := f.leaf(t, "l")
	f.edge(t, a, domain.LeafRef(l), 1)
	f.edge(t, b, domain.LeafRef(l), 2)

	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		usages := UsagesOf(view, domain.LeafRef(l))
		if len(usages) != 2 {
			t.Fatalf("expected 2 usages, got %d", len(usages))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
