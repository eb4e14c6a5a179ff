package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"bomcore/pkg/domain"
)

// CreateLeafComponentInput carries the caller-supplied fields for a new
// leaf component.
type CreateLeafComponentInput struct {
	Name     string
	SKU      string
	UnitCost decimal.Decimal
	OnHand   int
}

// CreateLeafComponent registers a purchasable leaf in the catalog.
func (s *Service) CreateLeafComponent(ctx context.Context, input CreateLeafComponentInput) (domain.LeafComponent, domain.Result, error) {
	var created domain.LeafComponent
	res, err := s.run(ctx, "create_leaf_component", &created.ID, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateLeafComponent(domain.LeafComponent{
			Name:     input.Name,
			SKU:      input.SKU,
			UnitCost: input.UnitCost,
			OnHand:   input.OnHand,
		})
		return err
	})
	return created, res, err
}

// UpdateLeafComponentInput lists the mutable leaf fields; nil leaves a field
// unchanged.
type UpdateLeafComponentInput struct {
	Name     *string
	SKU      *string
	UnitCost *decimal.Decimal
}

// UpdateLeafComponent applies the given field updates. A unit-cost change
// re-runs the cost roll-up for every assembly that transitively contains the
// leaf.
func (s *Service) UpdateLeafComponent(ctx context.Context, id string, input UpdateLeafComponentInput) (domain.LeafComponent, domain.Result, error) {
	var updated domain.LeafComponent
	res, err := s.run(ctx, "update_leaf_component", &id, func(tx domain.Transaction) error {
		costChanged := false
		var err error
		updated, err = tx.UpdateLeafComponent(id, func(l *domain.LeafComponent) error {
			if input.Name != nil {
				l.Name = *input.Name
			}
			if input.SKU != nil {
				l.SKU = *input.SKU
			}
			if input.UnitCost != nil && !input.UnitCost.Equal(l.UnitCost) {
				l.UnitCost = *input.UnitCost
				costChanged = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if costChanged {
			roots := leafCostRoots(tx.Snapshot(), id)
			if len(roots) > 0 {
				return recomputeCosts(tx, s.rules, roots...)
			}
		}
		return nil
	})
	return updated, res, err
}

// DeleteLeafComponent removes a leaf from the catalog. The store refuses the
// delete while any assembly still references it.
func (s *Service) DeleteLeafComponent(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, "delete_leaf_component", &id, func(tx domain.Transaction) error {
		return tx.DeleteLeafComponent(id)
	})
}

// AdjustLeafInventory applies a signed stock delta to a leaf. The resulting
// on-hand count must not go negative.
func (s *Service) AdjustLeafInventory(ctx context.Context, id string, delta int) (domain.LeafComponent, domain.Result, error) {
	var adjusted domain.LeafComponent
	res, err := s.run(ctx, "adjust_leaf_inventory", &id, func(tx domain.Transaction) error {
		var err error
		adjusted, err = tx.UpdateLeafComponent(id, func(l *domain.LeafComponent) error {
			l.OnHand += delta
			return nil
		})
		return err
	})
	return adjusted, res, err
}

// GetLeafComponent returns a committed leaf by id.
func (s *Service) GetLeafComponent(_ context.Context, id string) (domain.LeafComponent, error) {
	leaf, ok := s.store.GetLeafComponent(id)
	if !ok {
		return domain.LeafComponent{}, domain.NotFoundError{Entity: domain.EntityLeafComponent, ID: id}
	}
	return leaf, nil
}

// ListLeafComponents returns the committed leaf catalog.
func (s *Service) ListLeafComponents(_ context.Context) []domain.LeafComponent {
	return s.store.ListLeafComponents()
}
