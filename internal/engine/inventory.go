package engine

import (
	"context"

	"bomcore/internal/graph"
	"bomcore/pkg/domain"
)

// LeafRequirement is one row of an availability report.
type LeafRequirement struct {
	LeafID   string `json:"leaf_id"`
	Name     string `json:"name"`
	Required int    `json:"required"`
	OnHand   int    `json:"on_hand"`
}

// Availability reports whether an assembly can be built in the requested
// quantity from current leaf stock.
type Availability struct {
	AssemblyID   string            `json:"assembly_id"`
	Requested    int               `json:"requested"`
	Requirements []LeafRequirement `json:"requirements"`
	Shortages    []domain.Shortage `json:"shortages,omitempty"`
}

// Buildable reports whether every flattened leaf requirement is covered.
func (a Availability) Buildable() bool {
	return len(a.Shortages) == 0
}

// availabilityFor flattens the assembly, scales by quantity and compares
// against leaf stock.
func availabilityFor(view domain.TransactionView, assemblyID string, quantity int) (Availability, error) {
	if quantity <= 0 {
		return Availability{}, domain.ValidationError{Field: "quantity", Message: "quantity must be positive"}
	}
	requirements, err := graph.Flatten(view, assemblyID)
	if err != nil {
		return Availability{}, err
	}
	report := Availability{AssemblyID: assemblyID, Requested: quantity}
	for _, requirement := range requirements {
		leaf, ok := view.FindLeafComponent(requirement.Component.ID)
		if !ok {
			return Availability{}, domain.NotFoundError{Entity: domain.EntityLeafComponent, ID: requirement.Component.ID}
		}
		required := requirement.Quantity * quantity
		report.Requirements = append(report.Requirements, LeafRequirement{
			LeafID:   leaf.ID,
			Name:     leaf.Name,
			Required: required,
			OnHand:   leaf.OnHand,
		})
		if leaf.OnHand < required {
			report.Shortages = append(report.Shortages, domain.Shortage{
				Component: requirement.Component,
				Required:  required,
				Available: leaf.OnHand,
			})
		}
	}
	return report, nil
}

// CheckAvailability reports whether the assembly can be built n times from
// current committed stock, without mutating anything.
func (s *Service) CheckAvailability(ctx context.Context, assemblyID string, quantity int) (Availability, error) {
	var report Availability
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		report, err = availabilityFor(view, assemblyID, quantity)
		return err
	})
	return report, err
}

// Assemble consumes flattened leaf stock to build the assembly n times. When
// any single leaf is short the whole operation fails with the full shortage
// list and no inventory value changes.
func (s *Service) Assemble(ctx context.Context, assemblyID string, quantity int) (domain.Assembly, domain.Result, error) {
	var assembled domain.Assembly
	res, err := s.run(ctx, "assemble", &assemblyID, func(tx domain.Transaction) error {
		report, err := availabilityFor(tx.Snapshot(), assemblyID, quantity)
		if err != nil {
			return err
		}
		if !report.Buildable() {
			return domain.InsufficientInventoryError{
				AssemblyID: assemblyID,
				Requested:  quantity,
				Shortages:  report.Shortages,
			}
		}
		for _, requirement := range report.Requirements {
			required := requirement.Required
			if _, err := tx.UpdateLeafComponent(requirement.LeafID, func(l *domain.LeafComponent) error {
				l.OnHand -= required
				return nil
			}); err != nil {
				return err
			}
		}
		assembled, err = tx.UpdateAssembly(assemblyID, func(a *domain.Assembly) error {
			a.OnHand += quantity
			return nil
		})
		return err
	})
	return assembled, res, err
}

// Disassemble is the exact numeric inverse of Assemble: it returns every
// flattened leaf to stock and decrements the assembly's on-hand count.
func (s *Service) Disassemble(ctx context.Context, assemblyID string, quantity int) (domain.Assembly, domain.Result, error) {
	var disassembled domain.Assembly
	res, err := s.run(ctx, "disassemble", &assemblyID, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		if quantity <= 0 {
			return domain.ValidationError{Field: "quantity", Message: "quantity must be positive"}
		}
		assembly, ok := view.FindAssembly(assemblyID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
		}
		if assembly.OnHand < quantity {
			return domain.InsufficientInventoryError{
				AssemblyID: assemblyID,
				Requested:  quantity,
				Shortages: []domain.Shortage{{
					Component: domain.AssemblyRef(assemblyID),
					Required:  quantity,
					Available: assembly.OnHand,
				}},
			}
		}
		requirements, err := graph.Flatten(view, assemblyID)
		if err != nil {
			return err
		}
		for _, requirement := range requirements {
			returned := requirement.Quantity * quantity
			if _, err := tx.UpdateLeafComponent(requirement.Component.ID, func(l *domain.LeafComponent) error {
				l.OnHand += returned
				return nil
			}); err != nil {
				return err
			}
		}
		disassembled, err = tx.UpdateAssembly(assemblyID, func(a *domain.Assembly) error {
			a.OnHand -= quantity
			return nil
		})
		return err
	})
	return disassembled, res, err
}
