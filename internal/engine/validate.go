package engine

import (
	"context"
	"fmt"

	"bomcore/internal/graph"
	"bomcore/pkg/domain"
)

// ValidateAssembly checks one assembly against its type's business limits
// and returns the violations as a structured result. Violating a limit is a
// finding, not an error; the error return covers lookup failures only.
func (s *Service) ValidateAssembly(ctx context.Context, assemblyID string) (domain.Result, error) {
	var result domain.Result
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		assembly, ok := view.FindAssembly(assemblyID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
		}
		rule := s.rules.Rule(assembly.Type)
		count := len(view.EdgesOwnedBy(assemblyID, false))
		if count < rule.MinComponents {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "assembly_structure",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s has %d components, type %s requires at least %d", assembly.Name, count, assembly.Type, rule.MinComponents),
				Entity:   domain.EntityAssembly,
				EntityID: assemblyID,
			})
		}
		if count > rule.MaxComponents {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "assembly_structure",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s has %d components, type %s allows at most %d", assembly.Name, count, assembly.Type, rule.MaxComponents),
				Entity:   domain.EntityAssembly,
				EntityID: assemblyID,
			})
		}

		cost, err := computeTotalCost(view, s.rules, assemblyID)
		if err != nil {
			return err
		}
		if rule.MinTotalCost != nil && cost.LessThan(*rule.MinTotalCost) {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "assembly_cost_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s totals %s, type %s requires at least %s", assembly.Name, cost, assembly.Type, rule.MinTotalCost),
				Entity:   domain.EntityAssembly,
				EntityID: assemblyID,
			})
		}
		if rule.MaxTotalCost != nil && cost.GreaterThan(*rule.MaxTotalCost) {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "assembly_cost_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s totals %s, type %s allows at most %s", assembly.Name, cost, assembly.Type, rule.MaxTotalCost),
				Entity:   domain.EntityAssembly,
				EntityID: assemblyID,
			})
		}
		return nil
	})
	return result, err
}

// AuditIntegrity runs the default commit-time rule set over committed state
// plus a structural sweep for out-of-band corruption: dangling edge
// endpoints, malformed references, cycles. Findings are reported as
// violations, never as an error.
func (s *Service) AuditIntegrity(ctx context.Context) (domain.Result, error) {
	var result domain.Result
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		res, err := NewDefaultRulesEngine(s.rules).Evaluate(ctx, view, nil)
		if err != nil {
			return err
		}
		result = res

		for _, assembly := range view.ListAssemblies() {
			if cycle := graph.DetectCycle(view, assembly.ID); cycle != nil {
				ierr := domain.IntegrityViolationError{
					Entity:  domain.EntityAssembly,
					ID:      assembly.ID,
					Message: fmt.Sprintf("participates in composition cycle %v", cycle),
				}
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "integrity_audit",
					Severity: domain.SeverityBlock,
					Message:  ierr.Error(),
					Entity:   domain.EntityAssembly,
					EntityID: assembly.ID,
				})
				break
			}
		}
		return nil
	})
	return result, err
}
