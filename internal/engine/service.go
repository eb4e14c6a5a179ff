// Package engine exposes the transactional assembly operations: composition
// editing, cost roll-up, availability checks and the assemble/disassemble
// inventory transactions. Every operation runs inside a single store
// transaction, so multi-step edits commit or roll back as a unit.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bomcore/internal/graph"
	"bomcore/internal/infra/persistence/memory"
	"bomcore/internal/policy"
	"bomcore/pkg/domain"
)

// Service exposes higher-level transactional operations over the assembly
// composition graph.
type Service struct {
	store   domain.PersistentStore
	rules   policy.Table
	logger  Logger
	metrics MetricsRecorder
	audit   AuditRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger installs a structured logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics sink observed once per operation.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithAuditRecorder installs an audit sink receiving one entry per operation.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(s *Service) {
		if audit != nil {
			s.audit = audit
		}
	}
}

// WithPolicyTable replaces the default per-type business rule table.
func WithPolicyTable(table policy.Table) Option {
	return func(s *Service) {
		if table != nil {
			s.rules = table
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		rules:   policy.DefaultTable(),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		audit:   noopAuditRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service backed by a fresh in-memory store
// running the default commit-time rules.
func NewInMemoryService(opts ...Option) *Service {
	s := NewService(nil, opts...)
	s.store = memory.NewStore(NewDefaultRulesEngine(s.rules))
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// PolicyTable returns the active per-type rule table.
func (s *Service) PolicyTable() policy.Table {
	return s.rules
}

// run wraps one store transaction with operation instrumentation.
func (s *Service) run(ctx context.Context, operation string, entityID *string, fn func(tx domain.Transaction) error) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	id := ""
	if entityID != nil {
		id = *entityID
	}
	s.observe(ctx, operation, id, start, err)
	return res, err
}

// ComponentInput names one component to attach when creating or bulk-editing
// an assembly.
type ComponentInput struct {
	Component domain.ComponentRef
	Quantity  int
	Note      *string
}

// CreateAssemblyInput carries the caller-supplied fields for a new assembly.
type CreateAssemblyInput struct {
	Name        string
	Description *string
	Type        domain.AssemblyType
	OnHand      int
	Components  []ComponentInput
}

// CreateAssembly persists a new assembly, derives a unique slug from the
// name, and attaches the initial components inside the same transaction.
func (s *Service) CreateAssembly(ctx context.Context, input CreateAssemblyInput) (domain.Assembly, domain.Result, error) {
	var created domain.Assembly
	res, err := s.run(ctx, "create_assembly", &created.ID, func(tx domain.Transaction) error {
		slug, err := uniqueSlug(tx, input.Name, "")
		if err != nil {
			return err
		}
		created, err = tx.CreateAssembly(domain.Assembly{
			Name:        input.Name,
			Slug:        slug,
			Description: input.Description,
			Type:        input.Type,
			OnHand:      input.OnHand,
		})
		if err != nil {
			return err
		}
		for _, component := range input.Components {
			if _, err := s.addComponentTx(tx, created.ID, component); err != nil {
				return err
			}
		}
		if err := recomputeCosts(tx, s.rules, created.ID); err != nil {
			return err
		}
		refreshed, ok := tx.FindAssembly(created.ID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityAssembly, ID: created.ID}
		}
		created = refreshed
		return nil
	})
	return created, res, err
}

// UpdateAssemblyInput lists the mutable assembly fields. Nil leaves a field
// unchanged; Description uses a double pointer so it can be cleared.
type UpdateAssemblyInput struct {
	Name        *string
	Description **string
	Type        *domain.AssemblyType
}

// UpdateAssembly applies the given field updates. The slug is stable across
// renames; a type change re-runs the cost roll-up since markup differs per
// type.
func (s *Service) UpdateAssembly(ctx context.Context, id string, input UpdateAssemblyInput) (domain.Assembly, domain.Result, error) {
	var updated domain.Assembly
	res, err := s.run(ctx, "update_assembly", &id, func(tx domain.Transaction) error {
		typeChanged := false
		var err error
		updated, err = tx.UpdateAssembly(id, func(a *domain.Assembly) error {
			if input.Name != nil {
				a.Name = *input.Name
			}
			if input.Description != nil {
				a.Description = *input.Description
			}
			if input.Type != nil && *input.Type != a.Type {
				a.Type = *input.Type
				typeChanged = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if typeChanged {
			if err := recomputeCosts(tx, s.rules, id); err != nil {
				return err
			}
			refreshed, ok := tx.FindAssembly(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityAssembly, ID: id}
			}
			updated = refreshed
		}
		return nil
	})
	return updated, res, err
}

// DeleteAssembly removes an assembly. The store refuses the delete while
// other assemblies reference it and cascade-deletes its own edges.
func (s *Service) DeleteAssembly(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, "delete_assembly", &id, func(tx domain.Transaction) error {
		return tx.DeleteAssembly(id)
	})
}

// GetAssembly returns a committed assembly by id.
func (s *Service) GetAssembly(_ context.Context, id string) (domain.Assembly, error) {
	assembly, ok := s.store.GetAssembly(id)
	if !ok {
		return domain.Assembly{}, domain.NotFoundError{Entity: domain.EntityAssembly, ID: id}
	}
	return assembly, nil
}

// GetAssemblyBySlug returns a committed assembly by slug.
func (s *Service) GetAssemblyBySlug(_ context.Context, slug string) (domain.Assembly, error) {
	assembly, ok := s.store.GetAssemblyBySlug(slug)
	if !ok {
		return domain.Assembly{}, domain.NotFoundError{Entity: domain.EntityAssembly, ID: slug}
	}
	return assembly, nil
}

// SearchAssemblies returns committed assemblies whose name or description
// contains the query, case-insensitively. An empty query matches nothing.
func (s *Service) SearchAssemblies(_ context.Context, query string) ([]domain.Assembly, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	var matches []domain.Assembly
	for _, assembly := range s.store.ListAssemblies() {
		if strings.Contains(strings.ToLower(assembly.Name), query) {
			matches = append(matches, assembly)
			continue
		}
		if assembly.Description != nil && strings.Contains(strings.ToLower(*assembly.Description), query) {
			matches = append(matches, assembly)
		}
	}
	return matches, nil
}

// AssembliesByType returns committed assemblies of the given type.
func (s *Service) AssembliesByType(_ context.Context, typ domain.AssemblyType) ([]domain.Assembly, error) {
	if !typ.Valid() {
		return nil, domain.ValidationError{Field: "type", Message: "unknown assembly type " + string(typ)}
	}
	var matches []domain.Assembly
	for _, assembly := range s.store.ListAssemblies() {
		if assembly.Type == typ {
			matches = append(matches, assembly)
		}
	}
	return matches, nil
}

// Components returns the ordered direct child edges of an assembly.
func (s *Service) Components(ctx context.Context, assemblyID string) ([]domain.CompositionEdge, error) {
	var edges []domain.CompositionEdge
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindAssembly(assemblyID); !ok {
			return domain.NotFoundError{Entity: domain.EntityAssembly, ID: assemblyID}
		}
		edges = graph.ChildrenOf(view, assemblyID, true)
		return nil
	})
	return edges, err
}

// UsedIn returns the edges through which other assemblies reference the
// given component.
func (s *Service) UsedIn(ctx context.Context, ref domain.ComponentRef) ([]domain.CompositionEdge, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var edges []domain.CompositionEdge
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		edges = graph.UsagesOf(view, ref)
		return nil
	})
	return edges, err
}

// slugify reduces a name to its url-safe slug form.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// uniqueSlug derives a slug from name, suffixing -2, -3... until it is free.
// selfID excludes the assembly being renamed from the collision check.
func uniqueSlug(tx domain.Transaction, name, selfID string) (string, error) {
	base := slugify(name)
	if base == "" {
		return "", domain.ValidationError{Field: "name", Message: "name yields an empty slug"}
	}
	candidate := base
	for attempt := 2; ; attempt++ {
		existing, ok := tx.FindAssemblyBySlug(candidate)
		if !ok || existing.ID == selfID {
			return candidate, nil
		}
		if attempt > 10000 {
			return "", fmt.Errorf("no free slug for %q", name)
		}
		candidate = base + "-" + strconv.Itoa(attempt)
	}
}
