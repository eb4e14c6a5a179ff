// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by bomcore.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityAssembly identifies a manufactured assembly record.
	EntityAssembly EntityType = "assembly"
	// EntityLeafComponent identifies a leaf component record.
	EntityLeafComponent EntityType = "leaf_component"
	// EntityCompositionEdge identifies a composition edge record.
	EntityCompositionEdge EntityType = "composition_edge"
)

// ComponentKind discriminates the two legs of a polymorphic component reference.
type ComponentKind string

// Component kinds recognised on composition edges.
const (
	// ComponentLeaf references a leaf component that cannot be decomposed further.
	ComponentLeaf ComponentKind = "leaf"
	// ComponentAssembly references another assembly as a sub-assembly.
	ComponentAssembly ComponentKind = "assembly"
)

// ComponentRef points at exactly one component, discriminated by Kind. The
// zero value is invalid, so an edge can never hold both or neither of the
// two possible references.
type ComponentRef struct {
	Kind ComponentKind `json:"kind"`
	ID   string        `json:"id"`
}

// LeafRef builds a reference to a leaf component.
func LeafRef(id string) ComponentRef {
	return ComponentRef{Kind: ComponentLeaf, ID: id}
}

// AssemblyRef builds a reference to a sub-assembly.
func AssemblyRef(id string) ComponentRef {
	return ComponentRef{Kind: ComponentAssembly, ID: id}
}

// IsLeaf reports whether the reference targets a leaf component.
func (r ComponentRef) IsLeaf() bool { return r.Kind == ComponentLeaf }

// IsAssembly reports whether the reference targets a sub-assembly.
func (r ComponentRef) IsAssembly() bool { return r.Kind == ComponentAssembly }

// Validate rejects references that are empty or carry an unknown kind.
func (r ComponentRef) Validate() error {
	switch r.Kind {
	case ComponentLeaf, ComponentAssembly:
	default:
		return ValidationError{Field: "component.kind", Message: fmt.Sprintf("unknown component kind %q", r.Kind)}
	}
	if r.ID == "" {
		return ValidationError{Field: "component.id", Message: "component id required"}
	}
	return nil
}

func (r ComponentRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// AssemblyType tags an assembly with the packaging policy it is produced and
// priced under.
type AssemblyType string

// Canonical assembly types; each maps to a policy table entry.
const (
	TypeGiftBox  AssemblyType = "gift_box"
	TypeHamper   AssemblyType = "hamper"
	TypeSampler  AssemblyType = "sampler"
	TypeBundle   AssemblyType = "bundle"
	TypeSeasonal AssemblyType = "seasonal"
)

// AssemblyTypes returns the closed enumeration in declaration order.
func AssemblyTypes() []AssemblyType {
	return []AssemblyType{TypeGiftBox, TypeHamper, TypeSampler, TypeBundle, TypeSeasonal}
}

// Valid reports whether t is one of the canonical assembly types.
func (t AssemblyType) Valid() bool {
	for _, known := range AssemblyTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeafComponent is an item that cannot be decomposed further by this core.
// Cost and on-hand inventory are owned by the inventory collaborator; the
// composition layers only read them and request deltas.
type LeafComponent struct {
	Base
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	OnHand   int             `json:"on_hand"`
}

// Assembly is a manufactured item defined by a recipe of leaf components and
// other assemblies. TotalCost is a cached roll-up projection, not a source of
// truth: it is always derivable by replaying the roll-up over the current
// edge set.
type Assembly struct {
	Base
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description *string         `json:"description,omitempty"`
	Type        AssemblyType    `json:"type"`
	OnHand      int             `json:"on_hand"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// CompositionEdge is a directed, quantified relationship from an owning
// assembly to one direct component. Quantity is how many of the component one
// unit of the owner consumes. Position orders siblings under one parent.
type CompositionEdge struct {
	Base
	AssemblyID string       `json:"assembly_id"`
	Component  ComponentRef `json:"component"`
	Quantity   int          `json:"quantity"`
	Note       *string      `json:"note,omitempty"`
	Position   int          `json:"position"`
}

// Requirement is one row of a flattened subtree: a leaf and the total
// quantity required across every path from the root.
type Requirement struct {
	Component ComponentRef `json:"component"`
	Quantity  int          `json:"quantity"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
