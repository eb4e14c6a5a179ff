package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed input rejected before any write: empty
// names, non-positive quantities, unknown enum values.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a referenced assembly, edge, or leaf
// component does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// DuplicateEdgeError is returned when an edge for the same (assembly,
// component) pair already exists. Quantity changes go through edge updates,
// never a second edge.
type DuplicateEdgeError struct {
	AssemblyID string
	Component  ComponentRef
	EdgeID     string
}

func (e DuplicateEdgeError) Error() string {
	return fmt.Sprintf("assembly %s already has an edge (%s) for component %s", e.AssemblyID, e.EdgeID, e.Component)
}

// CircularReferenceError is returned when a prospective edge would close a
// cycle. Path is the would-be cycle as assembly ids, ending in the repeated
// node.
type CircularReferenceError struct {
	Path []string
}

func (e CircularReferenceError) Error() string {
	return "circular composition: " + strings.Join(e.Path, " -> ")
}

// DependencyInUseError is returned when a delete is refused because other
// records still reference the node.
type DependencyInUseError struct {
	Entity       EntityType
	ID           string
	ReferencedBy []string
}

func (e DependencyInUseError) Error() string {
	return fmt.Sprintf("%s %s still referenced by %s", e.Entity, e.ID, strings.Join(e.ReferencedBy, ", "))
}

// Shortage describes one leaf whose on-hand inventory cannot cover the
// flattened requirement.
type Shortage struct {
	Component ComponentRef `json:"component"`
	Required  int          `json:"required"`
	Available int          `json:"available"`
}

// InsufficientInventoryError is returned when assemble or disassemble is
// refused. It carries the full shortage list so the caller can decide how to
// fulfil elsewhere; the core never partially applies.
type InsufficientInventoryError struct {
	AssemblyID string
	Requested  int
	Shortages  []Shortage
}

func (e InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory to process %d of assembly %s: %d shortage(s)", e.Requested, e.AssemblyID, len(e.Shortages))
}

// IntegrityViolationError reports a broken invariant found by a consistency
// audit. Unreachable through the public API; indicates a bug or out-of-band
// data corruption.
type IntegrityViolationError struct {
	Entity  EntityType
	ID      string
	Message string
}

func (e IntegrityViolationError) Error() string {
	return fmt.Sprintf("integrity violation on %s %s: %s", e.Entity, e.ID, e.Message)
}
