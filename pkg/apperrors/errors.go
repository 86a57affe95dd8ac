// Package apperrors defines the error taxonomy shared by the graph model,
// the catalog loader, the resolvers, and the graph persistence adapter.
//
// Every error carries the offending identifiers (table names, intent and
// concept names, tied candidates) so that failures can guide catalog
// corrections rather than surfacing a bare "not found".
package apperrors

import (
	"fmt"
	"strings"
)

// UnknownNodeError reports a reference to a node that is not present in the
// graph, either while adding an edge or while resolving a query.
type UnknownNodeError struct {
	Node string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.Node)
}

// DuplicateNodeError reports an attempt to add a node whose ID is already
// present in the graph.
type DuplicateNodeError struct {
	Node string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node %q", e.Node)
}

// DuplicateEdgeError reports an attempt to add a second edge between the
// same ordered pair of nodes.
type DuplicateEdgeError struct {
	From string
	To   string
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("duplicate edge %q -> %q", e.From, e.To)
}

// CatalogIntegrityError reports a catalog row that references a node not
// present among the loaded nodes, or a row that violates a catalog
// invariant (weight bounds, primary-field uniqueness). It is fatal to graph
// construction: a partially built graph is never returned.
type CatalogIntegrityError struct {
	Relation string // catalog relation the offending row came from
	RowKey   string // identifying keys of the offending row
	Reason   string
}

func (e *CatalogIntegrityError) Error() string {
	return fmt.Sprintf("catalog integrity violation in %s (row %s): %s", e.Relation, e.RowKey, e.Reason)
}

// NoPathError reports that two known tables have no connecting path in the
// schema graph.
type NoPathError struct {
	Source string
	Target string
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("no join path between %q and %q", e.Source, e.Target)
}

// NoApplicableConceptError reports that an ambiguous field name matches no
// CAN_MEAN edge in the semantic graph.
type NoApplicableConceptError struct {
	Intent string
	Field  string
}

func (e *NoApplicableConceptError) Error() string {
	return fmt.Sprintf("no concept can mean field %q for intent %q", e.Field, e.Intent)
}

// AmbiguousResolutionError reports that concept elevation could not pick a
// single winner. Candidates holds the full set of tied candidates so an
// operator can add a disambiguating catalog edge.
type AmbiguousResolutionError struct {
	Intent     string
	Field      string
	Candidates []string
	Reason     string
}

func (e *AmbiguousResolutionError) Error() string {
	return fmt.Sprintf("ambiguous resolution of field %q for intent %q: %s (candidates: %s)",
		e.Field, e.Intent, e.Reason, strings.Join(e.Candidates, ", "))
}

// StoreUnavailableError reports a connection failure to the external graph
// store. It is not retried automatically.
type StoreUnavailableError struct {
	Store string
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("graph store unavailable for %q: %v", e.Store, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialWriteError reports a write batch failure mid-stream during persist.
// Batch identifies the failing batch so an operator can retry safely; the
// caller must re-run with overwrite enabled to guarantee a clean state.
type PartialWriteError struct {
	Store string
	Batch int
	Err   error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write to graph %q (batch %d): %v", e.Store, e.Batch, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// GraphNotFoundError reports a load request for a graph name that does not
// exist in the store.
type GraphNotFoundError struct {
	Store string
}

func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf("graph %q not found in store", e.Store)
}
