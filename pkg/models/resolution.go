package models

// JoinStep is one table-to-table hop of a resolved join path. From and To
// follow traversal order; Reversed marks steps that traverse a stored
// relationship against its catalog direction, so the join column's owning
// side stays recoverable.
type JoinStep struct {
	From             string `json:"from"`
	To               string `json:"to"`
	RelationshipKind string `json:"relationship_kind"`
	JoinColumn       string `json:"join_column"`
	Reversed         bool   `json:"reversed,omitempty"`
}

// ConceptResolution is the outcome of elevating one concept over its
// competitors for an ambiguous field name. Rationale names the deciding
// perspective or intent edge so the decision is auditable.
type ConceptResolution struct {
	Concept   string `json:"concept"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	Rationale string `json:"rationale"`
}
