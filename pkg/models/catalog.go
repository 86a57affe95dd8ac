package models

import (
	"github.com/google/uuid"
)

// Table type values for catalog table definitions.
const (
	TableTypeFact      = "fact"
	TableTypeDimension = "dimension"
	TableTypeReference = "reference"
)

// TableDef is a row of the catalog tables relation.
type TableDef struct {
	TableName   string `json:"table_name"`
	TableType   string `json:"table_type"`
	Description string `json:"description"`
}

// RelationshipDef is a row of the catalog relationships relation: a
// directed join relationship between two tables, with optional free-form
// enrichment used for prompt assembly downstream.
type RelationshipDef struct {
	FromTable        string  `json:"from_table"`
	ToTable          string  `json:"to_table"`
	RelationshipType string  `json:"relationship_type"`
	JoinColumn       string  `json:"join_column"`
	Weight           float64 `json:"weight"`

	JoinColumnDescription *string `json:"join_column_description,omitempty"`
	NaturalLanguageAlias  *string `json:"natural_language_alias,omitempty"`
	FewShotExample        *string `json:"few_shot_example,omitempty"`
	Context               *string `json:"context,omitempty"`
}

// Intent is a named analytical purpose, e.g. "quality-analysis".
type Intent struct {
	ID          uuid.UUID `json:"intent_id"`
	Name        string    `json:"intent_name"`
	Description string    `json:"description"`
}

// Perspective is a named viewpoint an intent can operate within,
// e.g. "Quality" or "Finance".
type Perspective struct {
	ID          uuid.UUID `json:"perspective_id"`
	Name        string    `json:"perspective_name"`
	Description string    `json:"description"`
}

// Concept is a named abstract business metric,
// e.g. "MATERIAL_NON_CONFORMANCE".
type Concept struct {
	ID          uuid.UUID `json:"concept_id"`
	Name        string    `json:"concept_name"`
	Description string    `json:"description"`
}

// ConceptField maps a concrete (table, column) pair to a concept it can
// mean. IsPrimary marks the canonical field for the concept; at most one
// primary field may exist per (concept, table). TableAlias is the
// human-friendly alias used as a deterministic tie-break during elevation.
type ConceptField struct {
	ConceptID  uuid.UUID `json:"concept_id"`
	TableName  string    `json:"table_name"`
	FieldName  string    `json:"field_name"`
	IsPrimary  bool      `json:"is_primary"`
	TableAlias *string   `json:"table_alias,omitempty"`
}

// IntentPerspective associates an intent with a perspective it operates
// within. Weight in [0, 1] is how strongly the intent engages the
// perspective.
type IntentPerspective struct {
	IntentID      uuid.UUID `json:"intent_id"`
	PerspectiveID uuid.UUID `json:"perspective_id"`
	Weight        float64   `json:"intent_factor_weight"`
}

// PerspectiveConcept associates a perspective with a concept in its
// vocabulary. ElevationWeight in [0, 1] elevates the concept under the
// perspective when above zero and suppresses it at zero.
type PerspectiveConcept struct {
	PerspectiveID   uuid.UUID `json:"perspective_id"`
	ConceptID       uuid.UUID `json:"concept_id"`
	ElevationWeight float64   `json:"elevation_weight"`
}

// IntentConcept is a direct intent-to-concept influence.
// Weight is restricted to {-1, 0, +1}.
type IntentConcept struct {
	IntentID  uuid.UUID `json:"intent_id"`
	ConceptID uuid.UUID `json:"concept_id"`
	Weight    int       `json:"intent_factor_weight"`
}
