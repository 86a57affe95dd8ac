// Package mssql implements catalog.Source for SQL Server via database/sql.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/semlens/semlens-engine/pkg/adapters/catalog"
	"github.com/semlens/semlens-engine/pkg/models"
)

// Source reads catalog relations from SQL Server.
//
// Identifier columns are cast to NVARCHAR(36) in the queries so UUID
// scanning does not depend on the driver's uniqueidentifier byte order.
type Source struct {
	db *sql.DB
}

// NewSource opens a SQL Server connection and verifies it.
func NewSource(ctx context.Context, connString string) (*Source, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlserver catalog: %w", err)
	}
	return &Source{db: db}, nil
}

var _ catalog.Source = (*Source)(nil)

func (s *Source) ListTables(ctx context.Context) ([]models.TableDef, error) {
	query := `
		SELECT table_name, table_type, COALESCE(description, '')
		FROM catalog_tables
		ORDER BY table_name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog tables: %w", err)
	}
	defer rows.Close()

	var tables []models.TableDef
	for rows.Next() {
		var t models.TableDef
		if err := rows.Scan(&t.TableName, &t.TableType, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan catalog table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog tables: %w", err)
	}
	return tables, nil
}

func (s *Source) ListRelationships(ctx context.Context) ([]models.RelationshipDef, error) {
	query := `
		SELECT from_table, to_table, relationship_type, join_column, weight,
		       join_column_description, natural_language_alias, few_shot_example, context
		FROM catalog_relationships
		ORDER BY from_table, to_table`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.RelationshipDef
	for rows.Next() {
		var r models.RelationshipDef
		if err := rows.Scan(&r.FromTable, &r.ToTable, &r.RelationshipType, &r.JoinColumn, &r.Weight,
			&r.JoinColumnDescription, &r.NaturalLanguageAlias, &r.FewShotExample, &r.Context); err != nil {
			return nil, fmt.Errorf("failed to scan catalog relationship: %w", err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog relationships: %w", err)
	}
	return rels, nil
}

func (s *Source) ListIntents(ctx context.Context) ([]models.Intent, error) {
	query := `
		SELECT CAST(intent_id AS NVARCHAR(36)), intent_name, COALESCE(description, '')
		FROM catalog_intents
		ORDER BY intent_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog intents: %w", err)
	}
	defer rows.Close()

	var intents []models.Intent
	for rows.Next() {
		var i models.Intent
		if err := rows.Scan(&i.ID, &i.Name, &i.Description); err != nil {
			return nil, fmt.Errorf("failed to scan catalog intent: %w", err)
		}
		intents = append(intents, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog intents: %w", err)
	}
	return intents, nil
}

func (s *Source) ListPerspectives(ctx context.Context) ([]models.Perspective, error) {
	query := `
		SELECT CAST(perspective_id AS NVARCHAR(36)), perspective_name, COALESCE(description, '')
		FROM catalog_perspectives
		ORDER BY perspective_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog perspectives: %w", err)
	}
	defer rows.Close()

	var perspectives []models.Perspective
	for rows.Next() {
		var p models.Perspective
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan catalog perspective: %w", err)
		}
		perspectives = append(perspectives, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog perspectives: %w", err)
	}
	return perspectives, nil
}

func (s *Source) ListConcepts(ctx context.Context) ([]models.Concept, error) {
	query := `
		SELECT CAST(concept_id AS NVARCHAR(36)), concept_name, COALESCE(description, '')
		FROM catalog_concepts
		ORDER BY concept_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog concepts: %w", err)
	}
	defer rows.Close()

	var concepts []models.Concept
	for rows.Next() {
		var c models.Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("failed to scan catalog concept: %w", err)
		}
		concepts = append(concepts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog concepts: %w", err)
	}
	return concepts, nil
}

func (s *Source) ListConceptFields(ctx context.Context) ([]models.ConceptField, error) {
	query := `
		SELECT CAST(concept_id AS NVARCHAR(36)), table_name, field_name, is_primary, table_alias
		FROM catalog_concept_fields
		ORDER BY concept_id, table_name, field_name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog concept fields: %w", err)
	}
	defer rows.Close()

	var fields []models.ConceptField
	for rows.Next() {
		var f models.ConceptField
		if err := rows.Scan(&f.ConceptID, &f.TableName, &f.FieldName, &f.IsPrimary, &f.TableAlias); err != nil {
			return nil, fmt.Errorf("failed to scan catalog concept field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog concept fields: %w", err)
	}
	return fields, nil
}

func (s *Source) ListIntentPerspectives(ctx context.Context) ([]models.IntentPerspective, error) {
	query := `
		SELECT CAST(intent_id AS NVARCHAR(36)), CAST(perspective_id AS NVARCHAR(36)), intent_factor_weight
		FROM catalog_intent_perspectives
		ORDER BY intent_id, perspective_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query intent-perspective associations: %w", err)
	}
	defer rows.Close()

	var assocs []models.IntentPerspective
	for rows.Next() {
		var a models.IntentPerspective
		if err := rows.Scan(&a.IntentID, &a.PerspectiveID, &a.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan intent-perspective association: %w", err)
		}
		assocs = append(assocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intent-perspective associations: %w", err)
	}
	return assocs, nil
}

func (s *Source) ListPerspectiveConcepts(ctx context.Context) ([]models.PerspectiveConcept, error) {
	query := `
		SELECT CAST(perspective_id AS NVARCHAR(36)), CAST(concept_id AS NVARCHAR(36)), elevation_weight
		FROM catalog_perspective_concepts
		ORDER BY perspective_id, concept_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query perspective-concept associations: %w", err)
	}
	defer rows.Close()

	var assocs []models.PerspectiveConcept
	for rows.Next() {
		var a models.PerspectiveConcept
		if err := rows.Scan(&a.PerspectiveID, &a.ConceptID, &a.ElevationWeight); err != nil {
			return nil, fmt.Errorf("failed to scan perspective-concept association: %w", err)
		}
		assocs = append(assocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating perspective-concept associations: %w", err)
	}
	return assocs, nil
}

func (s *Source) ListIntentConcepts(ctx context.Context) ([]models.IntentConcept, error) {
	query := `
		SELECT CAST(intent_id AS NVARCHAR(36)), CAST(concept_id AS NVARCHAR(36)), intent_factor_weight
		FROM catalog_intent_concepts
		ORDER BY intent_id, concept_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query intent-concept associations: %w", err)
	}
	defer rows.Close()

	var assocs []models.IntentConcept
	for rows.Next() {
		var a models.IntentConcept
		if err := rows.Scan(&a.IntentID, &a.ConceptID, &a.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan intent-concept association: %w", err)
		}
		assocs = append(assocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intent-concept associations: %w", err)
	}
	return assocs, nil
}

// Close releases the underlying connection.
func (s *Source) Close() error {
	return s.db.Close()
}
