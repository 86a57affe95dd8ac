// Package catalog defines the read-only source interface for the nine
// catalog relations the loader consumes, with PostgreSQL and SQL Server
// implementations in subpackages.
package catalog

import (
	"context"
	"fmt"

	"github.com/semlens/semlens-engine/pkg/models"
)

// Source reads the catalog relations. Implementations issue read-only
// queries ordered by primary key so graph construction is reproducible
// across runs, and never mutate the source catalog.
//
// Each implementation owns its connection and must be closed when done.
type Source interface {
	ListTables(ctx context.Context) ([]models.TableDef, error)
	ListRelationships(ctx context.Context) ([]models.RelationshipDef, error)
	ListIntents(ctx context.Context) ([]models.Intent, error)
	ListPerspectives(ctx context.Context) ([]models.Perspective, error)
	ListConcepts(ctx context.Context) ([]models.Concept, error)
	ListConceptFields(ctx context.Context) ([]models.ConceptField, error)
	ListIntentPerspectives(ctx context.Context) ([]models.IntentPerspective, error)
	ListPerspectiveConcepts(ctx context.Context) ([]models.PerspectiveConcept, error)
	ListIntentConcepts(ctx context.Context) ([]models.IntentConcept, error)

	// Close releases the catalog connection.
	Close() error
}

// Driver names accepted by config for selecting a catalog backend.
const (
	DriverPostgres = "postgres"
	DriverMSSQL    = "mssql"
)

// ValidateDriver rejects unknown catalog driver names.
func ValidateDriver(driver string) error {
	switch driver {
	case DriverPostgres, DriverMSSQL:
		return nil
	default:
		return fmt.Errorf("unsupported catalog driver %q (expected %q or %q)", driver, DriverPostgres, DriverMSSQL)
	}
}
