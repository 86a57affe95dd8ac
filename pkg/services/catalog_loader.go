package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/adapters/catalog"
	"github.com/semlens/semlens-engine/pkg/apperrors"
	"github.com/semlens/semlens-engine/pkg/graph"
	"github.com/semlens/semlens-engine/pkg/models"
)

// Enrichment keys attached to join edges. Only these genuinely free-form
// attributes live in the edge's Extra map; everything else is typed.
const (
	ExtraJoinColumnDescription = "join_column_description"
	ExtraNaturalLanguageAlias  = "natural_language_alias"
	ExtraFewShotExample        = "few_shot_example"
	ExtraContext               = "context"
)

// CatalogLoader builds immutable graph snapshots from the catalog
// relations. Construction either fully succeeds or fails with a
// CatalogIntegrityError; a partially built graph is never returned.
type CatalogLoader interface {
	// LoadSchemaGraph reads table and relationship definitions and builds
	// the schema graph.
	LoadSchemaGraph(ctx context.Context) (*graph.Graph, error)

	// LoadSemanticGraph reads intent, perspective, concept, and field
	// definitions plus their associations and builds the semantic graph.
	// Nodes are loaded before edges, and association edges only after
	// their endpoint node types exist.
	LoadSemanticGraph(ctx context.Context) (*graph.Graph, error)
}

type catalogLoader struct {
	src    catalog.Source
	logger *zap.Logger
}

// NewCatalogLoader creates a new CatalogLoader over the given catalog source.
func NewCatalogLoader(src catalog.Source, logger *zap.Logger) CatalogLoader {
	return &catalogLoader{
		src:    src,
		logger: logger.Named("catalog-loader"),
	}
}

var _ CatalogLoader = (*catalogLoader)(nil)

func (l *catalogLoader) LoadSchemaGraph(ctx context.Context) (*graph.Graph, error) {
	tables, err := l.src.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog tables: %w", err)
	}

	g := graph.New()
	for _, t := range tables {
		node := &graph.Node{
			ID:   graph.TableNodeID(t.TableName),
			Kind: graph.NodeKindTable,
			Table: &graph.TableAttrs{
				Name:        t.TableName,
				Kind:        t.TableType,
				Description: t.Description,
			},
		}
		if err := g.AddNode(node); err != nil {
			return nil, &apperrors.CatalogIntegrityError{
				Relation: "catalog_tables",
				RowKey:   t.TableName,
				Reason:   "duplicate table name",
			}
		}
	}

	rels, err := l.src.ListRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog relationships: %w", err)
	}
	for _, r := range rels {
		rowKey := fmt.Sprintf("%s -> %s", r.FromTable, r.ToTable)
		if r.Weight < 0 {
			return nil, &apperrors.CatalogIntegrityError{
				Relation: "catalog_relationships",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("negative weight %v", r.Weight),
			}
		}
		edge := &graph.Edge{
			From:             graph.TableNodeID(r.FromTable),
			To:               graph.TableNodeID(r.ToTable),
			Kind:             graph.EdgeKindJoin,
			RelationshipKind: r.RelationshipType,
			JoinColumn:       r.JoinColumn,
			Weight:           r.Weight,
			Extra:            joinEnrichment(r),
		}
		if err := g.AddEdge(edge); err != nil {
			return nil, integrityError("catalog_relationships", rowKey, err)
		}
	}

	l.logger.Info("Schema graph built",
		zap.Int("tables", g.NodeCount()),
		zap.Int("relationships", g.EdgeCount()))
	return g, nil
}

// joinEnrichment collects the optional free-form relationship attributes.
// When no natural-language alias is provided, one is derived from the
// singular forms of the endpoint tables so downstream prompt assembly
// always has a readable label.
func joinEnrichment(r models.RelationshipDef) map[string]string {
	extra := make(map[string]string)
	if r.JoinColumnDescription != nil && *r.JoinColumnDescription != "" {
		extra[ExtraJoinColumnDescription] = *r.JoinColumnDescription
	}
	if r.NaturalLanguageAlias != nil && *r.NaturalLanguageAlias != "" {
		extra[ExtraNaturalLanguageAlias] = *r.NaturalLanguageAlias
	} else {
		extra[ExtraNaturalLanguageAlias] = fmt.Sprintf("%s to %s",
			inflection.Singular(r.FromTable), inflection.Singular(r.ToTable))
	}
	if r.FewShotExample != nil && *r.FewShotExample != "" {
		extra[ExtraFewShotExample] = *r.FewShotExample
	}
	if r.Context != nil && *r.Context != "" {
		extra[ExtraContext] = *r.Context
	}
	return extra
}

func (l *catalogLoader) LoadSemanticGraph(ctx context.Context) (*graph.Graph, error) {
	g := graph.New()

	intentNames, err := l.loadIntentNodes(ctx, g)
	if err != nil {
		return nil, err
	}
	perspectiveNames, err := l.loadPerspectiveNodes(ctx, g)
	if err != nil {
		return nil, err
	}
	conceptNames, err := l.loadConceptNodes(ctx, g)
	if err != nil {
		return nil, err
	}

	if err := l.loadConceptFields(ctx, g, conceptNames); err != nil {
		return nil, err
	}
	if err := l.loadIntentPerspectives(ctx, g, intentNames, perspectiveNames); err != nil {
		return nil, err
	}
	if err := l.loadPerspectiveConcepts(ctx, g, perspectiveNames, conceptNames); err != nil {
		return nil, err
	}
	if err := l.loadIntentConcepts(ctx, g, intentNames, conceptNames); err != nil {
		return nil, err
	}

	l.logger.Info("Semantic graph built",
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()))
	return g, nil
}

func (l *catalogLoader) loadIntentNodes(ctx context.Context, g *graph.Graph) (map[string]string, error) {
	intents, err := l.src.ListIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog intents: %w", err)
	}
	names := make(map[string]string, len(intents))
	for _, i := range intents {
		node := &graph.Node{
			ID:     graph.IntentNodeID(i.Name),
			Kind:   graph.NodeKindIntent,
			Intent: &graph.NamedAttrs{Name: i.Name, Description: i.Description},
		}
		if err := g.AddNode(node); err != nil {
			return nil, &apperrors.CatalogIntegrityError{
				Relation: "catalog_intents",
				RowKey:   i.ID.String(),
				Reason:   fmt.Sprintf("duplicate intent name %q", i.Name),
			}
		}
		names[i.ID.String()] = i.Name
	}
	return names, nil
}

func (l *catalogLoader) loadPerspectiveNodes(ctx context.Context, g *graph.Graph) (map[string]string, error) {
	perspectives, err := l.src.ListPerspectives(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog perspectives: %w", err)
	}
	names := make(map[string]string, len(perspectives))
	for _, p := range perspectives {
		node := &graph.Node{
			ID:          graph.PerspectiveNodeID(p.Name),
			Kind:        graph.NodeKindPerspective,
			Perspective: &graph.NamedAttrs{Name: p.Name, Description: p.Description},
		}
		if err := g.AddNode(node); err != nil {
			return nil, &apperrors.CatalogIntegrityError{
				Relation: "catalog_perspectives",
				RowKey:   p.ID.String(),
				Reason:   fmt.Sprintf("duplicate perspective name %q", p.Name),
			}
		}
		names[p.ID.String()] = p.Name
	}
	return names, nil
}

func (l *catalogLoader) loadConceptNodes(ctx context.Context, g *graph.Graph) (map[string]string, error) {
	concepts, err := l.src.ListConcepts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog concepts: %w", err)
	}
	names := make(map[string]string, len(concepts))
	for _, c := range concepts {
		node := &graph.Node{
			ID:      graph.ConceptNodeID(c.Name),
			Kind:    graph.NodeKindConcept,
			Concept: &graph.NamedAttrs{Name: c.Name, Description: c.Description},
		}
		if err := g.AddNode(node); err != nil {
			return nil, &apperrors.CatalogIntegrityError{
				Relation: "catalog_concepts",
				RowKey:   c.ID.String(),
				Reason:   fmt.Sprintf("duplicate concept name %q", c.Name),
			}
		}
		names[c.ID.String()] = c.Name
	}
	return names, nil
}

func (l *catalogLoader) loadConceptFields(ctx context.Context, g *graph.Graph, conceptNames map[string]string) error {
	fields, err := l.src.ListConceptFields(ctx)
	if err != nil {
		return fmt.Errorf("load catalog concept fields: %w", err)
	}

	// At most one primary field per (concept, table).
	primarySeen := make(map[string]bool)

	for _, f := range fields {
		rowKey := fmt.Sprintf("%s/%s.%s", f.ConceptID, f.TableName, f.FieldName)
		conceptName, ok := conceptNames[f.ConceptID.String()]
		if !ok {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_concept_fields",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("concept_id %s not present among loaded concepts", f.ConceptID),
			}
		}

		fieldID := graph.FieldNodeID(f.TableName, f.FieldName)
		if !g.HasNode(fieldID) {
			node := &graph.Node{
				ID:    fieldID,
				Kind:  graph.NodeKindField,
				Field: &graph.FieldAttrs{Table: f.TableName, Column: f.FieldName},
			}
			if err := g.AddNode(node); err != nil {
				return integrityError("catalog_concept_fields", rowKey, err)
			}
		}

		if f.IsPrimary {
			key := conceptName + "|" + f.TableName
			if primarySeen[key] {
				return &apperrors.CatalogIntegrityError{
					Relation: "catalog_concept_fields",
					RowKey:   rowKey,
					Reason:   fmt.Sprintf("second primary field for concept %q in table %q", conceptName, f.TableName),
				}
			}
			primarySeen[key] = true
		}

		alias := f.TableName
		if f.TableAlias != nil && *f.TableAlias != "" {
			alias = *f.TableAlias
		}
		edge := &graph.Edge{
			From:       fieldID,
			To:         graph.ConceptNodeID(conceptName),
			Kind:       graph.EdgeKindCanMean,
			IsPrimary:  f.IsPrimary,
			TableAlias: alias,
		}
		if err := g.AddEdge(edge); err != nil {
			return integrityError("catalog_concept_fields", rowKey, err)
		}
	}
	return nil
}

func (l *catalogLoader) loadIntentPerspectives(ctx context.Context, g *graph.Graph, intentNames, perspectiveNames map[string]string) error {
	assocs, err := l.src.ListIntentPerspectives(ctx)
	if err != nil {
		return fmt.Errorf("load intent-perspective associations: %w", err)
	}
	for _, a := range assocs {
		rowKey := fmt.Sprintf("%s/%s", a.IntentID, a.PerspectiveID)
		intentName, ok := intentNames[a.IntentID.String()]
		if !ok {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_intent_perspectives",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("intent_id %s not present among loaded intents", a.IntentID),
			}
		}
		perspectiveName, ok := perspectiveNames[a.PerspectiveID.String()]
		if !ok {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_intent_perspectives",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("perspective_id %s not present among loaded perspectives", a.PerspectiveID),
			}
		}
		if a.Weight < 0 || a.Weight > 1 {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_intent_perspectives",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("intent_factor_weight %v outside [0, 1]", a.Weight),
			}
		}
		edge := &graph.Edge{
			From:   graph.IntentNodeID(intentName),
			To:     graph.PerspectiveNodeID(perspectiveName),
			Kind:   graph.EdgeKindOperatesWithin,
			Weight: a.Weight,
		}
		if err := g.AddEdge(edge); err != nil {
			return integrityError("catalog_intent_perspectives", rowKey, err)
		}
	}
	return nil
}

func (l *catalogLoader) loadPerspectiveConcepts(ctx context.Context, g *graph.Graph, perspectiveNames, conceptNames map[string]string) error {
	assocs, err := l.src.ListPerspectiveConcepts(ctx)
	if err != nil {
		return fmt.Errorf("load perspective-concept associations: %w", err)
	}
	for _, a := range assocs {
		rowKey := fmt.Sprintf("%s/%s", a.PerspectiveID, a.ConceptID)
		perspectiveName, ok := perspectiveNames[a.PerspectiveID.String()]
		if !ok {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_perspective_concepts",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("perspective_id %s not present among loaded perspectives", a.PerspectiveID),
			}
		}
		conceptName, ok := conceptNames[a.ConceptID.String()]
		if !ok {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_perspective_concepts",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("concept_id %s not present among loaded concepts", a.ConceptID),
			}
		}
		if a.ElevationWeight < 0 || a.ElevationWeight > 1 {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_perspective_concepts",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("elevation_weight %v outside [0, 1]", a.ElevationWeight),
			}
		}
		edge := &graph.Edge{
			From:   graph.PerspectiveNodeID(perspectiveName),
			To:     graph.ConceptNodeID(conceptName),
			Kind:   graph.EdgeKindUsesDefinition,
			Weight: a.ElevationWeight,
		}
		if err := g.AddEdge(edge); err != nil {
			return integrityError("catalog_perspective_concepts", rowKey, err)
		}
	}
	return nil
}

func (l *catalogLoader) loadIntentConcepts(ctx context.Context, g *graph.Graph, intentNames, conceptNames map[string]string) error {
	assocs, err := l.src.ListIntentConcepts(ctx)
	if err != nil {
		return fmt.Errorf("load intent-concept associations: %w", err)
	}
	for _, a := range assocs {
		rowKey := fmt.Sprintf("%s/%s", a.IntentID, a.ConceptID)
		intentName, ok := intentNames[a.IntentID.String()]
		if !ok {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_intent_concepts",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("intent_id %s not present among loaded intents", a.IntentID),
			}
		}
		conceptName, ok := conceptNames[a.ConceptID.String()]
		if !ok {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_intent_concepts",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("concept_id %s not present among loaded concepts", a.ConceptID),
			}
		}
		if a.Weight < -1 || a.Weight > 1 {
			return &apperrors.CatalogIntegrityError{
				Relation: "catalog_intent_concepts",
				RowKey:   rowKey,
				Reason:   fmt.Sprintf("intent_factor_weight %d outside {-1, 0, +1}", a.Weight),
			}
		}
		edge := &graph.Edge{
			From:   graph.IntentNodeID(intentName),
			To:     graph.ConceptNodeID(conceptName),
			Kind:   graph.EdgeKindDirectInfluence,
			Weight: float64(a.Weight),
		}
		if err := g.AddEdge(edge); err != nil {
			return integrityError("catalog_intent_concepts", rowKey, err)
		}
	}
	return nil
}

// integrityError converts a graph mutation failure into a fatal
// CatalogIntegrityError carrying the offending row's keys.
func integrityError(relation, rowKey string, err error) error {
	var unknown *apperrors.UnknownNodeError
	if errors.As(err, &unknown) {
		return &apperrors.CatalogIntegrityError{
			Relation: relation,
			RowKey:   rowKey,
			Reason:   fmt.Sprintf("references node %q not present in the graph", unknown.Node),
		}
	}
	var dupEdge *apperrors.DuplicateEdgeError
	if errors.As(err, &dupEdge) {
		return &apperrors.CatalogIntegrityError{
			Relation: relation,
			RowKey:   rowKey,
			Reason:   fmt.Sprintf("duplicate edge %q -> %q", dupEdge.From, dupEdge.To),
		}
	}
	return &apperrors.CatalogIntegrityError{
		Relation: relation,
		RowKey:   rowKey,
		Reason:   err.Error(),
	}
}
