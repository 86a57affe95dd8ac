package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/graph"
	"github.com/semlens/semlens-engine/pkg/models"
)

// ResolverService is the engine's outward interface, consumed by the SQL
// generation component. It holds the current schema and semantic graph
// snapshot; queries run against the snapshot without locking, and Rebuild
// constructs a brand-new snapshot before atomically swapping it in.
type ResolverService interface {
	// ResolveJoinPath returns the ordered join steps between two tables.
	ResolveJoinPath(ctx context.Context, sourceTable, targetTable string) ([]models.JoinStep, error)

	// ResolveConcept picks the authoritative (table, column, concept) for
	// an ambiguous field name under the given intent.
	ResolveConcept(ctx context.Context, intentName, fieldName, tableScope string) (*models.ConceptResolution, error)

	// Rebuild loads a fresh snapshot from the catalog and swaps it in.
	// Queries in flight keep reading the previous snapshot.
	Rebuild(ctx context.Context) error

	// SchemaGraph returns the current schema graph snapshot, e.g. for
	// persistence to the shared graph store.
	SchemaGraph() *graph.Graph

	// SemanticGraph returns the current semantic graph snapshot.
	SemanticGraph() *graph.Graph
}

// graphSnapshot bundles one immutable build of both graphs with the
// resolvers bound to them. BuildID keys cached results so a rebuild
// implicitly invalidates the cache.
type graphSnapshot struct {
	buildID  string
	schema   *graph.Graph
	semantic *graph.Graph
	joins    JoinPathResolver
	concepts ConceptElevationResolver
}

type resolverService struct {
	loader   CatalogLoader
	cache    *redis.Client // nil when no cache is configured
	cacheTTL time.Duration
	logger   *zap.Logger
	current  atomic.Pointer[graphSnapshot]
}

// NewResolverService builds the initial snapshot from the catalog and
// returns a ready-to-serve resolver. cache may be nil.
func NewResolverService(ctx context.Context, loader CatalogLoader, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) (ResolverService, error) {
	s := &resolverService{
		loader:   loader,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.Named("resolver-service"),
	}
	if err := s.Rebuild(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

var _ ResolverService = (*resolverService)(nil)

func (s *resolverService) Rebuild(ctx context.Context) error {
	schema, err := s.loader.LoadSchemaGraph(ctx)
	if err != nil {
		return fmt.Errorf("rebuild schema graph: %w", err)
	}
	semantic, err := s.loader.LoadSemanticGraph(ctx)
	if err != nil {
		return fmt.Errorf("rebuild semantic graph: %w", err)
	}

	snap := &graphSnapshot{
		buildID:  uuid.NewString(),
		schema:   schema,
		semantic: semantic,
		joins:    NewJoinPathResolver(schema),
		concepts: NewConceptElevationResolver(semantic),
	}
	s.current.Store(snap)
	s.logger.Info("Graph snapshot swapped in",
		zap.String("build_id", snap.buildID),
		zap.Int("schema_nodes", schema.NodeCount()),
		zap.Int("semantic_nodes", semantic.NodeCount()))
	return nil
}

func (s *resolverService) ResolveJoinPath(ctx context.Context, sourceTable, targetTable string) ([]models.JoinStep, error) {
	snap := s.current.Load()

	if steps, ok := s.cachedPath(ctx, snap.buildID, sourceTable, targetTable); ok {
		return steps, nil
	}

	steps, err := snap.joins.Resolve(sourceTable, targetTable)
	if err != nil {
		return nil, err
	}
	s.storePath(ctx, snap.buildID, sourceTable, targetTable, steps)
	return steps, nil
}

func (s *resolverService) ResolveConcept(ctx context.Context, intentName, fieldName, tableScope string) (*models.ConceptResolution, error) {
	snap := s.current.Load()
	return snap.concepts.Resolve(intentName, fieldName, tableScope)
}

func (s *resolverService) SchemaGraph() *graph.Graph {
	return s.current.Load().schema
}

func (s *resolverService) SemanticGraph() *graph.Graph {
	return s.current.Load().semantic
}

func joinPathCacheKey(buildID, source, target string) string {
	return fmt.Sprintf("joinpath:%s:%s->%s", buildID, source, target)
}

// cachedPath reads a memoized join path. Cache failures are logged and
// treated as misses; the cache is a read-through accelerator, never a
// source of truth.
func (s *resolverService) cachedPath(ctx context.Context, buildID, source, target string) ([]models.JoinStep, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, err := s.cache.Get(ctx, joinPathCacheKey(buildID, source, target)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("Join path cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var steps []models.JoinStep
	if err := json.Unmarshal(payload, &steps); err != nil {
		s.logger.Warn("Join path cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return steps, true
}

func (s *resolverService) storePath(ctx context.Context, buildID, source, target string, steps []models.JoinStep) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(steps)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, joinPathCacheKey(buildID, source, target), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Join path cache write failed", zap.Error(err))
	}
}
