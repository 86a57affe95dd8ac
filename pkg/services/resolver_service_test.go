package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/graph"
)

// mockLoader serves prebuilt graphs so snapshot behavior can be tested
// without a catalog database.
type mockLoader struct {
	schema   *graph.Graph
	semantic *graph.Graph
	err      error
	loads    int
}

func (m *mockLoader) LoadSchemaGraph(ctx context.Context) (*graph.Graph, error) {
	m.loads++
	return m.schema, m.err
}

func (m *mockLoader) LoadSemanticGraph(ctx context.Context) (*graph.Graph, error) {
	return m.semantic, m.err
}

func twoTableSchema(t *testing.T) *graph.Graph {
	return buildSchemaGraph(t,
		[]string{"orders", "customers"},
		[]testJoin{{from: "orders", to: "customers", joinColumn: "customer_id"}})
}

func TestResolverService_ServesWithoutCache(t *testing.T) {
	loader := &mockLoader{schema: twoTableSchema(t), semantic: graph.New()}

	svc, err := NewResolverService(context.Background(), loader, nil, 0, zap.NewNop())
	require.NoError(t, err)

	steps, err := svc.ResolveJoinPath(context.Background(), "orders", "customers")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "customer_id", steps[0].JoinColumn)
}

func TestResolverService_RebuildSwapsSnapshot(t *testing.T) {
	loader := &mockLoader{schema: twoTableSchema(t), semantic: graph.New()}

	svc, err := NewResolverService(context.Background(), loader, nil, 0, zap.NewNop())
	require.NoError(t, err)
	before := svc.SchemaGraph()

	// The next load returns a wider schema.
	loader.schema = buildSchemaGraph(t,
		[]string{"orders", "customers", "products"},
		[]testJoin{
			{from: "orders", to: "customers", joinColumn: "customer_id"},
			{from: "orders", to: "products", joinColumn: "product_id"},
		})
	require.NoError(t, svc.Rebuild(context.Background()))

	after := svc.SchemaGraph()
	assert.NotSame(t, before, after, "rebuild must swap in a new snapshot")
	assert.Equal(t, 2, before.NodeCount(), "old snapshot stays intact")
	assert.Equal(t, 3, after.NodeCount())

	steps, err := svc.ResolveJoinPath(context.Background(), "products", "customers")
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestResolverService_RebuildFailureKeepsSnapshot(t *testing.T) {
	loader := &mockLoader{schema: twoTableSchema(t), semantic: graph.New()}

	svc, err := NewResolverService(context.Background(), loader, nil, 0, zap.NewNop())
	require.NoError(t, err)

	loader.err = errors.New("catalog unreachable")
	require.Error(t, svc.Rebuild(context.Background()))

	// The previous snapshot keeps serving.
	steps, err := svc.ResolveJoinPath(context.Background(), "orders", "customers")
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestNewResolverService_LoadFailure(t *testing.T) {
	loader := &mockLoader{err: errors.New("catalog unreachable")}

	svc, err := NewResolverService(context.Background(), loader, nil, 0, zap.NewNop())
	assert.Nil(t, svc)
	require.Error(t, err)
}
