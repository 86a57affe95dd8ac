package graphstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/apperrors"
	"github.com/semlens/semlens-engine/pkg/graph"
)

// fakeRunner emulates the store's behavior for the adapter's statements,
// so persistence logic is exercised without a running Neo4j.
type fakeRunner struct {
	nodes map[string][]map[string]any // graph name -> node props
	edges map[string][]map[string]any // graph name -> edge props

	writes      int
	failWriteAt int // fail the Nth ExecWrite call (1-based), 0 disables
	readErr     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		nodes: make(map[string][]map[string]any),
		edges: make(map[string][]map[string]any),
	}
}

func (f *fakeRunner) ExecWrite(ctx context.Context, query string, params map[string]any) error {
	f.writes++
	if f.failWriteAt > 0 && f.writes == f.failWriteAt {
		return errors.New("injected write failure")
	}

	switch query {
	case createNodesQuery:
		for _, raw := range params["nodes"].([]map[string]any) {
			name := raw["graph"].(string)
			f.nodes[name] = append(f.nodes[name], raw)
		}
	case createEdgesQuery:
		name := params["graph"].(string)
		f.edges[name] = append(f.edges[name], params["edges"].([]map[string]any)...)
	case deleteGraphQuery:
		name := params["graph"].(string)
		delete(f.nodes, name)
		delete(f.edges, name)
	case swapGraphQuery:
		name := params["graph"].(string)
		staging := params["staging"].(string)
		delete(f.nodes, name)
		delete(f.edges, name)
		for _, props := range f.nodes[staging] {
			props["graph"] = name
			f.nodes[name] = append(f.nodes[name], props)
		}
		f.edges[name] = f.edges[staging]
		delete(f.nodes, staging)
		delete(f.edges, staging)
	default:
		return fmt.Errorf("unexpected write query: %s", query)
	}
	return nil
}

func (f *fakeRunner) ExecRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	name := params["graph"].(string)

	switch query {
	case countNodesQuery:
		return []map[string]any{{"count": int64(len(f.nodes[name]))}}, nil
	case loadNodesQuery:
		rows := make([]map[string]any, 0, len(f.nodes[name]))
		for _, props := range f.nodes[name] {
			rows = append(rows, map[string]any{
				"key":          props["key"],
				"kind":         props["kind"],
				"name":         props["name"],
				"description":  props["description"],
				"table_kind":   props["table_kind"],
				"field_table":  props["field_table"],
				"field_column": props["field_column"],
			})
		}
		sort.Slice(rows, func(i, j int) bool {
			return rows[i]["key"].(string) < rows[j]["key"].(string)
		})
		return rows, nil
	case loadEdgesQuery:
		rows := append([]map[string]any(nil), f.edges[name]...)
		sort.Slice(rows, func(i, j int) bool {
			if rows[i]["from_key"] != rows[j]["from_key"] {
				return rows[i]["from_key"].(string) < rows[j]["from_key"].(string)
			}
			return rows[i]["to_key"].(string) < rows[j]["to_key"].(string)
		})
		return rows, nil
	}
	return nil, fmt.Errorf("unexpected read query: %s", query)
}

var _ CypherRunner = (*fakeRunner)(nil)

// mixedGraph exercises every node kind and attributed edges, including the
// free-form enrichment map.
func mixedGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()

	nodes := []*graph.Node{
		{ID: "orders", Kind: graph.NodeKindTable, Table: &graph.TableAttrs{Name: "orders", Kind: "fact", Description: "Sales orders"}},
		{ID: "customers", Kind: graph.NodeKindTable, Table: &graph.TableAttrs{Name: "customers", Kind: "dimension"}},
		{ID: graph.FieldNodeID("invoices", "amount"), Kind: graph.NodeKindField, Field: &graph.FieldAttrs{Table: "invoices", Column: "amount"}},
		{ID: graph.IntentNodeID("monthly_revenue"), Kind: graph.NodeKindIntent, Intent: &graph.NamedAttrs{Name: "monthly_revenue"}},
		{ID: graph.PerspectiveNodeID("finance"), Kind: graph.NodeKindPerspective, Perspective: &graph.NamedAttrs{Name: "finance", Description: "Money view"}},
		{ID: graph.ConceptNodeID("REVENUE"), Kind: graph.NodeKindConcept, Concept: &graph.NamedAttrs{Name: "REVENUE"}},
	}
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}

	edges := []*graph.Edge{
		{From: "orders", To: "customers", Kind: graph.EdgeKindJoin, RelationshipKind: "many-to-one",
			JoinColumn: "customer_id", Weight: 1.0,
			Extra: map[string]string{"natural_language_alias": "placed by", "context": "retail sales"}},
		{From: graph.IntentNodeID("monthly_revenue"), To: graph.PerspectiveNodeID("finance"),
			Kind: graph.EdgeKindOperatesWithin, Weight: 0.9},
		{From: graph.PerspectiveNodeID("finance"), To: graph.ConceptNodeID("REVENUE"),
			Kind: graph.EdgeKindUsesDefinition, Weight: 0.8},
		{From: graph.FieldNodeID("invoices", "amount"), To: graph.ConceptNodeID("REVENUE"),
			Kind: graph.EdgeKindCanMean, IsPrimary: true, TableAlias: "invoice"},
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

func TestAdapter_RoundTrip(t *testing.T) {
	runner := newFakeRunner()
	adapter := NewAdapter(runner, zap.NewNop())
	g := mixedGraph(t)

	err := adapter.Persist(context.Background(), g, "semantic", PersistOptions{BatchSize: 2})
	require.NoError(t, err)

	loaded, err := adapter.Load(context.Background(), "semantic", true)
	require.NoError(t, err)

	assert.True(t, loaded.Directed())
	assert.Equal(t, g.Nodes(), loaded.Nodes())
	assert.Equal(t, g.Edges(), loaded.Edges())
}

func TestAdapter_LoadUndirected(t *testing.T) {
	runner := newFakeRunner()
	adapter := NewAdapter(runner, zap.NewNop())

	require.NoError(t, adapter.Persist(context.Background(), mixedGraph(t), "schema", PersistOptions{BatchSize: 10}))

	loaded, err := adapter.Load(context.Background(), "schema", false)
	require.NoError(t, err)
	assert.False(t, loaded.Directed())
}

func TestAdapter_RefusesExistingWithoutOverwrite(t *testing.T) {
	runner := newFakeRunner()
	adapter := NewAdapter(runner, zap.NewNop())
	g := mixedGraph(t)

	require.NoError(t, adapter.Persist(context.Background(), g, "semantic", PersistOptions{BatchSize: 10}))

	err := adapter.Persist(context.Background(), g, "semantic", PersistOptions{BatchSize: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAdapter_OverwriteReplaces(t *testing.T) {
	runner := newFakeRunner()
	adapter := NewAdapter(runner, zap.NewNop())

	require.NoError(t, adapter.Persist(context.Background(), mixedGraph(t), "semantic", PersistOptions{BatchSize: 10}))

	replacement := graph.New()
	require.NoError(t, replacement.AddNode(&graph.Node{
		ID: graph.ConceptNodeID("COST"), Kind: graph.NodeKindConcept,
		Concept: &graph.NamedAttrs{Name: "COST"},
	}))
	require.NoError(t, adapter.Persist(context.Background(), replacement, "semantic",
		PersistOptions{BatchSize: 10, Overwrite: true}))

	loaded, err := adapter.Load(context.Background(), "semantic", true)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.NodeCount())
	assert.True(t, loaded.HasNode(graph.ConceptNodeID("COST")))

	// No staging leftovers after a successful swap.
	assert.Empty(t, runner.nodes["semantic__staging"])
}

func TestAdapter_OverwriteFailureKeepsPreviousGraph(t *testing.T) {
	runner := newFakeRunner()
	adapter := NewAdapter(runner, zap.NewNop())
	g := mixedGraph(t)

	require.NoError(t, adapter.Persist(context.Background(), g, "semantic", PersistOptions{BatchSize: 10}))

	// Fail the staging node write: writes so far are 1 (nodes) + 1 (edges);
	// the overwrite clears staging (3rd write) then writes nodes (4th).
	runner.failWriteAt = 4
	err := adapter.Persist(context.Background(), g, "semantic", PersistOptions{BatchSize: 10, Overwrite: true})
	var partial *apperrors.PartialWriteError
	require.ErrorAs(t, err, &partial)

	loaded, err := adapter.Load(context.Background(), "semantic", true)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), loaded.Nodes())
	assert.Equal(t, g.Edges(), loaded.Edges())
	assert.Empty(t, runner.nodes["semantic__staging"], "failed staging write is cleaned up")
}

func TestAdapter_PartialWriteNamesFailingBatch(t *testing.T) {
	runner := newFakeRunner()
	adapter := NewAdapter(runner, zap.NewNop())

	// At batch size 1 every node is its own batch: failing the second
	// write means batch index 1.
	runner.failWriteAt = 2
	err := adapter.Persist(context.Background(), mixedGraph(t), "semantic", PersistOptions{BatchSize: 1})
	var partial *apperrors.PartialWriteError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Batch)
	assert.Equal(t, "semantic", partial.Store)
}

func TestAdapter_LoadMissingGraph(t *testing.T) {
	adapter := NewAdapter(newFakeRunner(), zap.NewNop())

	_, err := adapter.Load(context.Background(), "nosuch", true)
	var notFound *apperrors.GraphNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nosuch", notFound.Store)
}

func TestAdapter_StoreUnavailableOnRead(t *testing.T) {
	runner := newFakeRunner()
	runner.readErr = errors.New("connection refused")
	adapter := NewAdapter(runner, zap.NewNop())

	_, err := adapter.Load(context.Background(), "semantic", true)
	var unavailable *apperrors.StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)

	err = adapter.Persist(context.Background(), mixedGraph(t), "semantic", PersistOptions{BatchSize: 10})
	require.ErrorAs(t, err, &unavailable)
}

func TestAdapter_RejectsNonPositiveBatchSize(t *testing.T) {
	adapter := NewAdapter(newFakeRunner(), zap.NewNop())

	err := adapter.Persist(context.Background(), mixedGraph(t), "semantic", PersistOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")
}
