package graphstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/apperrors"
	"github.com/semlens/semlens-engine/pkg/graph"
)

// Stored graphs are namespaced by a `graph` property on every node; edges
// follow their endpoints, so renaming a graph only touches node properties.
const stagingSuffix = "__staging"

const (
	countNodesQuery = `
MATCH (n:GraphNode {graph: $graph})
RETURN count(n) AS count`

	createNodesQuery = `
UNWIND $nodes AS n
CREATE (x:GraphNode)
SET x = n`

	createEdgesQuery = `
UNWIND $edges AS e
MATCH (a:GraphNode {graph: $graph, key: e.from_key})
MATCH (b:GraphNode {graph: $graph, key: e.to_key})
CREATE (a)-[r:LINKS]->(b)
SET r.kind = e.kind,
    r.relationship_kind = e.relationship_kind,
    r.join_column = e.join_column,
    r.weight = e.weight,
    r.is_primary = e.is_primary,
    r.table_alias = e.table_alias,
    r.extra_json = e.extra_json`

	deleteGraphQuery = `
MATCH (n:GraphNode {graph: $graph})
DETACH DELETE n`

	// swapGraphQuery replaces the live graph with the staged one in a
	// single transaction: the old graph disappears and the staged nodes
	// take over its name atomically from the caller's point of view.
	swapGraphQuery = `
OPTIONAL MATCH (old:GraphNode {graph: $graph})
DETACH DELETE old
WITH DISTINCT 1 AS _
OPTIONAL MATCH (s:GraphNode {graph: $staging})
SET s.graph = $graph`

	loadNodesQuery = `
MATCH (n:GraphNode {graph: $graph})
RETURN n.key AS key, n.kind AS kind, n.name AS name, n.description AS description,
       n.table_kind AS table_kind, n.field_table AS field_table, n.field_column AS field_column
ORDER BY n.key`

	loadEdgesQuery = `
MATCH (a:GraphNode {graph: $graph})-[r:LINKS]->(b:GraphNode {graph: $graph})
RETURN a.key AS from_key, b.key AS to_key, r.kind AS kind,
       r.relationship_kind AS relationship_kind, r.join_column AS join_column,
       r.weight AS weight, r.is_primary AS is_primary, r.table_alias AS table_alias,
       r.extra_json AS extra_json
ORDER BY from_key, to_key`
)

// PersistOptions control one persist call.
type PersistOptions struct {
	// BatchSize bounds the number of nodes or edges written per statement.
	BatchSize int

	// Overwrite replaces an existing stored graph of the same name. The
	// replacement is staged: a mid-write failure leaves the previous
	// graph fully intact. Concurrent overwrites of the same store name
	// must be serialized by the caller.
	Overwrite bool
}

// Adapter exports graph snapshots to the shared store and imports them
// back, preserving every node and edge attribute exactly. Node identity is
// remapped to store keys, but the original identifier is always retained.
type Adapter struct {
	runner CypherRunner
	logger *zap.Logger
}

// NewAdapter creates a persistence adapter over the given runner.
func NewAdapter(runner CypherRunner, logger *zap.Logger) *Adapter {
	return &Adapter{
		runner: runner,
		logger: logger.Named("graphstore"),
	}
}

// Persist writes the graph's nodes, then its edges, in batches. Without
// Overwrite it refuses to touch an existing graph of the same name; with
// Overwrite the new graph is written under a staging name and swapped in
// only once complete.
func (a *Adapter) Persist(ctx context.Context, g *graph.Graph, storeName string, opts PersistOptions) error {
	if opts.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}

	exists, err := a.exists(ctx, storeName)
	if err != nil {
		return err
	}

	if !opts.Overwrite {
		if exists {
			return fmt.Errorf("graph %q already exists in store; re-run with overwrite to replace it", storeName)
		}
		if err := a.writeGraph(ctx, g, storeName, opts.BatchSize); err != nil {
			return err
		}
		a.logger.Info("Graph persisted",
			zap.String("store_name", storeName),
			zap.Int("nodes", g.NodeCount()),
			zap.Int("edges", g.EdgeCount()))
		return nil
	}

	staging := storeName + stagingSuffix

	// Clear any staging leftovers from a previously failed overwrite.
	if err := a.runner.ExecWrite(ctx, deleteGraphQuery, map[string]any{"graph": staging}); err != nil {
		return &apperrors.StoreUnavailableError{Store: storeName, Err: err}
	}

	if err := a.writeGraph(ctx, g, staging, opts.BatchSize); err != nil {
		// The live graph is untouched; drop the partial staging write.
		if cleanupErr := a.runner.ExecWrite(context.WithoutCancel(ctx), deleteGraphQuery, map[string]any{"graph": staging}); cleanupErr != nil {
			a.logger.Warn("Failed to clean up staging graph after write failure",
				zap.String("store_name", storeName), zap.Error(cleanupErr))
		}
		return err
	}

	if err := a.runner.ExecWrite(ctx, swapGraphQuery, map[string]any{"graph": storeName, "staging": staging}); err != nil {
		return &apperrors.PartialWriteError{Store: storeName, Batch: -1,
			Err: fmt.Errorf("failed to swap staged graph in: %w", err)}
	}

	a.logger.Info("Graph persisted",
		zap.String("store_name", storeName),
		zap.Bool("overwrote", exists),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()))
	return nil
}

// Load reconstructs a graph from the store, typed as directed or
// undirected per the flag. Fails with GraphNotFoundError when no graph of
// that name is stored.
func (a *Adapter) Load(ctx context.Context, storeName string, directed bool) (*graph.Graph, error) {
	nodeRows, err := a.runner.ExecRead(ctx, loadNodesQuery, map[string]any{"graph": storeName})
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Store: storeName, Err: err}
	}
	if len(nodeRows) == 0 {
		return nil, &apperrors.GraphNotFoundError{Store: storeName}
	}

	g := graph.New()
	if !directed {
		g = graph.NewUndirected()
	}
	for _, row := range nodeRows {
		node, err := nodeFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("corrupt stored node in graph %q: %w", storeName, err)
		}
		if err := g.AddNode(node); err != nil {
			return nil, fmt.Errorf("rebuild graph %q: %w", storeName, err)
		}
	}

	edgeRows, err := a.runner.ExecRead(ctx, loadEdgesQuery, map[string]any{"graph": storeName})
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Store: storeName, Err: err}
	}
	for _, row := range edgeRows {
		edge, err := edgeFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("corrupt stored edge in graph %q: %w", storeName, err)
		}
		if err := g.AddEdge(edge); err != nil {
			return nil, fmt.Errorf("rebuild graph %q: %w", storeName, err)
		}
	}

	return g, nil
}

func (a *Adapter) exists(ctx context.Context, storeName string) (bool, error) {
	rows, err := a.runner.ExecRead(ctx, countNodesQuery, map[string]any{"graph": storeName})
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Store: storeName, Err: err}
	}
	if len(rows) == 0 {
		return false, nil
	}
	count, _ := rows[0]["count"].(int64)
	return count > 0, nil
}

// writeGraph streams nodes then edges in batches. A failing batch aborts
// the stream with a PartialWriteError naming the batch index.
func (a *Adapter) writeGraph(ctx context.Context, g *graph.Graph, storeName string, batchSize int) error {
	nodes := g.Nodes()
	batch := 0
	for start := 0; start < len(nodes); start += batchSize {
		end := min(start+batchSize, len(nodes))
		payload := make([]map[string]any, 0, end-start)
		for _, node := range nodes[start:end] {
			payload = append(payload, nodeToProps(node, storeName))
		}
		if err := a.runner.ExecWrite(ctx, createNodesQuery, map[string]any{"nodes": payload}); err != nil {
			return &apperrors.PartialWriteError{Store: storeName, Batch: batch, Err: err}
		}
		batch++
	}

	edges := g.Edges()
	for start := 0; start < len(edges); start += batchSize {
		end := min(start+batchSize, len(edges))
		payload := make([]map[string]any, 0, end-start)
		for _, edge := range edges[start:end] {
			props, err := edgeToProps(edge)
			if err != nil {
				return fmt.Errorf("encode edge %s -> %s: %w", edge.From, edge.To, err)
			}
			payload = append(payload, props)
		}
		params := map[string]any{"graph": storeName, "edges": payload}
		if err := a.runner.ExecWrite(ctx, createEdgesQuery, params); err != nil {
			return &apperrors.PartialWriteError{Store: storeName, Batch: batch, Err: err}
		}
		batch++
	}
	return nil
}

// nodeToProps flattens a typed node into store properties. The original
// identifier is kept under `key` and the human-readable label under
// `name`, so identity stays recoverable after key remapping.
func nodeToProps(n *graph.Node, storeName string) map[string]any {
	props := map[string]any{
		"graph": storeName,
		"key":   n.ID,
		"kind":  string(n.Kind),
		"name":  n.Name(),
	}
	switch n.Kind {
	case graph.NodeKindTable:
		props["table_kind"] = n.Table.Kind
		props["description"] = n.Table.Description
	case graph.NodeKindField:
		props["field_table"] = n.Field.Table
		props["field_column"] = n.Field.Column
	case graph.NodeKindIntent:
		props["description"] = n.Intent.Description
	case graph.NodeKindPerspective:
		props["description"] = n.Perspective.Description
	case graph.NodeKindConcept:
		props["description"] = n.Concept.Description
	}
	return props
}

func nodeFromRow(row map[string]any) (*graph.Node, error) {
	key, _ := row["key"].(string)
	kind, _ := row["kind"].(string)
	if key == "" || kind == "" {
		return nil, fmt.Errorf("missing key or kind (key=%q, kind=%q)", key, kind)
	}
	node := &graph.Node{ID: key, Kind: graph.NodeKind(kind)}
	name := stringProp(row, "name")
	description := stringProp(row, "description")

	switch node.Kind {
	case graph.NodeKindTable:
		node.Table = &graph.TableAttrs{
			Name:        name,
			Kind:        stringProp(row, "table_kind"),
			Description: description,
		}
	case graph.NodeKindField:
		node.Field = &graph.FieldAttrs{
			Table:  stringProp(row, "field_table"),
			Column: stringProp(row, "field_column"),
		}
	case graph.NodeKindIntent:
		node.Intent = &graph.NamedAttrs{Name: name, Description: description}
	case graph.NodeKindPerspective:
		node.Perspective = &graph.NamedAttrs{Name: name, Description: description}
	case graph.NodeKindConcept:
		node.Concept = &graph.NamedAttrs{Name: name, Description: description}
	default:
		return nil, fmt.Errorf("unknown node kind %q for key %q", kind, key)
	}
	return node, nil
}

// edgeToProps flattens an edge; the free-form enrichment map travels as a
// single JSON property so nested attribute values round-trip exactly.
func edgeToProps(e *graph.Edge) (map[string]any, error) {
	extraJSON := ""
	if len(e.Extra) > 0 {
		encoded, err := json.Marshal(e.Extra)
		if err != nil {
			return nil, err
		}
		extraJSON = string(encoded)
	}
	return map[string]any{
		"from_key":          e.From,
		"to_key":            e.To,
		"kind":              string(e.Kind),
		"relationship_kind": e.RelationshipKind,
		"join_column":       e.JoinColumn,
		"weight":            e.Weight,
		"is_primary":        e.IsPrimary,
		"table_alias":       e.TableAlias,
		"extra_json":        extraJSON,
	}, nil
}

func edgeFromRow(row map[string]any) (*graph.Edge, error) {
	from := stringProp(row, "from_key")
	to := stringProp(row, "to_key")
	if from == "" || to == "" {
		return nil, fmt.Errorf("missing endpoints (from=%q, to=%q)", from, to)
	}
	edge := &graph.Edge{
		From:             from,
		To:               to,
		Kind:             graph.EdgeKind(stringProp(row, "kind")),
		RelationshipKind: stringProp(row, "relationship_kind"),
		JoinColumn:       stringProp(row, "join_column"),
		Weight:           floatProp(row, "weight"),
		TableAlias:       stringProp(row, "table_alias"),
	}
	if isPrimary, ok := row["is_primary"].(bool); ok {
		edge.IsPrimary = isPrimary
	}
	if extraJSON := stringProp(row, "extra_json"); extraJSON != "" {
		extra := make(map[string]string)
		if err := json.Unmarshal([]byte(extraJSON), &extra); err != nil {
			return nil, fmt.Errorf("decode edge enrichment: %w", err)
		}
		edge.Extra = extra
	}
	return edge, nil
}

func stringProp(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}

func floatProp(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}
