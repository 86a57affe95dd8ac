// Package graph holds the in-memory graph model shared by the schema graph
// (tables and join relationships) and the semantic graph (intents,
// perspectives, concepts, fields).
//
// A Graph is built once by the catalog loader and treated as immutable
// afterwards; concurrent reads are safe without locking. Rebuilds construct
// a brand-new Graph and swap it in at the service layer.
package graph

import (
	"sort"

	"github.com/semlens/semlens-engine/pkg/apperrors"
)

// NodeKind discriminates the typed attribute payload of a Node.
type NodeKind string

const (
	NodeKindTable       NodeKind = "table"
	NodeKindField       NodeKind = "field"
	NodeKindIntent      NodeKind = "intent"
	NodeKindPerspective NodeKind = "perspective"
	NodeKindConcept     NodeKind = "concept"
)

// TableAttrs describes a table/dataset node in the schema graph.
type TableAttrs struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"` // fact, dimension, reference
	Description string `json:"description,omitempty"`
}

// FieldAttrs describes a concrete (table, column) pair in the semantic graph.
type FieldAttrs struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// NamedAttrs describes intent, perspective, and concept nodes, which share
// the same shape: a unique name plus a description.
type NamedAttrs struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Node is a tagged union: exactly one attribute pointer is non-nil,
// matching Kind. ID is unique within a graph.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`

	Table       *TableAttrs `json:"table,omitempty"`
	Field       *FieldAttrs `json:"field,omitempty"`
	Intent      *NamedAttrs `json:"intent,omitempty"`
	Perspective *NamedAttrs `json:"perspective,omitempty"`
	Concept     *NamedAttrs `json:"concept,omitempty"`
}

// Name returns the human-readable label of the node regardless of kind.
func (n *Node) Name() string {
	switch n.Kind {
	case NodeKindTable:
		return n.Table.Name
	case NodeKindField:
		return n.Field.Table + "." + n.Field.Column
	case NodeKindIntent:
		return n.Intent.Name
	case NodeKindPerspective:
		return n.Perspective.Name
	case NodeKindConcept:
		return n.Concept.Name
	}
	return n.ID
}

// EdgeKind labels the relationship an edge represents.
type EdgeKind string

const (
	// EdgeKindJoin is a schema-graph relationship between two tables.
	// RelationshipKind carries the catalog relationship_type and JoinColumn
	// the column the join is performed on.
	EdgeKindJoin EdgeKind = "JOINS_TO"

	// EdgeKindOperatesWithin links an intent to a perspective; Weight is
	// how strongly the intent engages the perspective.
	EdgeKindOperatesWithin EdgeKind = "OPERATES_WITHIN"

	// EdgeKindUsesDefinition links a perspective to a concept in its
	// vocabulary; Weight is the elevation weight in [0, 1] (values above
	// zero elevate the concept, zero suppresses it).
	EdgeKindUsesDefinition EdgeKind = "USES_DEFINITION"

	// EdgeKindCanMean links a field to a candidate concept. IsPrimary marks
	// the canonical field for the concept and TableAlias is the
	// human-friendly alias used as a deterministic tie-break.
	EdgeKindCanMean EdgeKind = "CAN_MEAN"

	// EdgeKindDirectInfluence links an intent directly to a concept;
	// Weight is restricted to {-1, 0, +1}.
	EdgeKindDirectInfluence EdgeKind = "DIRECT_INFLUENCE"
)

// Edge is a directed, attributed edge. The closed typed fields cover every
// relationship kind; Extra holds only the genuinely free-form enrichment
// attached to join edges (join column descriptions, natural-language
// aliases, example queries, context).
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`

	RelationshipKind string  `json:"relationship_kind,omitempty"` // join edges
	JoinColumn       string  `json:"join_column,omitempty"`       // join edges
	Weight           float64 `json:"weight"`
	IsPrimary        bool    `json:"is_primary,omitempty"`  // CAN_MEAN edges
	TableAlias       string  `json:"table_alias,omitempty"` // CAN_MEAN edges

	Extra map[string]string `json:"extra,omitempty"`
}

// Graph is a directed graph of typed nodes and attributed edges. The
// undirected view required for join-path traversal is provided by Neighbors
// and EdgeBetween, which consider both directions while the stored edge
// keeps its original orientation.
type Graph struct {
	directed bool
	nodes    map[string]*Node
	out      map[string]map[string]*Edge
	in       map[string]map[string]*Edge
}

// New creates an empty directed graph.
func New() *Graph {
	return newGraph(true)
}

// NewUndirected creates an empty graph typed as undirected. Storage is
// identical to a directed graph; the flag records how the graph was
// requested from the persistence store.
func NewUndirected() *Graph {
	return newGraph(false)
}

func newGraph(directed bool) *Graph {
	return &Graph{
		directed: directed,
		nodes:    make(map[string]*Node),
		out:      make(map[string]map[string]*Edge),
		in:       make(map[string]map[string]*Edge),
	}
}

// Directed reports whether the graph was built as directed.
func (g *Graph) Directed() bool { return g.directed }

// AddNode inserts a node. It fails with DuplicateNodeError if the node ID
// is already present.
func (g *Graph) AddNode(n *Node) error {
	if _, exists := g.nodes[n.ID]; exists {
		return &apperrors.DuplicateNodeError{Node: n.ID}
	}
	g.nodes[n.ID] = n
	g.out[n.ID] = make(map[string]*Edge)
	g.in[n.ID] = make(map[string]*Edge)
	return nil
}

// AddEdge inserts a directed edge. It fails with UnknownNodeError if either
// endpoint is absent and with DuplicateEdgeError if an edge already exists
// for the same ordered pair.
func (g *Graph) AddEdge(e *Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return &apperrors.UnknownNodeError{Node: e.From}
	}
	if _, ok := g.nodes[e.To]; !ok {
		return &apperrors.UnknownNodeError{Node: e.To}
	}
	if _, exists := g.out[e.From][e.To]; exists {
		return &apperrors.DuplicateEdgeError{From: e.From, To: e.To}
	}
	g.out[e.From][e.To] = e
	g.in[e.To][e.From] = e
	return nil
}

// Node returns the node with the given ID, if present.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Neighbors returns the IDs adjacent to id in either direction, sorted
// ascending so iteration order is deterministic. It fails with
// UnknownNodeError if the node is absent.
func (g *Graph) Neighbors(id string) ([]string, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, &apperrors.UnknownNodeError{Node: id}
	}
	seen := make(map[string]struct{}, len(g.out[id])+len(g.in[id]))
	for to := range g.out[id] {
		seen[to] = struct{}{}
	}
	for from := range g.in[id] {
		seen[from] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for nid := range seen {
		ids = append(ids, nid)
	}
	sort.Strings(ids)
	return ids, nil
}

// EdgeBetween returns the edge a->b if present, else the edge b->a, else
// nil. The returned edge keeps its stored orientation, so directional
// metadata (e.g. which side owns the join column) stays recoverable.
func (g *Graph) EdgeBetween(a, b string) *Edge {
	if e, ok := g.out[a][b]; ok {
		return e
	}
	if e, ok := g.out[b][a]; ok {
		return e
	}
	return nil
}

// OutEdges returns the edges leaving id, sorted by target ID.
func (g *Graph) OutEdges(id string) []*Edge {
	targets := make([]string, 0, len(g.out[id]))
	for to := range g.out[id] {
		targets = append(targets, to)
	}
	sort.Strings(targets)
	edges := make([]*Edge, 0, len(targets))
	for _, to := range targets {
		edges = append(edges, g.out[id][to])
	}
	return edges
}

// InEdges returns the edges entering id, sorted by source ID.
func (g *Graph) InEdges(id string) []*Edge {
	sources := make([]string, 0, len(g.in[id]))
	for from := range g.in[id] {
		sources = append(sources, from)
	}
	sort.Strings(sources)
	edges := make([]*Edge, 0, len(sources))
	for _, from := range sources {
		edges = append(edges, g.in[id][from])
	}
	return edges
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []*Node {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Edges returns all edges sorted by (From, To).
func (g *Graph) Edges() []*Edge {
	var edges []*Edge
	froms := make([]string, 0, len(g.out))
	for from := range g.out {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		targets := make([]string, 0, len(g.out[from]))
		for to := range g.out[from] {
			targets = append(targets, to)
		}
		sort.Strings(targets)
		for _, to := range targets {
			edges = append(edges, g.out[from][to])
		}
	}
	return edges
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, targets := range g.out {
		count += len(targets)
	}
	return count
}
