package graph

import (
	"errors"
	"testing"

	"github.com/semlens/semlens-engine/pkg/apperrors"
)

func tableNode(name string) *Node {
	return &Node{ID: TableNodeID(name), Kind: NodeKindTable, Table: &TableAttrs{Name: name, Kind: "fact"}}
}

func TestAddNode_Duplicate(t *testing.T) {
	g := New()
	if err := g.AddNode(tableNode("orders")); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	err := g.AddNode(tableNode("orders"))
	var dup *apperrors.DuplicateNodeError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateNodeError, got %v", err)
	}
	if dup.Node != "orders" {
		t.Errorf("Node = %q, want %q", dup.Node, "orders")
	}
}

func TestAddEdge_UnknownEndpoint(t *testing.T) {
	g := New()
	if err := g.AddNode(tableNode("orders")); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	err := g.AddEdge(&Edge{From: "orders", To: "customers", Kind: EdgeKindJoin})
	var unknown *apperrors.UnknownNodeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownNodeError, got %v", err)
	}
	if unknown.Node != "customers" {
		t.Errorf("Node = %q, want %q", unknown.Node, "customers")
	}
}

func TestAddEdge_DuplicateOrderedPair(t *testing.T) {
	g := New()
	for _, name := range []string{"orders", "customers"} {
		if err := g.AddNode(tableNode(name)); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", name, err)
		}
	}
	if err := g.AddEdge(&Edge{From: "orders", To: "customers", Kind: EdgeKindJoin}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	err := g.AddEdge(&Edge{From: "orders", To: "customers", Kind: EdgeKindJoin})
	var dup *apperrors.DuplicateEdgeError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateEdgeError, got %v", err)
	}

	// The reverse direction is a distinct relationship and stays allowed.
	if err := g.AddEdge(&Edge{From: "customers", To: "orders", Kind: EdgeKindJoin}); err != nil {
		t.Errorf("reverse edge should be allowed, got %v", err)
	}
}

func TestNeighbors_SortedAndBidirectional(t *testing.T) {
	g := New()
	for _, name := range []string{"product", "equipment", "order", "zone"} {
		if err := g.AddNode(tableNode(name)); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", name, err)
		}
	}
	edges := []*Edge{
		{From: "product", To: "order", Kind: EdgeKindJoin},
		{From: "equipment", To: "product", Kind: EdgeKindJoin}, // incoming to product
		{From: "product", To: "zone", Kind: EdgeKindJoin},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}

	got, err := g.Neighbors("product")
	if err != nil {
		t.Fatalf("Neighbors failed: %v", err)
	}
	want := []string{"equipment", "order", "zone"}
	if len(got) != len(want) {
		t.Fatalf("Neighbors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Neighbors[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := g.Neighbors("missing"); err == nil {
		t.Error("expected UnknownNodeError for missing node")
	}
}

func TestEdgeBetween_PreservesOrientation(t *testing.T) {
	g := New()
	for _, name := range []string{"orders", "customers"} {
		if err := g.AddNode(tableNode(name)); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", name, err)
		}
	}
	edge := &Edge{
		From:             "orders",
		To:               "customers",
		Kind:             EdgeKindJoin,
		RelationshipKind: "belongs_to",
		JoinColumn:       "customer_id",
		Weight:           1,
	}
	if err := g.AddEdge(edge); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	// Lookup must succeed in both directions and return the stored edge
	// with its original orientation intact.
	for _, pair := range [][2]string{{"orders", "customers"}, {"customers", "orders"}} {
		got := g.EdgeBetween(pair[0], pair[1])
		if got == nil {
			t.Fatalf("EdgeBetween(%q, %q) = nil", pair[0], pair[1])
		}
		if got.From != "orders" || got.To != "customers" {
			t.Errorf("edge orientation lost: %q -> %q", got.From, got.To)
		}
		if got.JoinColumn != "customer_id" {
			t.Errorf("JoinColumn = %q, want customer_id", got.JoinColumn)
		}
	}

	if got := g.EdgeBetween("orders", "orders"); got != nil {
		t.Errorf("EdgeBetween for absent pair = %+v, want nil", got)
	}
}

func TestDirectionalEdges_SortedByEndpoint(t *testing.T) {
	g := New()
	for _, name := range []string{"hub", "zeta", "alpha", "mid"} {
		if err := g.AddNode(tableNode(name)); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", name, err)
		}
	}
	for _, pair := range [][2]string{
		{"hub", "zeta"}, {"hub", "alpha"},
		{"zeta", "hub"}, {"mid", "hub"},
	} {
		err := g.AddEdge(&Edge{From: pair[0], To: pair[1], Kind: EdgeKindJoin, JoinColumn: "id", Weight: 1})
		if err != nil {
			t.Fatalf("AddEdge(%s->%s) failed: %v", pair[0], pair[1], err)
		}
	}

	out := g.OutEdges("hub")
	if len(out) != 2 || out[0].To != "alpha" || out[1].To != "zeta" {
		t.Errorf("OutEdges(hub) targets not sorted: %+v", out)
	}
	in := g.InEdges("hub")
	if len(in) != 2 || in[0].From != "mid" || in[1].From != "zeta" {
		t.Errorf("InEdges(hub) sources not sorted: %+v", in)
	}
	if edges := g.InEdges("alpha"); len(edges) != 1 || edges[0].From != "hub" {
		t.Errorf("InEdges(alpha) = %+v, want single edge from hub", edges)
	}
}

func TestNodesAndEdges_Deterministic(t *testing.T) {
	g := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := g.AddNode(tableNode(name)); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", name, err)
		}
	}
	if err := g.AddEdge(&Edge{From: "zeta", To: "alpha", Kind: EdgeKindJoin}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := g.AddEdge(&Edge{From: "alpha", To: "mid", Kind: EdgeKindJoin}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	nodes := g.Nodes()
	wantOrder := []string{"alpha", "mid", "zeta"}
	for i, n := range nodes {
		if n.ID != wantOrder[i] {
			t.Errorf("Nodes[%d] = %q, want %q", i, n.ID, wantOrder[i])
		}
	}

	edges := g.Edges()
	if len(edges) != 2 || edges[0].From != "alpha" || edges[1].From != "zeta" {
		t.Errorf("Edges order not deterministic: %+v", edges)
	}

	if g.NodeCount() != 3 || g.EdgeCount() != 2 {
		t.Errorf("counts = (%d, %d), want (3, 2)", g.NodeCount(), g.EdgeCount())
	}
}

func TestNodeName(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"table", tableNode("orders"), "orders"},
		{"field", &Node{ID: FieldNodeID("defects", "severity"), Kind: NodeKindField, Field: &FieldAttrs{Table: "defects", Column: "severity"}}, "defects.severity"},
		{"intent", &Node{ID: IntentNodeID("quality-review"), Kind: NodeKindIntent, Intent: &NamedAttrs{Name: "quality-review"}}, "quality-review"},
		{"concept", &Node{ID: ConceptNodeID("MATERIAL_NON_CONFORMANCE"), Kind: NodeKindConcept, Concept: &NamedAttrs{Name: "MATERIAL_NON_CONFORMANCE"}}, "MATERIAL_NON_CONFORMANCE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}
