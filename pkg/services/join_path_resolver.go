package services

import (
	"container/heap"
	"errors"

	"github.com/semlens/semlens-engine/pkg/apperrors"
	"github.com/semlens/semlens-engine/pkg/graph"
	"github.com/semlens/semlens-engine/pkg/models"
)

// JoinPathResolver computes deterministic shortest join paths over the
// schema graph, treating relationship edges as traversable in either
// direction. It is a pure query over an immutable graph snapshot and is
// safe for concurrent use.
type JoinPathResolver interface {
	// Resolve returns the ordered join steps from sourceTable to
	// targetTable. When multiple paths have equal total cost, the path
	// whose node-name sequence is lexicographically smallest wins, so two
	// processes loading the same catalog always agree.
	Resolve(sourceTable, targetTable string) ([]models.JoinStep, error)
}

type joinPathResolver struct {
	g *graph.Graph
}

// NewJoinPathResolver creates a resolver over an already-built schema graph.
func NewJoinPathResolver(g *graph.Graph) JoinPathResolver {
	return &joinPathResolver{g: g}
}

var _ JoinPathResolver = (*joinPathResolver)(nil)

func (r *joinPathResolver) Resolve(sourceTable, targetTable string) ([]models.JoinStep, error) {
	source := graph.TableNodeID(sourceTable)
	target := graph.TableNodeID(targetTable)
	if !r.g.HasNode(source) {
		return nil, &apperrors.UnknownNodeError{Node: sourceTable}
	}
	if !r.g.HasNode(target) {
		return nil, &apperrors.UnknownNodeError{Node: targetTable}
	}
	if source == target {
		return []models.JoinStep{}, nil
	}

	// Paths are searched over the canonical orientation (lexicographically
	// smaller endpoint first) and reversed on return when the caller asked
	// for the opposite direction. This keeps Resolve(a, b) and
	// Resolve(b, a) mirror images of each other in addition to being
	// individually deterministic.
	reversed := source > target
	if reversed {
		source, target = target, source
	}

	nodePath, err := r.shortestPath(source, target)
	if err != nil {
		var noPath *apperrors.NoPathError
		if errors.As(err, &noPath) {
			// Report the caller's orientation, not the canonical one.
			return nil, &apperrors.NoPathError{Source: sourceTable, Target: targetTable}
		}
		return nil, err
	}
	if reversed {
		for i, j := 0, len(nodePath)-1; i < j; i, j = i+1, j-1 {
			nodePath[i], nodePath[j] = nodePath[j], nodePath[i]
		}
	}
	return r.toSteps(nodePath), nil
}

// pathCandidate is a priority-queue entry: the accumulated cost of a path
// plus the full node sequence, so equal-cost candidates can be ordered
// lexicographically instead of by map iteration order.
type pathCandidate struct {
	cost float64
	path []string
}

type candidateHeap []*pathCandidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return lexLess(h[i].path, h[j].path)
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(*pathCandidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// shortestPath runs Dijkstra over the undirected projection of the schema
// graph. Edge weights are the relationship costs; with uniform weights the
// search degenerates to BFS. Candidates are settled in (cost, lexicographic
// path) order, so the first time a node is settled its recorded path is the
// deterministic winner.
func (r *joinPathResolver) shortestPath(source, target string) ([]string, error) {
	settled := make(map[string]bool)
	h := &candidateHeap{{cost: 0, path: []string{source}}}
	heap.Init(h)

	for h.Len() > 0 {
		cand := heap.Pop(h).(*pathCandidate)
		last := cand.path[len(cand.path)-1]
		if settled[last] {
			continue
		}
		settled[last] = true
		if last == target {
			return cand.path, nil
		}

		neighbors, err := r.g.Neighbors(last)
		if err != nil {
			return nil, err
		}
		for _, next := range neighbors {
			if settled[next] {
				continue
			}
			edge := r.g.EdgeBetween(last, next)
			path := make([]string, len(cand.path), len(cand.path)+1)
			copy(path, cand.path)
			path = append(path, next)
			heap.Push(h, &pathCandidate{cost: cand.cost + edge.Weight, path: path})
		}
	}

	return nil, &apperrors.NoPathError{Source: source, Target: target}
}

// toSteps converts a node path into join steps, recovering each stored
// relationship's kind and join column. Steps traversed against the catalog
// direction are marked Reversed so the join column's owning side stays
// identifiable.
func (r *joinPathResolver) toSteps(nodePath []string) []models.JoinStep {
	steps := make([]models.JoinStep, 0, len(nodePath)-1)
	for i := 0; i+1 < len(nodePath); i++ {
		from, to := nodePath[i], nodePath[i+1]
		edge := r.g.EdgeBetween(from, to)
		steps = append(steps, models.JoinStep{
			From:             from,
			To:               to,
			RelationshipKind: edge.RelationshipKind,
			JoinColumn:       edge.JoinColumn,
			Reversed:         edge.From != from,
		})
	}
	return steps
}

// lexLess compares two node sequences element by element.
func lexLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
