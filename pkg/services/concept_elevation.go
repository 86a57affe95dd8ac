package services

import (
	"fmt"
	"sort"

	"github.com/semlens/semlens-engine/pkg/apperrors"
	"github.com/semlens/semlens-engine/pkg/graph"
	"github.com/semlens/semlens-engine/pkg/models"
)

// ConceptElevationResolver decides which concept, and therefore which
// (table, column), is authoritative when a field name carries competing
// meanings across tables. It is a pure query over an immutable semantic
// graph snapshot and is safe for concurrent use.
type ConceptElevationResolver interface {
	// Resolve picks the winning concept for fieldName under the given
	// intent. tableScope, when non-empty, restricts the primary-field
	// lookup to one table; callers pass it when a previous resolution
	// reported table-level ambiguity.
	Resolve(intentName, fieldName, tableScope string) (*models.ConceptResolution, error)
}

type conceptElevationResolver struct {
	g *graph.Graph
}

// NewConceptElevationResolver creates a resolver over an already-built
// semantic graph.
func NewConceptElevationResolver(g *graph.Graph) ConceptElevationResolver {
	return &conceptElevationResolver{g: g}
}

var _ ConceptElevationResolver = (*conceptElevationResolver)(nil)

// conceptScore accumulates the elevation evidence for one candidate concept.
type conceptScore struct {
	concept string
	score   float64

	// decidingPerspective is the qualifying perspective contributing the
	// largest share of the score, kept for the audit rationale.
	decidingPerspective string
	decidingWeight      float64
	directWeight        float64

	// canMean holds the CAN_MEAN edges naming this concept for the
	// ambiguous field, one per table.
	canMean []*graph.Edge
}

func (r *conceptElevationResolver) Resolve(intentName, fieldName, tableScope string) (*models.ConceptResolution, error) {
	intentID := graph.IntentNodeID(intentName)
	if !r.g.HasNode(intentID) {
		return nil, &apperrors.UnknownNodeError{Node: intentName}
	}

	candidates := r.collectCandidates(fieldName)
	if len(candidates) == 0 {
		return nil, &apperrors.NoApplicableConceptError{Intent: intentName, Field: fieldName}
	}

	r.scoreCandidates(intentID, candidates)

	winner, tieBroken, err := pickWinner(intentName, fieldName, candidates)
	if err != nil {
		return nil, err
	}

	table, column, err := r.resolvePrimaryField(intentName, fieldName, tableScope, winner)
	if err != nil {
		return nil, err
	}

	return &models.ConceptResolution{
		Concept:   winner.concept,
		Table:     table,
		Column:    column,
		Rationale: buildRationale(intentName, winner, tieBroken),
	}, nil
}

// collectCandidates gathers, per concept, the CAN_MEAN edges whose field
// column matches the ambiguous name, across all tables. It walks the
// incoming edges of each concept node; node and edge iteration are both
// sorted, so candidate discovery is deterministic.
func (r *conceptElevationResolver) collectCandidates(fieldName string) map[string]*conceptScore {
	candidates := make(map[string]*conceptScore)
	for _, node := range r.g.Nodes() {
		if node.Kind != graph.NodeKindConcept {
			continue
		}
		for _, edge := range r.g.InEdges(node.ID) {
			if edge.Kind != graph.EdgeKindCanMean {
				continue
			}
			fieldNode, ok := r.g.Node(edge.From)
			if !ok || fieldNode.Kind != graph.NodeKindField || fieldNode.Field.Column != fieldName {
				continue
			}
			name := node.Concept.Name
			cand, ok := candidates[name]
			if !ok {
				cand = &conceptScore{concept: name}
				candidates[name] = cand
			}
			cand.canMean = append(cand.canMean, edge)
		}
	}
	return candidates
}

// scoreCandidates computes, for every candidate concept c,
//
//	score(c) = sum over qualifying perspectives p of
//	           operates_weight(intent, p) * elevation_weight(p, c)
//	         + direct intent weight in {-1, 0, +1}
//
// where a perspective qualifies when the intent operates within it and it
// uses the concept's definition.
func (r *conceptElevationResolver) scoreCandidates(intentID string, candidates map[string]*conceptScore) {
	for _, cand := range candidates {
		conceptID := graph.ConceptNodeID(cand.concept)

		for _, opEdge := range r.g.OutEdges(intentID) {
			if opEdge.Kind != graph.EdgeKindOperatesWithin {
				continue
			}
			useEdge := r.g.EdgeBetween(opEdge.To, conceptID)
			if useEdge == nil || useEdge.Kind != graph.EdgeKindUsesDefinition || useEdge.From != opEdge.To {
				continue
			}
			contribution := opEdge.Weight * useEdge.Weight
			cand.score += contribution
			if perspective, ok := r.g.Node(opEdge.To); ok {
				if cand.decidingPerspective == "" || contribution > cand.decidingWeight {
					cand.decidingPerspective = perspective.Perspective.Name
					cand.decidingWeight = contribution
				}
			}
		}

		if direct := r.g.EdgeBetween(intentID, conceptID); direct != nil &&
			direct.Kind == graph.EdgeKindDirectInfluence && direct.From == intentID {
			cand.directWeight = direct.Weight
			cand.score += direct.Weight
		}
	}
}

// pickWinner selects the candidate with the strictly highest score. Exact
// ties fall back to the smallest CAN_MEAN table alias, then to the concept
// name; a tie surviving both tie-breaks is reported with all candidates.
func pickWinner(intentName, fieldName string, candidates map[string]*conceptScore) (*conceptScore, bool, error) {
	ranked := make([]*conceptScore, 0, len(candidates))
	for _, cand := range candidates {
		sort.Slice(cand.canMean, func(i, j int) bool {
			return cand.canMean[i].TableAlias < cand.canMean[j].TableAlias
		})
		ranked = append(ranked, cand)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].minAlias() != ranked[j].minAlias() {
			return ranked[i].minAlias() < ranked[j].minAlias()
		}
		return ranked[i].concept < ranked[j].concept
	})

	if len(ranked) == 1 {
		return ranked[0], false, nil
	}

	top, second := ranked[0], ranked[1]
	if top.score > second.score {
		return top, false, nil
	}
	if top.minAlias() == second.minAlias() && top.concept == second.concept {
		// Unreachable in practice: concept names are unique. Kept as a
		// guard against a degenerate catalog.
		return nil, false, tiedError(intentName, fieldName, ranked, top.score)
	}
	return top, true, nil
}

func tiedError(intentName, fieldName string, ranked []*conceptScore, topScore float64) error {
	var tied []string
	for _, cand := range ranked {
		if cand.score == topScore {
			tied = append(tied, cand.concept)
		}
	}
	return &apperrors.AmbiguousResolutionError{
		Intent:     intentName,
		Field:      fieldName,
		Candidates: tied,
		Reason:     fmt.Sprintf("top elevation score %.3f tied after all tie-breaks", topScore),
	}
}

func (c *conceptScore) minAlias() string {
	if len(c.canMean) == 0 {
		return ""
	}
	return c.canMean[0].TableAlias
}

// resolvePrimaryField maps the winning concept back to a single
// (table, column). The concept's primary CAN_MEAN edge wins; with more
// than one primary across tables the resolution is ambiguous at the table
// level unless the caller supplied a scoping hint.
func (r *conceptElevationResolver) resolvePrimaryField(intentName, fieldName, tableScope string, winner *conceptScore) (string, string, error) {
	var primaries []*graph.Edge
	for _, edge := range winner.canMean {
		fieldNode, ok := r.g.Node(edge.From)
		if !ok {
			continue
		}
		if tableScope != "" && fieldNode.Field.Table != tableScope {
			continue
		}
		if edge.IsPrimary {
			primaries = append(primaries, edge)
		}
	}

	switch len(primaries) {
	case 1:
		fieldNode, _ := r.g.Node(primaries[0].From)
		return fieldNode.Field.Table, fieldNode.Field.Column, nil
	case 0:
		reason := fmt.Sprintf("winning concept %q has no primary field", winner.concept)
		if tableScope != "" {
			reason = fmt.Sprintf("winning concept %q has no primary field in table %q", winner.concept, tableScope)
		}
		return "", "", &apperrors.AmbiguousResolutionError{
			Intent:     intentName,
			Field:      fieldName,
			Candidates: []string{winner.concept},
			Reason:     reason,
		}
	default:
		tables := make([]string, 0, len(primaries))
		for _, edge := range primaries {
			fieldNode, _ := r.g.Node(edge.From)
			tables = append(tables, fieldNode.Field.Table)
		}
		sort.Strings(tables)
		return "", "", &apperrors.AmbiguousResolutionError{
			Intent:     intentName,
			Field:      fieldName,
			Candidates: tables,
			Reason: fmt.Sprintf("winning concept %q has primary fields in multiple tables; pass a table scope",
				winner.concept),
		}
	}
}

// buildRationale names the deciding perspective or intent edge so the
// resolution can be audited against the catalog.
func buildRationale(intentName string, winner *conceptScore, tieBroken bool) string {
	rationale := fmt.Sprintf("concept %q scored %.3f for intent %q", winner.concept, winner.score, intentName)
	if winner.decidingPerspective != "" {
		rationale += fmt.Sprintf("; elevated by perspective %q (contribution %.3f)",
			winner.decidingPerspective, winner.decidingWeight)
	}
	if winner.directWeight != 0 {
		rationale += fmt.Sprintf("; direct intent influence %+.0f", winner.directWeight)
	}
	if tieBroken {
		rationale += fmt.Sprintf("; tie broken by table alias %q", winner.minAlias())
	}
	return rationale
}
