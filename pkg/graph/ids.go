package graph

// Node IDs in the semantic graph are namespaced by kind so that an intent
// and a concept may share a name without colliding. Schema-graph table
// nodes use the bare table name, since tables are the only node kind there.

// TableNodeID returns the node ID for a table in the schema graph.
func TableNodeID(table string) string { return table }

// FieldNodeID returns the node ID for a (table, column) field node.
func FieldNodeID(table, column string) string { return "field/" + table + "." + column }

// IntentNodeID returns the node ID for an intent.
func IntentNodeID(name string) string { return "intent/" + name }

// PerspectiveNodeID returns the node ID for a perspective.
func PerspectiveNodeID(name string) string { return "perspective/" + name }

// ConceptNodeID returns the node ID for a concept.
func ConceptNodeID(name string) string { return "concept/" + name }
