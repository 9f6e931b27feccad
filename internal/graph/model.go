// Package graph holds the character social network built from aggregated
// relation counts.
//
// Characters are nodes keyed by QID; each character pair with at least one
// counted relation gets one undirected edge labelled with its dominant
// relation. Community detection adds community nodes and member_of edges.
package graph

// NodeLabel represents the type of a graph node.
type NodeLabel string

const (
	NodeCharacter NodeLabel = "character"
	NodeCommunity NodeLabel = "community"
)

// RelType represents the type of relationship between graph nodes.
type RelType string

const (
	// RelRelated is the undirected social edge between two characters.
	// Source is always the lower QID.
	RelRelated  RelType = "related"
	RelMemberOf RelType = "member_of"
)

// GraphNode represents a node in the graph.
type GraphNode struct {
	// ID is the unique identifier for the node. Format: {label}:{key}
	ID string `json:"id"`

	Label NodeLabel `json:"label"`

	// Name is the display name: the canonical roster name for characters.
	Name string `json:"name"`

	// QID is the roster identifier; empty for community nodes.
	QID string `json:"qid,omitempty"`

	Aliases []string `json:"aliases,omitempty"`

	// Mentions is the mention frequency used for sizing.
	Mentions int `json:"mentions"`

	// Size is the display size scaled into [MinNodeSize, MaxNodeSize].
	Size float64 `json:"size"`

	// Unresolved marks the shared node for mentions missing from the roster.
	Unresolved bool `json:"unresolved,omitempty"`

	// Community is the index of the community the node belongs to, or -1.
	Community int `json:"community"`

	Properties map[string]any `json:"properties,omitempty"`
}

// GraphRelationship represents an edge in the graph.
type GraphRelationship struct {
	ID     string  `json:"id"`
	Type   RelType `json:"type"`
	Source string  `json:"source"`
	Target string  `json:"target"`

	// Relation is the dominant relation label of a related edge.
	Relation string `json:"relation,omitempty"`

	// Weight is the count of the dominant relation.
	Weight int `json:"weight"`

	// Width is the display width scaled into [MinEdgeWidth, MaxEdgeWidth].
	Width float64 `json:"width,omitempty"`

	// Counts holds the count of every relation observed for the pair.
	Counts map[string]int `json:"counts,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
}

// GenerateID creates a deterministic node ID from a label and key.
func GenerateID(label NodeLabel, key string) string {
	return string(label) + ":" + key
}

// EdgeID creates the ID of the related edge between two QIDs. The pair is
// sorted so both orders give the same ID.
func EdgeID(q1, q2 string) string {
	if q2 < q1 {
		q1, q2 = q2, q1
	}
	return string(RelRelated) + ":" + q1 + "|" + q2
}
