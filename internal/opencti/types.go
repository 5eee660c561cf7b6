package opencti

// Filter is a single field constraint in the OpenCTI filter language.
type Filter struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// FilterGroup is the AND/OR filter structure accepted by OpenCTI list and
// read operations. FilterGroups must marshal as an empty array rather than
// null, so constructors always initialize the slice.
type FilterGroup struct {
	Mode         string        `json:"mode"`
	Filters      []Filter      `json:"filters"`
	FilterGroups []FilterGroup `json:"filterGroups"`
}

// ExactName builds the exact-match-by-name filter used for point lookups.
func ExactName(name string) *FilterGroup {
	return &FilterGroup{
		Mode:         "and",
		Filters:      []Filter{{Key: "name", Values: []string{name}}},
		FilterGroups: []FilterGroup{},
	}
}

// ListOptions controls entity listing. Zero values mean "not supplied":
// OrderBy/OrderMode are only attached to the query when OrderBy is set,
// and First is only attached when positive.
type ListOptions struct {
	Filters   *FilterGroup
	Search    string
	OrderBy   string
	OrderMode string
	First     int
}

// Label is an OpenCTI object label.
type Label struct {
	Value string `json:"value"`
}

// Entity is the boundary record for any STIX domain object returned by the
// platform. Fields the platform omits stay at their zero value; defaulting
// to presentable strings happens once in the formatting layer, not here.
type Entity struct {
	ID            string   `json:"id"`
	StandardID    string   `json:"standard_id"`
	EntityType    string   `json:"entity_type"`
	Name          string   `json:"name"`
	Aliases       []string `json:"aliases"`
	Description   string   `json:"description"`
	IdentityClass string   `json:"identity_class"`

	// Report-only fields.
	Published   string  `json:"published"`
	ObjectLabel []Label `json:"objectLabel"`
}

// Endpoint is one side of a STIX core relationship.
type Endpoint struct {
	ID         string `json:"id"`
	StandardID string `json:"standard_id"`
	EntityType string `json:"entity_type"`
	Name       string `json:"name"`
}

// Relationship is a directed edge between two STIX core objects.
type Relationship struct {
	ID   string   `json:"id"`
	Type string   `json:"relationship_type"`
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// RelationshipQuery selects relationships by endpoint. Forward traversal
// sets FromID and ToTypes; reverse traversal sets ToID and FromTypes.
type RelationshipQuery struct {
	FromID    string
	ToID      string
	FromTypes []string
	ToTypes   []string
}

// APIError is a GraphQL-level error returned by the platform. Path holds
// strings and list indices per the GraphQL response format.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Path    []any  `json:"path"`
}
