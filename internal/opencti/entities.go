package opencti

import (
	"context"
	"fmt"
)

type entityEdge struct {
	Node Entity `json:"node"`
}

type entityConnection struct {
	Edges []entityEdge `json:"edges"`
}

// ListEntities lists one entity collection with optional filters, search
// text, ordering and a result cap. Ordering variables are attached only
// when OrderBy is supplied; ordering and paging semantics are the
// platform's, not re-applied client-side.
func (c *Client) ListEntities(ctx context.Context, category Category, opts ListOptions) ([]Entity, error) {
	def, err := category.def()
	if err != nil {
		return nil, err
	}

	document := fmt.Sprintf(`
		query EntityList($filters: FilterGroup, $search: String, $first: Int, $orderBy: %s, $orderMode: OrderingMode) {
			%s(filters: $filters, search: $search, first: $first, orderBy: $orderBy, orderMode: $orderMode) {
				edges {
					node { %s }
				}
			}
		}
	`, def.ordering, def.plural, def.selection)

	variables := map[string]interface{}{}
	if opts.Filters != nil {
		variables["filters"] = opts.Filters
	}
	if opts.Search != "" {
		variables["search"] = opts.Search
	}
	if opts.First > 0 {
		variables["first"] = opts.First
	}
	if opts.OrderBy != "" {
		variables["orderBy"] = opts.OrderBy
		orderMode := opts.OrderMode
		if orderMode == "" {
			orderMode = "desc"
		}
		variables["orderMode"] = orderMode
	}

	payload := map[string]entityConnection{}
	if err := c.query(ctx, document, variables, &payload); err != nil {
		return nil, fmt.Errorf("list %s: %w", def.plural, err)
	}

	connection := payload[def.plural]
	entities := make([]Entity, 0, len(connection.Edges))
	for _, edge := range connection.Edges {
		entities = append(entities, edge.Node)
	}
	return entities, nil
}

// ReadEntity issues a point lookup against one entity collection and
// returns the single match or nil. When several entities share the
// filtered value the platform's first match wins.
func (c *Client) ReadEntity(ctx context.Context, category Category, filters *FilterGroup) (*Entity, error) {
	entities, err := c.ListEntities(ctx, category, ListOptions{Filters: filters, First: 1})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return &entities[0], nil
}

// ReadEntityByID fetches a single entity by its internal OpenCTI id.
// Returns nil when the id does not resolve.
func (c *Client) ReadEntityByID(ctx context.Context, category Category, id string) (*Entity, error) {
	def, err := category.def()
	if err != nil {
		return nil, err
	}

	document := fmt.Sprintf(`
		query EntityRead($id: String!) {
			%s(id: $id) { %s }
		}
	`, def.singular, def.selection)

	payload := map[string]*Entity{}
	if err := c.query(ctx, document, map[string]interface{}{"id": id}, &payload); err != nil {
		return nil, fmt.Errorf("read %s %s: %w", def.singular, id, err)
	}
	return payload[def.singular], nil
}
