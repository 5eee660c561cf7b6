package opencti

import (
	"context"
	"fmt"
)

// endpointSelection resolves both sides of a relationship. The from/to
// fields are GraphQL unions, so the id comes from BasicObject, the STIX id
// from StixObject, and the display name from per-type inline fragments.
const endpointSelection = `
	... on BasicObject { id entity_type }
	... on StixObject { standard_id }
	... on IntrusionSet { name }
	... on Malware { name }
	... on ThreatActor { name }
	... on Tool { name }
	... on Vulnerability { name }
	... on Campaign { name }
	... on AttackPattern { name }
	... on Identity { name }
	... on Report { name }
`

type relationshipEdge struct {
	Node Relationship `json:"node"`
}

type relationshipConnection struct {
	Edges []relationshipEdge `json:"edges"`
}

// ListRelationships lists STIX core relationships matching the endpoint
// query, in platform order, one page only. Each record carries both
// endpoints; which one is the counterpart is the caller's business.
func (c *Client) ListRelationships(ctx context.Context, q RelationshipQuery) ([]Relationship, error) {
	document := fmt.Sprintf(`
		query RelationshipList($fromId: StixRef, $toId: StixRef, $fromTypes: [String], $toTypes: [String]) {
			stixCoreRelationships(fromId: $fromId, toId: $toId, fromTypes: $fromTypes, toTypes: $toTypes) {
				edges {
					node {
						id
						relationship_type
						from { %s }
						to { %s }
					}
				}
			}
		}
	`, endpointSelection, endpointSelection)

	variables := map[string]interface{}{}
	if q.FromID != "" {
		variables["fromId"] = q.FromID
	}
	if q.ToID != "" {
		variables["toId"] = q.ToID
	}
	if len(q.FromTypes) > 0 {
		variables["fromTypes"] = q.FromTypes
	}
	if len(q.ToTypes) > 0 {
		variables["toTypes"] = q.ToTypes
	}

	payload := struct {
		StixCoreRelationships relationshipConnection `json:"stixCoreRelationships"`
	}{}
	if err := c.query(ctx, document, variables, &payload); err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}

	relationships := make([]Relationship, 0, len(payload.StixCoreRelationships.Edges))
	for _, edge := range payload.StixCoreRelationships.Edges {
		relationships = append(relationships, edge.Node)
	}
	return relationships, nil
}
