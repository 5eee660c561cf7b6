package opencti

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newMockServer creates a mock OpenCTI server. The GraphQL handler records
// each request body into captured and serves the canned response.
func newMockServer(t *testing.T, graphqlResponse map[string]interface{}, captured *graphQLRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/settings/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"version": "6.2.0"})
	})

	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "user-123"})
	})

	mux.HandleFunc("/api/graphql", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			if err := json.Unmarshal(body, captured); err != nil {
				t.Errorf("failed to decode graphql request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(graphqlResponse)
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Config{URL: url, Token: "test-token"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(Config{URL: "http://localhost:8080"}, log.New(io.Discard, "", 0))
	if err != ErrMissingToken {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{Token: "test-token"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if client.baseURL != DefaultURL {
		t.Errorf("expected base URL %s, got %s", DefaultURL, client.baseURL)
	}

	client, err = NewClient(Config{URL: "http://cti.example.com/", Token: "test-token"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if client.baseURL != "http://cti.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", client.baseURL)
	}
}

func TestHealthCheckAndValidateToken(t *testing.T) {
	server := newMockServer(t, nil, nil)
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("health check failed: %v", err)
	}
	if err := client.ValidateToken(ctx); err != nil {
		t.Errorf("token validation failed: %v", err)
	}
}

func TestValidateTokenRejected(t *testing.T) {
	server := newMockServer(t, nil, nil)
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, Token: "wrong-token"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.ValidateToken(context.Background()); err == nil {
		t.Error("expected error for rejected token")
	}
}

func TestListEntities(t *testing.T) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"malwares": map[string]interface{}{
				"edges": []map[string]interface{}{
					{
						"node": map[string]interface{}{
							"id":          "internal-1",
							"standard_id": "malware--111",
							"entity_type": "Malware",
							"name":        "X-Agent",
							"aliases":     []string{"chopstick"},
							"description": "Modular backdoor",
						},
					},
					{
						"node": map[string]interface{}{
							"id":          "internal-2",
							"standard_id": "malware--222",
							"entity_type": "Malware",
							"name":        "Sofacy",
						},
					},
				},
			},
		},
	}

	var captured graphQLRequest
	server := newMockServer(t, response, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	entities, err := client.ListEntities(context.Background(), CategoryMalware, ListOptions{
		Search: "agent",
		First:  25,
	})
	if err != nil {
		t.Fatalf("list entities failed: %v", err)
	}

	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}
	if entities[0].StandardID != "malware--111" || entities[0].Name != "X-Agent" {
		t.Errorf("unexpected first entity: %+v", entities[0])
	}
	if len(entities[0].Aliases) != 1 || entities[0].Aliases[0] != "chopstick" {
		t.Errorf("unexpected aliases: %v", entities[0].Aliases)
	}

	if captured.Variables["search"] != "agent" {
		t.Errorf("expected search variable, got %v", captured.Variables)
	}
	if captured.Variables["first"] != float64(25) {
		t.Errorf("expected first variable, got %v", captured.Variables)
	}
	if _, ok := captured.Variables["orderBy"]; ok {
		t.Error("orderBy should not be attached when unset")
	}
}

func TestListEntitiesOrdering(t *testing.T) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"reports": map[string]interface{}{"edges": []map[string]interface{}{}},
		},
	}

	var captured graphQLRequest
	server := newMockServer(t, response, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	entities, err := client.ListEntities(context.Background(), CategoryReport, ListOptions{
		OrderBy: "published",
		First:   10,
	})
	if err != nil {
		t.Fatalf("list entities failed: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("expected empty result, got %d entities", len(entities))
	}

	if captured.Variables["orderBy"] != "published" {
		t.Errorf("expected orderBy variable, got %v", captured.Variables)
	}
	if captured.Variables["orderMode"] != "desc" {
		t.Errorf("expected orderMode to default to desc, got %v", captured.Variables["orderMode"])
	}
}

func TestReadEntity(t *testing.T) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"intrusionSets": map[string]interface{}{
				"edges": []map[string]interface{}{
					{
						"node": map[string]interface{}{
							"id":          "internal-9",
							"standard_id": "intrusion-set--123",
							"entity_type": "Intrusion-Set",
							"name":        "APT28",
						},
					},
				},
			},
		},
	}

	var captured graphQLRequest
	server := newMockServer(t, response, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	entity, err := client.ReadEntity(context.Background(), CategoryIntrusionSet, ExactName("APT28"))
	if err != nil {
		t.Fatalf("read entity failed: %v", err)
	}
	if entity == nil {
		t.Fatal("expected entity, got nil")
	}
	if entity.StandardID != "intrusion-set--123" {
		t.Errorf("unexpected stix id: %s", entity.StandardID)
	}

	// The exact-name filter must marshal filterGroups as [], never null.
	filters, ok := captured.Variables["filters"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected filters variable, got %v", captured.Variables)
	}
	groups, ok := filters["filterGroups"].([]interface{})
	if !ok || groups == nil {
		t.Errorf("expected filterGroups to be an empty array, got %v", filters["filterGroups"])
	}
}

func TestReadEntityNotFound(t *testing.T) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"intrusionSets": map[string]interface{}{"edges": []map[string]interface{}{}},
		},
	}

	server := newMockServer(t, response, nil)
	defer server.Close()

	client := newTestClient(t, server.URL)
	entity, err := client.ReadEntity(context.Background(), CategoryIntrusionSet, ExactName("DoesNotExist"))
	if err != nil {
		t.Fatalf("read entity failed: %v", err)
	}
	if entity != nil {
		t.Errorf("expected nil entity, got %+v", entity)
	}
}

func TestReadEntityByID(t *testing.T) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"report": map[string]interface{}{
				"id":          "internal-7",
				"standard_id": "report--777",
				"entity_type": "Report",
				"name":        "Quarterly Threat Report",
				"published":   "2024-03-01T00:00:00.000Z",
				"objectLabel": []map[string]interface{}{{"value": "apt"}},
			},
		},
	}

	server := newMockServer(t, response, nil)
	defer server.Close()

	client := newTestClient(t, server.URL)
	entity, err := client.ReadEntityByID(context.Background(), CategoryReport, "internal-7")
	if err != nil {
		t.Fatalf("read entity by id failed: %v", err)
	}
	if entity == nil {
		t.Fatal("expected entity, got nil")
	}
	if entity.Published != "2024-03-01T00:00:00.000Z" {
		t.Errorf("unexpected published: %s", entity.Published)
	}
	if len(entity.ObjectLabel) != 1 || entity.ObjectLabel[0].Value != "apt" {
		t.Errorf("unexpected labels: %v", entity.ObjectLabel)
	}
}

func TestListRelationships(t *testing.T) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"stixCoreRelationships": map[string]interface{}{
				"edges": []map[string]interface{}{
					{
						"node": map[string]interface{}{
							"id":                "rel-1",
							"relationship_type": "uses",
							"from": map[string]interface{}{
								"id":          "internal-9",
								"standard_id": "intrusion-set--123",
								"entity_type": "Intrusion-Set",
								"name":        "APT28",
							},
							"to": map[string]interface{}{
								"id":          "internal-1",
								"standard_id": "malware--111",
								"entity_type": "Malware",
								"name":        "X-Agent",
							},
						},
					},
				},
			},
		},
	}

	var captured graphQLRequest
	server := newMockServer(t, response, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	relationships, err := client.ListRelationships(context.Background(), RelationshipQuery{
		FromID:  "internal-9",
		ToTypes: []string{"Malware"},
	})
	if err != nil {
		t.Fatalf("list relationships failed: %v", err)
	}

	if len(relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(relationships))
	}
	rel := relationships[0]
	if rel.Type != "uses" {
		t.Errorf("unexpected relationship type: %s", rel.Type)
	}
	if rel.To.StandardID != "malware--111" || rel.To.Name != "X-Agent" {
		t.Errorf("unexpected to endpoint: %+v", rel.To)
	}

	if captured.Variables["fromId"] != "internal-9" {
		t.Errorf("expected fromId variable, got %v", captured.Variables)
	}
	if _, ok := captured.Variables["toId"]; ok {
		t.Error("toId should not be attached when unset")
	}
}

func TestQueryGraphQLErrors(t *testing.T) {
	response := map[string]interface{}{
		"data": nil,
		"errors": []map[string]interface{}{
			{"message": "You must be logged in", "path": []interface{}{"malwares"}},
		},
	}

	server := newMockServer(t, response, nil)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ListEntities(context.Background(), CategoryMalware, ListOptions{})
	if err == nil {
		t.Fatal("expected error from graphql error payload")
	}
}

func TestQueryHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ListEntities(context.Background(), CategoryMalware, ListOptions{})
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestUnknownCategory(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")
	_, err := client.ListEntities(context.Background(), Category("nonsense"), ListOptions{})
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
}
