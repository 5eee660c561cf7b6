package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Ashfaaq98/opencti-mcp/internal/intel"
	"github.com/Ashfaaq98/opencti-mcp/internal/opencti"
)

// stubGraph serves fixed data regardless of the query.
type stubGraph struct {
	entities      []opencti.Entity
	relationships []opencti.Relationship
	err           error
}

func (g *stubGraph) ReadEntity(ctx context.Context, category opencti.Category, filters *opencti.FilterGroup) (*opencti.Entity, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.entities) == 0 {
		return nil, nil
	}
	return &g.entities[0], nil
}

func (g *stubGraph) ReadEntityByID(ctx context.Context, category opencti.Category, id string) (*opencti.Entity, error) {
	if g.err != nil {
		return nil, g.err
	}
	for i := range g.entities {
		if g.entities[i].ID == id {
			return &g.entities[i], nil
		}
	}
	return nil, nil
}

func (g *stubGraph) ListEntities(ctx context.Context, category opencti.Category, opts opencti.ListOptions) ([]opencti.Entity, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.entities, nil
}

func (g *stubGraph) ListRelationships(ctx context.Context, q opencti.RelationshipQuery) ([]opencti.Relationship, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.relationships, nil
}

// captureRecorder remembers the last recorded invocation.
type captureRecorder struct {
	tool        string
	args        map[string]any
	resultCount int
	callErr     error
	calls       int
}

func (c *captureRecorder) Record(ctx context.Context, tool string, args map[string]any, resultCount int, took time.Duration, callErr error) {
	c.tool = tool
	c.args = args
	c.resultCount = resultCount
	c.callErr = callErr
	c.calls++
}

func newTestRegistry(graph *stubGraph, rec Recorder) *registry {
	logger := log.New(io.Discard, "", 0)
	return &registry{
		svc:    intel.NewService(graph, logger),
		rec:    rec,
		logger: logger,
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected single content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestNewServer(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	svc := intel.NewService(&stubGraph{}, logger)

	s := NewServer(svc, nil, "1.0.0", logger)
	if s == nil {
		t.Fatal("expected server instance")
	}
}

func TestSearchToolHandler(t *testing.T) {
	graph := &stubGraph{
		entities: []opencti.Entity{
			{StandardID: "malware--111", Name: "X-Agent", Aliases: []string{"chopstick"}},
			{StandardID: "malware--222", Name: "Sofacy"},
		},
	}
	rec := &captureRecorder{}
	r := newTestRegistry(graph, rec)

	handler := nameListTool(r, "search_malware", "search_term", r.svc.SearchMalware)
	result, err := handler(context.Background(), callRequest("search_malware", map[string]any{"search_term": "agent"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}

	var rows []intel.EntityRow
	if err := json.Unmarshal([]byte(textContent(t, result)), &rows); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(rows) != 2 || rows[0].StixID != "malware--111" {
		t.Errorf("unexpected rows: %+v", rows)
	}

	if rec.calls != 1 || rec.tool != "search_malware" || rec.resultCount != 2 {
		t.Errorf("unexpected audit record: %+v", rec)
	}
	if rec.args["search_term"] != "agent" {
		t.Errorf("unexpected recorded args: %v", rec.args)
	}
}

func TestHandlerMissingParameter(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRegistry(&stubGraph{}, rec)

	handler := nameListTool(r, "search_malware", "search_term", r.svc.SearchMalware)
	result, err := handler(context.Background(), callRequest("search_malware", map[string]any{}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing required parameter")
	}
	if rec.calls != 0 {
		t.Error("rejected request should not be recorded")
	}
}

func TestHandlerUpstreamError(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRegistry(&stubGraph{err: errors.New("platform unavailable")}, rec)

	handler := nameListTool(r, "search_malware", "search_term", r.svc.SearchMalware)
	result, err := handler(context.Background(), callRequest("search_malware", map[string]any{"search_term": "x"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error when the platform is unavailable")
	}
	if rec.calls != 1 || rec.callErr == nil {
		t.Errorf("expected failed call to be recorded with its error, got %+v", rec)
	}
}

func TestLimitToolDefault(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRegistry(&stubGraph{}, rec)

	handler := limitListTool(r, "get_latest_reports_by_sector", "sector_name", r.svc.GetLatestReportsBySector)
	result, err := handler(context.Background(), callRequest("get_latest_reports_by_sector", map[string]any{"sector_name": "energy"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}

	if rec.args["limit"] != intel.DefaultLimit {
		t.Errorf("expected default limit %d to be recorded, got %v", intel.DefaultLimit, rec.args["limit"])
	}
}

func TestReportDetailsHandler(t *testing.T) {
	graph := &stubGraph{
		entities: []opencti.Entity{
			{
				ID: "id-report", StandardID: "report--777",
				Name: "Quarterly Threat Report", Published: "2024-03-01T00:00:00.000Z",
			},
		},
	}
	rec := &captureRecorder{}
	r := newTestRegistry(graph, rec)

	handler := r.reportDetailsHandler()
	result, err := handler(context.Background(), callRequest("get_report_details", map[string]any{"report_title": "Quarterly Threat Report"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	var row intel.ReportRow
	if err := json.Unmarshal([]byte(textContent(t, result)), &row); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if row.StixID != "report--777" {
		t.Errorf("unexpected row: %+v", row)
	}
	if rec.resultCount != 1 {
		t.Errorf("expected result count 1, got %d", rec.resultCount)
	}
}

func TestReportDetailsHandlerMiss(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRegistry(&stubGraph{}, rec)

	handler := r.reportDetailsHandler()
	result, err := handler(context.Background(), callRequest("get_report_details", map[string]any{"report_title": "Missing"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatal("missing report is not a tool error")
	}

	var row intel.ReportRow
	if err := json.Unmarshal([]byte(textContent(t, result)), &row); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if row != (intel.ReportRow{}) {
		t.Errorf("expected all-empty record, got %+v", row)
	}
	if rec.resultCount != 0 {
		t.Errorf("expected result count 0, got %d", rec.resultCount)
	}
}

func TestNilRecorder(t *testing.T) {
	r := newTestRegistry(&stubGraph{}, nil)

	handler := nameListTool(r, "search_malware", "search_term", r.svc.SearchMalware)
	result, err := handler(context.Background(), callRequest("search_malware", map[string]any{"search_term": "x"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}
}
