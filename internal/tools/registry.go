// Package tools exposes the intel query operations as MCP tools over the
// mark3labs/mcp-go server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Ashfaaq98/opencti-mcp/internal/intel"
)

// ServerName is the implementation name advertised to MCP clients.
const ServerName = "OpenCTI MCP Server"

const serverInstructions = `This server exposes a suite of tools for querying and exploring an OpenCTI instance. It supports:

1. Entity Search: Search for STIX entities (malware, intrusion sets, attack patterns, campaigns, vulnerabilities, threat actors, tools, sectors, and reports) by name or keyword.

2. Relationship Traversal: Navigate relationships between entities (e.g., malwares used by intrusion sets, attack patterns/TTPs used by threat actors, vulnerabilities exploited, tools employed, and entities mentioned in reports).

3. Sector-Based Analysis: Query threat actors and intrusion sets targeting specific sectors (e.g., 'What are the top 10 threat actors targeting the Financial Sector?').

4. TTP Analysis: Retrieve TTPs (Tactics, Techniques, Procedures) used by threat actors and intrusion sets, mapped to MITRE ATT&CK framework.

5. Temporal Queries: Get the most recent threat reports, optionally filtered by sector, threat actor, or other criteria, sorted by publication date.

The server does not create new entities; if an entity is not found, an empty result is returned. Set the OPENCTI_URL and OPENCTI_TOKEN environment variables before starting the server.`

// Recorder receives a record of each completed tool invocation. A nil
// Recorder disables auditing.
type Recorder interface {
	Record(ctx context.Context, tool string, args map[string]any, resultCount int, took time.Duration, callErr error)
}

type registry struct {
	svc    *intel.Service
	rec    Recorder
	logger *log.Logger
}

// NewServer builds the MCP server with every query tool registered.
func NewServer(svc *intel.Service, rec Recorder, version string, logger *log.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)
	r := &registry{svc: svc, rec: rec, logger: logger}
	r.register(s)
	return s
}

func (r *registry) record(ctx context.Context, tool string, args map[string]any, resultCount int, took time.Duration, callErr error) {
	if r.rec == nil {
		return
	}
	r.rec.Record(ctx, tool, args, resultCount, took, callErr)
}

// textResult marshals rows to JSON for the text content of a tool result.
func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// nameListTool adapts a list-returning operation taking one string
// parameter. Upstream failures surface as tool errors; "not found" is an
// empty list, not an error.
func nameListTool[T any](r *registry, tool, param string, fn func(context.Context, string) ([]T, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		value, err := req.RequireString(param)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		start := time.Now()
		rows, err := fn(ctx, value)
		r.record(ctx, tool, map[string]any{param: value}, len(rows), time.Since(start), err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool, err)), nil
		}
		return textResult(rows)
	}
}

// limitListTool adapts a list-returning operation taking a string parameter
// and an optional limit (default 10).
func limitListTool[T any](r *registry, tool, param string, fn func(context.Context, string, int) ([]T, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		value, err := req.RequireString(param)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		limit := req.GetInt("limit", intel.DefaultLimit)
		start := time.Now()
		rows, err := fn(ctx, value, limit)
		r.record(ctx, tool, map[string]any{param: value, "limit": limit}, len(rows), time.Since(start), err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool, err)), nil
		}
		return textResult(rows)
	}
}

func searchParam(description string) mcp.ToolOption {
	return mcp.WithString("search_term", mcp.Required(), mcp.Description(description))
}

func limitParam(what string) mcp.ToolOption {
	return mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of %s to return (default: %d)", what, intel.DefaultLimit)))
}

func (r *registry) register(s *server.MCPServer) {
	// Entity search tools
	s.AddTool(mcp.NewTool("search_malware",
		mcp.WithDescription("Search for malware in OpenCTI by a free-text term. Returns STIX ID, name, aliases and description for each match."),
		searchParam("Text to match against malware names, aliases and descriptions"),
	), nameListTool(r, "search_malware", "search_term", r.svc.SearchMalware))

	s.AddTool(mcp.NewTool("search_intrusion_sets",
		mcp.WithDescription("Search for intrusion sets by a free-text term."),
		searchParam("Text to match against intrusion set names, aliases and descriptions"),
	), nameListTool(r, "search_intrusion_sets", "search_term", r.svc.SearchIntrusionSets))

	s.AddTool(mcp.NewTool("search_attack_patterns",
		mcp.WithDescription("Search for attack patterns (MITRE techniques) by text."),
		searchParam("Text to search within attack pattern names and descriptions"),
	), nameListTool(r, "search_attack_patterns", "search_term", r.svc.SearchAttackPatterns))

	s.AddTool(mcp.NewTool("search_campaigns",
		mcp.WithDescription("Search for campaigns in OpenCTI."),
		searchParam("Text to search for within campaign names and descriptions"),
	), nameListTool(r, "search_campaigns", "search_term", r.svc.SearchCampaigns))

	s.AddTool(mcp.NewTool("search_vulnerabilities",
		mcp.WithDescription("Search for vulnerabilities (e.g. CVEs) by text."),
		searchParam("Text to search within vulnerability names (e.g. CVE IDs) and descriptions"),
	), nameListTool(r, "search_vulnerabilities", "search_term", r.svc.SearchVulnerabilities))

	s.AddTool(mcp.NewTool("search_threat_actors",
		mcp.WithDescription("Search for threat actors by name or description."),
		searchParam("Text to search within threat actor names, aliases and descriptions"),
	), nameListTool(r, "search_threat_actors", "search_term", r.svc.SearchThreatActors))

	s.AddTool(mcp.NewTool("search_tools",
		mcp.WithDescription("Search for tools (legitimate utilities or hacker tools) in OpenCTI."),
		searchParam("Text to search within tool names and descriptions"),
	), nameListTool(r, "search_tools", "search_term", r.svc.SearchTools))

	s.AddTool(mcp.NewTool("search_sectors",
		mcp.WithDescription("Search for sectors (industries/verticals), modeled in OpenCTI as Identity entities."),
		searchParam("Text to search for within sector names"),
	), nameListTool(r, "search_sectors", "search_term", r.svc.SearchSectors))

	s.AddTool(mcp.NewTool("search_reports",
		mcp.WithDescription("Search for reports by a free-text term. Returns STIX ID, name (title), published date, labels and description."),
		searchParam("Text to match against report titles, abstracts and descriptions"),
	), nameListTool(r, "search_reports", "search_term", r.svc.SearchReports))

	// Relationship traversal tools
	s.AddTool(mcp.NewTool("get_malwares_of_intrusion_set",
		mcp.WithDescription("Return malwares linked to a given intrusion set through STIX relationships. Returns an empty list if the intrusion set is not found."),
		mcp.WithString("intrusion_set_name", mcp.Required(), mcp.Description("The human-readable name of the intrusion set, e.g. \"APT28\"")),
	), nameListTool(r, "get_malwares_of_intrusion_set", "intrusion_set_name", r.svc.GetMalwaresOfIntrusionSet))

	s.AddTool(mcp.NewTool("get_attack_patterns_of_intrusion_set",
		mcp.WithDescription("Return attack patterns (MITRE techniques) linked to an intrusion set."),
		mcp.WithString("intrusion_set_name", mcp.Required(), mcp.Description("Name of the intrusion set")),
	), nameListTool(r, "get_attack_patterns_of_intrusion_set", "intrusion_set_name", r.svc.GetAttackPatternsOfIntrusionSet))

	s.AddTool(mcp.NewTool("get_tools_used_by_intrusion_set",
		mcp.WithDescription("Return tools associated with an intrusion set."),
		mcp.WithString("intrusion_set_name", mcp.Required(), mcp.Description("Name of the intrusion set whose tools you want to list")),
	), nameListTool(r, "get_tools_used_by_intrusion_set", "intrusion_set_name", r.svc.GetToolsUsedByIntrusionSet))

	s.AddTool(mcp.NewTool("get_vulnerabilities_of_malware",
		mcp.WithDescription("Return vulnerabilities linked to a given malware."),
		mcp.WithString("malware_name", mcp.Required(), mcp.Description("The name of the malware to look up")),
	), nameListTool(r, "get_vulnerabilities_of_malware", "malware_name", r.svc.GetVulnerabilitiesOfMalware))

	s.AddTool(mcp.NewTool("get_malwares_of_report",
		mcp.WithDescription("Return malware objects referenced in a report."),
		mcp.WithString("report_title", mcp.Required(), mcp.Description("The title of the report whose malware you want to list")),
	), nameListTool(r, "get_malwares_of_report", "report_title", r.svc.GetMalwaresOfReport))

	s.AddTool(mcp.NewTool("get_intrusion_sets_of_report",
		mcp.WithDescription("Return intrusion sets referenced in a report."),
		mcp.WithString("report_title", mcp.Required(), mcp.Description("Title of the report whose intrusion sets you want to list")),
	), nameListTool(r, "get_intrusion_sets_of_report", "report_title", r.svc.GetIntrusionSetsOfReport))

	s.AddTool(mcp.NewTool("get_ttps_of_threat_actor",
		mcp.WithDescription("Return TTPs (attack patterns, mapped to MITRE ATT&CK) used by a specific threat actor."),
		mcp.WithString("threat_actor_name", mcp.Required(), mcp.Description("The name of the threat actor to query")),
	), nameListTool(r, "get_ttps_of_threat_actor", "threat_actor_name", r.svc.GetTTPsOfThreatActor))

	s.AddTool(mcp.NewTool("get_ttps_of_intrusion_set",
		mcp.WithDescription("Return TTPs (attack patterns) used by a specific intrusion set."),
		mcp.WithString("intrusion_set_name", mcp.Required(), mcp.Description("The name of the intrusion set to query")),
	), nameListTool(r, "get_ttps_of_intrusion_set", "intrusion_set_name", r.svc.GetTTPsOfIntrusionSet))

	s.AddTool(mcp.NewTool("get_malwares_used_by_threat_actor",
		mcp.WithDescription("Return malware used by a specific threat actor."),
		mcp.WithString("threat_actor_name", mcp.Required(), mcp.Description("The name of the threat actor")),
	), nameListTool(r, "get_malwares_used_by_threat_actor", "threat_actor_name", r.svc.GetMalwaresUsedByThreatActor))

	s.AddTool(mcp.NewTool("get_campaigns_by_threat_actor",
		mcp.WithDescription("Return campaigns attributed to a specific threat actor."),
		mcp.WithString("threat_actor_name", mcp.Required(), mcp.Description("The name of the threat actor")),
	), nameListTool(r, "get_campaigns_by_threat_actor", "threat_actor_name", r.svc.GetCampaignsByThreatActor))

	s.AddTool(mcp.NewTool("get_vulnerabilities_exploited_by_threat_actor",
		mcp.WithDescription("Return vulnerabilities exploited by a specific threat actor."),
		mcp.WithString("threat_actor_name", mcp.Required(), mcp.Description("The name of the threat actor")),
	), nameListTool(r, "get_vulnerabilities_exploited_by_threat_actor", "threat_actor_name", r.svc.GetVulnerabilitiesExploitedByThreatActor))

	// Sector-based analysis tools
	s.AddTool(mcp.NewTool("get_threat_actors_targeting_sector",
		mcp.WithDescription("Return threat actors that target a specific sector (e.g. \"Financial\", \"Healthcare\", \"Government\"). Falls back to a broad search when the exact sector name does not match."),
		mcp.WithString("sector_name", mcp.Required(), mcp.Description("The name of the sector to search for")),
		limitParam("threat actors"),
	), limitListTool(r, "get_threat_actors_targeting_sector", "sector_name", r.svc.GetThreatActorsTargetingSector))

	s.AddTool(mcp.NewTool("get_intrusion_sets_targeting_sector",
		mcp.WithDescription("Return intrusion sets that target a specific sector."),
		mcp.WithString("sector_name", mcp.Required(), mcp.Description("The name of the sector to search for")),
		limitParam("intrusion sets"),
	), limitListTool(r, "get_intrusion_sets_targeting_sector", "sector_name", r.svc.GetIntrusionSetsTargetingSector))

	// Report tools
	s.AddTool(mcp.NewTool("get_report_details",
		mcp.WithDescription("Return detailed information about a single report by exact title. If no report matches, all fields are empty strings."),
		mcp.WithString("report_title", mcp.Required(), mcp.Description("The exact title (name) of the report to retrieve")),
	), r.reportDetailsHandler())

	s.AddTool(mcp.NewTool("get_latest_reports",
		mcp.WithDescription("Return the most recent threat reports, sorted by published date (most recent first)."),
		limitParam("reports"),
	), r.latestReportsHandler())

	s.AddTool(mcp.NewTool("get_latest_reports_by_sector",
		mcp.WithDescription("Return the most recent threat reports that mention a specific sector."),
		mcp.WithString("sector_name", mcp.Required(), mcp.Description("The name or keyword for the sector, e.g. \"financial\", \"healthcare\"")),
		limitParam("reports"),
	), limitListTool(r, "get_latest_reports_by_sector", "sector_name", r.svc.GetLatestReportsBySector))

	s.AddTool(mcp.NewTool("get_latest_reports_mentioning_threat_actor",
		mcp.WithDescription("Return the most recent reports that mention a specific threat actor, merged from both relationship directions and sorted by published date. Falls back to a text search when the actor cannot be resolved by exact name."),
		mcp.WithString("threat_actor_name", mcp.Required(), mcp.Description("The name of the threat actor")),
		limitParam("reports"),
	), limitListTool(r, "get_latest_reports_mentioning_threat_actor", "threat_actor_name", r.svc.GetLatestReportsMentioningThreatActor))
}

func (r *registry) reportDetailsHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("report_title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		start := time.Now()
		row, err := r.svc.GetReportDetails(ctx, title)
		count := 0
		if row.StixID != "" {
			count = 1
		}
		r.record(ctx, "get_report_details", map[string]any{"report_title": title}, count, time.Since(start), err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get_report_details: %v", err)), nil
		}
		return textResult(row)
	}
}

func (r *registry) latestReportsHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", intel.DefaultLimit)
		start := time.Now()
		rows, err := r.svc.GetLatestReports(ctx, limit)
		r.record(ctx, "get_latest_reports", map[string]any{"limit": limit}, len(rows), time.Since(start), err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get_latest_reports: %v", err)), nil
		}
		return textResult(rows)
	}
}
