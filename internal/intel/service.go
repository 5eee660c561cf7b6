package intel

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/Ashfaaq98/opencti-mcp/internal/opencti"
)

// DefaultLimit caps tool results when the caller does not supply a limit.
const DefaultLimit = 10

// GraphClient is the slice of the OpenCTI client the service depends on.
// Tests substitute a fake; production injects *opencti.Client.
type GraphClient interface {
	ReadEntity(ctx context.Context, category opencti.Category, filters *opencti.FilterGroup) (*opencti.Entity, error)
	ReadEntityByID(ctx context.Context, category opencti.Category, id string) (*opencti.Entity, error)
	ListEntities(ctx context.Context, category opencti.Category, opts opencti.ListOptions) ([]opencti.Entity, error)
	ListRelationships(ctx context.Context, q opencti.RelationshipQuery) ([]opencti.Relationship, error)
}

// Service implements the query tools over an injected graph client. Every
// call is stateless: records are fetched fresh and discarded; "not found"
// is an empty result, never an error.
type Service struct {
	graph  GraphClient
	logger *log.Logger
}

// NewService creates a Service around the given graph client.
func NewService(graph GraphClient, logger *log.Logger) *Service {
	return &Service{graph: graph, logger: logger}
}

// findByName resolves an entity by exact name match, returning nil when the
// platform has no match. No fuzzy matching, no case normalization.
func (s *Service) findByName(ctx context.Context, category opencti.Category, name string) (*opencti.Entity, error) {
	return s.graph.ReadEntity(ctx, category, opencti.ExactName(name))
}

// relatedTo expands relationships whose source is fromID, projecting each
// target endpoint. Platform order is preserved.
func (s *Service) relatedTo(ctx context.Context, fromID string, toTypes ...string) ([]RelatedRow, error) {
	relationships, err := s.graph.ListRelationships(ctx, opencti.RelationshipQuery{
		FromID:  fromID,
		ToTypes: toTypes,
	})
	if err != nil {
		return nil, err
	}
	rows := make([]RelatedRow, 0, len(relationships))
	for _, rel := range relationships {
		rows = append(rows, formatEndpoint(rel.To))
	}
	return rows, nil
}

// relatedFrom is the reverse expansion: relationships whose target is toID,
// projecting each source endpoint.
func (s *Service) relatedFrom(ctx context.Context, toID string, fromTypes ...string) ([]RelatedRow, error) {
	relationships, err := s.graph.ListRelationships(ctx, opencti.RelationshipQuery{
		ToID:      toID,
		FromTypes: fromTypes,
	})
	if err != nil {
		return nil, err
	}
	rows := make([]RelatedRow, 0, len(relationships))
	for _, rel := range relationships {
		rows = append(rows, formatEndpoint(rel.From))
	}
	return rows, nil
}

// resolveSector resolves a sector (Identity) by exact name, falling back to
// a free-text search capped at one result. The fallback depends on the
// platform's search ranking; first match wins.
func (s *Service) resolveSector(ctx context.Context, name string) (*opencti.Entity, error) {
	sector, err := s.findByName(ctx, opencti.CategoryIdentity, name)
	if err != nil {
		return nil, err
	}
	if sector != nil {
		return sector, nil
	}
	hits, err := s.graph.ListEntities(ctx, opencti.CategoryIdentity, opencti.ListOptions{Search: name, First: 1})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return &hits[0], nil
}

// searchEntities runs a free-text search over one collection and formats
// the hits.
func (s *Service) searchEntities(ctx context.Context, category opencti.Category, term string) ([]EntityRow, error) {
	entities, err := s.graph.ListEntities(ctx, category, opencti.ListOptions{Search: term})
	if err != nil {
		return nil, err
	}
	rows := make([]EntityRow, 0, len(entities))
	for _, entity := range entities {
		rows = append(rows, formatEntity(entity))
	}
	return rows, nil
}

// traverse resolves an entity by name and expands its forward relationships
// to the given target types. An unresolvable name yields an empty list.
func (s *Service) traverse(ctx context.Context, category opencti.Category, name string, toTypes ...string) ([]RelatedRow, error) {
	entity, err := s.findByName(ctx, category, name)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return []RelatedRow{}, nil
	}
	return s.relatedTo(ctx, entity.ID, toTypes...)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// --- Entity search tools ---

// SearchMalware searches malware objects by a free-text term.
func (s *Service) SearchMalware(ctx context.Context, term string) ([]EntityRow, error) {
	return s.searchEntities(ctx, opencti.CategoryMalware, term)
}

// SearchIntrusionSets searches intrusion sets by a free-text term.
func (s *Service) SearchIntrusionSets(ctx context.Context, term string) ([]EntityRow, error) {
	return s.searchEntities(ctx, opencti.CategoryIntrusionSet, term)
}

// SearchAttackPatterns searches attack patterns (MITRE techniques) by text.
func (s *Service) SearchAttackPatterns(ctx context.Context, term string) ([]EntityRow, error) {
	return s.searchEntities(ctx, opencti.CategoryAttackPattern, term)
}

// SearchCampaigns searches campaigns by a free-text term.
func (s *Service) SearchCampaigns(ctx context.Context, term string) ([]EntityRow, error) {
	return s.searchEntities(ctx, opencti.CategoryCampaign, term)
}

// SearchVulnerabilities searches vulnerabilities (e.g. CVEs) by text.
func (s *Service) SearchVulnerabilities(ctx context.Context, term string) ([]EntityRow, error) {
	return s.searchEntities(ctx, opencti.CategoryVulnerability, term)
}

// SearchThreatActors searches threat actors by name or description.
func (s *Service) SearchThreatActors(ctx context.Context, term string) ([]EntityRow, error) {
	return s.searchEntities(ctx, opencti.CategoryThreatActor, term)
}

// SearchTools searches tools (legitimate utilities or hacker tools).
func (s *Service) SearchTools(ctx context.Context, term string) ([]EntityRow, error) {
	return s.searchEntities(ctx, opencti.CategoryTool, term)
}

// SearchSectors searches sectors, which OpenCTI models as Identity entities.
// Hits whose identity class clearly is not a sector are filtered out.
func (s *Service) SearchSectors(ctx context.Context, term string) ([]SectorRow, error) {
	identities, err := s.graph.ListEntities(ctx, opencti.CategoryIdentity, opencti.ListOptions{Search: term})
	if err != nil {
		return nil, err
	}
	rows := make([]SectorRow, 0, len(identities))
	for _, identity := range identities {
		class := strings.ToLower(identity.IdentityClass)
		if class == "" || strings.Contains(class, "sector") || strings.Contains(class, "class") {
			rows = append(rows, formatSector(identity))
		}
	}
	return rows, nil
}

// SearchReports searches reports by a free-text term.
func (s *Service) SearchReports(ctx context.Context, term string) ([]ReportRow, error) {
	reports, err := s.graph.ListEntities(ctx, opencti.CategoryReport, opencti.ListOptions{Search: term})
	if err != nil {
		return nil, err
	}
	rows := make([]ReportRow, 0, len(reports))
	for _, report := range reports {
		rows = append(rows, formatReport(report))
	}
	return rows, nil
}

// --- Relationship traversal tools ---

// GetMalwaresOfIntrusionSet returns malware linked to an intrusion set.
func (s *Service) GetMalwaresOfIntrusionSet(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryIntrusionSet, name, opencti.CategoryMalware.TypeName())
}

// GetAttackPatternsOfIntrusionSet returns attack patterns linked to an
// intrusion set.
func (s *Service) GetAttackPatternsOfIntrusionSet(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryIntrusionSet, name, opencti.CategoryAttackPattern.TypeName())
}

// GetToolsUsedByIntrusionSet returns tools associated with an intrusion set.
func (s *Service) GetToolsUsedByIntrusionSet(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryIntrusionSet, name, opencti.CategoryTool.TypeName())
}

// GetVulnerabilitiesOfMalware returns vulnerabilities linked to a malware.
func (s *Service) GetVulnerabilitiesOfMalware(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryMalware, name, opencti.CategoryVulnerability.TypeName())
}

// GetMalwaresOfReport returns malware objects referenced in a report.
func (s *Service) GetMalwaresOfReport(ctx context.Context, title string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryReport, title, opencti.CategoryMalware.TypeName())
}

// GetIntrusionSetsOfReport returns intrusion sets referenced in a report.
func (s *Service) GetIntrusionSetsOfReport(ctx context.Context, title string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryReport, title, opencti.CategoryIntrusionSet.TypeName())
}

// GetTTPsOfThreatActor returns attack patterns used by a threat actor.
func (s *Service) GetTTPsOfThreatActor(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryThreatActor, name, opencti.CategoryAttackPattern.TypeName())
}

// GetTTPsOfIntrusionSet returns attack patterns used by an intrusion set.
// Alias of GetAttackPatternsOfIntrusionSet with TTP-focused naming.
func (s *Service) GetTTPsOfIntrusionSet(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.GetAttackPatternsOfIntrusionSet(ctx, name)
}

// GetMalwaresUsedByThreatActor returns malware used by a threat actor.
func (s *Service) GetMalwaresUsedByThreatActor(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryThreatActor, name, opencti.CategoryMalware.TypeName())
}

// GetCampaignsByThreatActor returns campaigns attributed to a threat actor.
func (s *Service) GetCampaignsByThreatActor(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryThreatActor, name, opencti.CategoryCampaign.TypeName())
}

// GetVulnerabilitiesExploitedByThreatActor returns vulnerabilities
// exploited by a threat actor.
func (s *Service) GetVulnerabilitiesExploitedByThreatActor(ctx context.Context, name string) ([]RelatedRow, error) {
	return s.traverse(ctx, opencti.CategoryThreatActor, name, opencti.CategoryVulnerability.TypeName())
}

// GetThreatActorsTargetingSector returns threat actors with relationships
// to the given sector, newest-first per platform order, capped at limit.
func (s *Service) GetThreatActorsTargetingSector(ctx context.Context, sectorName string, limit int) ([]RelatedRow, error) {
	return s.targetingSector(ctx, sectorName, limit, opencti.CategoryThreatActor.TypeName())
}

// GetIntrusionSetsTargetingSector returns intrusion sets with relationships
// to the given sector, capped at limit.
func (s *Service) GetIntrusionSetsTargetingSector(ctx context.Context, sectorName string, limit int) ([]RelatedRow, error) {
	return s.targetingSector(ctx, sectorName, limit, opencti.CategoryIntrusionSet.TypeName())
}

func (s *Service) targetingSector(ctx context.Context, sectorName string, limit int, fromTypes ...string) ([]RelatedRow, error) {
	limit = normalizeLimit(limit)
	sector, err := s.resolveSector(ctx, sectorName)
	if err != nil {
		return nil, err
	}
	if sector == nil {
		return []RelatedRow{}, nil
	}
	rows, err := s.relatedFrom(ctx, sector.ID, fromTypes...)
	if err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// --- Report tools ---

// GetReportDetails returns a single report by exact title. A report that
// cannot be resolved yields a record with every field empty.
func (s *Service) GetReportDetails(ctx context.Context, title string) (ReportRow, error) {
	report, err := s.findByName(ctx, opencti.CategoryReport, title)
	if err != nil {
		return ReportRow{}, err
	}
	if report == nil {
		return ReportRow{}, nil
	}
	return formatReport(*report), nil
}

// GetLatestReports returns the most recent reports, sorted by publication
// date descending by the platform.
func (s *Service) GetLatestReports(ctx context.Context, limit int) ([]ReportRow, error) {
	return s.listReports(ctx, opencti.ListOptions{
		OrderBy:   "published",
		OrderMode: "desc",
		First:     normalizeLimit(limit),
	})
}

// GetLatestReportsBySector returns the most recent reports mentioning a
// sector keyword.
func (s *Service) GetLatestReportsBySector(ctx context.Context, sectorName string, limit int) ([]ReportRow, error) {
	return s.listReports(ctx, opencti.ListOptions{
		Search:    sectorName,
		OrderBy:   "published",
		OrderMode: "desc",
		First:     normalizeLimit(limit),
	})
}

func (s *Service) listReports(ctx context.Context, opts opencti.ListOptions) ([]ReportRow, error) {
	reports, err := s.graph.ListEntities(ctx, opencti.CategoryReport, opts)
	if err != nil {
		return nil, err
	}
	rows := make([]ReportRow, 0, len(reports))
	for _, report := range reports {
		rows = append(rows, formatReport(report))
	}
	return rows, nil
}

// GetLatestReportsMentioningThreatActor returns the most recent reports
// tied to a threat actor. Reports are gathered from both relationship
// directions because the edge can be modeled either way in the graph; the
// two id sets are unioned, each report re-fetched, and the result sorted
// by publication date descending with undated reports last. When the actor
// cannot be resolved by exact name the tool falls back to a free-text
// report search, which trades traversal semantics for relevance ranking.
func (s *Service) GetLatestReportsMentioningThreatActor(ctx context.Context, actorName string, limit int) ([]ReportRow, error) {
	limit = normalizeLimit(limit)

	actor, err := s.findByName(ctx, opencti.CategoryThreatActor, actorName)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return s.GetLatestReportsBySector(ctx, actorName, limit)
	}

	forward, err := s.graph.ListRelationships(ctx, opencti.RelationshipQuery{
		FromID:  actor.ID,
		ToTypes: []string{opencti.CategoryReport.TypeName()},
	})
	if err != nil {
		return nil, err
	}
	reverse, err := s.graph.ListRelationships(ctx, opencti.RelationshipQuery{
		ToID:      actor.ID,
		FromTypes: []string{opencti.CategoryReport.TypeName()},
	})
	if err != nil {
		return nil, err
	}

	// Union the two id sets in first-seen order so repeated calls against
	// unchanged data produce identical output.
	seen := make(map[string]bool)
	ids := make([]string, 0, len(forward)+len(reverse))
	for _, rel := range forward {
		if id := rel.To.ID; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, rel := range reverse {
		if id := rel.From.ID; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	rows := make([]ReportRow, 0, len(ids))
	for _, id := range ids {
		report, err := s.graph.ReadEntityByID(ctx, opencti.CategoryReport, id)
		if err != nil {
			return nil, err
		}
		if report == nil {
			continue
		}
		rows = append(rows, formatReport(*report))
	}

	// Most recent first; reports without a publication date sort last.
	sort.SliceStable(rows, func(i, j int) bool {
		pi, pj := rows[i].Published, rows[j].Published
		if (pi == "") != (pj == "") {
			return pj == ""
		}
		return pi > pj
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
