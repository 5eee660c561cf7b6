package intel

import (
	"strings"

	"github.com/Ashfaaq98/opencti-mcp/internal/opencti"
)

// EntityRow is the flat record returned for entity search and lookup tools.
type EntityRow struct {
	StixID      string `json:"stix_id"`
	Name        string `json:"name"`
	Aliases     string `json:"aliases"`
	Description string `json:"description"`
}

// RelatedRow is the flat record returned for relationship traversal tools.
type RelatedRow struct {
	StixID string `json:"stix_id"`
	Name   string `json:"name"`
}

// ReportRow is the flat record returned for report-bearing tools. A zero
// ReportRow is the documented not-found result: every field empty.
type ReportRow struct {
	StixID      string `json:"stix_id"`
	Name        string `json:"name"`
	Published   string `json:"published"`
	Labels      string `json:"labels"`
	Description string `json:"description"`
}

// SectorRow is the flat record returned by sector search.
type SectorRow struct {
	StixID      string `json:"stix_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// joinList collapses an optional string list into a comma-separated string.
// Absent lists present as the empty string, never as a null marker.
func joinList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.Join(values, ", ")
}

func formatEntity(e opencti.Entity) EntityRow {
	return EntityRow{
		StixID:      e.StandardID,
		Name:        e.Name,
		Aliases:     joinList(e.Aliases),
		Description: e.Description,
	}
}

func formatReport(e opencti.Entity) ReportRow {
	labels := make([]string, 0, len(e.ObjectLabel))
	for _, label := range e.ObjectLabel {
		labels = append(labels, label.Value)
	}
	return ReportRow{
		StixID:      e.StandardID,
		Name:        e.Name,
		Published:   e.Published,
		Labels:      joinList(labels),
		Description: e.Description,
	}
}

func formatSector(e opencti.Entity) SectorRow {
	return SectorRow{
		StixID:      e.StandardID,
		Name:        e.Name,
		Description: e.Description,
	}
}

func formatEndpoint(ep opencti.Endpoint) RelatedRow {
	return RelatedRow{
		StixID: ep.StandardID,
		Name:   ep.Name,
	}
}
