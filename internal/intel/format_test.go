package intel

import (
	"testing"

	"github.com/Ashfaaq98/opencti-mcp/internal/opencti"
)

func TestJoinList(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"nil", nil, ""},
		{"empty", []string{}, ""},
		{"single", []string{"chopstick"}, "chopstick"},
		{"multiple", []string{"chopstick", "splm"}, "chopstick, splm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinList(tt.values); got != tt.want {
				t.Errorf("joinList(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestFormatEntity(t *testing.T) {
	row := formatEntity(opencti.Entity{
		ID:          "internal-1",
		StandardID:  "malware--111",
		Name:        "X-Agent",
		Aliases:     []string{"chopstick", "splm"},
		Description: "Modular backdoor",
	})

	if row.StixID != "malware--111" {
		t.Errorf("expected standard_id as stix_id, got %q", row.StixID)
	}
	if row.Aliases != "chopstick, splm" {
		t.Errorf("unexpected aliases: %q", row.Aliases)
	}
}

func TestFormatEntityEmptyFields(t *testing.T) {
	row := formatEntity(opencti.Entity{StandardID: "malware--222", Name: "Sofacy"})

	if row.Aliases != "" {
		t.Errorf("absent aliases should be empty string, got %q", row.Aliases)
	}
	if row.Description != "" {
		t.Errorf("absent description should be empty string, got %q", row.Description)
	}
}

func TestFormatReport(t *testing.T) {
	row := formatReport(opencti.Entity{
		StandardID: "report--777",
		Name:       "Quarterly Threat Report",
		Published:  "2024-03-01T00:00:00.000Z",
		ObjectLabel: []opencti.Label{
			{Value: "apt"},
			{Value: "russia"},
		},
	})

	if row.Labels != "apt, russia" {
		t.Errorf("unexpected labels: %q", row.Labels)
	}
	if row.Published != "2024-03-01T00:00:00.000Z" {
		t.Errorf("unexpected published: %q", row.Published)
	}
}

func TestFormatReportNoLabels(t *testing.T) {
	row := formatReport(opencti.Entity{StandardID: "report--888", Name: "Untitled"})
	if row.Labels != "" {
		t.Errorf("absent labels should be empty string, got %q", row.Labels)
	}
}

func TestFormatEndpoint(t *testing.T) {
	row := formatEndpoint(opencti.Endpoint{
		ID:         "internal-1",
		StandardID: "malware--111",
		EntityType: "Malware",
		Name:       "X-Agent",
	})
	if row.StixID != "malware--111" || row.Name != "X-Agent" {
		t.Errorf("unexpected row: %+v", row)
	}
}
