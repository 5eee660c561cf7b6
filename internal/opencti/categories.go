package opencti

import "fmt"

// Category selects one of the STIX entity collections exposed by OpenCTI.
type Category string

const (
	CategoryIntrusionSet  Category = "intrusion-set"
	CategoryMalware       Category = "malware"
	CategoryThreatActor   Category = "threat-actor"
	CategoryTool          Category = "tool"
	CategoryVulnerability Category = "vulnerability"
	CategoryCampaign      Category = "campaign"
	CategoryAttackPattern Category = "attack-pattern"
	CategoryIdentity      Category = "identity"
	CategoryReport        Category = "report"
)

// categoryDef carries the GraphQL shape of one entity collection: the
// singular field for point reads, the plural field for listing, the
// ordering enum type, and the node selection set. Aliases are not part of
// every type's schema (reports and identities carry them differently), so
// the selection is per-category rather than shared.
type categoryDef struct {
	singular  string
	plural    string
	typeName  string
	ordering  string
	selection string
}

const commonSelection = "id standard_id entity_type name description"

var categoryDefs = map[Category]categoryDef{
	CategoryIntrusionSet: {
		singular: "intrusionSet", plural: "intrusionSets",
		typeName: "Intrusion-Set", ordering: "IntrusionSetsOrdering",
		selection: commonSelection + " aliases",
	},
	CategoryMalware: {
		singular: "malware", plural: "malwares",
		typeName: "Malware", ordering: "MalwaresOrdering",
		selection: commonSelection + " aliases",
	},
	CategoryThreatActor: {
		singular: "threatActor", plural: "threatActors",
		typeName: "Threat-Actor", ordering: "ThreatActorsOrdering",
		selection: commonSelection + " aliases",
	},
	CategoryTool: {
		singular: "tool", plural: "tools",
		typeName: "Tool", ordering: "ToolsOrdering",
		selection: commonSelection + " aliases",
	},
	CategoryVulnerability: {
		singular: "vulnerability", plural: "vulnerabilities",
		typeName: "Vulnerability", ordering: "VulnerabilitiesOrdering",
		selection: commonSelection,
	},
	CategoryCampaign: {
		singular: "campaign", plural: "campaigns",
		typeName: "Campaign", ordering: "CampaignsOrdering",
		selection: commonSelection + " aliases",
	},
	CategoryAttackPattern: {
		singular: "attackPattern", plural: "attackPatterns",
		typeName: "Attack-Pattern", ordering: "AttackPatternsOrdering",
		selection: commonSelection + " aliases",
	},
	CategoryIdentity: {
		singular: "identity", plural: "identities",
		typeName: "Identity", ordering: "IdentitiesOrdering",
		selection: commonSelection + " identity_class",
	},
	CategoryReport: {
		singular: "report", plural: "reports",
		typeName: "Report", ordering: "ReportsOrdering",
		selection: commonSelection + " published objectLabel { value }",
	},
}

// def resolves a category through the fixed table. Unknown categories are a
// programming error surfaced at the call site.
func (c Category) def() (categoryDef, error) {
	d, ok := categoryDefs[c]
	if !ok {
		return categoryDef{}, fmt.Errorf("unknown entity category %q", string(c))
	}
	return d, nil
}

// TypeName returns the STIX entity type name used in relationship type
// filters (e.g. "Intrusion-Set").
func (c Category) TypeName() string {
	d, ok := categoryDefs[c]
	if !ok {
		return string(c)
	}
	return d.typeName
}
