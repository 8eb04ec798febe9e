package search

// Mapping is the "properties" object of an index mapping.
type Mapping map[string]any

// Default index names.
const (
	DefaultOrganizationsIndex = "organizations"
	DefaultDomainsIndex       = "domains"
)

// Join relation names of the domains index.
const (
	RelationDomain  = "domain"
	RelationWebpage = "webpage"
)

// SuggestField is the completion field added when an index is created.
const SuggestField = "suggest"

var (
	keyword   = map[string]any{"type": "keyword"}
	boolean   = map[string]any{"type": "boolean"}
	date      = map[string]any{"type": "date"}
	integer   = map[string]any{"type": "integer"}
	long      = map[string]any{"type": "long"}
	double    = map[string]any{"type": "double"}
	textNamed = map[string]any{
		"type":   "text",
		"fields": map[string]any{"raw": map[string]any{"type": "keyword", "ignore_above": 256}},
	}
)

// OrganizationsMapping is the wire contract of the organizations index.
func OrganizationsMapping() Mapping {
	return Mapping{
		"acronym":                   keyword,
		"name":                      textNamed,
		"type":                      keyword,
		"retired":                   boolean,
		"is_passive":                boolean,
		"stakeholder":               boolean,
		"init_stage":                keyword,
		"scheduler":                 keyword,
		"report_types":              keyword,
		"scan_types":                keyword,
		"enrolled_in_vs_timestamp":  date,
		"period_start_vs_timestamp": date,
		"state":                     keyword,
		"state_name":                keyword,
		"state_fips":                keyword,
		"county":                    keyword,
		"county_fips":               keyword,
		"location_id":               keyword,
		"parent_id":                 keyword,
		"sectors":                   keyword,
		"networks":                  keyword,
		"network_assets":            double,
		"updated_at":                date,
	}
}

// DomainsMapping is the wire contract of the domains index. Domains and
// their webpages share the index through the parent_join relation.
func DomainsMapping() Mapping {
	return Mapping{
		"name":             keyword,
		"ip":               keyword,
		"organization_id":  keyword,
		"from_root_domain": keyword,
		"services": map[string]any{
			"type": "nested",
			"properties": map[string]any{
				"port":     integer,
				"name":     keyword,
				"product":  keyword,
				"version":  keyword,
				"protocol": keyword,
			},
		},
		"vulnerabilities": map[string]any{
			"type": "nested",
			"properties": map[string]any{
				"cve":      keyword,
				"severity": keyword,
				"cvss":     double,
				"title":    textNamed,
			},
		},
		"highest_severity": keyword,
		"severity_counts": map[string]any{
			"properties": map[string]any{
				"critical": integer,
				"high":     integer,
				"medium":   integer,
				"low":      integer,
				"info":     integer,
				"unknown":  integer,
				"total":    integer,
			},
		},
		"parent_join": map[string]any{
			"type":      "join",
			"relations": map[string]any{RelationDomain: RelationWebpage},
		},
		"url":           keyword,
		"status_code":   integer,
		"response_size": long,
		"webpage_body": map[string]any{
			"type":        "text",
			"term_vector": "with_positions_offsets",
		},
		"updated_at": date,
	}
}

// withSuggest returns a copy of m with the completion field added.
func withSuggest(m Mapping) Mapping {
	out := make(Mapping, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[SuggestField] = map[string]any{"type": "completion"}
	return out
}
