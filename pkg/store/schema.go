package store

import "strings"

// Schema statements use these tokens, replaced per dialect:
//
//	{{TS}}     timestamp column type
//	{{NOW}}    current timestamp default
//	{{FLOAT}}  double precision column type
//	{{BIGINT}} 64-bit integer column type
func (d Dialect) render(stmt string) string {
	r := strings.NewReplacer(
		"{{TS}}", d.timestampType(),
		"{{NOW}}", d.nowDefault(),
		"{{FLOAT}}", d.floatType(),
		"{{BIGINT}}", "BIGINT",
	)
	return r.Replace(stmt)
}

func (d Dialect) timestampType() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

func (d Dialect) nowDefault() string {
	if d == DialectPostgres {
		return "CURRENT_TIMESTAMP"
	}
	return "(strftime('%Y-%m-%d %H:%M:%f', 'now'))"
}

func (d Dialect) floatType() string {
	if d == DialectPostgres {
		return "DOUBLE PRECISION"
	}
	return "REAL"
}

var coreSchema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		gnis_id TEXT NOT NULL UNIQUE,
		name TEXT,
		country TEXT,
		country_name TEXT,
		county TEXT,
		county_fips TEXT,
		state TEXT,
		state_fips TEXT,
		state_name TEXT,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`,
	`CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		acronym TEXT NOT NULL UNIQUE,
		name TEXT,
		retired BOOLEAN,
		type TEXT,
		is_passive BOOLEAN,
		enrolled_in_vs_timestamp {{TS}},
		period_start_vs_timestamp {{TS}},
		report_types TEXT,
		scan_types TEXT,
		stakeholder BOOLEAN,
		init_stage TEXT,
		scheduler TEXT,
		state TEXT,
		county TEXT,
		county_fips TEXT,
		state_fips TEXT,
		state_name TEXT,
		location_id TEXT REFERENCES locations(id),
		parent_id TEXT REFERENCES organizations(id),
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}},
		synced_at {{TS}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_organizations_parent_id ON organizations(parent_id)`,
	`CREATE TABLE IF NOT EXISTS sectors (
		id TEXT PRIMARY KEY,
		acronym TEXT NOT NULL UNIQUE,
		name TEXT,
		retired BOOLEAN,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`,
	`CREATE TABLE IF NOT EXISTS sector_organizations (
		sector_id TEXT NOT NULL REFERENCES sectors(id),
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		PRIMARY KEY (sector_id, organization_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cidrs (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL UNIQUE,
		start_ip TEXT,
		end_ip TEXT,
		retired BOOLEAN,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`,
	`CREATE TABLE IF NOT EXISTS cidr_organizations (
		cidr_id TEXT NOT NULL REFERENCES cidrs(id),
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		PRIMARY KEY (cidr_id, organization_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ips (
		id TEXT PRIMARY KEY,
		ip TEXT NOT NULL,
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		live BOOLEAN,
		last_seen_timestamp {{TS}},
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}},
		UNIQUE (ip, organization_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cves (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		published_at {{TS}},
		modified_at {{TS}},
		description TEXT,
		cvss_v2_base_score {{FLOAT}},
		cvss_v3_base_score {{FLOAT}},
		cvss_v3_severity TEXT,
		cwe TEXT,
		kev_results TEXT,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`,
	`CREATE TABLE IF NOT EXISTS kevs (
		id TEXT PRIMARY KEY,
		cve TEXT NOT NULL UNIQUE,
		vendor_project TEXT,
		product TEXT,
		vulnerability_name TEXT,
		short_description TEXT,
		required_action TEXT,
		known_ransomware BOOLEAN,
		date_added {{TS}},
		due_date {{TS}},
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`,
	`CREATE TABLE IF NOT EXISTS vuln_scans (
		id TEXT PRIMARY KEY,
		organization_id TEXT REFERENCES organizations(id),
		ip_id TEXT REFERENCES ips(id),
		cve_id TEXT REFERENCES cves(id),
		owner TEXT,
		ip_string TEXT,
		cve_string TEXT,
		cert_id TEXT,
		cpe TEXT,
		cvss_base_score {{FLOAT}},
		cvss_temporal_score {{FLOAT}},
		cvss_temporal_vector TEXT,
		cvss_vector TEXT,
		cvss3_base_score {{FLOAT}},
		cvss3_vector TEXT,
		cvss3_temporal_score {{FLOAT}},
		cvss3_temporal_vector TEXT,
		cvss_score_rationale TEXT,
		cvss_score_source TEXT,
		description TEXT,
		exploit_available TEXT,
		exploitability_ease TEXT,
		exploit_code_maturity TEXT,
		exploited_by_malware BOOLEAN,
		cisa_known_exploited {{TS}},
		in_the_news BOOLEAN,
		latest BOOLEAN,
		osvdb_id TEXT,
		patch_publication_date {{TS}},
		port {{BIGINT}},
		port_range TEXT,
		protocol TEXT,
		service TEXT,
		risk_factor TEXT,
		plugin_family TEXT,
		plugin_id TEXT,
		plugin_modification_date {{TS}},
		plugin_publication_date {{TS}},
		plugin_name TEXT,
		plugin_type TEXT,
		plugin_output TEXT,
		see_also TEXT,
		severity {{BIGINT}},
		solution TEXT,
		source TEXT,
		synopsis TEXT,
		vuln_detection_timestamp {{TS}},
		vuln_publication_timestamp {{TS}},
		xref TEXT,
		cwe TEXT,
		bid TEXT,
		thorough_tests BOOLEAN,
		asset_inventory BOOLEAN,
		fname TEXT,
		snapshots TEXT,
		other_findings TEXT,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vuln_scans_organization_id ON vuln_scans(organization_id)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		organization_id TEXT REFERENCES organizations(id),
		ip_id TEXT REFERENCES ips(id),
		cve_id TEXT REFERENCES cves(id),
		kev_id TEXT REFERENCES kevs(id),
		cve_string TEXT,
		ip_string TEXT,
		owner TEXT,
		name TEXT,
		port {{BIGINT}},
		protocol TEXT,
		source TEXT,
		source_id {{BIGINT}},
		severity {{BIGINT}},
		cvss_base_score {{FLOAT}},
		cvss_version TEXT,
		vpr_score {{FLOAT}},
		false_positive BOOLEAN,
		found_in_latest_host_scan BOOLEAN,
		time_opened {{TS}},
		time_closed {{TS}},
		last_change {{TS}},
		snapshots TEXT,
		loc_name TEXT,
		loc_county TEXT,
		loc_county_fips TEXT,
		loc_state TEXT,
		loc_state_fips TEXT,
		loc_gnis_id TEXT,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_organization_id ON tickets(organization_id)`,
}

var coreSchemaDown = []string{
	`DROP TABLE IF EXISTS tickets`,
	`DROP TABLE IF EXISTS vuln_scans`,
	`DROP TABLE IF EXISTS kevs`,
	`DROP TABLE IF EXISTS cves`,
	`DROP TABLE IF EXISTS ips`,
	`DROP TABLE IF EXISTS cidr_organizations`,
	`DROP TABLE IF EXISTS cidrs`,
	`DROP TABLE IF EXISTS sector_organizations`,
	`DROP TABLE IF EXISTS sectors`,
	`DROP TABLE IF EXISTS organizations`,
	`DROP TABLE IF EXISTS locations`,
}

var domainSchema = []string{
	`CREATE TABLE IF NOT EXISTS domains (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		ip TEXT,
		organization_id TEXT REFERENCES organizations(id),
		from_root_domain TEXT,
		services TEXT,
		vulnerabilities TEXT,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}},
		synced_at {{TS}}
	)`,
	`CREATE TABLE IF NOT EXISTS webpages (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		domain_id TEXT REFERENCES domains(id),
		status_code {{BIGINT}},
		response_size {{BIGINT}},
		body TEXT,
		created_at {{TS}} NOT NULL DEFAULT {{NOW}},
		updated_at {{TS}} NOT NULL DEFAULT {{NOW}},
		synced_at {{TS}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_webpages_domain_id ON webpages(domain_id)`,
}

var domainSchemaDown = []string{
	`DROP TABLE IF EXISTS webpages`,
	`DROP TABLE IF EXISTS domains`,
}

var syncIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_organizations_sync ON organizations(updated_at, synced_at)`,
	`CREATE INDEX IF NOT EXISTS idx_domains_sync ON domains(updated_at, synced_at)`,
	`CREATE INDEX IF NOT EXISTS idx_webpages_sync ON webpages(updated_at, synced_at)`,
}

var syncIndexesDown = []string{
	`DROP INDEX IF EXISTS idx_webpages_sync`,
	`DROP INDEX IF EXISTS idx_domains_sync`,
	`DROP INDEX IF EXISTS idx_organizations_sync`,
}
