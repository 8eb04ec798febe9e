package model

import "time"

// Table names.
const (
	TableOrganizations       = "organizations"
	TableSectors             = "sectors"
	TableCidrs               = "cidrs"
	TableLocations           = "locations"
	TableIps                 = "ips"
	TableCves                = "cves"
	TableKevs                = "kevs"
	TableVulnScans           = "vuln_scans"
	TableTickets             = "tickets"
	TableDomains             = "domains"
	TableWebpages            = "webpages"
	TableSectorOrganizations = "sector_organizations"
	TableCidrOrganizations   = "cidr_organizations"
)

// Organization is a customer organization. Its acronym is stable across syncs.
type Organization struct {
	ID                     string     `db:"id" upsert:"id"`
	Acronym                *string    `db:"acronym" upsert:"key"`
	Name                   *string    `db:"name"`
	Retired                *bool      `db:"retired"`
	Type                   *string    `db:"type"`
	IsPassive              *bool      `db:"is_passive"`
	EnrolledInVSTimestamp  *time.Time `db:"enrolled_in_vs_timestamp"`
	PeriodStartVSTimestamp *time.Time `db:"period_start_vs_timestamp"`
	ReportTypes            StringList `db:"report_types"`
	ScanTypes              StringList `db:"scan_types"`
	Stakeholder            *bool      `db:"stakeholder"`
	InitStage              *string    `db:"init_stage"`
	Scheduler              *string    `db:"scheduler"`
	State                  *string    `db:"state"`
	County                 *string    `db:"county"`
	CountyFips             *string    `db:"county_fips"`
	StateFips              *string    `db:"state_fips"`
	StateName              *string    `db:"state_name"`
	LocationID             *string    `db:"location_id"`
	ParentID               *string    `db:"parent_id" upsert:"-"`
	CreatedAt              *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt              *time.Time `db:"updated_at" upsert:"-"`
	SyncedAt               *time.Time `db:"synced_at" upsert:"-"`
}

func (Organization) TableName() string { return TableOrganizations }

// Sector groups organizations.
type Sector struct {
	ID        string     `db:"id" upsert:"id"`
	Acronym   *string    `db:"acronym" upsert:"key"`
	Name      *string    `db:"name"`
	Retired   *bool      `db:"retired"`
	CreatedAt *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt *time.Time `db:"updated_at" upsert:"-"`
}

func (Sector) TableName() string { return TableSectors }

// Cidr is a network block or a single address owned by organizations.
type Cidr struct {
	ID        string     `db:"id" upsert:"id"`
	Network   *string    `db:"network" upsert:"key"`
	StartIP   *string    `db:"start_ip"`
	EndIP     *string    `db:"end_ip"`
	Retired   *bool      `db:"retired"`
	CreatedAt *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt *time.Time `db:"updated_at" upsert:"-"`
}

func (Cidr) TableName() string { return TableCidrs }

// Location is a GNIS place.
type Location struct {
	ID          string     `db:"id" upsert:"id"`
	GnisID      *string    `db:"gnis_id" upsert:"key"`
	Name        *string    `db:"name"`
	Country     *string    `db:"country"`
	CountryName *string    `db:"country_name"`
	County      *string    `db:"county"`
	CountyFips  *string    `db:"county_fips"`
	State       *string    `db:"state"`
	StateFips   *string    `db:"state_fips"`
	StateName   *string    `db:"state_name"`
	CreatedAt   *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt   *time.Time `db:"updated_at" upsert:"-"`
}

func (Location) TableName() string { return TableLocations }

// Ip is an address seen for one organization.
type Ip struct {
	ID                string     `db:"id" upsert:"id"`
	IP                *string    `db:"ip" upsert:"key"`
	OrganizationID    *string    `db:"organization_id" upsert:"key"`
	Live              *bool      `db:"live"`
	LastSeenTimestamp *time.Time `db:"last_seen_timestamp"`
	CreatedAt         *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt         *time.Time `db:"updated_at" upsert:"-"`
}

func (Ip) TableName() string { return TableIps }

// Cve is a published vulnerability.
type Cve struct {
	ID              string     `db:"id" upsert:"id"`
	Name            *string    `db:"name" upsert:"key"`
	PublishedAt     *time.Time `db:"published_at"`
	ModifiedAt      *time.Time `db:"modified_at"`
	Description     *string    `db:"description"`
	CvssV2BaseScore *float64   `db:"cvss_v2_base_score"`
	CvssV3BaseScore *float64   `db:"cvss_v3_base_score"`
	CvssV3Severity  *string    `db:"cvss_v3_severity"`
	Cwe             *string    `db:"cwe"`
	KevResults      JSON       `db:"kev_results"`
	CreatedAt       *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt       *time.Time `db:"updated_at" upsert:"-"`
}

func (Cve) TableName() string { return TableCves }

// Kev is an entry of the CISA Known Exploited Vulnerabilities catalog.
type Kev struct {
	ID                string     `db:"id" upsert:"id"`
	Cve               *string    `db:"cve" upsert:"key"`
	VendorProject     *string    `db:"vendor_project"`
	Product           *string    `db:"product"`
	VulnerabilityName *string    `db:"vulnerability_name"`
	ShortDescription  *string    `db:"short_description"`
	RequiredAction    *string    `db:"required_action"`
	KnownRansomware   *bool      `db:"known_ransomware"`
	DateAdded         *time.Time `db:"date_added"`
	DueDate           *time.Time `db:"due_date"`
	CreatedAt         *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt         *time.Time `db:"updated_at" upsert:"-"`
}

func (Kev) TableName() string { return TableKevs }

// VulnScan is one finding of the vulnerability scanner, keyed by the
// scanner's own id.
type VulnScan struct {
	ID             string  `db:"id" upsert:"key"`
	OrganizationID *string `db:"organization_id"`
	IPID           *string `db:"ip_id"`
	CveID          *string `db:"cve_id"`

	Owner     *string `db:"owner"`
	IPString  *string `db:"ip_string"`
	CveString *string `db:"cve_string"`

	CertID                   *string    `db:"cert_id"`
	Cpe                      *string    `db:"cpe"`
	CvssBaseScore            *float64   `db:"cvss_base_score"`
	CvssTemporalScore        *float64   `db:"cvss_temporal_score"`
	CvssTemporalVector       *string    `db:"cvss_temporal_vector"`
	CvssVector               *string    `db:"cvss_vector"`
	Cvss3BaseScore           *float64   `db:"cvss3_base_score"`
	Cvss3Vector              *string    `db:"cvss3_vector"`
	Cvss3TemporalScore       *float64   `db:"cvss3_temporal_score"`
	Cvss3TemporalVector      *string    `db:"cvss3_temporal_vector"`
	CvssScoreRationale       *string    `db:"cvss_score_rationale"`
	CvssScoreSource          *string    `db:"cvss_score_source"`
	Description              *string    `db:"description"`
	ExploitAvailable         *string    `db:"exploit_available"`
	ExploitabilityEase       *string    `db:"exploitability_ease"`
	ExploitCodeMaturity      *string    `db:"exploit_code_maturity"`
	ExploitedByMalware       *bool      `db:"exploited_by_malware"`
	CisaKnownExploited       *time.Time `db:"cisa_known_exploited"`
	InTheNews                *bool      `db:"in_the_news"`
	Latest                   *bool      `db:"latest"`
	OsvdbID                  *string    `db:"osvdb_id"`
	PatchPublicationDate     *time.Time `db:"patch_publication_date"`
	Port                     *int64     `db:"port"`
	PortRange                *string    `db:"port_range"`
	Protocol                 *string    `db:"protocol"`
	Service                  *string    `db:"service"`
	RiskFactor               *string    `db:"risk_factor"`
	PluginFamily             *string    `db:"plugin_family"`
	PluginID                 *string    `db:"plugin_id"`
	PluginModificationDate   *time.Time `db:"plugin_modification_date"`
	PluginPublicationDate    *time.Time `db:"plugin_publication_date"`
	PluginName               *string    `db:"plugin_name"`
	PluginType               *string    `db:"plugin_type"`
	PluginOutput             *string    `db:"plugin_output"`
	SeeAlso                  *string    `db:"see_also"`
	Severity                 *int64     `db:"severity"`
	Solution                 *string    `db:"solution"`
	Source                   *string    `db:"source"`
	Synopsis                 *string    `db:"synopsis"`
	VulnDetectionTimestamp   *time.Time `db:"vuln_detection_timestamp"`
	VulnPublicationTimestamp *time.Time `db:"vuln_publication_timestamp"`
	Xref                     *string    `db:"xref"`
	Cwe                      *string    `db:"cwe"`
	Bid                      *string    `db:"bid"`
	ThoroughTests            *bool      `db:"thorough_tests"`
	AssetInventory           *bool      `db:"asset_inventory"`
	Fname                    *string    `db:"fname"`
	Snapshots                StringList `db:"snapshots"`
	OtherFindings            JSON       `db:"other_findings"`

	CreatedAt *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt *time.Time `db:"updated_at" upsert:"-"`
}

func (VulnScan) TableName() string { return TableVulnScans }

// Ticket tracks a vulnerability's lifecycle on one address.
type Ticket struct {
	ID             string  `db:"id" upsert:"key"`
	OrganizationID *string `db:"organization_id"`
	IPID           *string `db:"ip_id"`
	CveID          *string `db:"cve_id"`
	KevID          *string `db:"kev_id"`

	CveString             *string    `db:"cve_string"`
	IPString              *string    `db:"ip_string"`
	Owner                 *string    `db:"owner"`
	Name                  *string    `db:"name"`
	Port                  *int64     `db:"port"`
	Protocol              *string    `db:"protocol"`
	Source                *string    `db:"source"`
	SourceID              *int64     `db:"source_id"`
	Severity              *int64     `db:"severity"`
	CvssBaseScore         *float64   `db:"cvss_base_score"`
	CvssVersion           *string    `db:"cvss_version"`
	VprScore              *float64   `db:"vpr_score"`
	FalsePositive         *bool      `db:"false_positive"`
	FoundInLatestHostScan *bool      `db:"found_in_latest_host_scan"`
	TimeOpened            *time.Time `db:"time_opened"`
	TimeClosed            *time.Time `db:"time_closed"`
	LastChange            *time.Time `db:"last_change"`
	Snapshots             StringList `db:"snapshots"`
	LocName               *string    `db:"loc_name"`
	LocCounty             *string    `db:"loc_county"`
	LocCountyFips         *string    `db:"loc_county_fips"`
	LocState              *string    `db:"loc_state"`
	LocStateFips          *string    `db:"loc_state_fips"`
	LocGnisID             *string    `db:"loc_gnis_id"`

	CreatedAt *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt *time.Time `db:"updated_at" upsert:"-"`
}

func (Ticket) TableName() string { return TableTickets }

// Domain is a discovered host name.
type Domain struct {
	ID              string     `db:"id" upsert:"id"`
	Name            *string    `db:"name" upsert:"key"`
	IP              *string    `db:"ip"`
	OrganizationID  *string    `db:"organization_id"`
	FromRootDomain  *string    `db:"from_root_domain"`
	Services        JSON       `db:"services"`
	Vulnerabilities JSON       `db:"vulnerabilities"`
	CreatedAt       *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt       *time.Time `db:"updated_at" upsert:"-"`
	SyncedAt        *time.Time `db:"synced_at" upsert:"-"`
}

func (Domain) TableName() string { return TableDomains }

// Webpage is a crawled page of a Domain.
type Webpage struct {
	ID           string     `db:"id" upsert:"id"`
	URL          *string    `db:"url" upsert:"key"`
	DomainID     *string    `db:"domain_id"`
	StatusCode   *int64     `db:"status_code"`
	ResponseSize *int64     `db:"response_size"`
	Body         *string    `db:"body"`
	CreatedAt    *time.Time `db:"created_at" upsert:"-"`
	UpdatedAt    *time.Time `db:"updated_at" upsert:"-"`
	SyncedAt     *time.Time `db:"synced_at" upsert:"-"`
}

func (Webpage) TableName() string { return TableWebpages }
