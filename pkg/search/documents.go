package search

import (
	"encoding/json"
	"math/big"
	"sort"
	"time"

	"github.com/exploopio/lakesync/pkg/model"
	"github.com/exploopio/lakesync/pkg/netrange"
	"github.com/exploopio/lakesync/pkg/severity"
)

// Suggest is the input of a completion field.
type Suggest struct {
	Input []string `json:"input"`
}

// Join is a parent_join value.
type Join struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// OrganizationDocument is an organizations index document.
type OrganizationDocument struct {
	ID                     string     `json:"-"`
	Acronym                *string    `json:"acronym,omitempty"`
	Name                   *string    `json:"name,omitempty"`
	Type                   *string    `json:"type,omitempty"`
	Retired                *bool      `json:"retired,omitempty"`
	IsPassive              *bool      `json:"is_passive,omitempty"`
	Stakeholder            *bool      `json:"stakeholder,omitempty"`
	InitStage              *string    `json:"init_stage,omitempty"`
	Scheduler              *string    `json:"scheduler,omitempty"`
	ReportTypes            []string   `json:"report_types,omitempty"`
	ScanTypes              []string   `json:"scan_types,omitempty"`
	EnrolledInVSTimestamp  *time.Time `json:"enrolled_in_vs_timestamp,omitempty"`
	PeriodStartVSTimestamp *time.Time `json:"period_start_vs_timestamp,omitempty"`
	State                  *string    `json:"state,omitempty"`
	StateName              *string    `json:"state_name,omitempty"`
	StateFips              *string    `json:"state_fips,omitempty"`
	County                 *string    `json:"county,omitempty"`
	CountyFips             *string    `json:"county_fips,omitempty"`
	LocationID             *string    `json:"location_id,omitempty"`
	ParentID               *string    `json:"parent_id,omitempty"`
	Sectors                []string   `json:"sectors,omitempty"`
	Networks               []string   `json:"networks,omitempty"`
	NetworkAssets          float64    `json:"network_assets"`
	UpdatedAt              *time.Time `json:"updated_at,omitempty"`
	Suggest                *Suggest   `json:"suggest,omitempty"`
}

// NewOrganizationDocument projects an organization with its networks and
// sector acronyms.
func NewOrganizationDocument(org model.Organization, cidrs []model.Cidr, sectors []string) OrganizationDocument {
	doc := OrganizationDocument{
		ID:                     org.ID,
		Acronym:                org.Acronym,
		Name:                   org.Name,
		Type:                   org.Type,
		Retired:                org.Retired,
		IsPassive:              org.IsPassive,
		Stakeholder:            org.Stakeholder,
		InitStage:              org.InitStage,
		Scheduler:              org.Scheduler,
		ReportTypes:            org.ReportTypes,
		ScanTypes:              org.ScanTypes,
		EnrolledInVSTimestamp:  org.EnrolledInVSTimestamp,
		PeriodStartVSTimestamp: org.PeriodStartVSTimestamp,
		State:                  org.State,
		StateName:              org.StateName,
		StateFips:              org.StateFips,
		County:                 org.County,
		CountyFips:             org.CountyFips,
		LocationID:             org.LocationID,
		ParentID:               org.ParentID,
		Sectors:                sectors,
		UpdatedAt:              org.UpdatedAt,
	}

	for _, c := range cidrs {
		if c.Network != nil {
			doc.Networks = append(doc.Networks, *c.Network)
		}
	}
	sort.Strings(doc.Networks)
	doc.NetworkAssets = bigFloat(netrange.OrganizationAssetTotal(cidrs))

	var inputs []string
	for _, s := range []*string{org.Acronym, org.Name} {
		if s != nil && *s != "" {
			inputs = append(inputs, *s)
		}
	}
	if len(inputs) > 0 {
		doc.Suggest = &Suggest{Input: inputs}
	}
	return doc
}

// DomainDocument is a domain document of the domains index.
type DomainDocument struct {
	ID              string                    `json:"-"`
	Name            *string                   `json:"name,omitempty"`
	IP              *string                   `json:"ip,omitempty"`
	OrganizationID  *string                   `json:"organization_id,omitempty"`
	FromRootDomain  *string                   `json:"from_root_domain,omitempty"`
	Services        model.JSON                `json:"services,omitempty"`
	Vulnerabilities model.JSON                `json:"vulnerabilities,omitempty"`
	HighestSeverity severity.Level            `json:"highest_severity,omitempty"`
	SeverityCounts  *severity.CountBySeverity `json:"severity_counts,omitempty"`
	ParentJoin      Join                      `json:"parent_join"`
	UpdatedAt       *time.Time                `json:"updated_at,omitempty"`
}

// NewDomainDocument projects a domain. Vulnerabilities are summarized by
// severity when they decode as a list of objects.
func NewDomainDocument(d model.Domain) DomainDocument {
	doc := DomainDocument{
		ID:              d.ID,
		Name:            d.Name,
		IP:              d.IP,
		OrganizationID:  d.OrganizationID,
		FromRootDomain:  d.FromRootDomain,
		Services:        d.Services,
		Vulnerabilities: d.Vulnerabilities,
		ParentJoin:      Join{Name: RelationDomain},
		UpdatedAt:       d.UpdatedAt,
	}
	if counts, ok := vulnerabilitySeverities(d.Vulnerabilities); ok {
		doc.SeverityCounts = counts
		doc.HighestSeverity = counts.Highest()
	}
	return doc
}

// vulnerabilitySeverities counts vulnerabilities by their "severity" label,
// falling back to the "cvss" score.
func vulnerabilitySeverities(raw model.JSON) (*severity.CountBySeverity, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var vulns []struct {
		Severity json.RawMessage `json:"severity"`
		Cvss     *float64        `json:"cvss"`
	}
	if err := json.Unmarshal(raw, &vulns); err != nil {
		return nil, false
	}

	counts := &severity.CountBySeverity{}
	for _, v := range vulns {
		level := severity.Unknown
		var label string
		var score int64
		switch {
		case json.Unmarshal(v.Severity, &label) == nil && label != "":
			level = severity.FromString(label)
		case json.Unmarshal(v.Severity, &score) == nil:
			level = severity.FromScanner(score)
		case v.Cvss != nil:
			level = severity.FromCVSS(*v.Cvss)
		}
		counts.Increment(level)
	}
	return counts, true
}

// WebpageDocument is a webpage document of the domains index, a child of
// its domain.
type WebpageDocument struct {
	ID           string     `json:"-"`
	DomainID     string     `json:"-"`
	URL          *string    `json:"url,omitempty"`
	StatusCode   *int64     `json:"status_code,omitempty"`
	ResponseSize *int64     `json:"response_size,omitempty"`
	Body         *string    `json:"webpage_body,omitempty"`
	ParentJoin   Join       `json:"parent_join"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// NewWebpageDocument projects a webpage. ok is false when the page has no
// domain to attach to.
func NewWebpageDocument(p model.Webpage) (WebpageDocument, bool) {
	if p.DomainID == nil || *p.DomainID == "" {
		return WebpageDocument{}, false
	}
	return WebpageDocument{
		ID:           p.ID,
		DomainID:     *p.DomainID,
		URL:          p.URL,
		StatusCode:   p.StatusCode,
		ResponseSize: p.ResponseSize,
		Body:         p.Body,
		ParentJoin:   Join{Name: RelationWebpage, Parent: *p.DomainID},
		UpdatedAt:    p.UpdatedAt,
	}, true
}

func bigFloat(n *big.Int) float64 {
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}
