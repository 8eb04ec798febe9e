package ingest

import (
	"strings"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// DefaultNonSectorIDs are the pseudo-sectors that only organize the sector
// tree. They are never persisted as sectors.
var DefaultNonSectorIDs = []string{
	"ROOT",
	"CRITICAL_INFRASTRUCTURE",
	"FEDERAL",
	"SLTT",
	"STATE",
	"LOCAL",
	"TRIBAL",
	"TERRITORIAL",
	"PRIVATE",
	"NON_FEDERAL",
	"THIRD_PARTY",
}

// SectorFilter decides which sector ids are persisted.
type SectorFilter struct {
	excluded map[string]struct{}
}

// NewSectorFilter builds a filter excluding ids. A nil slice selects
// DefaultNonSectorIDs; an empty one excludes nothing.
func NewSectorFilter(ids []string) SectorFilter {
	if ids == nil {
		ids = DefaultNonSectorIDs
	}
	f := SectorFilter{excluded: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		f.excluded[strings.ToUpper(strings.TrimSpace(id))] = struct{}{}
	}
	return f
}

// Excluded reports whether id is a pseudo-sector.
func (f SectorFilter) Excluded(id string) bool {
	_, ok := f.excluded[strings.ToUpper(strings.TrimSpace(id))]
	return ok
}

// Agency is the string-encoded agency object of an organization record.
type Agency struct {
	Name     string          `json:"name"`
	Acronym  string          `json:"acronym"`
	Type     *string         `json:"type"`
	Location *AgencyLocation `json:"location"`
	Contacts []Contact       `json:"contacts"`
}

// AgencyLocation is the place an agency is registered at.
type AgencyLocation struct {
	GnisID      flexString `json:"gnis_id"`
	Name        flexString `json:"name"`
	Country     flexString `json:"country"`
	CountryName flexString `json:"country_name"`
	County      flexString `json:"county"`
	CountyFips  flexString `json:"county_fips"`
	State       flexString `json:"state"`
	StateFips   flexString `json:"state_fips"`
	StateName   flexString `json:"state_name"`
}

// Contact is a point of contact of an agency.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Type  string `json:"type"`
}

// OrganizationRecord is a parsed organization export record. Exactly one
// of Organization and Sector is meaningful, selected by IsSector.
type OrganizationRecord struct {
	Acronym  string
	IsSector bool

	Organization model.Organization
	Sector       model.Sector

	// Location is set when the agency carries a GNIS id.
	Location *model.Location

	Networks []string
	Children []string
	Contacts []Contact
}

// ParseOrganization parses an organization or sector record. A record
// whose agency has no type is a sector.
func ParseOrganization(rec Record) (*OrganizationRecord, error) {
	const op = "ingest.ParseOrganization"

	id, err := rec.String("_id")
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, errors.E(errors.KindParse, op, "record has no _id")
	}
	acronym := strings.TrimSpace(*id)

	var agency Agency
	if _, err := rec.Decode("agency", &agency); err != nil {
		return nil, errors.E(op, "agency of "+acronym, err)
	}

	out := &OrganizationRecord{
		Acronym:  acronym,
		IsSector: agency.Type == nil || strings.TrimSpace(*agency.Type) == "",
		Contacts: agency.Contacts,
	}

	if out.Children, err = rec.Strings("children"); err != nil {
		return nil, errors.E(op, "children of "+acronym, err)
	}
	retired, err := rec.Bool("retired")
	if err != nil {
		return nil, errors.E(op, "retired of "+acronym, err)
	}

	if out.IsSector {
		out.Sector = model.Sector{
			Acronym: model.Ptr(acronym),
			Name:    flexString(agency.Name).ptr(),
			Retired: retired,
		}
		return out, nil
	}

	org := model.Organization{
		Acronym: model.Ptr(acronym),
		Name:    flexString(agency.Name).ptr(),
		Type:    agency.Type,
		Retired: retired,
	}

	if out.Networks, err = rec.Strings("networks"); err != nil {
		return nil, errors.E(op, "networks of "+acronym, err)
	}

	if org.ReportTypes, err = rec.Strings("report_types"); err != nil {
		return nil, errors.E(op, "report_types of "+acronym, err)
	}
	if org.ScanTypes, err = rec.Strings("scan_types"); err != nil {
		return nil, errors.E(op, "scan_types of "+acronym, err)
	}
	if org.IsPassive, err = rec.Bool("passive"); err != nil {
		return nil, errors.E(op, "passive of "+acronym, err)
	}
	if org.Stakeholder, err = rec.Bool("stakeholder"); err != nil {
		return nil, errors.E(op, "stakeholder of "+acronym, err)
	}
	if org.EnrolledInVSTimestamp, err = rec.Time("enrolled"); err != nil {
		return nil, errors.E(op, "enrolled of "+acronym, err)
	}
	if org.PeriodStartVSTimestamp, err = rec.Time("period_start"); err != nil {
		return nil, errors.E(op, "period_start of "+acronym, err)
	}
	if org.InitStage, err = rec.String("init_stage"); err != nil {
		return nil, errors.E(op, "init_stage of "+acronym, err)
	}
	if org.Scheduler, err = rec.String("scheduler"); err != nil {
		return nil, errors.E(op, "scheduler of "+acronym, err)
	}

	if loc := agency.Location; loc != nil {
		org.State = loc.State.ptr()
		org.County = loc.County.ptr()
		org.CountyFips = loc.CountyFips.ptr()
		org.StateFips = loc.StateFips.ptr()
		org.StateName = loc.StateName.ptr()

		if loc.GnisID != "" {
			out.Location = &model.Location{
				GnisID:      loc.GnisID.ptr(),
				Name:        loc.Name.ptr(),
				Country:     loc.Country.ptr(),
				CountryName: loc.CountryName.ptr(),
				County:      loc.County.ptr(),
				CountyFips:  loc.CountyFips.ptr(),
				State:       loc.State.ptr(),
				StateFips:   loc.StateFips.ptr(),
				StateName:   loc.StateName.ptr(),
			}
		}
	}

	out.Organization = org
	return out, nil
}
