package ingest

import (
	"strings"
	"time"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// TicketRecord is a parsed ticket record together with its unresolved
// cross references.
type TicketRecord struct {
	Ticket model.Ticket

	Owner string
	IP    *string
	Cve   *string

	// KnownExploited is set when the ticket's details flag the CVE as a
	// known exploited vulnerability.
	KnownExploited bool
}

// ticketDetails is the nested details object of a ticket.
type ticketDetails struct {
	Cve           *string  `json:"cve"`
	CvssBaseScore *float64 `json:"cvss_base_score"`
	CvssVersion   *string  `json:"cvss_version"`
	Kev           *bool    `json:"kev"`
	Name          *string  `json:"name"`
	Severity      *int64   `json:"severity"`
	VprScore      *float64 `json:"vpr_score"`
}

// ticketLocation is the nested loc object of a ticket.
type ticketLocation struct {
	Name       flexString `json:"name"`
	County     flexString `json:"county"`
	CountyFips flexString `json:"county_fips"`
	State      flexString `json:"state"`
	StateFips  flexString `json:"state_fips"`
	GnisID     flexString `json:"gnis_id"`
}

var ticketFields = []field[model.Ticket]{
	intField("port", func(t *model.Ticket) **int64 { return &t.Port }),
	stringField("protocol", func(t *model.Ticket) **string { return &t.Protocol }),
	stringField("source", func(t *model.Ticket) **string { return &t.Source }),
	intField("source_id", func(t *model.Ticket) **int64 { return &t.SourceID }),
	boolField("false_positive", func(t *model.Ticket) **bool { return &t.FalsePositive }),
	boolField("found_in_latest_host_scan", func(t *model.Ticket) **bool { return &t.FoundInLatestHostScan }),
	timeField("time_opened", func(t *model.Ticket) **time.Time { return &t.TimeOpened }),
	timeField("time_closed", func(t *model.Ticket) **time.Time { return &t.TimeClosed }),
	timeField("last_change", func(t *model.Ticket) **time.Time { return &t.LastChange }),
	listField("snapshots", func(t *model.Ticket) *model.StringList { return &t.Snapshots }),
}

// ParseTicket parses a ticket record. details and loc may be string-encoded.
func ParseTicket(rec Record) (*TicketRecord, error) {
	const op = "ingest.ParseTicket"

	id, err := ObjectID(rec.present("_id"))
	if err != nil {
		return nil, errors.E(errors.KindParse, op, "_id", err)
	}
	if id == "" {
		return nil, errors.E(errors.KindParse, op, "record has no _id")
	}

	out := &TicketRecord{Ticket: model.Ticket{ID: id}}

	owner, err := rec.String("owner")
	if err != nil {
		return nil, errors.E(op, id, err)
	}
	if owner == nil || strings.TrimSpace(*owner) == "" {
		return nil, errors.E(errors.KindReference, op, "ticket "+id+" has no owner")
	}
	out.Owner = strings.TrimSpace(*owner)
	out.Ticket.Owner = model.Ptr(out.Owner)

	if out.IP, err = rec.String("ip"); err != nil {
		return nil, errors.E(op, id, err)
	}
	out.Ticket.IPString = out.IP

	if err := apply(rec, &out.Ticket, ticketFields); err != nil {
		return nil, errors.E(op, id, err)
	}

	var details ticketDetails
	if _, err := rec.Decode("details", &details); err != nil {
		return nil, errors.E(op, id, err)
	}
	out.Cve = details.Cve
	out.Ticket.CveString = details.Cve
	out.Ticket.CvssBaseScore = details.CvssBaseScore
	out.Ticket.CvssVersion = details.CvssVersion
	out.Ticket.Name = details.Name
	out.Ticket.Severity = details.Severity
	out.Ticket.VprScore = details.VprScore
	out.KnownExploited = details.Kev != nil && *details.Kev

	var loc ticketLocation
	ok, err := rec.Decode("loc", &loc)
	if err != nil {
		return nil, errors.E(op, id, err)
	}
	if ok {
		out.Ticket.LocName = loc.Name.ptr()
		out.Ticket.LocCounty = loc.County.ptr()
		out.Ticket.LocCountyFips = loc.CountyFips.ptr()
		out.Ticket.LocState = loc.State.ptr()
		out.Ticket.LocStateFips = loc.StateFips.ptr()
		out.Ticket.LocGnisID = loc.GnisID.ptr()
	}

	return out, nil
}
