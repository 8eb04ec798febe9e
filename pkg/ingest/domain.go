package ingest

import (
	"strings"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// DomainRecord is a parsed domain record with its crawled webpages.
type DomainRecord struct {
	Domain model.Domain

	// Owner is the acronym of the owning organization, when known.
	Owner    *string
	Webpages []model.Webpage
}

type webpageEntry struct {
	URL          string  `json:"url"`
	StatusCode   *int64  `json:"status_code"`
	ResponseSize *int64  `json:"response_size"`
	Body         *string `json:"body"`
}

// ParseDomain parses a domain record. The host name is read from "name",
// falling back to "domain".
func ParseDomain(rec Record) (*DomainRecord, error) {
	const op = "ingest.ParseDomain"

	name, err := firstString(rec, "name", "domain")
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if name == nil || strings.TrimSpace(*name) == "" {
		return nil, errors.E(errors.KindParse, op, "record has no domain name")
	}
	host := strings.ToLower(strings.TrimSpace(*name))

	out := &DomainRecord{Domain: model.Domain{Name: model.Ptr(host)}}

	if out.Owner, err = firstString(rec, "organization", "owner"); err != nil {
		return nil, errors.E(op, host, err)
	}
	if out.Domain.IP, err = rec.String("ip"); err != nil {
		return nil, errors.E(op, host, err)
	}
	if out.Domain.FromRootDomain, err = rec.String("from_root_domain"); err != nil {
		return nil, errors.E(op, host, err)
	}
	if out.Domain.Services, err = rec.JSON("services"); err != nil {
		return nil, errors.E(op, host, err)
	}
	if out.Domain.Vulnerabilities, err = rec.JSON("vulnerabilities"); err != nil {
		return nil, errors.E(op, host, err)
	}

	var pages []webpageEntry
	if _, err := rec.Decode("webpages", &pages); err != nil {
		return nil, errors.E(op, host, err)
	}
	for _, p := range pages {
		url := strings.TrimSpace(p.URL)
		if url == "" {
			continue
		}
		out.Webpages = append(out.Webpages, model.Webpage{
			URL:          model.Ptr(url),
			StatusCode:   p.StatusCode,
			ResponseSize: p.ResponseSize,
			Body:         p.Body,
		})
	}

	return out, nil
}

func firstString(rec Record, fields ...string) (*string, error) {
	for _, f := range fields {
		v, err := rec.String(f)
		if err != nil || v != nil {
			return v, err
		}
	}
	return nil, nil
}
