// Package kev fetches the CISA Known Exploited Vulnerabilities catalog.
// Data source: https://www.cisa.gov/known-exploited-vulnerabilities-catalog
package kev

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/model"
	"github.com/exploopio/lakesync/pkg/retry"
)

const (
	// DefaultURL is the official CISA KEV catalog endpoint.
	DefaultURL = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 60 * time.Second
)

// Entry is one catalog entry.
type Entry struct {
	CVEID             string `json:"cveID"`
	VendorProject     string `json:"vendorProject"`
	Product           string `json:"product"`
	VulnerabilityName string `json:"vulnerabilityName"`
	DateAdded         string `json:"dateAdded"`
	ShortDescription  string `json:"shortDescription"`
	RequiredAction    string `json:"requiredAction"`
	DueDate           string `json:"dueDate"`
	KnownRansomware   string `json:"knownRansomwareCampaignUse"`
	Notes             string `json:"notes"`
}

// Catalog is the full CISA KEV catalog.
type Catalog struct {
	Title           string  `json:"title"`
	CatalogVersion  string  `json:"catalogVersion"`
	DateReleased    string  `json:"dateReleased"`
	Count           int     `json:"count"`
	Vulnerabilities []Entry `json:"vulnerabilities"`
}

// Kev converts an entry to the persisted entity. Empty strings stay nil
// and unparseable dates are dropped.
func (e Entry) Kev() model.Kev {
	k := model.Kev{
		Cve:               nonEmpty(e.CVEID),
		VendorProject:     nonEmpty(e.VendorProject),
		Product:           nonEmpty(e.Product),
		VulnerabilityName: nonEmpty(e.VulnerabilityName),
		ShortDescription:  nonEmpty(e.ShortDescription),
		RequiredAction:    nonEmpty(e.RequiredAction),
		DateAdded:         date(e.DateAdded),
		DueDate:           date(e.DueDate),
	}
	switch strings.ToLower(strings.TrimSpace(e.KnownRansomware)) {
	case "known":
		k.KnownRansomware = model.Ptr(true)
	case "unknown":
		k.KnownRansomware = model.Ptr(false)
	}
	return k
}

// Config configures a Client.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  logging.Logger

	// Policy retries failed fetches. Default: retry.DefaultPolicy().
	Policy *retry.Policy
}

// Client downloads the catalog.
type Client struct {
	url    string
	client *http.Client
	logger logging.Logger
	policy *retry.Policy
}

// NewClient creates a catalog client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Client{
		url:    cfg.URL,
		logger: logging.OrNop(cfg.Logger),
		policy: cfg.Policy,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.client = &http.Client{Timeout: timeout}
	if c.policy == nil {
		c.policy = retry.DefaultPolicy()
	}
	return c
}

// Fetch downloads and decodes the catalog. Network failures and 5xx
// responses are retried.
func (c *Client) Fetch(ctx context.Context) (*Catalog, error) {
	const op = "kev.Fetch"

	var catalog *Catalog
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		catalog, err = c.fetchOnce(ctx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	c.logger.Info("loaded %d KEV entries (catalog version: %s)", len(catalog.Vulnerabilities), catalog.CatalogVersion)
	return catalog, nil
}

func (c *Client) fetchOnce(ctx context.Context) (*Catalog, error) {
	const op = "kev.fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.E(errors.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.E(errors.KindNetwork, op, fmt.Sprintf("KEV feed returned status %d", resp.StatusCode))
	default:
		return nil, errors.E(errors.KindInvalidInput, op, fmt.Sprintf("KEV feed returned status %d", resp.StatusCode))
	}

	var catalog Catalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, errors.E(errors.KindParse, op, "decode catalog", err)
	}
	return &catalog, nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}
