package kev

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/retry"
)

const catalogJSON = `{
	"title": "CISA Catalog of Known Exploited Vulnerabilities",
	"catalogVersion": "2024.03.01",
	"dateReleased": "2024-03-01T15:00:00.000Z",
	"count": 2,
	"vulnerabilities": [
		{
			"cveID": "CVE-2021-44228",
			"vendorProject": "Apache",
			"product": "Log4j2",
			"vulnerabilityName": "Apache Log4j2 Remote Code Execution Vulnerability",
			"dateAdded": "2021-12-10",
			"shortDescription": "JNDI features do not protect against attacker-controlled endpoints.",
			"requiredAction": "Apply updates per vendor instructions.",
			"dueDate": "2021-12-24",
			"knownRansomwareCampaignUse": "Known",
			"notes": ""
		},
		{
			"cveID": "CVE-2020-0001",
			"vendorProject": "",
			"dateAdded": "not a date",
			"knownRansomwareCampaignUse": "Unknown"
		}
	]
}`

func fastPolicy() *retry.Policy {
	p := retry.DefaultPolicy()
	p.Backoff = &retry.BackoffConfig{BaseInterval: time.Millisecond, MaxInterval: time.Millisecond}
	return p
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogJSON))
	}))
	defer srv.Close()

	catalog, err := NewClient(&Config{URL: srv.URL}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024.03.01", catalog.CatalogVersion)
	require.Len(t, catalog.Vulnerabilities, 2)

	k := catalog.Vulnerabilities[0].Kev()
	assert.Equal(t, "CVE-2021-44228", *k.Cve)
	assert.Equal(t, "Apache", *k.VendorProject)
	assert.True(t, *k.KnownRansomware)
	assert.Equal(t, time.Date(2021, 12, 10, 0, 0, 0, 0, time.UTC), *k.DateAdded)
	assert.Equal(t, time.Date(2021, 12, 24, 0, 0, 0, 0, time.UTC), *k.DueDate)

	k = catalog.Vulnerabilities[1].Kev()
	assert.Nil(t, k.VendorProject)
	assert.Nil(t, k.DateAdded)
	assert.False(t, *k.KnownRansomware)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(catalogJSON))
	}))
	defer srv.Close()

	catalog, err := NewClient(&Config{URL: srv.URL, Policy: fastPolicy()}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, catalog.Vulnerabilities, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(&Config{URL: srv.URL, Policy: fastPolicy()}).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"vulnerabilities": [`))
	}))
	defer srv.Close()

	_, err := NewClient(&Config{URL: srv.URL, Policy: fastPolicy()}).Fetch(context.Background())
	assert.Equal(t, errors.KindParse, errors.GetKind(err))
}
