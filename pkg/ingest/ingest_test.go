package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/lakesync/pkg/compress"
	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

func record(t *testing.T, js string) Record {
	t.Helper()
	var r Record
	require.NoError(t, json.Unmarshal([]byte(js), &r))
	return r
}

func TestRecord_Scalars(t *testing.T) {
	r := record(t, `{
		"s": "text", "n": 42, "f": "1.5", "b": "true", "b2": 0,
		"null": null, "blank": "", "frac": 1.5, "obj": {"a": 1}
	}`)

	s, err := r.String("s")
	require.NoError(t, err)
	assert.Equal(t, "text", *s)

	s, err = r.String("n")
	require.NoError(t, err)
	assert.Equal(t, "42", *s)

	s, err = r.String("null")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = r.String("missing")
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = r.String("obj")
	assert.True(t, errors.IsRecordError(err))

	f, err := r.Float("f")
	require.NoError(t, err)
	assert.Equal(t, 1.5, *f)

	f, err = r.Float("blank")
	require.NoError(t, err)
	assert.Nil(t, f)

	n, err := r.Int("n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), *n)

	_, err = r.Int("frac")
	assert.Error(t, err)

	b, err := r.Bool("b")
	require.NoError(t, err)
	assert.True(t, *b)

	b, err = r.Bool("b2")
	require.NoError(t, err)
	assert.False(t, *b)
}

func TestRecord_Time(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		js   string
	}{
		{"rfc3339", `"2024-03-01T12:30:00Z"`},
		{"offset", `"2024-03-01T07:30:00-05:00"`},
		{"space", `"2024-03-01 12:30:00"`},
		{"micro", `"2024-03-01T12:30:00.000000"`},
		{"mongo date string", `{"$date": "2024-03-01T12:30:00Z"}`},
		{"mongo date millis", `{"$date": 1709296200000}`},
		{"epoch seconds", `1709296200`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{"t": json.RawMessage(tt.js)}
			got, err := r.Time("t")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, want.Equal(*got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := Record{"t": json.RawMessage(`"yesterday"`)}.Time("t")
	assert.True(t, errors.IsRecordError(err))
}

func TestRecord_DecodeStringEncoded(t *testing.T) {
	r := record(t, `{"enc": "[\"a\", \"b\"]", "plain": ["c"], "empty": "", "bad": "[1,"}`)

	list, err := r.Strings("enc")
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"a", "b"}, list)

	list, err = r.Strings("plain")
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"c"}, list)

	list, err = r.Strings("empty")
	require.NoError(t, err)
	assert.Nil(t, list)

	_, err = r.Strings("bad")
	assert.True(t, errors.IsRecordError(err))
}

func TestObjectID(t *testing.T) {
	tests := map[string]string{
		`"ObjectId('5F9B1C2E8D3A4B0012345678')"`: "5f9b1c2e8d3a4b0012345678",
		`"ObjectId(\"abc123\")"`:                 "abc123",
		`{"$oid": "abc123"}`:                     "abc123",
		`"abc123"`:                               "abc123",
	}
	for in, want := range tests {
		got, err := ObjectID(json.RawMessage(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseOrganization(t *testing.T) {
	r := record(t, `{
		"_id": "ACME",
		"agency": "{\"name\": \"Acme Corp\", \"acronym\": \"ACME\", \"type\": \"FEDERAL\", \"location\": {\"gnis_id\": 1702381, \"name\": \"Springfield\", \"state\": \"IL\", \"county_fips\": \"167\"}, \"contacts\": [{\"name\": \"Ops\", \"email\": \"ops@acme.example\", \"type\": \"TECHNICAL\"}]}",
		"networks": "[\"192.0.2.0/24\", \"2001:db8::/64\"]",
		"report_types": "[\"CYHY\"]",
		"scan_types": ["CYHY"],
		"children": "[\"CHILD1\", \"CHILD2\"]",
		"retired": false,
		"passive": null,
		"enrolled": "2020-01-02T00:00:00Z",
		"stakeholder": true,
		"init_stage": "VULNSCAN",
		"scheduler": "PERSISTENT1"
	}`)

	out, err := ParseOrganization(r)
	require.NoError(t, err)
	require.False(t, out.IsSector)

	org := out.Organization
	assert.Equal(t, "ACME", *org.Acronym)
	assert.Equal(t, "Acme Corp", *org.Name)
	assert.Equal(t, "FEDERAL", *org.Type)
	assert.False(t, *org.Retired)
	assert.Nil(t, org.IsPassive, "null never defaults")
	assert.True(t, *org.Stakeholder)
	assert.Equal(t, model.StringList{"CYHY"}, org.ReportTypes)
	assert.Equal(t, model.StringList{"CYHY"}, org.ScanTypes)
	assert.Equal(t, "IL", *org.State)
	assert.Nil(t, org.StateName)
	assert.Equal(t, 2020, org.EnrolledInVSTimestamp.Year())
	assert.Nil(t, org.PeriodStartVSTimestamp)

	require.NotNil(t, out.Location)
	assert.Equal(t, "1702381", *out.Location.GnisID)
	assert.Equal(t, "Springfield", *out.Location.Name)

	assert.Equal(t, []string{"192.0.2.0/24", "2001:db8::/64"}, out.Networks)
	assert.Equal(t, []string{"CHILD1", "CHILD2"}, out.Children)
	require.Len(t, out.Contacts, 1)
	assert.Equal(t, "ops@acme.example", out.Contacts[0].Email)
}

func TestParseOrganization_SectorWhenTypeAbsent(t *testing.T) {
	tests := []struct {
		name string
		js   string
	}{
		{"no type", `{"_id": "ENERGY", "agency": "{\"name\": \"Energy\"}", "children": "[\"ACME\"]"}`},
		{"null type", `{"_id": "ENERGY", "agency": {"name": "Energy", "type": null}, "children": ["ACME"]}`},
		{"no agency", `{"_id": "ENERGY", "children": ["ACME"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOrganization(record(t, tt.js))
			require.NoError(t, err)
			assert.True(t, out.IsSector)
			assert.Equal(t, "ENERGY", *out.Sector.Acronym)
			assert.Equal(t, []string{"ACME"}, out.Children)
		})
	}
}

func TestParseOrganization_Errors(t *testing.T) {
	_, err := ParseOrganization(record(t, `{"agency": "{}"}`))
	assert.True(t, errors.IsRecordError(err))

	_, err = ParseOrganization(record(t, `{"_id": "X", "agency": "{not json"}`))
	assert.True(t, errors.IsRecordError(err))
	assert.Contains(t, err.Error(), "X")
}

func TestSectorFilter(t *testing.T) {
	f := NewSectorFilter(nil)
	for _, id := range DefaultNonSectorIDs {
		assert.True(t, f.Excluded(id), id)
	}
	assert.True(t, f.Excluded(" root "))
	assert.False(t, f.Excluded("ENERGY"))

	none := NewSectorFilter([]string{})
	assert.False(t, none.Excluded("ROOT"))
}

func TestParseVulnScan(t *testing.T) {
	r := record(t, `{
		"_id": "ObjectId('5f9b1c2e8d3a4b0012345678')",
		"owner": "ACME",
		"ip": "192.0.2.10",
		"ip_int": 3221225994,
		"cve": "CVE-2021-44228",
		"cisa-known-exploited": "2021-12-10T00:00:00Z",
		"plugin_id": 155999,
		"cvss3_base_score": "10.0",
		"severity": 4,
		"port": 443,
		"exploited_by_malware": null,
		"snapshots": ["s1"],
		"hosts_scanned": 12,
		"vendor_note": "patched upstream"
	}`)

	out, err := ParseVulnScan(r)
	require.NoError(t, err)

	scan := out.Scan
	assert.Equal(t, "5f9b1c2e8d3a4b0012345678", scan.ID)
	assert.Equal(t, "ACME", out.Owner)
	assert.Equal(t, "192.0.2.10", *out.IP)
	assert.Equal(t, "CVE-2021-44228", *out.Cve)
	assert.Equal(t, "CVE-2021-44228", *scan.CveString)
	assert.Equal(t, "155999", *scan.PluginID)
	assert.Equal(t, 10.0, *scan.Cvss3BaseScore)
	assert.Equal(t, int64(4), *scan.Severity)
	assert.Equal(t, int64(443), *scan.Port)
	assert.Equal(t, 2021, scan.CisaKnownExploited.Year())
	assert.Nil(t, scan.ExploitedByMalware)
	assert.Nil(t, scan.Solution)
	assert.Equal(t, model.StringList{"s1"}, scan.Snapshots)

	var other map[string]any
	require.NoError(t, json.Unmarshal(scan.OtherFindings, &other))
	assert.Equal(t, map[string]any{"hosts_scanned": float64(12), "vendor_note": "patched upstream"}, other)
}

func TestParseVulnScan_Errors(t *testing.T) {
	_, err := ParseVulnScan(record(t, `{"owner": "ACME"}`))
	assert.Equal(t, errors.KindParse, errors.GetKind(err))

	_, err = ParseVulnScan(record(t, `{"_id": "abc", "owner": ""}`))
	assert.Equal(t, errors.KindReference, errors.GetKind(err))

	_, err = ParseVulnScan(record(t, `{"_id": "abc", "owner": "ACME", "port": "https"}`))
	assert.Equal(t, errors.KindParse, errors.GetKind(err))
}

func TestParseVulnScan_NoLeftovers(t *testing.T) {
	out, err := ParseVulnScan(record(t, `{"_id": "abc", "owner": "ACME", "unused": null}`))
	require.NoError(t, err)
	assert.Nil(t, out.Scan.OtherFindings)
}

func TestParseTicket(t *testing.T) {
	r := record(t, `{
		"_id": {"$oid": "64b7f0c2a1b2c3d4e5f60718"},
		"owner": "ACME",
		"ip": "192.0.2.10",
		"port": 443,
		"protocol": "tcp",
		"source": "nessus",
		"source_id": 155999,
		"false_positive": false,
		"time_opened": {"$date": "2023-07-19T14:00:00Z"},
		"time_closed": null,
		"details": "{\"cve\": \"CVE-2021-44228\", \"cvss_base_score\": 10.0, \"kev\": true, \"name\": \"Log4Shell\", \"severity\": 4}",
		"loc": {"name": "Springfield", "state": "IL", "gnis_id": 1702381}
	}`)

	out, err := ParseTicket(r)
	require.NoError(t, err)

	tk := out.Ticket
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", tk.ID)
	assert.Equal(t, "ACME", out.Owner)
	assert.Equal(t, "CVE-2021-44228", *out.Cve)
	assert.True(t, out.KnownExploited)
	assert.Equal(t, "Log4Shell", *tk.Name)
	assert.Equal(t, int64(4), *tk.Severity)
	assert.Equal(t, int64(155999), *tk.SourceID)
	assert.False(t, *tk.FalsePositive)
	assert.Equal(t, 2023, tk.TimeOpened.Year())
	assert.Nil(t, tk.TimeClosed)
	assert.Equal(t, "1702381", *tk.LocGnisID)
	assert.Nil(t, tk.LocCounty)
}

func TestParseDomain(t *testing.T) {
	r := record(t, `{
		"name": "WWW.Acme.example",
		"organization": "ACME",
		"ip": "192.0.2.10",
		"services": "[{\"port\": 443, \"name\": \"https\"}]",
		"vulnerabilities": [],
		"webpages": [
			{"url": "https://www.acme.example/", "status_code": 200, "response_size": 512, "body": "hello"},
			{"url": " "}
		]
	}`)

	out, err := ParseDomain(r)
	require.NoError(t, err)
	assert.Equal(t, "www.acme.example", *out.Domain.Name)
	assert.Equal(t, "ACME", *out.Owner)
	assert.JSONEq(t, `[{"port": 443, "name": "https"}]`, string(out.Domain.Services))
	assert.JSONEq(t, `[]`, string(out.Domain.Vulnerabilities))
	require.Len(t, out.Webpages, 1)
	assert.Equal(t, "hello", *out.Webpages[0].Body)

	_, err = ParseDomain(record(t, `{"ip": "192.0.2.10"}`))
	assert.True(t, errors.IsRecordError(err))
}

func TestStream_ArrayAndLines(t *testing.T) {
	dir := t.TempDir()

	array := filepath.Join(dir, "orgs.json")
	require.NoError(t, os.WriteFile(array, []byte(` [{"_id": "A"}, {"_id": "B"}]`), 0o600))

	lines := filepath.Join(dir, "orgs.jsonl")
	require.NoError(t, os.WriteFile(lines, []byte("{\"_id\": \"A\"}\n{\"_id\": \"B\"}\n"), 0o600))

	for _, path := range []string{array, lines} {
		recs, err := ReadExport(context.Background(), path, nil)
		require.NoError(t, err, path)
		require.Len(t, recs, 2, path)
		assert.Equal(t, "B", recs[1].SourceID())
	}
}

func TestStream_Compressed(t *testing.T) {
	payload := []byte(`[{"_id": "A"}, {"_id": "B"}, {"_id": "C"}]`)

	for _, algo := range []compress.Algorithm{compress.AlgorithmGzip, compress.AlgorithmZSTD} {
		data, err := compress.NewCompressor(algo, compress.LevelDefault).Compress(payload)
		require.NoError(t, err)

		// No extension: the format is sniffed.
		path := filepath.Join(t.TempDir(), "export")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		recs, err := ReadExport(context.Background(), path, nil)
		require.NoError(t, err, algo)
		assert.Len(t, recs, 3, algo)
	}
}

func TestStream_Errors(t *testing.T) {
	_, err := ReadExport(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.True(t, errors.IsNotFoundError(err))

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"_id": "A"}, {"_id": `), 0o600))
	_, err = ReadExport(context.Background(), path, nil)
	assert.Equal(t, errors.KindParse, errors.GetKind(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	good := filepath.Join(t.TempDir(), "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"_id": "A"}]`), 0o600))
	assert.ErrorIs(t, Stream(ctx, good, nil, func(Record) error { return nil }), context.Canceled)
}

func TestParseGCS(t *testing.T) {
	bucket, object, ok := parseGCS("gs://lake/exports/orgs.json.gz")
	require.True(t, ok)
	assert.Equal(t, "lake", bucket)
	assert.Equal(t, "exports/orgs.json.gz", object)

	_, _, ok = parseGCS("gs://lake")
	assert.False(t, ok)
	_, _, ok = parseGCS("/tmp/orgs.json")
	assert.False(t, ok)
}
