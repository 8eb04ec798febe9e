package ingest

import (
	"strings"
	"time"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// VulnScanRecord is a parsed vulnerability-scan record together with its
// unresolved cross references.
type VulnScanRecord struct {
	Scan model.VulnScan

	// Owner is the acronym of the owning organization.
	Owner string
	IP    *string
	Cve   *string
}

// vulnScanFields maps scanner fields to VulnScan columns.
var vulnScanFields = []field[model.VulnScan]{
	stringField("cert_id", func(v *model.VulnScan) **string { return &v.CertID }),
	stringField("cpe", func(v *model.VulnScan) **string { return &v.Cpe }),
	floatField("cvss_base_score", func(v *model.VulnScan) **float64 { return &v.CvssBaseScore }),
	floatField("cvss_temporal_score", func(v *model.VulnScan) **float64 { return &v.CvssTemporalScore }),
	stringField("cvss_temporal_vector", func(v *model.VulnScan) **string { return &v.CvssTemporalVector }),
	stringField("cvss_vector", func(v *model.VulnScan) **string { return &v.CvssVector }),
	floatField("cvss3_base_score", func(v *model.VulnScan) **float64 { return &v.Cvss3BaseScore }),
	stringField("cvss3_vector", func(v *model.VulnScan) **string { return &v.Cvss3Vector }),
	floatField("cvss3_temporal_score", func(v *model.VulnScan) **float64 { return &v.Cvss3TemporalScore }),
	stringField("cvss3_temporal_vector", func(v *model.VulnScan) **string { return &v.Cvss3TemporalVector }),
	stringField("cvss_score_rationale", func(v *model.VulnScan) **string { return &v.CvssScoreRationale }),
	stringField("cvss_score_source", func(v *model.VulnScan) **string { return &v.CvssScoreSource }),
	stringField("description", func(v *model.VulnScan) **string { return &v.Description }),
	stringField("exploit_available", func(v *model.VulnScan) **string { return &v.ExploitAvailable }),
	stringField("exploitability_ease", func(v *model.VulnScan) **string { return &v.ExploitabilityEase }),
	stringField("exploit_code_maturity", func(v *model.VulnScan) **string { return &v.ExploitCodeMaturity }),
	boolField("exploited_by_malware", func(v *model.VulnScan) **bool { return &v.ExploitedByMalware }),
	timeField("cisa-known-exploited", func(v *model.VulnScan) **time.Time { return &v.CisaKnownExploited }),
	boolField("in_the_news", func(v *model.VulnScan) **bool { return &v.InTheNews }),
	boolField("latest", func(v *model.VulnScan) **bool { return &v.Latest }),
	stringField("osvdb_id", func(v *model.VulnScan) **string { return &v.OsvdbID }),
	timeField("patch_publication_date", func(v *model.VulnScan) **time.Time { return &v.PatchPublicationDate }),
	intField("port", func(v *model.VulnScan) **int64 { return &v.Port }),
	stringField("port_range", func(v *model.VulnScan) **string { return &v.PortRange }),
	stringField("protocol", func(v *model.VulnScan) **string { return &v.Protocol }),
	stringField("service", func(v *model.VulnScan) **string { return &v.Service }),
	stringField("risk_factor", func(v *model.VulnScan) **string { return &v.RiskFactor }),
	stringField("plugin_family", func(v *model.VulnScan) **string { return &v.PluginFamily }),
	stringField("plugin_id", func(v *model.VulnScan) **string { return &v.PluginID }),
	timeField("plugin_modification_date", func(v *model.VulnScan) **time.Time { return &v.PluginModificationDate }),
	timeField("plugin_publication_date", func(v *model.VulnScan) **time.Time { return &v.PluginPublicationDate }),
	stringField("plugin_name", func(v *model.VulnScan) **string { return &v.PluginName }),
	stringField("plugin_type", func(v *model.VulnScan) **string { return &v.PluginType }),
	stringField("plugin_output", func(v *model.VulnScan) **string { return &v.PluginOutput }),
	stringField("see_also", func(v *model.VulnScan) **string { return &v.SeeAlso }),
	intField("severity", func(v *model.VulnScan) **int64 { return &v.Severity }),
	stringField("solution", func(v *model.VulnScan) **string { return &v.Solution }),
	stringField("source", func(v *model.VulnScan) **string { return &v.Source }),
	stringField("synopsis", func(v *model.VulnScan) **string { return &v.Synopsis }),
	timeField("time", func(v *model.VulnScan) **time.Time { return &v.VulnDetectionTimestamp }),
	timeField("vuln_publication_date", func(v *model.VulnScan) **time.Time { return &v.VulnPublicationTimestamp }),
	stringField("xref", func(v *model.VulnScan) **string { return &v.Xref }),
	stringField("cwe", func(v *model.VulnScan) **string { return &v.Cwe }),
	stringField("bid", func(v *model.VulnScan) **string { return &v.Bid }),
	boolField("thorough_tests", func(v *model.VulnScan) **bool { return &v.ThoroughTests }),
	boolField("asset_inventory", func(v *model.VulnScan) **bool { return &v.AssetInventory }),
	stringField("fname", func(v *model.VulnScan) **string { return &v.Fname }),
	listField("snapshots", func(v *model.VulnScan) *model.StringList { return &v.Snapshots }),
}

// vulnScanReserved are fields consumed outside the mapping table.
var vulnScanReserved = []string{"_id", "owner", "ip", "cve", "ip_int"}

// ParseVulnScan parses a vulnerability-scan record. The scanner's ObjectId
// becomes the row id; fields without a mapping land in other_findings.
func ParseVulnScan(rec Record) (*VulnScanRecord, error) {
	const op = "ingest.ParseVulnScan"

	id, err := ObjectID(rec.present("_id"))
	if err != nil {
		return nil, errors.E(errors.KindParse, op, "_id", err)
	}
	if id == "" {
		return nil, errors.E(errors.KindParse, op, "record has no _id")
	}

	out := &VulnScanRecord{Scan: model.VulnScan{ID: id}}

	owner, err := rec.String("owner")
	if err != nil {
		return nil, errors.E(op, id, err)
	}
	if owner == nil || strings.TrimSpace(*owner) == "" {
		return nil, errors.E(errors.KindReference, op, "scan "+id+" has no owner")
	}
	out.Owner = strings.TrimSpace(*owner)
	out.Scan.Owner = model.Ptr(out.Owner)

	if out.IP, err = rec.String("ip"); err != nil {
		return nil, errors.E(op, id, err)
	}
	if out.Cve, err = rec.String("cve"); err != nil {
		return nil, errors.E(op, id, err)
	}
	out.Scan.IPString = out.IP
	out.Scan.CveString = out.Cve

	if err := apply(rec, &out.Scan, vulnScanFields); err != nil {
		return nil, errors.E(op, id, err)
	}

	if out.Scan.OtherFindings, err = leftovers(rec, vulnScanFields, vulnScanReserved...); err != nil {
		return nil, errors.E(errors.KindParse, op, id, err)
	}
	return out, nil
}
