// Package ingest parses raw data-lake export records into typed records
// ready for the upsert engine.
//
// Exports use inconsistent field names and often carry nested objects and
// arrays encoded as JSON strings. Everything is decoded here; nothing
// string-encoded travels past this package. Absent and null fields decode
// to nil so they never overwrite stored values.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// Record is one raw export record.
type Record map[string]json.RawMessage

// present returns the raw value of a field, or nil when the field is
// missing or JSON null.
func (r Record) present(field string) json.RawMessage {
	raw, ok := r[field]
	if !ok {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}

// Has reports whether a field is present and not null.
func (r Record) Has(field string) bool {
	return r.present(field) != nil
}

// SourceID returns the record's source id for log messages, or "?".
func (r Record) SourceID() string {
	if id, err := ObjectID(r.present("_id")); err == nil && id != "" {
		return id
	}
	for _, f := range []string{"acronym", "name", "url"} {
		if s, err := r.String(f); err == nil && s != nil {
			return *s
		}
	}
	return "?"
}

// String decodes a string field. Numbers and booleans are converted to
// their text form.
func (r Record) String(field string) (*string, error) {
	raw := r.present(field)
	if raw == nil {
		return nil, nil
	}
	s, err := rawString(raw)
	if err != nil {
		return nil, fieldError(field, err)
	}
	return &s, nil
}

// Bool decodes a boolean field. "true"/"false" strings and 0/1 are accepted.
func (r Record) Bool(field string) (*bool, error) {
	raw := r.present(field)
	if raw == nil {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b, nil
	}
	s, err := rawString(raw)
	if err != nil {
		return nil, fieldError(field, err)
	}
	b, err = strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return nil, fieldError(field, err)
	}
	return &b, nil
}

// Int decodes an integer field. Integral floats and numeric strings are
// accepted.
func (r Record) Int(field string) (*int64, error) {
	f, err := r.Float(field)
	if err != nil || f == nil {
		return nil, err
	}
	if *f != math.Trunc(*f) || math.IsInf(*f, 0) {
		return nil, fieldError(field, fmt.Errorf("%v is not an integer", *f))
	}
	n := int64(*f)
	return &n, nil
}

// Float decodes a numeric field. Numeric strings are accepted.
func (r Record) Float(field string) (*float64, error) {
	raw := r.present(field)
	if raw == nil {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, nil
	}
	s, err := rawString(raw)
	if err != nil {
		return nil, fieldError(field, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fieldError(field, err)
	}
	return &f, nil
}

// timeLayouts are the timestamp layouts seen in exports.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time decodes a timestamp field. Strings in common layouts, Mongo extended
// JSON ({"$date": ...}) and epoch seconds are accepted. Results are UTC.
func (r Record) Time(field string) (*time.Time, error) {
	raw := r.present(field)
	if raw == nil {
		return nil, nil
	}
	t, err := rawTime(raw)
	if err != nil {
		return nil, fieldError(field, err)
	}
	if t == nil {
		return nil, nil
	}
	u := t.UTC()
	return &u, nil
}

func rawTime(raw json.RawMessage) (*time.Time, error) {
	switch raw[0] {
	case '{':
		var ext struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(raw, &ext); err != nil || ext.Date == nil {
			return nil, fmt.Errorf("unsupported timestamp object %s", truncate(raw, 40))
		}
		var millis int64
		if err := json.Unmarshal(ext.Date, &millis); err == nil {
			t := time.UnixMilli(millis)
			return &t, nil
		}
		return rawTime(ext.Date)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("unrecognized timestamp %q", s)
	default:
		var secs float64
		if err := json.Unmarshal(raw, &secs); err != nil {
			return nil, err
		}
		whole, frac := math.Modf(secs)
		t := time.Unix(int64(whole), int64(frac*1e9))
		return &t, nil
	}
}

// Decode decodes an object or array field into v. The value may be the
// JSON itself or a string holding JSON. It reports whether the field was
// present.
func (r Record) Decode(field string, v any) (bool, error) {
	raw := r.present(field)
	if raw == nil {
		return false, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return false, fieldError(field, err)
		}
		inner = strings.TrimSpace(inner)
		if inner == "" || inner == "null" {
			return false, nil
		}
		raw = json.RawMessage(inner)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fieldError(field, err)
	}
	return true, nil
}

// Strings decodes a string-array field.
func (r Record) Strings(field string) (model.StringList, error) {
	var out []flexString
	ok, err := r.Decode(field, &out)
	if err != nil || !ok {
		return nil, err
	}
	list := make(model.StringList, 0, len(out))
	for _, s := range out {
		list = append(list, string(s))
	}
	return list, nil
}

// JSON returns a field as raw JSON, decoding a string-encoded value first.
func (r Record) JSON(field string) (model.JSON, error) {
	var v any
	ok, err := r.Decode(field, &v)
	if err != nil || !ok {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fieldError(field, err)
	}
	return b, nil
}

var objectIDPattern = regexp.MustCompile(`^ObjectId\(\s*['"]?([0-9a-fA-F]+)['"]?\s*\)$`)

// ObjectID extracts the hex id from "ObjectId('<hex>')", {"$oid": "<hex>"}
// or a bare hex string.
func ObjectID(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", nil
	}
	if raw[0] == '{' {
		var ext struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(raw, &ext); err != nil {
			return "", err
		}
		raw, _ = json.Marshal(ext.OID)
	}
	s, err := rawString(raw)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if m := objectIDPattern.FindStringSubmatch(s); m != nil {
		return strings.ToLower(m[1]), nil
	}
	return s, nil
}

// rawString decodes a JSON string, number or boolean as text.
func rawString(raw json.RawMessage) (string, error) {
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return "", fmt.Errorf("expected a scalar, got %s", truncate(raw, 40))
	default:
		return string(raw), nil
	}
}

// flexString unmarshals from a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s, err := rawString(b)
	if err != nil {
		return err
	}
	*f = flexString(s)
	return nil
}

func (f flexString) ptr() *string {
	if f == "" {
		return nil
	}
	s := string(f)
	return &s
}

func fieldError(field string, err error) error {
	return errors.E(errors.KindParse, "ingest.field", fmt.Sprintf("field %q", field), err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
