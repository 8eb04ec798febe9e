// Package model defines the canonical entities persisted by the pipeline.
//
// Entities are plain structs tagged for the upsert engine:
//
//	db:"col"          column name
//	upsert:"key"      natural key column, never overwritten
//	upsert:"id"       generated row id, set on insert only
//	upsert:"-"        managed by the store, never written by an upsert
//
// Every other db-tagged field is settable. Settable fields are nil-able
// (pointers, StringList, JSON); nil means "absent, keep the stored value".
package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Entity is a persisted type with a table of its own.
type Entity interface {
	TableName() string
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// JSON is a raw JSON value stored as text. A nil JSON is absent.
type JSON []byte

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSON(nil), v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("model.JSON: cannot scan %T", src)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*j = nil
		return nil
	}
	*j = append(JSON(nil), data...)
	return nil
}

// MustJSON marshals v, panicking on failure. For literals in tests and
// static defaults only.
func MustJSON(v any) JSON {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// StringList is a list of strings stored as a JSON array. A nil list is absent.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model.StringList: cannot scan %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("model.StringList: %w", err)
	}
	*l = out
	return nil
}
