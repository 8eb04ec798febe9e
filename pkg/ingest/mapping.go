package ingest

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/exploopio/lakesync/pkg/model"
)

// field maps one source field onto a canonical record T.
type field[T any] struct {
	source string
	assign func(r Record, dst *T) error
}

func stringField[T any](source string, target func(*T) **string) field[T] {
	return field[T]{source, func(r Record, dst *T) error {
		v, err := r.String(source)
		*target(dst) = v
		return err
	}}
}

func floatField[T any](source string, target func(*T) **float64) field[T] {
	return field[T]{source, func(r Record, dst *T) error {
		v, err := r.Float(source)
		*target(dst) = v
		return err
	}}
}

func intField[T any](source string, target func(*T) **int64) field[T] {
	return field[T]{source, func(r Record, dst *T) error {
		v, err := r.Int(source)
		*target(dst) = v
		return err
	}}
}

func boolField[T any](source string, target func(*T) **bool) field[T] {
	return field[T]{source, func(r Record, dst *T) error {
		v, err := r.Bool(source)
		*target(dst) = v
		return err
	}}
}

func timeField[T any](source string, target func(*T) **time.Time) field[T] {
	return field[T]{source, func(r Record, dst *T) error {
		v, err := r.Time(source)
		*target(dst) = v
		return err
	}}
}

func listField[T any](source string, target func(*T) *model.StringList) field[T] {
	return field[T]{source, func(r Record, dst *T) error {
		v, err := r.Strings(source)
		*target(dst) = v
		return err
	}}
}

// apply runs every mapping against r. It stops at the first error.
func apply[T any](r Record, dst *T, fields []field[T]) error {
	for _, f := range fields {
		if err := f.assign(r, dst); err != nil {
			return err
		}
	}
	return nil
}

// leftovers collects the present fields of r that no mapping and no
// reserved name consumed, as one JSON object. It returns nil when nothing
// is left.
func leftovers[T any](r Record, fields []field[T], reserved ...string) (model.JSON, error) {
	used := make(map[string]struct{}, len(fields)+len(reserved))
	for _, f := range fields {
		used[f.source] = struct{}{}
	}
	for _, name := range reserved {
		used[name] = struct{}{}
	}

	keys := make([]string, 0)
	for k := range r {
		if _, ok := used[k]; ok || !r.Has(k) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	rest := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		rest[k] = r[k]
	}
	b, err := json.Marshal(rest)
	if err != nil {
		return nil, err
	}
	return b, nil
}
