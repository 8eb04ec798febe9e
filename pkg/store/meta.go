package store

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/exploopio/lakesync/pkg/model"
)

// columnRole is how the upsert engine treats a column.
type columnRole int

const (
	roleSettable columnRole = iota
	roleKey
	roleID
)

type column struct {
	name  string
	index int
	role  columnRole
}

// entityMeta is the column layout of one entity type.
type entityMeta struct {
	table    string
	id       *column
	keys     []column
	settable []column
}

var metaCache sync.Map // reflect.Type -> *entityMeta

// metaFor returns the cached column layout of e's type, building it on
// first use from the db and upsert struct tags.
func metaFor(e model.Entity) (*entityMeta, error) {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if m, ok := metaCache.Load(t); ok {
		return m.(*entityMeta), nil
	}

	m, err := buildMeta(t, e.TableName())
	if err != nil {
		return nil, err
	}
	actual, _ := metaCache.LoadOrStore(t, m)
	return actual.(*entityMeta), nil
}

func buildMeta(t reflect.Type, table string) (*entityMeta, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity %s is not a struct", t)
	}

	m := &entityMeta{table: table}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("db"), ",")
		if name == "" || name == "-" {
			continue
		}

		col := column{name: name, index: i}
		switch f.Tag.Get("upsert") {
		case "-":
			continue
		case "key":
			col.role = roleKey
			m.keys = append(m.keys, col)
		case "id":
			if m.id != nil {
				return nil, fmt.Errorf("entity %s has more than one id column", t)
			}
			col.role = roleID
			m.id = &col
		case "":
			if !nilable(f.Type) {
				return nil, fmt.Errorf("settable column %s.%s must be a pointer, slice or map", t, name)
			}
			m.settable = append(m.settable, col)
		default:
			return nil, fmt.Errorf("entity %s: unknown upsert tag %q", t, f.Tag.Get("upsert"))
		}
	}

	if len(m.keys) == 0 {
		return nil, fmt.Errorf("entity %s has no natural key column", t)
	}
	return m, nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// isAbsent reports whether a field value carries no data.
func isAbsent(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// keyMissing reports whether a natural key value is unusable.
func keyMissing(v reflect.Value) bool {
	if isAbsent(v) {
		return true
	}
	v = reflect.Indirect(v)
	if v.Kind() == reflect.String {
		return strings.TrimSpace(v.String()) == ""
	}
	return v.IsZero()
}

// value returns the driver argument for a field. Times are written in UTC
// so stored timestamps compare correctly as text on SQLite.
func value(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t.UTC()
	}
	return v.Interface()
}
