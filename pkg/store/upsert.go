package store

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/model"
)

// UpsertMode is the statement shape an upsert used.
type UpsertMode string

const (
	// ModeUpdate overwrote the present fields of an existing row, or inserted.
	ModeUpdate UpsertMode = "update"

	// ModeIgnore had nothing to overwrite: insert-or-ignore, then lookup.
	ModeIgnore UpsertMode = "ignore"
)

// Upsert inserts e or, when a row with the same natural key exists,
// overwrites the fields that are present (non-nil) in e. Absent fields
// never overwrite stored values. It returns the durable row id and, when e
// is a pointer, writes that id back into its id field.
//
// With at least one present field the call is a single
// INSERT ... ON CONFLICT DO UPDATE ... RETURNING id. With none it is an
// INSERT ... ON CONFLICT DO NOTHING followed by a lookup by natural key.
func (s *Store) Upsert(ctx context.Context, e model.Entity) (string, error) {
	id, _, err := s.upsert(ctx, e)
	return id, err
}

// UpsertWithMode is Upsert that also reports the statement shape used.
func (s *Store) UpsertWithMode(ctx context.Context, e model.Entity) (string, UpsertMode, error) {
	return s.upsert(ctx, e)
}

func (s *Store) upsert(ctx context.Context, e model.Entity) (string, UpsertMode, error) {
	const op = "store.Upsert"

	rv := reflect.ValueOf(e)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return "", "", errors.E(errors.KindInvalidInput, op, "nil entity")
	}

	meta, err := metaFor(e)
	if err != nil {
		return "", "", errors.E(errors.KindInternal, op, err)
	}
	v := reflect.Indirect(rv)

	var (
		cols      []string
		args      []any
		overwrite []string
		keyCols   []string
		keyArgs   []any
	)

	for _, k := range meta.keys {
		f := v.Field(k.index)
		if keyMissing(f) {
			return "", "", errors.E(op, fmt.Sprintf("%s.%s", meta.table, k.name), errors.ErrMissingNaturalKey)
		}
		keyCols = append(keyCols, k.name)
		keyArgs = append(keyArgs, value(f))
	}

	if meta.id != nil {
		id := v.Field(meta.id.index).String()
		if id == "" {
			id = uuid.New().String()
		}
		cols = append(cols, meta.id.name)
		args = append(args, id)
	}
	cols = append(cols, keyCols...)
	args = append(args, keyArgs...)

	for _, c := range meta.settable {
		f := v.Field(c.index)
		if isAbsent(f) {
			continue
		}
		cols = append(cols, c.name)
		args = append(args, value(f))
		overwrite = append(overwrite, c.name)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		meta.table,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
		strings.Join(keyCols, ", "),
	)

	var (
		id   string
		mode UpsertMode
	)

	if len(overwrite) > 0 {
		mode = ModeUpdate
		set := make([]string, 0, len(overwrite)+1)
		for _, c := range overwrite {
			set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
		}
		set = append(set, "updated_at = "+s.dialect.now())

		query := s.rebind(insert + " DO UPDATE SET " + strings.Join(set, ", ") + " RETURNING id")
		if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return "", "", errors.E(errors.KindStore, op, "upsert "+meta.table, err)
		}
	} else {
		mode = ModeIgnore
		if _, err := s.db.ExecContext(ctx, s.rebind(insert+" DO NOTHING"), args...); err != nil {
			return "", "", errors.E(errors.KindStore, op, "insert "+meta.table, err)
		}

		where := make([]string, len(keyCols))
		for i, c := range keyCols {
			where[i] = c + " = ?"
		}
		query := s.rebind(fmt.Sprintf("SELECT id FROM %s WHERE %s", meta.table, strings.Join(where, " AND ")))
		err := s.db.GetContext(ctx, &id, query, keyArgs...)
		if err == sql.ErrNoRows {
			return "", "", errors.E(op, meta.table, errors.ErrRowVanished)
		}
		if err != nil {
			return "", "", errors.E(errors.KindStore, op, "lookup "+meta.table, err)
		}
	}

	if meta.id != nil && rv.Kind() == reflect.Pointer {
		if f := v.Field(meta.id.index); f.CanSet() {
			f.SetString(id)
		}
	}

	s.metrics.CounterInc(metrics.UpsertsTotal.Name, "table", meta.table, "mode", string(mode))
	return id, mode, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
