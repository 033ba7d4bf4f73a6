package store

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/logutil"
	"github.com/zoravur/dashboard-sync/internal/model"
)

type validator interface {
	Validate() error
}

// Table is the remote store for one resource: T is the row, I the insert
// payload and P the partial patch, all described by `db` struct tags.
type Table[T model.Record, I any, P any] struct {
	db      *sql.DB
	name    string
	cols    []column
	listSQL string
}

func NewTable[T model.Record, I any, P any](db *sql.DB, name string) (*Table[T, I, P], error) {
	if !validIdent(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	cols, err := columnsOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	listSQL, err := listStatement(name, names(cols))
	if err != nil {
		return nil, fmt.Errorf("build list statement for %s: %w", name, err)
	}
	return &Table[T, I, P]{db: db, name: name, cols: cols, listSQL: listSQL}, nil
}

func (t *Table[T, I, P]) Name() string { return t.name }

// Columns lists the columns read into T, in scan order.
func (t *Table[T, I, P]) Columns() []string { return names(t.cols) }

func (t *Table[T, I, P]) returning() string {
	return "RETURNING " + strings.Join(names(t.cols), ", ")
}

// List returns every row, newest first.
func (t *Table[T, I, P]) List(ctx context.Context) ([]T, error) {
	rows, err := t.db.QueryContext(ctx, t.listSQL)
	if err != nil {
		return nil, wrapErr("list", t.name, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var rec T
		if err := rows.Scan(scanTargets(&rec, t.cols)...); err != nil {
			return nil, wrapErr("list", t.name, fmt.Errorf("scan: %w", err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list", t.name, err)
	}
	return out, nil
}

// Create inserts one row and returns it as stored.
func (t *Table[T, I, P]) Create(ctx context.Context, in I) (T, error) {
	var rec T
	if v, ok := any(in).(validator); ok {
		if err := v.Validate(); err != nil {
			return rec, wrapErr("create", t.name, err)
		}
	}
	cols, vals, err := writeValues(in, false)
	if err != nil {
		return rec, wrapErr("create", t.name, err)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		t.name,
		strings.Join(cols, ", "),
		strings.Join(placeholders(1, len(cols)), ", "),
		t.returning(),
	)
	logutil.L(ctx).Debug("store create", zap.String("table", t.name), zap.Strings("columns", cols))

	if err := t.db.QueryRowContext(ctx, stmt, vals...).Scan(scanTargets(&rec, t.cols)...); err != nil {
		return rec, wrapErr("create", t.name, err)
	}
	return rec, nil
}

// Update applies the non-nil fields of patch to row id.
func (t *Table[T, I, P]) Update(ctx context.Context, id int64, patch P) (T, error) {
	var rec T
	if v, ok := any(patch).(validator); ok {
		if err := v.Validate(); err != nil {
			return rec, wrapErr("update", t.name, err)
		}
	}
	cols, vals, err := writeValues(patch, true)
	if err != nil {
		return rec, wrapErr("update", t.name, err)
	}
	if len(cols) == 0 {
		return rec, wrapErr("update", t.name, fmt.Errorf("%w: empty patch", model.ErrInvalid))
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d %s",
		t.name, strings.Join(sets, ", "), len(cols)+1, t.returning())
	args := append(vals, id)

	logutil.L(ctx).Debug("store update", zap.String("table", t.name), zap.Int64("id", id), zap.Strings("columns", cols))

	if err := t.db.QueryRowContext(ctx, stmt, args...).Scan(scanTargets(&rec, t.cols)...); err != nil {
		return rec, wrapErr("update", t.name, err)
	}
	return rec, nil
}

// Delete removes row id. Deleting a missing row is not an error.
func (t *Table[T, I, P]) Delete(ctx context.Context, id int64) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.name)
	logutil.L(ctx).Debug("store delete", zap.String("table", t.name), zap.Int64("id", id))
	if _, err := t.db.ExecContext(ctx, stmt, id); err != nil {
		return wrapErr("delete", t.name, err)
	}
	return nil
}

// Count returns the exact number of rows matching all filters.
func (t *Table[T, I, P]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	known := make(map[string]bool, len(t.cols))
	for _, c := range t.cols {
		known[c.name] = true
	}
	for _, f := range filters {
		if !known[f.Column] {
			return 0, wrapErr("count", t.name, fmt.Errorf("%w: unknown column %q", model.ErrInvalid, f.Column))
		}
	}

	stmt, args, err := countStatement(t.name, filters)
	if err != nil {
		return 0, wrapErr("count", t.name, err)
	}
	var n int64
	if err := t.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, wrapErr("count", t.name, err)
	}
	return n, nil
}
