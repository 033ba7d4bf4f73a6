package store

import (
	"fmt"
	"reflect"
	"strings"
)

// column describes one `db`-tagged struct field.
type column struct {
	name     string
	index    int
	autoinc  bool
	readonly bool
}

func columnsOf(t reflect.Type) ([]column, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s is not a struct", t)
	}
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		dbTag := f.Tag.Get("db")

		// Skip fields with no tag or explicitly ignored
		if dbTag == "" {
			continue
		}
		parts := strings.Split(dbTag, ",")
		if parts[0] == "-" {
			continue
		}
		if !validIdent(parts[0]) {
			return nil, fmt.Errorf("%s.%s: invalid column name %q", t, f.Name, parts[0])
		}
		c := column{name: parts[0], index: i}
		for _, opt := range parts[1:] {
			switch opt {
			case "autoinc":
				c.autoinc = true
			case "readonly":
				c.readonly = true
			}
		}
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s has no db-tagged fields", t)
	}
	return cols, nil
}

func names(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// writeValues returns the columns and values to send for an insert or patch.
// Server-assigned columns are skipped; with skipNil, nil pointer fields are
// left out and non-nil ones dereferenced.
func writeValues(v any, skipNil bool) (cols []string, vals []any, err error) {
	rv := reflect.ValueOf(v)
	fields, err := columnsOf(rv.Type())
	if err != nil {
		return nil, nil, err
	}
	for _, c := range fields {
		if c.autoinc || c.readonly {
			continue
		}
		fv := rv.Field(c.index)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				if skipNil {
					continue
				}
				cols = append(cols, c.name)
				vals = append(vals, nil)
				continue
			}
			fv = fv.Elem()
		}
		cols = append(cols, c.name)
		vals = append(vals, fv.Interface())
	}
	return cols, vals, nil
}

// scanTargets returns pointers into *dst for each column, in column order.
func scanTargets(dst any, cols []column) []any {
	rv := reflect.ValueOf(dst).Elem()
	ptrs := make([]any, len(cols))
	for i, c := range cols {
		ptrs[i] = rv.Field(c.index).Addr().Interface()
	}
	return ptrs
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func placeholders(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("$%d", from+i)
	}
	return out
}
