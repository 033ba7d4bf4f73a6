package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Catalog holds the column names of the tables visible on search_path.
type Catalog struct {
	// Schema is current_schema() of the connection that loaded the catalog.
	Schema string
	tables map[string][]string // "schema.table" -> ordered column names
}

// LoadCatalog reads information_schema for the current schema.
func LoadCatalog(ctx context.Context, db *sql.DB) (*Catalog, error) {
	const query = `
		SELECT table_schema, table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_schema, table_name, ordinal_position`

	cat := &Catalog{tables: make(map[string][]string)}
	if err := db.QueryRowContext(ctx, `SELECT current_schema()`).Scan(&cat.Schema); err != nil {
		return nil, fmt.Errorf("current schema: %w", err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query information_schema: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, tbl, col string
		if err := rows.Scan(&schema, &tbl, &col); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		key := schema + "." + tbl
		cat.tables[key] = append(cat.tables[key], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return cat, nil
}

// Columns looks a table up by qualified or bare name.
func (c *Catalog) Columns(table string) ([]string, bool) {
	if cols, ok := c.tables[table]; ok {
		return cols, true
	}
	for k, v := range c.tables {
		if strings.HasSuffix(k, "."+table) {
			return v, true
		}
	}
	return nil, false
}

// Tables returns a sorted list of all fully-qualified table names.
func (c *Catalog) Tables() []string {
	keys := make([]string, 0, len(c.tables))
	for k := range c.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Require fails unless table exists with every one of cols.
func (c *Catalog) Require(table string, cols []string) error {
	have, ok := c.Columns(table)
	if !ok {
		return fmt.Errorf("table %s does not exist (run migrations)", table)
	}
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	var missing []string
	for _, col := range cols {
		if !set[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns %v", table, missing)
	}
	return nil
}
