package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// EnableChangeTriggers attaches dashboard_notify_change() to each table so
// every row change is sent on channel. Only the LISTEN stream needs them.
// Re-running it is harmless.
func EnableChangeTriggers(ctx context.Context, db *sql.DB, channel string, tables ...string) error {
	for _, table := range tables {
		stmt := fmt.Sprintf(
			`CREATE OR REPLACE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s
			FOR EACH ROW EXECUTE FUNCTION dashboard_notify_change(%s)`,
			pq.QuoteIdentifier(table+"_notify_change"),
			pq.QuoteIdentifier(table),
			pq.QuoteLiteral(channel),
		)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return wrapErr("enable change trigger", table, err)
		}
	}
	return nil
}
