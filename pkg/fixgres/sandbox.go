package fixgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
)

type Sandbox struct {
	DB     *sql.DB
	DSN    string
	Schema string
	Close  func()
}

// BootOnce is Boot for use inside a test; it fails the test on error.
func BootOnce(t *testing.T, opts ...Option) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := Boot(ctx, opts...); err != nil {
		t.Fatalf("fixgres boot failed: %v", err)
	}
}

// NewSandbox creates a fresh schema, migrates it when WithGooseUp was given,
// and drops it when the test ends.
func NewSandbox(t *testing.T) *Sandbox {
	t.Helper()
	base := ConnString()
	if base == "" {
		t.Fatalf("fixgres not booted. Call fixgres.Boot(...) in TestMain first.")
	}

	admin, err := sql.Open("pgx", base) // admin connection (no search_path)
	if err != nil {
		t.Fatalf("open admin: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := fmt.Sprintf("t_%x", time.Now().UnixNano())
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA "`+schema+`"`); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	// Every pooled connection carries the sandbox search_path.
	sbxDSN := withSearchPath(base, schema)

	db, err := sql.Open("pgx", sbxDSN)
	if err != nil {
		t.Fatalf("open sandbox: %v", err)
	}

	sbx := &Sandbox{DB: db, DSN: sbxDSN, Schema: schema}
	closed := false
	sbx.Close = func() {
		if closed {
			return
		}
		closed = true
		// drop schema with admin handle (it doesn't share the search_path)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.ExecContext(ctx, `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`)
		_ = db.Close()
		_ = admin.Close()
	}
	t.Cleanup(sbx.Close)

	if bootCfg.gooseFS != nil {
		provider, err := goose.NewProvider(goose.DialectPostgres, db, bootCfg.gooseFS)
		if err != nil {
			t.Fatalf("goose provider: %v", err)
		}
		if _, err := provider.Up(ctx); err != nil {
			t.Fatalf("goose up: %v", err)
		}
	}
	return sbx
}

func withSearchPath(base, schema string) string {
	u, _ := url.Parse(base)
	q := u.Query()
	q.Set("options", fmt.Sprintf("-csearch_path=%s,public", schema))
	u.RawQuery = q.Encode()
	return u.String()
}
