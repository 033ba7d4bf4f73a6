// Package store is the remote store behind the live collections: snapshot
// queries, server-confirmed mutations and exact counts against PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zoravur/dashboard-sync/internal/model"
)

var ErrNotFound = errors.New("record not found")

// CodeInvalid marks client-side validation failures in Error.Code; other
// codes are PostgreSQL SQLSTATEs.
const CodeInvalid = "invalid"

// Error is a rejected store call. Error() is the human-readable message
// from the database (or validator) so it can be shown to users as-is.
type Error struct {
	Op      string
	Table   string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	e := &Error{Op: op, Table: table, Message: err.Error(), Err: err}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		e.Code = pgErr.Code
		e.Message = pgErr.Message
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, ErrNotFound):
		e.Err = ErrNotFound
		e.Message = fmt.Sprintf("%s not found", table)
	case errors.Is(err, model.ErrInvalid):
		e.Code = CodeInvalid
	}
	return e
}

// Open connects through the pgx database/sql driver and pings.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
