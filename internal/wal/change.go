package wal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind tags a row-level change.
type Kind int

const (
	Inserted Kind = iota + 1
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "insert"
	case Updated:
		return "update"
	case Deleted:
		return "delete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "insert":
		return Inserted, nil
	case "update":
		return Updated, nil
	case "delete":
		return Deleted, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// RowChange is a decoded but still untyped change for one row. New holds the
// post-image (insert/update), Old the pre-image (update/delete).
type RowChange struct {
	Schema string
	Table  string
	Kind   Kind
	New    map[string]any
	Old    map[string]any
}

// Qualified returns "schema.table".
func (c RowChange) Qualified() string {
	return c.Schema + "." + c.Table
}

var (
	ErrMissingImage = errors.New("change event is missing its row image")
	ErrUnknownKind  = errors.New("unknown change kind")
	// ErrTruncated marks a change whose row images did not fit the
	// transport; only its table is known.
	ErrTruncated = errors.New("change payload truncated")
)

// Event is the typed tagged union handed to live collections. Record is the
// post-image for Inserted/Updated and the pre-image for Deleted.
type Event[T any] struct {
	Kind   Kind
	Record T
}

type validator interface {
	Validate() error
}

// Parse turns a RowChange into a typed Event, rejecting events whose image is
// absent or fails validation.
func Parse[T any](c RowChange) (Event[T], error) {
	var ev Event[T]
	image := c.New
	if c.Kind == Deleted {
		image = c.Old
	}
	if len(image) == 0 {
		return ev, fmt.Errorf("%s on %s: %w", c.Kind, c.Qualified(), ErrMissingImage)
	}

	b, err := json.Marshal(image)
	if err != nil {
		return ev, fmt.Errorf("re-encode %s image: %w", c.Kind, err)
	}
	var rec T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return ev, fmt.Errorf("decode %s image for %s: %w", c.Kind, c.Qualified(), err)
	}
	if v, ok := any(rec).(validator); ok {
		if err := v.Validate(); err != nil {
			return ev, fmt.Errorf("%s on %s: %w", c.Kind, c.Qualified(), err)
		}
	}
	ev.Kind = c.Kind
	ev.Record = rec
	return ev, nil
}
