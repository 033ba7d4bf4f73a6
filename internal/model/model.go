package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is anything the live collections can key by server-assigned id.
type Record interface {
	RecordID() int64
}

var ErrInvalid = errors.New("invalid record")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Timestamp accepts RFC 3339 as well as the PostgreSQL text form emitted by
// wal2json ("2024-01-01 00:00:00.123+00").
type Timestamp struct {
	time.Time
}

var pgLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range pgLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scan lets database/sql fill a Timestamp from a timestamptz column.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Timestamp{}
	case time.Time:
		*t = Timestamp{Time: v.UTC()}
	case string:
		parsed, err := ParseTimestamp(v)
		if err != nil {
			return err
		}
		*t = parsed
	case []byte:
		parsed, err := ParseTimestamp(string(v))
		if err != nil {
			return err
		}
		*t = parsed
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
	return nil
}
