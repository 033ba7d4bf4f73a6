package wal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Change is one entry of a wal2json format-v1 message.
type Change struct {
	Schema       string   `json:"schema"`
	Table        string   `json:"table"`
	Kind         string   `json:"kind"`
	ColumnNames  []string `json:"columnnames"`
	ColumnValues []any    `json:"columnvalues"`
	OldKeys      Keys     `json:"oldkeys"`
}

type Keys struct {
	KeyNames  []string `json:"keynames"`
	KeyValues []any    `json:"keyvalues"`
}

type Envelope struct {
	Change []Change `json:"change"`
}

// DecodeEnvelope parses a wal2json format-v1 transaction message. Tables are
// expected to use REPLICA IDENTITY FULL so oldkeys carries the full pre-image.
// Entries of an unknown kind (truncate, message) are skipped; the changes
// that did decode are returned alongside an error naming the skipped ones.
func DecodeEnvelope(data []byte) ([]RowChange, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode wal2json envelope: %w", err)
	}

	out := make([]RowChange, 0, len(env.Change))
	var skipped []error
	for i, ch := range env.Change {
		kind, err := ParseKind(ch.Kind)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("change[%d] on %s.%s: %w", i, ch.Schema, ch.Table, err))
			continue
		}
		rc := RowChange{Schema: ch.Schema, Table: ch.Table, Kind: kind}
		if kind != Deleted {
			rc.New = zip(ch.ColumnNames, ch.ColumnValues)
		}
		if kind != Inserted {
			rc.Old = zip(ch.OldKeys.KeyNames, ch.OldKeys.KeyValues)
		}
		out = append(out, rc)
	}
	return out, errors.Join(skipped...)
}

func zip(names []string, values []any) map[string]any {
	if len(names) == 0 {
		return nil
	}
	m := make(map[string]any, len(names))
	for i, name := range names {
		var v any
		if i < len(values) {
			v = values[i]
		}
		m[name] = v
	}
	return m
}

// notifyPayload is what the dashboard_notify_change() trigger sends.
type notifyPayload struct {
	Op     string         `json:"op"`
	Schema string         `json:"schema"`
	Table  string         `json:"table"`
	New    map[string]any `json:"new"`
	Old    map[string]any `json:"old"`
	// Truncated is set instead of the images when the row was too large
	// for pg_notify.
	Truncated bool `json:"truncated"`
}

// DecodeNotify parses a LISTEN/NOTIFY payload produced by the change trigger.
// A truncated payload returns the change without images and ErrTruncated.
func DecodeNotify(payload []byte) (RowChange, error) {
	var p notifyPayload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return RowChange{}, fmt.Errorf("decode notify payload: %w", err)
	}
	kind, err := ParseKind(p.Op)
	if err != nil {
		return RowChange{}, err
	}
	rc := RowChange{Schema: p.Schema, Table: p.Table, Kind: kind}
	if p.Truncated {
		return rc, ErrTruncated
	}
	if kind != Deleted {
		rc.New = p.New
	}
	if kind != Inserted {
		rc.Old = p.Old
	}
	return rc, nil
}
