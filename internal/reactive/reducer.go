package reactive

import "github.com/zoravur/dashboard-sync/internal/model"

// The reducers never modify their input slice.

// applyInsert prepends rec without checking for an existing id, so a
// redelivered insert shows up twice.
func applyInsert[T model.Record](items []T, rec T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, rec)
	return append(out, items...)
}

// applyUpdate replaces, in place, every entry with rec's id. Unknown ids are
// a no-op and report false.
func applyUpdate[T model.Record](items []T, rec T) ([]T, bool) {
	var out []T
	for i := range items {
		if items[i].RecordID() != rec.RecordID() {
			continue
		}
		if out == nil {
			out = append([]T(nil), items...)
		}
		out[i] = rec
	}
	if out == nil {
		return items, false
	}
	return out, true
}

// applyDelete removes the first entry with id. Unknown ids are a no-op.
func applyDelete[T model.Record](items []T, id int64) ([]T, bool) {
	for i := range items {
		if items[i].RecordID() == id {
			out := make([]T, 0, len(items)-1)
			out = append(out, items[:i]...)
			return append(out, items[i+1:]...), true
		}
	}
	return items, false
}
