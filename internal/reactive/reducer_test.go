package reactive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/wal"
)

func todo(id int64, title string) model.Todo {
	return model.Todo{ID: id, Title: title}
}

func ids(items []model.Todo) []int64 {
	out := make([]int64, 0, len(items))
	for _, t := range items {
		out = append(out, t.ID)
	}
	return out
}

func TestApplyInsertPrepends(t *testing.T) {
	in := []model.Todo{todo(1, "a"), todo(2, "b")}
	out := applyInsert(in, todo(3, "c"))
	assert.Equal(t, []int64{3, 1, 2}, ids(out))
	assert.Equal(t, []int64{1, 2}, ids(in), "input untouched")
}

func TestApplyInsertKeepsDuplicates(t *testing.T) {
	out := applyInsert([]model.Todo{todo(5, "x")}, todo(5, "x"))
	assert.Equal(t, []int64{5, 5}, ids(out))
}

func TestApplyUpdateInPlace(t *testing.T) {
	in := []model.Todo{todo(1, "a"), todo(2, "b"), todo(3, "c")}
	out, ok := applyUpdate(in, todo(2, "B"))
	assert.True(t, ok)
	assert.Equal(t, []int64{1, 2, 3}, ids(out))
	assert.Equal(t, "B", out[1].Title)
	assert.Equal(t, "b", in[1].Title)
}

func TestApplyUpdateUnknownIsNoop(t *testing.T) {
	in := []model.Todo{todo(1, "a")}
	out, ok := applyUpdate(in, todo(9, "z"))
	assert.False(t, ok)
	assert.Equal(t, in, out)
}

func TestApplyDelete(t *testing.T) {
	in := []model.Todo{todo(1, "a"), todo(2, "b"), todo(3, "c")}

	out, ok := applyDelete(in, 2)
	assert.True(t, ok)
	assert.Equal(t, []int64{1, 3}, ids(out))
	assert.Len(t, in, 3)

	out, ok = applyDelete(in, 42)
	assert.False(t, ok)
	assert.Equal(t, []int64{1, 2, 3}, ids(out))
}

func TestApplyDeleteRemovesOneDuplicate(t *testing.T) {
	out, ok := applyDelete([]model.Todo{todo(7, "x"), todo(7, "x")}, 7)
	assert.True(t, ok)
	assert.Equal(t, []int64{7}, ids(out))
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name string
		got  func() (string, notify.Severity)
		msg  string
		sev  notify.Severity
	}{
		{"todo insert", func() (string, notify.Severity) { return describeTodo(wal.Inserted, model.Todo{Title: "Buy milk"}) }, "New todo: Buy milk", notify.Success},
		{"todo completed", func() (string, notify.Severity) {
			return describeTodo(wal.Updated, model.Todo{Title: "Buy milk", IsCompleted: true})
		}, "Completed: Buy milk", notify.Info},
		{"todo updated", func() (string, notify.Severity) { return describeTodo(wal.Updated, model.Todo{Title: "Buy milk"}) }, "Updated: Buy milk", notify.Info},
		{"todo delete", func() (string, notify.Severity) { return describeTodo(wal.Deleted, model.Todo{Title: "Buy milk"}) }, "Todo deleted: Buy milk", notify.Warning},
		{"user insert", func() (string, notify.Severity) { return describeUser(wal.Inserted, model.User{Name: "Ada"}) }, "New user added: Ada", notify.Success},
		{"user update", func() (string, notify.Severity) { return describeUser(wal.Updated, model.User{Name: "Ada"}) }, "User updated: Ada", notify.Info},
		{"user delete", func() (string, notify.Severity) { return describeUser(wal.Deleted, model.User{Name: "Ada"}) }, "User deleted: Ada", notify.Warning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, sev := tc.got()
			assert.Equal(t, tc.msg, msg)
			assert.Equal(t, tc.sev, sev)
		})
	}
}
