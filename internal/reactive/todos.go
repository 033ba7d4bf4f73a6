package reactive

import (
	"context"

	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/wal"
)

type (
	TodoGateway = Gateway[model.Todo, model.TodoInsert, model.TodoPatch]
	TodoDeps    = Deps[model.Todo, model.TodoInsert, model.TodoPatch]
)

// Todos is the live todos table.
type Todos struct {
	*Collection[model.Todo, model.TodoInsert, model.TodoPatch]
}

func TodoResource() Resource[model.Todo] {
	return Resource[model.Todo]{
		Name:     "todos",
		Table:    "todos",
		Channel:  "todos-realtime",
		Describe: describeTodo,
	}
}

func NewTodos(deps TodoDeps) *Todos {
	return &Todos{New(TodoResource(), deps)}
}

// Toggle flips is_completed, using the caller's idea of the current value.
func (t *Todos) Toggle(ctx context.Context, id int64, completed bool) (model.Todo, error) {
	next := !completed
	return t.Update(ctx, id, model.TodoPatch{IsCompleted: &next})
}

// Updates read as "Completed" whenever the new row is completed, whether or
// not that field is what changed.
func describeTodo(kind wal.Kind, t model.Todo) (string, notify.Severity) {
	switch kind {
	case wal.Inserted:
		return "New todo: " + t.Title, notify.Success
	case wal.Updated:
		if t.IsCompleted {
			return "Completed: " + t.Title, notify.Info
		}
		return "Updated: " + t.Title, notify.Info
	default:
		return "Todo deleted: " + t.Title, notify.Warning
	}
}
