package reactive

import (
	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/wal"
)

type (
	UserGateway = Gateway[model.User, model.UserInsert, model.UserPatch]
	UserDeps    = Deps[model.User, model.UserInsert, model.UserPatch]
)

// Users is the live users table.
type Users struct {
	*Collection[model.User, model.UserInsert, model.UserPatch]
}

func UserResource() Resource[model.User] {
	return Resource[model.User]{
		Name:     "users",
		Table:    "users",
		Channel:  "users-realtime",
		Describe: describeUser,
	}
}

func NewUsers(deps UserDeps) *Users {
	return &Users{New(UserResource(), deps)}
}

func describeUser(kind wal.Kind, u model.User) (string, notify.Severity) {
	switch kind {
	case wal.Inserted:
		return "New user added: " + u.Name, notify.Success
	case wal.Updated:
		return "User updated: " + u.Name, notify.Info
	default:
		return "User deleted: " + u.Name, notify.Warning
	}
}
