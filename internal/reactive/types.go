package reactive

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/stream"
	"github.com/zoravur/dashboard-sync/internal/wal"
)

// Gateway is the remote store for one resource. Its results are never merged
// into a collection directly; the change stream does that.
type Gateway[T model.Record, I any, P any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, in I) (T, error)
	Update(ctx context.Context, id int64, patch P) (T, error)
	Delete(ctx context.Context, id int64) error
}

// Stream opens change channels scoped to one table.
type Stream interface {
	Subscribe(ctx context.Context, channel, table string) (*stream.Subscription, error)
}

// Resource names one managed table and how its changes read as toasts.
type Resource[T model.Record] struct {
	Name     string
	Table    string
	Channel  string
	Describe func(kind wal.Kind, rec T) (string, notify.Severity)
}

// Deps lets you inject the store, stream and notifier without global
// singletons.
type Deps[T model.Record, I any, P any] struct {
	Gateway  Gateway[T, I, P]
	Stream   Stream
	Notifier notify.Notifier
	Registry *Registry
	Log      *zap.Logger

	// ResyncOnReconnect re-runs the snapshot load when the stream comes back
	// open after an error. Off by default: a dropped stream just goes quiet.
	ResyncOnReconnect bool
}

// Phase is the subscription lifecycle of a Collection.
type Phase int

const (
	Unsubscribed Phase = iota
	Subscribing
	Subscribed
	TornDown
)

func (p Phase) String() string {
	switch p {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case TornDown:
		return "torn_down"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for _, v := range []Phase{Unsubscribed, Subscribing, Subscribed, TornDown} {
		if v.String() == string(b) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// View is what presentation code reads: the items plus loading and error
// flags. Version increases with every state change.
type View[T any] struct {
	Items   []T           `json:"items"`
	Loading bool          `json:"loading"`
	Error   *string       `json:"error"`
	Status  stream.Status `json:"status"`
	Version uint64        `json:"version"`
}

// Err returns the error flag or "".
func (v View[T]) Err() string {
	if v.Error == nil {
		return ""
	}
	return *v.Error
}

// Info is the registry's summary of one mounted collection.
type Info struct {
	ID       string        `json:"id"`
	Resource string        `json:"resource"`
	Channel  string        `json:"channel"`
	Table    string        `json:"table"`
	Phase    Phase         `json:"phase"`
	Status   stream.Status `json:"status"`
	Items    int           `json:"items"`
	Loading  bool          `json:"loading"`
	Error    *string       `json:"error"`
}

// Live is the type-erased face of a Collection used by the registry and the
// websocket fan-out.
type Live interface {
	Info() Info
	Load(ctx context.Context) error
	Snapshot() any
	OnChange(fn func(snapshot any)) (cancel func())
}
