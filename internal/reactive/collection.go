package reactive

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/stream"
	"github.com/zoravur/dashboard-sync/internal/wal"
)

// Collection is a locally held, ordered copy of one resource kept current by
// its change stream. Mutations go to the Gateway and are only reflected once
// the stream echoes them back.
type Collection[T model.Record, I any, P any] struct {
	id   string
	res  Resource[T]
	deps Deps[T, I, P]
	log  *zap.Logger

	mu      sync.Mutex
	phase   Phase
	items   []T
	loads   int
	errMsg  *string
	status  stream.Status
	version uint64
	sub     *stream.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	obsMu     sync.Mutex
	published uint64
	nextObs   int
	observers map[int]func(View[T])
}

func New[T model.Record, I any, P any](res Resource[T], deps Deps[T, I, P]) *Collection[T, I, P] {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Collection[T, I, P]{
		id:        id,
		res:       res,
		deps:      deps,
		log:       log.With(zap.String("resource", res.Name), zap.String("collection", id)),
		status:    stream.StatusClosed,
		observers: make(map[int]func(View[T])),
	}
}

func (c *Collection[T, I, P]) Resource() Resource[T] { return c.res }

// Mount opens the change channel, starts applying events and then loads the
// snapshot. Events that arrive during the load are applied as they come; the
// snapshot replaces the items wholesale when it lands.
func (c *Collection[T, I, P]) Mount(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case TornDown:
		c.mu.Unlock()
		return ErrTornDown
	case Subscribing, Subscribed:
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.phase = Subscribing
	c.mu.Unlock()

	sub, err := c.deps.Stream.Subscribe(ctx, c.res.Channel, c.res.Table)

	c.mu.Lock()
	if c.phase == TornDown {
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		return ErrTornDown
	}
	if err != nil {
		c.phase = Unsubscribed
		c.mu.Unlock()
		c.log.Error("subscribe failed", zap.String("channel", c.res.Channel), zap.Error(err))
		return &StreamError{Resource: c.res.Name, Channel: c.res.Channel, Err: err}
	}
	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.sub = sub
	c.cancel = cancel
	c.phase = Subscribed
	c.wg.Add(2)
	c.mu.Unlock()

	if c.deps.Registry != nil {
		c.deps.Registry.Register(c)
	}
	go c.applyLoop(life, sub)
	go c.statusLoop(life, sub)

	c.log.Debug("mounted", zap.String("channel", c.res.Channel), zap.String("subscription", sub.ID))
	// A failed load is already in the error flag.
	_ = c.Load(ctx)
	return nil
}

// Unmount closes the channel and stops all further state changes. Safe to
// call more than once.
func (c *Collection[T, I, P]) Unmount() {
	c.mu.Lock()
	if c.phase == TornDown {
		c.mu.Unlock()
		return
	}
	c.phase = TornDown
	sub, cancel := c.sub, c.cancel
	c.sub, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
	c.wg.Wait()
	if c.deps.Registry != nil {
		c.deps.Registry.Unregister(c.id)
	}
	c.log.Debug("unmounted")
}

// Load replaces the items with a fresh snapshot from the gateway. On failure
// the items are left alone and the error flag is set.
func (c *Collection[T, I, P]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == TornDown {
		c.mu.Unlock()
		return ErrTornDown
	}
	c.loads++
	v := c.bumpLocked()
	c.mu.Unlock()
	c.publish(v)

	items, err := c.deps.Gateway.List(ctx)

	c.mu.Lock()
	c.loads--
	if c.phase == TornDown {
		c.mu.Unlock()
		if err != nil {
			return &LoadError{Resource: c.res.Name, Err: err}
		}
		return nil
	}
	if err != nil {
		msg := err.Error()
		c.errMsg = &msg
	} else {
		if items == nil {
			items = []T{}
		}
		c.items = items
		c.errMsg = nil
	}
	v = c.bumpLocked()
	c.mu.Unlock()
	c.publish(v)

	if err != nil {
		c.log.Warn("snapshot load failed", zap.Error(err))
		return &LoadError{Resource: c.res.Name, Err: err}
	}
	c.log.Debug("snapshot loaded", zap.Int("items", len(items)))
	return nil
}

func (c *Collection[T, I, P]) Create(ctx context.Context, in I) (T, error) {
	rec, err := c.deps.Gateway.Create(ctx, in)
	if err != nil {
		var zero T
		return zero, c.fail("create", err)
	}
	return rec, nil
}

func (c *Collection[T, I, P]) Update(ctx context.Context, id int64, patch P) (T, error) {
	rec, err := c.deps.Gateway.Update(ctx, id, patch)
	if err != nil {
		var zero T
		return zero, c.fail("update", err)
	}
	return rec, nil
}

func (c *Collection[T, I, P]) Delete(ctx context.Context, id int64) error {
	if err := c.deps.Gateway.Delete(ctx, id); err != nil {
		return c.fail("delete", err)
	}
	return nil
}

func (c *Collection[T, I, P]) fail(op string, err error) error {
	msg := err.Error()
	c.mu.Lock()
	live := c.phase != TornDown
	var v View[T]
	if live {
		c.errMsg = &msg
		v = c.bumpLocked()
	}
	c.mu.Unlock()

	c.log.Warn("mutation failed", zap.String("op", op), zap.Error(err))
	if live {
		c.publish(v)
		if c.deps.Notifier != nil {
			c.deps.Notifier.Notify(msg, notify.Error)
		}
	}
	return &MutationError{Op: op, Resource: c.res.Name, Err: err}
}

// State returns the current view.
func (c *Collection[T, I, P]) State() View[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Collection[T, I, P]) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Observe calls fn with each new view, in version order. Views that are
// superseded before fn gets to them may be skipped.
func (c *Collection[T, I, P]) Observe(fn func(View[T])) (cancel func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			delete(c.observers, id)
			c.obsMu.Unlock()
		})
	}
}

func (c *Collection[T, I, P]) Snapshot() any { return c.State() }

func (c *Collection[T, I, P]) OnChange(fn func(snapshot any)) func() {
	return c.Observe(func(v View[T]) { fn(v) })
}

func (c *Collection[T, I, P]) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		ID:       c.id,
		Resource: c.res.Name,
		Channel:  c.res.Channel,
		Table:    c.res.Table,
		Phase:    c.phase,
		Status:   c.status,
		Items:    len(c.items),
		Loading:  c.loads > 0,
		Error:    c.errMsg,
	}
}

func (c *Collection[T, I, P]) applyLoop(ctx context.Context, sub *stream.Subscription) {
	defer c.wg.Done()
	for {
		select {
		case rc, ok := <-sub.Events():
			if !ok {
				return
			}
			ev, err := wal.Parse[T](rc)
			if err != nil {
				c.log.Warn("dropping malformed change event",
					zap.String("table", rc.Qualified()),
					zap.Stringer("kind", rc.Kind),
					zap.Error(err))
				break
			}
			c.apply(ev)
		case <-sub.Resync():
		}
		// Lost changes leave the items behind the store; reload once the
		// queue behind the loss has been applied.
		if sub.Recover() {
			c.log.Warn("changes were lost, reloading snapshot", zap.String("channel", c.res.Channel))
			_ = c.Load(ctx)
		}
	}
}

func (c *Collection[T, I, P]) apply(ev wal.Event[T]) {
	c.mu.Lock()
	if c.phase != Subscribed {
		c.mu.Unlock()
		return
	}
	changed := true
	switch ev.Kind {
	case wal.Inserted:
		c.items = applyInsert(c.items, ev.Record)
	case wal.Updated:
		c.items, changed = applyUpdate(c.items, ev.Record)
	case wal.Deleted:
		c.items, changed = applyDelete(c.items, ev.Record.RecordID())
	}
	var v View[T]
	if changed {
		v = c.bumpLocked()
	}
	c.mu.Unlock()

	if !changed {
		c.log.Debug("change for unknown row ignored",
			zap.Stringer("kind", ev.Kind), zap.Int64("id", ev.Record.RecordID()))
	} else {
		c.publish(v)
	}
	// Toasts follow the event, not the local effect.
	if c.deps.Notifier != nil && c.res.Describe != nil {
		msg, sev := c.res.Describe(ev.Kind, ev.Record)
		c.deps.Notifier.Notify(msg, sev)
	}
}

func (c *Collection[T, I, P]) statusLoop(ctx context.Context, sub *stream.Subscription) {
	defer c.wg.Done()
	failed := false
	for st := range sub.Status() {
		c.log.Info("realtime status", zap.String("channel", c.res.Channel), zap.Stringer("status", st))
		c.mu.Lock()
		if c.phase != Subscribed {
			c.mu.Unlock()
			continue
		}
		c.status = st
		v := c.bumpLocked()
		c.mu.Unlock()
		c.publish(v)

		switch st {
		case stream.StatusError:
			failed = true
		case stream.StatusOpen:
			if failed && c.deps.ResyncOnReconnect {
				c.log.Info("stream reopened, reloading snapshot")
				c.wg.Add(1)
				go func() {
					defer c.wg.Done()
					_ = c.Load(ctx)
				}()
			}
			failed = false
		}
	}
}

func (c *Collection[T, I, P]) bumpLocked() View[T] {
	c.version++
	return c.viewLocked()
}

func (c *Collection[T, I, P]) viewLocked() View[T] {
	items := make([]T, len(c.items))
	copy(items, c.items)
	var errMsg *string
	if c.errMsg != nil {
		msg := *c.errMsg
		errMsg = &msg
	}
	return View[T]{
		Items:   items,
		Loading: c.loads > 0,
		Error:   errMsg,
		Status:  c.status,
		Version: c.version,
	}
}

func (c *Collection[T, I, P]) publish(v View[T]) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	if v.Version <= c.published {
		return
	}
	c.published = v.Version
	for _, fn := range c.observers {
		fn(v)
	}
}
