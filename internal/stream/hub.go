package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/wal"
)

const (
	// DefaultBuffer is the per-subscription event queue length.
	DefaultBuffer = 256
	// DefaultSendTimeout bounds how long Publish waits on a full queue.
	DefaultSendTimeout = 5 * time.Second
)

var ErrHubClosed = errors.New("stream hub closed")

// Hub fans row changes out to per-table subscriptions. A transport source
// publishes into it; live collections subscribe to it.
type Hub struct {
	// Schema, when set, limits delivery to changes from that schema.
	Schema      string
	SendTimeout time.Duration

	pubMu  sync.Mutex
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	status Status
	closed bool
	buffer int
	log    *zap.Logger
}

func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.L()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		status: StatusConnecting,
		buffer: buffer,
		log:    log,
	}
}

// Subscribe opens a channel for one table. The subscription starts in the
// hub's current status.
func (h *Hub) Subscribe(ctx context.Context, channel, table string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Channel: channel,
		Table:   table,
		events:  make(chan wal.RowChange, h.buffer),
		status:  make(chan Status, 8),
		resync:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		hub:     h,
	}
	sub.pushStatus(StatusConnecting)
	if h.status != StatusConnecting {
		sub.pushStatus(h.status)
	}
	h.subs[sub] = struct{}{}

	h.log.Info("channel subscribed",
		zap.String("channel", channel),
		zap.String("table", table),
		zap.String("subscription", sub.ID),
		zap.Int("listeners", len(h.subs)),
	)
	return sub, nil
}

// Publish delivers c to every subscription on c.Table in call order. A full
// queue blocks the publisher for up to SendTimeout; after that the change is
// dropped for that subscriber, which is flagged as errored and told to
// resync once it has drained.
func (h *Hub) Publish(c wal.RowChange) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	for _, sub := range h.targets(c.Schema, c.Table) {
		h.deliver(sub, c)
	}
}

// Invalidate tells every subscriber of table that a change could not be
// carried and its snapshot is stale.
func (h *Hub) Invalidate(schema, table string) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	for _, sub := range h.targets(schema, table) {
		sub.sendMu.Lock()
		if !sub.closed {
			h.log.Warn("change not carried, forcing resync",
				zap.String("channel", sub.Channel),
				zap.String("subscription", sub.ID),
			)
			sub.markGap()
		}
		sub.sendMu.Unlock()
	}
}

func (h *Hub) targets(schema, table string) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	// Changes from other schemas share table names with ours.
	if h.Schema != "" && schema != "" && schema != h.Schema {
		return nil
	}
	var out []*Subscription
	for sub := range h.subs {
		if sub.Table == table {
			out = append(out, sub)
		}
	}
	return out
}

func (h *Hub) deliver(sub *Subscription, c wal.RowChange) {
	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if sub.closed {
		return
	}

	select {
	case sub.events <- c:
		return
	default:
	}

	timeout := h.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sub.events <- c:
	case <-sub.done:
	case <-timer.C:
		h.log.Warn("subscriber queue full, dropping change",
			zap.String("channel", sub.Channel),
			zap.String("subscription", sub.ID),
			zap.Stringer("kind", c.Kind),
			zap.Duration("waited", timeout),
		)
		first := !sub.gap.Load()
		sub.markGap()
		if first {
			sub.pushStatusChecked(StatusError)
		}
	}
}

// SetStatus records the transport state and forwards it to all subscriptions.
func (h *Hub) SetStatus(s Status, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.status == s {
		return
	}
	h.status = s
	fields := []zap.Field{zap.Stringer("status", s), zap.Int("listeners", len(h.subs))}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	h.log.Info("realtime status", fields...)
	for sub := range h.subs {
		sub.pushStatus(s)
	}
}

// Status returns the transport state last reported by a source.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Close closes every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	h.log.Info("channel released",
		zap.String("channel", sub.Channel),
		zap.String("subscription", sub.ID),
		zap.Int("listeners", len(h.subs)),
	)
}
