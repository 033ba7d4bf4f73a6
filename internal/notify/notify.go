// Package notify keeps the short list of transient toasts shown next to the
// live collections. Delivery is best effort: the oldest visible toast is
// evicted when the list is full and slow watchers skip snapshots.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Severity string

const (
	Success Severity = "success"
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

const (
	DefaultMaxVisible = 3
	DefaultTTL        = 5 * time.Second
)

// Notifier is the fire-and-forget sink used by live collections.
type Notifier interface {
	Notify(message string, severity Severity)
}

type Toast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Center is the in-process Notifier.
type Center struct {
	mu       sync.Mutex
	max      int
	ttl      time.Duration
	visible  []Toast
	timers   map[string]*time.Timer
	watchers map[chan []Toast]struct{}
	log      *zap.Logger
}

func NewCenter(maxVisible int, ttl time.Duration, log *zap.Logger) *Center {
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisible
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.L()
	}
	return &Center{
		max:      maxVisible,
		ttl:      ttl,
		timers:   make(map[string]*time.Timer),
		watchers: make(map[chan []Toast]struct{}),
		log:      log,
	}
}

func (c *Center) Notify(message string, severity Severity) {
	toast := Toast{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.visible = append(c.visible, toast)
	for len(c.visible) > c.max {
		evicted := c.visible[0]
		c.visible = c.visible[1:]
		if t, ok := c.timers[evicted.ID]; ok {
			t.Stop()
			delete(c.timers, evicted.ID)
		}
	}
	c.timers[toast.ID] = time.AfterFunc(c.ttl, func() { c.Dismiss(toast.ID) })

	c.log.Debug("toast", zap.String("severity", string(severity)), zap.String("message", message))
	c.broadcastLocked()
}

// Dismiss removes a toast before its TTL. Unknown ids are ignored.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, toast := range c.visible {
		if toast.ID == id {
			c.visible = append(c.visible[:i:i], c.visible[i+1:]...)
			c.broadcastLocked()
			return
		}
	}
}

// Visible returns the toasts currently shown, oldest first.
func (c *Center) Visible() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Toast(nil), c.visible...)
}

// Watch streams visible-list snapshots. stop must be called once.
func (c *Center) Watch() (<-chan []Toast, func()) {
	ch := make(chan []Toast, 1)
	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop
}

func (c *Center) broadcastLocked() {
	snap := append([]Toast(nil), c.visible...)
	for ch := range c.watchers {
		// Replace a stale pending snapshot with the latest one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
