package stream

import (
	"sync"
	"sync/atomic"

	"github.com/zoravur/dashboard-sync/internal/wal"
)

// Subscription is one open channel to the change stream for one table.
// Close must be called exactly once by the owner; extra calls are no-ops.
type Subscription struct {
	ID      string
	Channel string
	Table   string

	events chan wal.RowChange
	status chan Status
	resync chan struct{}
	done   chan struct{}
	hub    *Hub

	// sendMu guards writes to events against Close, statusMu writes to
	// status. Lock order is sendMu then statusMu.
	sendMu   sync.Mutex
	statusMu sync.Mutex
	closed   bool
	gap      atomic.Bool

	closeOnce sync.Once
}

// Events yields changes for Table in commit order. It is closed by Close.
func (s *Subscription) Events() <-chan wal.RowChange { return s.events }

// Status yields connection state transitions. Slow readers miss
// intermediate states; the last pushed state is closed.
func (s *Subscription) Status() <-chan Status { return s.status }

// Resync fires when changes were lost on this subscription. The owner should
// keep draining Events and call Recover after each step.
func (s *Subscription) Resync() <-chan struct{} { return s.resync }

// Recover reports whether the owner must reload its snapshot now: changes
// were lost and everything still queued has been consumed. It clears the
// gap and re-announces the hub status so an error flag from the loss does
// not stick.
func (s *Subscription) Recover() bool {
	if !s.gap.Load() || len(s.events) > 0 {
		return false
	}
	if !s.gap.CompareAndSwap(true, false) {
		return false
	}
	s.pushStatusChecked(s.hub.Status())
	return true
}

// markGap records a lost change. Callers hold sendMu.
func (s *Subscription) markGap() {
	s.gap.Store(true)
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// pushStatus never blocks. Callers ensure the channel is still open: the
// hub only pushes while the subscription is in its fan-out set.
func (s *Subscription) pushStatus(st Status) {
	select {
	case s.status <- st:
	default:
	}
}

// pushStatusChecked is pushStatus for callers outside the fan-out set.
func (s *Subscription) pushStatusChecked(st Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if !s.closed {
		s.pushStatus(st)
	}
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.remove(s)
		// remove took the sub out of the fan-out set and done released any
		// blocked publisher, so nothing else writes to these channels.
		s.sendMu.Lock()
		s.statusMu.Lock()
		s.closed = true
		s.pushStatus(StatusClosed)
		close(s.events)
		close(s.status)
		s.statusMu.Unlock()
		s.sendMu.Unlock()
	})
}
