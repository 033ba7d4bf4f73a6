// Package analytics keeps aggregate counts over users and todos and recounts
// whenever either table changes.
package analytics

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoravur/dashboard-sync/internal/store"
	"github.com/zoravur/dashboard-sync/internal/stream"
)

const (
	UsersChannel = "analytics-users"
	TodosChannel = "analytics-todos"

	RecentWindow = 7 * 24 * time.Hour
)

var ErrStarted = errors.New("analytics already started")

// Counter counts rows matching all filters.
type Counter interface {
	Count(ctx context.Context, filters ...store.Filter) (int64, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel, table string) (*stream.Subscription, error)
}

type UserStats struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Inactive     int64 `json:"inactive"`
	Admins       int64 `json:"admins"`
	Moderators   int64 `json:"moderators"`
	RegularUsers int64 `json:"regularUsers"`
	RecentUsers  int64 `json:"recentUsers"`
}

type TodoStats struct {
	Total          int64 `json:"total"`
	Completed      int64 `json:"completed"`
	Pending        int64 `json:"pending"`
	CompletionRate int64 `json:"completionRate"`
	RecentTodos    int64 `json:"recentTodos"`
}

type Snapshot struct {
	UserStats UserStats `json:"userStats"`
	TodoStats TodoStats `json:"todoStats"`
	Loading   bool      `json:"loading"`
	Error     *string   `json:"error"`
}

// CompletionRate is completed/total as a percentage rounded half away from
// zero, or 0 when there are no todos.
func CompletionRate(completed, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return int64(math.Round(float64(completed) / float64(total) * 100))
}

type Service struct {
	users  Counter
	todos  Counter
	stream Subscriber
	log    *zap.Logger

	// Now is the clock used for the recent-rows cutoff.
	Now func() time.Time

	mu     sync.Mutex
	snap   Snapshot
	subs   []*stream.Subscription
	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(users, todos Counter, s Subscriber, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:  users,
		todos:  todos,
		stream: s,
		log:    log.Named("analytics"),
		Now:    time.Now,
		snap:   Snapshot{Loading: true},
		kick:   make(chan struct{}, 1),
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	if out.Error != nil {
		msg := *out.Error
		out.Error = &msg
	}
	return out
}

// Refresh recounts everything. On failure the previous counts are kept and
// the error is recorded.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.snap.Loading = true
	s.snap.Error = nil
	s.mu.Unlock()

	users, todos, err := s.count(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Loading = false
	if err != nil {
		msg := err.Error()
		s.snap.Error = &msg
		s.log.Warn("analytics refresh failed", zap.Error(err))
		return err
	}
	s.snap.UserStats = users
	s.snap.TodoStats = todos
	return nil
}

func (s *Service) count(ctx context.Context) (UserStats, TodoStats, error) {
	var (
		u         UserStats
		t         TodoStats
		completed int64
	)
	since := s.Now().Add(-RecentWindow).UTC()

	g, gctx := errgroup.WithContext(ctx)
	run := func(c Counter, dst *int64, filters ...store.Filter) {
		g.Go(func() error {
			n, err := c.Count(gctx, filters...)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}

	run(s.users, &u.Total)
	run(s.users, &u.Active, store.Where("status", store.Eq, "active"))
	run(s.users, &u.Inactive, store.Where("status", store.Eq, "inactive"))
	run(s.users, &u.Admins, store.Where("role", store.Eq, "admin"))
	run(s.users, &u.Moderators, store.Where("role", store.Eq, "moderator"))
	run(s.users, &u.RegularUsers, store.Where("role", store.Eq, "user"))
	run(s.users, &u.RecentUsers, store.Where("created_at", store.Gte, since))

	run(s.todos, &t.Total)
	run(s.todos, &completed, store.Where("is_completed", store.Eq, true))
	run(s.todos, &t.Pending, store.Where("is_completed", store.Eq, false))
	run(s.todos, &t.RecentTodos, store.Where("created_at", store.Gte, since))

	if err := g.Wait(); err != nil {
		return UserStats{}, TodoStats{}, err
	}
	t.Completed = completed
	t.CompletionRate = CompletionRate(completed, t.Total)
	return u, t, nil
}

// Start subscribes to both tables, schedules the first count and then
// recounts after every change. All counts run one at a time on the service
// loop; bursts of changes collapse into one recount.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrStarted
	}
	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.mu.Unlock()

	for _, ch := range []struct{ channel, table string }{
		{UsersChannel, "users"},
		{TodosChannel, "todos"},
	} {
		sub, err := s.stream.Subscribe(ctx, ch.channel, ch.table)
		if err != nil {
			s.Stop()
			return err
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
		s.wg.Add(1)
		go s.watch(sub)
	}

	s.wg.Add(1)
	go s.loop(life)

	s.request()
	return nil
}

func (s *Service) watch(sub *stream.Subscription) {
	defer s.wg.Done()
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-sub.Resync():
		}
		sub.Recover()
		s.request()
	}
}

// request schedules a recount; one pending request absorbs the rest.
func (s *Service) request() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			_ = s.Refresh(ctx)
		}
	}
}

// Stop releases both channels and waits for a running recount to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	subs, cancel := s.subs, s.cancel
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
