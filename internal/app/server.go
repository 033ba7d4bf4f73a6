package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/analytics"
	"github.com/zoravur/dashboard-sync/internal/api"
	"github.com/zoravur/dashboard-sync/internal/config"
	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/reactive"
	"github.com/zoravur/dashboard-sync/internal/store"
	"github.com/zoravur/dashboard-sync/internal/stream"
	"github.com/zoravur/dashboard-sync/internal/wal"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg config.Config
	log *zap.Logger

	DB        *sql.DB
	Hub       *stream.Hub
	Source    stream.Source
	Toasts    *notify.Center
	Registry  *reactive.Registry
	Users     *reactive.Users
	Todos     *reactive.Todos
	Analytics *analytics.Service

	api        *api.Handler
	httpServer *http.Server
}

// NewServer connects to the database, checks the schema and builds every
// component. Nothing runs until Run.
func NewServer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	db, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	s, err := newServer(ctx, cfg, log, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newServer(ctx context.Context, cfg config.Config, log *zap.Logger, db *sql.DB) (*Server, error) {
	users, err := store.NewTable[model.User, model.UserInsert, model.UserPatch](db, "users")
	if err != nil {
		return nil, err
	}
	todos, err := store.NewTable[model.Todo, model.TodoInsert, model.TodoPatch](db, "todos")
	if err != nil {
		return nil, err
	}

	cat, err := store.LoadCatalog(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := cat.Require(users.Name(), users.Columns()); err != nil {
		return nil, err
	}
	if err := cat.Require(todos.Name(), todos.Columns()); err != nil {
		return nil, err
	}

	hub := stream.NewHub(cfg.Stream.Buffer, log.Named("stream"))
	hub.Schema = cat.Schema
	consumer := &wal.Consumer{Sink: hub, Log: log.Named("wal")}

	var source stream.Source
	switch cfg.Stream.Mode {
	case config.ModeNotify:
		if err := store.EnableChangeTriggers(ctx, db, cfg.Stream.Channel, users.Name(), todos.Name()); err != nil {
			return nil, err
		}
		source = &stream.NotifySource{
			DSN:      cfg.Database.DSN,
			Channel:  cfg.Stream.Channel,
			Hub:      hub,
			Consumer: consumer,
			Log:      log.Named("notify"),
		}
	default:
		source = &stream.ReplicationSource{
			DSN:            cfg.Database.DSN,
			Slot:           cfg.Stream.Slot,
			Plugin:         cfg.Stream.Plugin,
			ReconnectDelay: cfg.Stream.ReconnectDelay,
			Hub:            hub,
			Consumer:       consumer,
			Log:            log.Named("replication"),
		}
	}

	toasts := notify.NewCenter(cfg.Notify.MaxVisible, cfg.Notify.TTL, log.Named("notify"))
	reg := reactive.NewRegistry()

	s := &Server{
		cfg:      cfg,
		log:      log,
		DB:       db,
		Hub:      hub,
		Source:   source,
		Toasts:   toasts,
		Registry: reg,
		Users: reactive.NewUsers(reactive.UserDeps{
			Gateway:           users,
			Stream:            hub,
			Notifier:          toasts,
			Registry:          reg,
			Log:               log,
			ResyncOnReconnect: cfg.Resync,
		}),
		Todos: reactive.NewTodos(reactive.TodoDeps{
			Gateway:           todos,
			Stream:            hub,
			Notifier:          toasts,
			Registry:          reg,
			Log:               log,
			ResyncOnReconnect: cfg.Resync,
		}),
		Analytics: analytics.NewService(users, todos, hub, log),
	}
	s.api = api.NewHandler(api.Deps{
		Users:     s.Users,
		Todos:     s.Todos,
		Live:      reg,
		Toasts:    toasts,
		Analytics: s.Analytics,
		Log:       log,
	})
	s.httpServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.SetupRoutes(s.api, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run starts the change stream, mounts the collections and serves HTTP
// until ctx is done or SIGINT/SIGTERM arrives.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srcCtx, cancelSrc := context.WithCancel(ctx)
	srcDone := make(chan error, 1)
	go func() { srcDone <- s.Source.Run(srcCtx) }()

	defer s.close(cancelSrc, srcDone)

	if err := s.Users.Mount(ctx); err != nil {
		return fmt.Errorf("mount users: %w", err)
	}
	if err := s.Todos.Mount(ctx); err != nil {
		return fmt.Errorf("mount todos: %w", err)
	}
	if err := s.Analytics.Start(ctx); err != nil {
		return fmt.Errorf("start analytics: %w", err)
	}
	s.api.Start()

	httpDone := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpDone <- err
		}
		close(httpDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
	case err := <-httpDone:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-srcDone:
		// The source only returns early when it cannot start at all.
		srcDone <- err
		if err != nil {
			runErr = fmt.Errorf("change stream: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

func (s *Server) close(cancelSrc context.CancelFunc, srcDone <-chan error) {
	s.api.Stop()
	s.Analytics.Stop()
	s.Users.Unmount()
	s.Todos.Unmount()
	cancelSrc()
	if err := <-srcDone; err != nil {
		s.log.Warn("change stream stopped", zap.Error(err))
	}
	s.Hub.Close()
	if err := s.DB.Close(); err != nil {
		s.log.Warn("close db", zap.Error(err))
	}
	s.log.Info("stopped")
}
