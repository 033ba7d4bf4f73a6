// Package fixgres boots one throwaway PostgreSQL container per test binary
// and hands out isolated, migrated schemas to individual tests.
package fixgres

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type config struct {
	image    string
	dbName   string
	user     string
	password string
	gooseFS  fs.FS
}

type Option func(*config)

func WithImage(i string) Option    { return func(c *config) { c.image = i } }
func WithDBName(n string) Option   { return func(c *config) { c.dbName = n } }
func WithUser(u string) Option     { return func(c *config) { c.user = u } }
func WithPassword(p string) Option { return func(c *config) { c.password = p } }

// WithGooseUp makes every sandbox run these migrations into its own schema.
func WithGooseUp(migFS fs.FS) Option {
	return func(c *config) { c.gooseFS = migFS }
}

var (
	once       sync.Once
	onceErr    error
	pg         *postgres.PostgresContainer
	mu         sync.Mutex
	connString string
	bootCfg    config
)

// Boot starts the container once per process. Safe to call from TestMain.
func Boot(ctx context.Context, opts ...Option) error {
	once.Do(func() {
		// testcontainers panics when no docker host can be found.
		defer func() {
			if r := recover(); r != nil {
				onceErr = fmt.Errorf("start postgres container: %v", r)
			}
		}()
		c := config{}
		for _, o := range opts {
			o(&c)
		}
		if c.image == "" {
			c.image = "docker.io/postgres:16-alpine"
		}
		if c.dbName == "" {
			c.dbName = "app"
		}
		if c.user == "" {
			c.user = "postgres"
		}
		if c.password == "" {
			c.password = "pass"
		}

		container, err := postgres.Run(ctx,
			c.image,
			postgres.WithDatabase(c.dbName),
			postgres.WithUsername(c.user),
			postgres.WithPassword(c.password),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			onceErr = err
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			onceErr = err
			return
		}
		port, err := container.MappedPort(ctx, "5432/tcp")
		if err != nil {
			onceErr = err
			return
		}

		mu.Lock()
		pg = container
		bootCfg = c
		connString = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			c.user, c.password, host, port.Port(), c.dbName,
		)
		mu.Unlock()
	})
	return onceErr
}

// ConnString is the admin DSN of the booted container.
func ConnString() string {
	mu.Lock()
	defer mu.Unlock()
	return connString
}

func ShutdownNow() error {
	mu.Lock()
	defer mu.Unlock()
	if pg == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := pg.Terminate(ctx)
	pg = nil
	return err
}
