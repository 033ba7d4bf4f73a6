package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoravur/dashboard-sync/internal/model"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dashboardd", cmd.Use)
	assert.Contains(t, cmd.Long, "change stream")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "migrate", "seed"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestSeedFlags(t *testing.T) {
	cmd := NewRootCommand()
	seed, _, err := cmd.Find([]string{"seed"})
	require.NoError(t, err)
	assert.Equal(t, "10", seed.Flags().Lookup("users").DefValue)
	assert.Equal(t, "20", seed.Flags().Lookup("todos").DefValue)
	assert.Equal(t, "1337", seed.Flags().Lookup("seed").DefValue)
}

func TestMigrateRejectsUnknownAction(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "sideways"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "loud", "seed", "--users", "0", "--todos", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestGenerateFixturesIsDeterministic(t *testing.T) {
	a := GenerateFixtures(5, 8, 1234)
	b := GenerateFixtures(5, 8, 1234)
	assert.Equal(t, a, b)

	c := GenerateFixtures(5, 8, 4321)
	assert.NotEqual(t, a, c)
}

func TestGenerateFixturesAreValid(t *testing.T) {
	f := GenerateFixtures(25, 25, 7)
	require.Len(t, f.Users, 25)
	require.Len(t, f.Todos, 25)

	emails := map[string]bool{}
	for _, u := range f.Users {
		require.NoError(t, u.Validate())
		assert.False(t, emails[u.Email], "duplicate email %s", u.Email)
		emails[u.Email] = true
	}
	for _, td := range f.Todos {
		require.NoError(t, td.Validate())
	}
}

type countingStore struct {
	users, todos int
	failAt       int
}

func (c *countingStore) Create(_ context.Context, in model.UserInsert) (model.User, error) {
	c.users++
	if c.users == c.failAt {
		return model.User{}, errors.New("duplicate key value violates unique constraint")
	}
	return model.User{ID: int64(c.users), Name: in.Name}, nil
}

type todoSink struct{ n int }

func (s *todoSink) Create(_ context.Context, in model.TodoInsert) (model.Todo, error) {
	s.n++
	return model.Todo{ID: int64(s.n), Title: in.Title}, nil
}

func TestInsertFixtures(t *testing.T) {
	f := GenerateFixtures(3, 2, 1)

	users, todos := &countingStore{}, &todoSink{}
	nu, nt, err := insertFixtures(context.Background(), f, users, todos)
	require.NoError(t, err)
	assert.Equal(t, 3, nu)
	assert.Equal(t, 2, nt)

	users, todos = &countingStore{failAt: 2}, &todoSink{}
	nu, nt, err = insertFixtures(context.Background(), f, users, todos)
	require.Error(t, err)
	assert.Equal(t, 1, nu)
	assert.Equal(t, 0, nt)
	assert.Zero(t, todos.n)
}
