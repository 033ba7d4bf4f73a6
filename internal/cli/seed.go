package cli

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	faker "github.com/go-faker/faker/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/store"
	"github.com/zoravur/dashboard-sync/pkg/prng"
)

var (
	seedRoles    = []model.Role{model.RoleUser, model.RoleUser, model.RoleUser, model.RoleModerator, model.RoleAdmin}
	seedStatuses = []model.Status{model.StatusActive, model.StatusActive, model.StatusActive, model.StatusInactive}
)

// Fixtures is a batch of generated rows.
type Fixtures struct {
	Users []model.UserInsert
	Todos []model.TodoInsert
}

// GenerateFixtures builds users and todos from faker. The same seed always
// yields the same rows. It swaps faker's global sources, so callers must not
// run it concurrently.
func GenerateFixtures(users, todos int, seed int64) Fixtures {
	faker.SetRandomSource(rand.NewSource(seed))
	faker.SetCryptoSource(prng.New(seed))
	r := rand.New(rand.NewSource(seed))

	var f Fixtures
	seen := make(map[string]bool, users)
	for len(f.Users) < users {
		email := strings.ToLower(faker.Email())
		if seen[email] {
			email = fmt.Sprintf("%d.%s", len(f.Users), email)
		}
		seen[email] = true
		f.Users = append(f.Users, model.UserInsert{
			Name:   faker.Name(),
			Email:  email,
			Role:   seedRoles[r.Intn(len(seedRoles))],
			Status: seedStatuses[r.Intn(len(seedStatuses))],
		})
	}
	for len(f.Todos) < todos {
		f.Todos = append(f.Todos, model.TodoInsert{
			Title:       strings.TrimSuffix(faker.Sentence(), "."),
			IsCompleted: r.Intn(3) == 0,
		})
	}
	return f
}

type userCreator interface {
	Create(ctx context.Context, in model.UserInsert) (model.User, error)
}

type todoCreator interface {
	Create(ctx context.Context, in model.TodoInsert) (model.Todo, error)
}

// insertFixtures writes f through the store, stopping at the first failure.
func insertFixtures(ctx context.Context, f Fixtures, users userCreator, todos todoCreator) (int, int, error) {
	var nu, nt int
	for _, u := range f.Users {
		if _, err := users.Create(ctx, u); err != nil {
			return nu, nt, fmt.Errorf("insert user %q: %w", u.Email, err)
		}
		nu++
	}
	for _, t := range f.Todos {
		if _, err := todos.Create(ctx, t); err != nil {
			return nu, nt, fmt.Errorf("insert todo %q: %w", t.Title, err)
		}
		nt++
	}
	return nu, nt, nil
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		nUsers int
		nTodos int
		seed   int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert faker-generated users and todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if nUsers < 0 || nTodos < 0 {
				return fmt.Errorf("--users and --todos cannot be negative")
			}
			ctx := cmd.Context()
			db, err := store.Open(ctx, rootOpts.Config.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			users, err := store.NewTable[model.User, model.UserInsert, model.UserPatch](db, "users")
			if err != nil {
				return err
			}
			todos, err := store.NewTable[model.Todo, model.TodoInsert, model.TodoPatch](db, "todos")
			if err != nil {
				return err
			}

			nu, nt, err := insertFixtures(ctx, GenerateFixtures(nUsers, nTodos, seed), users, todos)
			rootOpts.Log.Info("seeded", zap.Int("users", nu), zap.Int("todos", nt), zap.Int64("seed", seed))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d users and %d todos\n", nu, nt)
			return nil
		},
	}
	cmd.Flags().IntVar(&nUsers, "users", 10, "number of users to insert")
	cmd.Flags().IntVar(&nTodos, "todos", 20, "number of todos to insert")
	cmd.Flags().Int64Var(&seed, "seed", 1337, "fixture seed")
	return cmd
}
