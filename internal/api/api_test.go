package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zoravur/dashboard-sync/internal/analytics"
	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/protocol"
	"github.com/zoravur/dashboard-sync/internal/reactive"
	"github.com/zoravur/dashboard-sync/internal/store"
	"github.com/zoravur/dashboard-sync/internal/stream"
	"github.com/zoravur/dashboard-sync/internal/wal"
)

type memTodos struct {
	mu      sync.Mutex
	rows    []model.Todo
	err     error
	patches []model.TodoPatch
	deleted []int64
}

func (m *memTodos) List(context.Context) ([]model.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Todo(nil), m.rows...), nil
}

func (m *memTodos) Create(_ context.Context, in model.TodoInsert) (model.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Todo{}, m.err
	}
	return model.Todo{ID: 77, Title: in.Title, IsCompleted: in.IsCompleted}, nil
}

func (m *memTodos) Update(_ context.Context, id int64, p model.TodoPatch) (model.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches = append(m.patches, p)
	if m.err != nil {
		return model.Todo{}, m.err
	}
	t := model.Todo{ID: id}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	return t, nil
}

func (m *memTodos) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return m.err
}

type memUsers struct{ err error }

func (m *memUsers) List(context.Context) ([]model.User, error) { return []model.User{}, nil }

func (m *memUsers) Create(_ context.Context, in model.UserInsert) (model.User, error) {
	if m.err != nil {
		return model.User{}, m.err
	}
	return model.User{ID: 1, Name: in.Name, Email: in.Email, Role: in.Role, Status: in.Status}, nil
}

func (m *memUsers) Update(_ context.Context, id int64, _ model.UserPatch) (model.User, error) {
	if m.err != nil {
		return model.User{}, m.err
	}
	return model.User{ID: id}, nil
}

func (m *memUsers) Delete(context.Context, int64) error { return m.err }

type fixedAnalytics analytics.Snapshot

func (f fixedAnalytics) Snapshot() analytics.Snapshot { return analytics.Snapshot(f) }

type env struct {
	hub    *stream.Hub
	todos  *memTodos
	users  *memUsers
	toasts *notify.Center
	h      *Handler
	srv    http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	e := &env{
		hub:    stream.NewHub(16, log),
		todos:  &memTodos{rows: []model.Todo{{ID: 1, Title: "Buy milk"}}},
		users:  &memUsers{},
		toasts: notify.NewCenter(3, time.Minute, log),
	}
	reg := reactive.NewRegistry()
	users := reactive.NewUsers(reactive.UserDeps{Gateway: e.users, Stream: e.hub, Notifier: e.toasts, Registry: reg, Log: log})
	todos := reactive.NewTodos(reactive.TodoDeps{Gateway: e.todos, Stream: e.hub, Notifier: e.toasts, Registry: reg, Log: log})
	require.NoError(t, users.Mount(context.Background()))
	require.NoError(t, todos.Mount(context.Background()))

	e.h = NewHandler(Deps{
		Users:     users,
		Todos:     todos,
		Live:      reg,
		Toasts:    e.toasts,
		Analytics: fixedAnalytics{TodoStats: analytics.TodoStats{Total: 1}},
		Log:       log,
	})
	e.h.Start()
	e.srv = SetupRoutes(e.h, log)
	t.Cleanup(func() {
		e.h.Stop()
		users.Unmount()
		todos.Unmount()
		e.hub.Close()
	})
	return e
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetView(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/todos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeBody[reactive.View[model.Todo]](t, rec)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "Buy milk", v.Items[0].Title)
	assert.False(t, v.Loading)
	assert.Nil(t, v.Error)

	rec = e.do(t, http.MethodGet, "/api/widgets", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefetch(t *testing.T) {
	e := newEnv(t)
	e.todos.mu.Lock()
	e.todos.rows = append(e.todos.rows, model.Todo{ID: 2, Title: "Walk dog"})
	e.todos.mu.Unlock()

	rec := e.do(t, http.MethodPost, "/api/todos/refetch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[reactive.View[model.Todo]](t, rec).Items, 2)
}

func TestCreateTodo(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/todos", `{"title":"Walk dog"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decodeBody[model.Todo](t, rec)
	assert.EqualValues(t, 77, got.ID)
	assert.Equal(t, "Walk dog", got.Title)
}

func TestMutationFailureStatus(t *testing.T) {
	e := newEnv(t)
	e.todos.mu.Lock()
	e.todos.err = &store.Error{Op: "delete", Table: "todos", Code: "42501", Message: "permission denied"}
	e.todos.mu.Unlock()

	rec := e.do(t, http.MethodDelete, "/api/todos/1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, map[string]string{"error": "permission denied"}, decodeBody[map[string]string](t, rec))

	rec = e.do(t, http.MethodGet, "/api/toasts", "")
	toasts := decodeBody[[]notify.Toast](t, rec)
	require.Len(t, toasts, 1)
	assert.Equal(t, "permission denied", toasts[0].Message)
	assert.Equal(t, notify.Error, toasts[0].Severity)

	v := decodeBody[reactive.View[model.Todo]](t, e.do(t, http.MethodGet, "/api/todos", ""))
	assert.Equal(t, "permission denied", v.Err())
	assert.Len(t, v.Items, 1)
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPatch, "/api/users/abc", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPatch, "/api/users/0", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/users", `{"name":`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/todos", `{"title":"x","owner":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/todos/1/toggle", `{}`).Code)
}

func TestToggleAndDelete(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/todos/1/toggle", `{"is_completed":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[model.Todo](t, rec).IsCompleted)

	rec = e.do(t, http.MethodPatch, "/api/todos/1", `{"title":"Buy oat milk"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/todos/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	e.todos.mu.Lock()
	defer e.todos.mu.Unlock()
	require.Len(t, e.todos.patches, 2)
	assert.True(t, *e.todos.patches[0].IsCompleted)
	assert.Equal(t, "Buy oat milk", *e.todos.patches[1].Title)
	assert.Equal(t, []int64{1}, e.todos.deleted)
}

func TestUserRoutes(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/users",
		`{"name":"Ada Lovelace","email":"ada@example.com","role":"admin","status":"active"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Ada Lovelace", decodeBody[model.User](t, rec).Name)

	e.users.err = &store.Error{Code: "23505", Message: `duplicate key value violates unique constraint "users_email_key"`}
	rec = e.do(t, http.MethodPatch, "/api/users/1", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLiveAndAnalytics(t *testing.T) {
	e := newEnv(t)

	infos := decodeBody[[]map[string]any](t, e.do(t, http.MethodGet, "/api/live", ""))
	require.Len(t, infos, 2)
	assert.Equal(t, "todos", infos[0]["resource"])
	assert.Equal(t, "users", infos[1]["resource"])
	assert.Equal(t, "subscribed", infos[0]["phase"])

	snap := decodeBody[analytics.Snapshot](t, e.do(t, http.MethodGet, "/api/analytics", ""))
	assert.EqualValues(t, 1, snap.TodoStats.Total)
}

func TestRequestIDEchoed(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", model.ErrInvalid), http.StatusBadRequest},
		{&store.Error{Code: store.CodeInvalid}, http.StatusBadRequest},
		{&store.Error{Err: store.ErrNotFound}, http.StatusNotFound},
		{&store.Error{Code: "42501"}, http.StatusForbidden},
		{&store.Error{Code: "23514"}, http.StatusConflict},
		{&store.Error{Code: "22P02"}, http.StatusBadRequest},
		{&reactive.MutationError{Err: &store.Error{Code: "23505"}}, http.StatusConflict},
		{&pgconn.PgError{Code: "08006"}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), "%v", tc.err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m protocol.Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWebsocket(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.srv)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := []protocol.Message{readMsg(t, conn), readMsg(t, conn), readMsg(t, conn)}
	assert.Equal(t, protocol.TypeState, first[0].Type)
	assert.Equal(t, "users", first[0].Resource)
	assert.Equal(t, "todos", first[1].Resource)
	assert.Equal(t, protocol.TypeToasts, first[2].Type)

	require.NoError(t, conn.WriteJSON(protocol.Message{Type: protocol.TypePing}))
	assert.Equal(t, protocol.TypePong, readMsg(t, conn).Type)

	e.hub.Publish(wal.RowChange{Schema: "public", Table: "todos", Kind: wal.Inserted, New: map[string]any{
		"id": 2, "title": "Walk dog", "is_completed": false, "created_at": "2026-01-02 03:04:05+00",
	}})

	var sawState, sawToast bool
	for i := 0; i < 4 && !(sawState && sawToast); i++ {
		m := readMsg(t, conn)
		switch m.Type {
		case protocol.TypeState:
			if m.Resource == "todos" {
				items := m.Data.(map[string]any)["items"].([]any)
				sawState = sawState || len(items) == 2
			}
		case protocol.TypeToasts:
			ts := m.Data.([]any)
			sawToast = sawToast || (len(ts) == 1 && ts[0].(map[string]any)["message"] == "New todo: Walk dog")
		}
	}
	assert.True(t, sawState, "state push with the new todo")
	assert.True(t, sawToast, "toast push for the insert")
}
