package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/analytics"
	"github.com/zoravur/dashboard-sync/internal/logutil"
	"github.com/zoravur/dashboard-sync/internal/model"
	"github.com/zoravur/dashboard-sync/internal/notify"
	"github.com/zoravur/dashboard-sync/internal/protocol"
	"github.com/zoravur/dashboard-sync/internal/reactive"
	"github.com/zoravur/dashboard-sync/internal/store"
)

const maxBody = 1 << 20

// Toasts is the read side of the notification center.
type Toasts interface {
	Visible() []notify.Toast
	Dismiss(id string)
	Watch() (<-chan []notify.Toast, func())
}

type Analytics interface {
	Snapshot() analytics.Snapshot
}

type Deps struct {
	Users     *reactive.Users
	Todos     *reactive.Todos
	Live      *reactive.Registry
	Toasts    Toasts
	Analytics Analytics
	Log       *zap.Logger
}

// Handler serves the live collections over HTTP and websocket.
type Handler struct {
	users     *reactive.Users
	todos     *reactive.Todos
	live      *reactive.Registry
	toasts    Toasts
	analytics Analytics
	peers     *protocol.Registry
	log       *zap.Logger

	stopOnce sync.Once
	stops    []func()
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.L()
	}
	live := d.Live
	if live == nil {
		live = reactive.NewRegistry()
	}
	return &Handler{
		users:     d.Users,
		todos:     d.Todos,
		live:      live,
		toasts:    d.Toasts,
		analytics: d.Analytics,
		peers:     protocol.NewRegistry(log),
		log:       log,
	}
}

func (h *Handler) Resources() []string { return []string{"users", "todos"} }

func (h *Handler) collection(name string) (reactive.Live, bool) {
	switch name {
	case "users":
		return h.users, h.users != nil
	case "todos":
		return h.todos, h.todos != nil
	}
	return nil, false
}

// Refetch reloads one resource's snapshot.
func (h *Handler) Refetch(ctx context.Context, resource string) error {
	l, ok := h.collection(resource)
	if !ok {
		return fmt.Errorf("unknown resource %q", resource)
	}
	return l.Load(ctx)
}

func (h *Handler) handleView(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := h.collection(name)
		if !ok {
			writeError(w, r, http.StatusNotFound, "unknown resource")
			return
		}
		writeJSON(w, r, http.StatusOK, l.Snapshot())
	}
}

func (h *Handler) handleRefetch(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := h.collection(name)
		if !ok {
			writeError(w, r, http.StatusNotFound, "unknown resource")
			return
		}
		if err := l.Load(r.Context()); err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, l.Snapshot())
	}
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in model.UserInsert
	if !decode(w, r, &in) {
		return
	}
	u, err := h.users.Create(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, u)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch model.UserPatch
	if !decode(w, r, &patch) {
		return
	}
	u, err := h.users.Update(r.Context(), id, patch)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createTodo(w http.ResponseWriter, r *http.Request) {
	var in model.TodoInsert
	if !decode(w, r, &in) {
		return
	}
	t, err := h.todos.Create(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, t)
}

func (h *Handler) updateTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch model.TodoPatch
	if !decode(w, r, &patch) {
		return
	}
	t, err := h.todos.Update(r.Context(), id, patch)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

// toggleTodo takes the completion state the caller currently sees and
// writes its negation.
func (h *Handler) toggleTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		IsCompleted *bool `json:"is_completed"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.IsCompleted == nil {
		writeError(w, r, http.StatusBadRequest, "is_completed is required")
		return
	}
	t, err := h.todos.Toggle(r.Context(), id, *body.IsCompleted)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (h *Handler) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.todos.Delete(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dismissToast(w http.ResponseWriter, r *http.Request) {
	h.toasts.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutil.L(r.Context()).Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeFailure reports a rejected store call with the store's own message.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logutil.L(r.Context()).Error("store call failed", zap.Error(err))
	}
	writeError(w, r, status, message(err))
}

func message(err error) string {
	var me *reactive.MutationError
	if errors.As(err, &me) {
		return me.Err.Error()
	}
	var le *reactive.LoadError
	if errors.As(err, &le) {
		return le.Err.Error()
	}
	return err.Error()
}

func statusFor(err error) int {
	var se *store.Error
	switch {
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &se):
		switch {
		case se.Code == store.CodeInvalid, strings.HasPrefix(se.Code, "22"):
			return http.StatusBadRequest
		case se.Code == "42501":
			return http.StatusForbidden
		case strings.HasPrefix(se.Code, "23"):
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}
