package api

import (
	"net/http"
)

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.live.SnapshotView())
}

func (h *Handler) handleToasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.toasts.Visible())
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.analytics.Snapshot())
}
