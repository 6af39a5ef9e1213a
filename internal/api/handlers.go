// Package api is the HTTP API (SPEC_FULL.md §4.11): it exposes the Script
// Store, Session Pool, and Execution Dispatcher over the routing table
// adapted from the teacher's internal/api, plus the Pinned Stream Gateway's
// WebSocket upgrade endpoint.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sideruntime/sidesvc/internal/dispatcher"
	"github.com/sideruntime/sidesvc/internal/sidestore"
	"github.com/sideruntime/sidesvc/internal/wsstream"
	"github.com/sideruntime/sidesvc/pkg/models"
)

// Handler holds the dependencies every HTTP endpoint needs.
type Handler struct {
	store      *sidestore.Store
	dispatcher *dispatcher.Dispatcher
	stream     *wsstream.Gateway
	log        logrus.FieldLogger
}

// NewHandler builds a Handler.
func NewHandler(store *sidestore.Store, d *dispatcher.Dispatcher, stream *wsstream.Gateway, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{store: store, dispatcher: d, stream: stream, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// UploadSide handles POST /v1/sides/{id}.
func (h *Handler) UploadSide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}
	if err := h.store.Save(id, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListSides handles GET /v1/sides.
func (h *Handler) ListSides(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

// GetSide handles GET /v1/sides/{id}.
func (h *Handler) GetSide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := h.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

// ReplaceSide handles PATCH /v1/sides/{id}.
func (h *Handler) ReplaceSide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.store.Exists(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "side not found"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}
	if err := h.store.Save(id, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// DeleteSide handles DELETE /v1/sides/{id}.
func (h *Handler) DeleteSide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions handles GET /v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]models.SessionEntry{"sessions": h.dispatcher.Pool.Entries()})
}

// CreateExecution handles POST /v1/executions: executeAny when session_id
// is empty, executeOn otherwise.
func (h *Handler) CreateExecution(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var (
		result models.ExecuteResult
		err    error
	)
	if req.SessionID == "" {
		result, err = h.dispatcher.ExecuteAny(r.Context(), req)
	} else {
		result, err = h.dispatcher.ExecuteOn(r.Context(), req.SessionID, req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// OpenStream handles GET /v1/stream: upgrade to the Pinned Stream Gateway.
func (h *Handler) OpenStream(w http.ResponseWriter, r *http.Request) {
	h.stream.HandleConnection(w, r)
}
