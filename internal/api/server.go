package api

import (
	"github.com/gorilla/mux"

	"github.com/sideruntime/sidesvc/internal/ratelimit"
)

// SetupRoutes builds the router for the table in SPEC_FULL.md §4.11.
func (h *Handler) SetupRoutes(limiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()

	rateLimited := api.PathPrefix("").Subrouter()
	rateLimited.Use(RateLimitMiddleware(limiter, 100))

	rateLimited.HandleFunc("/sides/{id}", h.UploadSide).Methods("POST")
	rateLimited.HandleFunc("/sides", h.ListSides).Methods("GET")
	rateLimited.HandleFunc("/sides/{id}", h.GetSide).Methods("GET")
	rateLimited.HandleFunc("/sides/{id}", h.ReplaceSide).Methods("PATCH")
	rateLimited.HandleFunc("/sides/{id}", h.DeleteSide).Methods("DELETE")
	rateLimited.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	rateLimited.HandleFunc("/executions", h.CreateExecution).Methods("POST")

	// Streaming is not rate limited: each connection pins one session lock
	// when it opens.
	api.HandleFunc("/stream", h.OpenStream).Methods("GET")

	r.Use(corsMiddleware)
	return r
}
