// Package http implements C12's wire surface, grounded on
// ledger/internal/transport/http's switch-based router idiom.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"notification/internal/sender"
)

// Sender is the slice of sender.Service the router drives.
type Sender interface {
	Send(ctx context.Context, req sender.Request) (*sender.Record, error)
	SendBatch(ctx context.Context, reqs []sender.Request) ([]sender.Result, error)
	GetStatus(ctx context.Context, id string) (*sender.Record, error)
	GetStats(ctx context.Context) (sender.Stats, error)
}

// Router dispatches C12's HTTP surface.
type Router struct {
	sender Sender
}

// NewRouter builds a Router.
func NewRouter(s Sender) *Router {
	return &Router{sender: s}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/send" && r.Method == http.MethodPost:
		rt.handleSend(w, r)
	case path == "/send-batch" && r.Method == http.MethodPost:
		rt.handleSendBatch(w, r)
	case strings.HasPrefix(path, "/status/") && r.Method == http.MethodGet:
		rt.handleStatus(w, r, strings.TrimPrefix(path, "/status/"))
	case path == "/stats" && r.Method == http.MethodGet:
		rt.handleStats(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (rt *Router) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sender.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := rt.sender.Send(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, sender.Result{ID: rec.ID, Status: string(rec.Status)})
}

func (rt *Router) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []sender.Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results, err := rt.sender.SendBatch(r.Context(), reqs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := rt.sender.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.sender.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
