// Package http exposes C4's upload/digital/history surface and the
// HTTP-triggered variants of C6's processing pipeline (spec.md §6).
package http

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ticketing/internal/ticket"
	"ticketing/internal/worker"
)

const maxUploadMemory = 32 << 20 // 32MB multipart form buffer

// Router dispatches ticketing's HTTP surface.
type Router struct {
	tickets *ticket.Service
	worker  *worker.Worker
}

// NewRouter builds a Router over the ticket service and worker.
func NewRouter(tickets *ticket.Service, w *worker.Worker) *Router {
	return &Router{tickets: tickets, worker: w}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/tickets/upload" && r.Method == http.MethodPost:
		rt.upload(w, r)
	case path == "/tickets/digital" && r.Method == http.MethodPost:
		rt.digital(w, r)
	case path == "/tickets/pending" && r.Method == http.MethodGet:
		rt.pending(w, r)
	case path == "/tickets/process-pending" && r.Method == http.MethodPost:
		rt.processPending(w, r)
	case strings.HasPrefix(path, "/tickets/history/") && r.Method == http.MethodGet:
		rt.history(w, r, strings.TrimPrefix(path, "/tickets/history/"))
	case strings.HasPrefix(path, "/tickets/") && strings.HasSuffix(path, "/process") && r.Method == http.MethodPost:
		rt.process(w, r, idFromProcessPath(path))
	case strings.HasPrefix(path, "/tickets/") && r.Method == http.MethodGet:
		rt.get(w, r, strings.TrimPrefix(path, "/tickets/"))
	case path == "/health":
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func idFromProcessPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/tickets/")
	return strings.TrimSuffix(trimmed, "/process")
}

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, `{"error":"invalid multipart form"}`, http.StatusBadRequest)
		return
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `{"error":"file is required"}`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, `{"error":"failed to read upload"}`, http.StatusBadRequest)
		return
	}

	mime := header.Header.Get("Content-Type")
	t, err := rt.tickets.Upload(r.Context(), userID, header.Filename, data, mime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (rt *Router) digital(w http.ResponseWriter, r *http.Request) {
	var req ticket.DigitalTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	t, err := rt.tickets.CreateDigital(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// pending returns pending tickets with their image bytes base64
// encoded, for the worker contract spec.md §6 describes.
func (rt *Router) pending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	tickets, err := rt.tickets.ListPending(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	type pendingTicket struct {
		*ticket.Ticket
		ImageBase64 string `json:"image_base64,omitempty"`
	}
	out := make([]pendingTicket, 0, len(tickets))
	for _, t := range tickets {
		entry := pendingTicket{Ticket: t}
		if image, err := rt.tickets.ImageBytes(r.Context(), t); err == nil {
			entry.ImageBase64 = base64.StdEncoding.EncodeToString(image)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) process(w http.ResponseWriter, r *http.Request, id string) {
	t, err := rt.worker.ProcessTicket(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (rt *Router) processPending(w http.ResponseWriter, r *http.Request) {
	n, err := rt.worker.ProcessPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": n})
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request, userID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	tickets, err := rt.tickets.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (rt *Router) get(w http.ResponseWriter, r *http.Request, id string) {
	t, err := rt.tickets.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch err {
	case ticket.ErrNotFound:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case ticket.ErrUnsupportedMimeType:
		http.Error(w, `{"error":"unsupported file type"}`, http.StatusBadRequest)
	case ticket.ErrFileTooLarge:
		http.Error(w, `{"error":"file too large"}`, http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
