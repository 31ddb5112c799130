package main

import (
	"Go2AQMSpectra/internal/query"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const defaultFlowLimit = 10

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
}

func newRouter(h *APIHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/sessions", h.sessionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/sessions/{id}/queues/{queue}", h.queueSeriesHandler).Methods("GET")
	r.HandleFunc("/api/v1/sessions/{id}/flows/{queue}", h.topFlowsHandler).Methods("GET")
	return r
}

// sessionsHandler lists stored sessions, optionally those seen since an RFC 3339 time.
func (h *APIHandler) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
			return
		}
		since = t
	}

	resp, err := h.querier.Sessions(r.Context(), since)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query sessions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (h *APIHandler) queueSeriesHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := query.ValidQueue(vars["queue"]); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.querier.QueueSeries(r.Context(), vars["id"], vars["queue"])
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query queue series: %v", err), http.StatusInternalServerError)
		return
	}
	if len(resp) == 0 {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, resp)
}

func (h *APIHandler) topFlowsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := query.ValidQueue(vars["queue"]); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := defaultFlowLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit: %q", s), http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp, err := h.querier.TopFlows(r.Context(), vars["id"], vars["queue"], limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query flows: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
