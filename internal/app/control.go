package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/internal/scanlog"
)

// control is the local HTTP surface standing in for the assistant's
// buttons: manual queries, the scan toggle, and session status.
type control struct {
	sessions *SessionManager
	journal  scanlog.Store
}

func newControl(sm *SessionManager, journal scanlog.Store) *control {
	return &control{sessions: sm, journal: journal}
}

func (c *control) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", c.status)
	mux.HandleFunc("POST /query/{kind}", c.query)
	mux.HandleFunc("PUT /scan", c.scan)
	mux.HandleFunc("GET /journal", c.recent)
}

type statusResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	Label     string `json:"label"`
	Scanning  bool   `json:"scanning"`
	Busy      bool   `json:"busy"`
}

func (c *control) status(w http.ResponseWriter, _ *http.Request) {
	st := c.sessions.Status()
	res := statusResponse{
		SessionID: c.sessions.Info().SessionID,
		Status:    st.String(),
		Label:     st.Label(),
		Scanning:  c.sessions.Scanning(),
	}
	if sess := c.sessions.Current(); sess != nil {
		res.Busy = sess.Busy()
	}
	writeJSON(w, http.StatusOK, res)
}

type queryResponse struct {
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// query blocks until the one-shot query finishes. The result is also
// spoken by the session.
func (c *control) query(w http.ResponseWriter, r *http.Request) {
	kind, err := assist.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, queryResponse{Kind: r.PathValue("kind"), Error: err.Error()})
		return
	}
	text, err := c.sessions.Query(r.Context(), kind)
	if err != nil {
		writeJSON(w, queryStatus(err), queryResponse{Kind: string(kind), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Kind: string(kind), Text: text})
}

func queryStatus(err error) int {
	var qe *assist.QueryError
	switch {
	case errors.Is(err, assist.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, assist.ErrNotActive), errors.Is(err, ErrNoSession):
		return http.StatusServiceUnavailable
	case errors.As(err, &qe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type scanRequest struct {
	Enabled *bool `json:"enabled"`
}

func (c *control) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, `body must be {"enabled": true|false}`, http.StatusBadRequest)
		return
	}
	c.sessions.SetScanning(*req.Enabled)
	c.status(w, r)
}

func (c *control) recent(w http.ResponseWriter, r *http.Request) {
	if c.journal == nil {
		http.Error(w, "scan journal disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := c.journal.Recent(r.Context(), limit)
	if err != nil {
		slog.Warn("journal read failed", "err", err)
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}
	if entries == nil {
		entries = []scanlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
