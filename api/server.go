// Package api exposes the control surface over HTTP: status, manual scrape
// triggers and pause/resume. It writes commands into the operational store
// rather than calling the orchestrator directly, so cycles stay owned by
// the scheduler goroutines.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"immojagd/models"
	"immojagd/scheduler"
	"immojagd/storage"
)

type Server struct {
	sched *scheduler.Scheduler
	store *storage.SQLiteStore
	http  *http.Server
}

func NewServer(addr string, sched *scheduler.Scheduler, store *storage.SQLiteStore) *Server {
	s := &Server{sched: sched, store: store}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/cycles", s.handleCycles).Methods(http.MethodGet)
	r.HandleFunc("/api/scrape", s.handleScrape).Methods(http.MethodPost)
	r.HandleFunc("/api/pause", s.command(models.CmdPause)).Methods(http.MethodPost)
	r.HandleFunc("/api/resume", s.command(models.CmdResume)).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in a goroutine; errors other than a clean shutdown are
// logged, not fatal, since the API is an optional surface.
func (s *Server) Start() {
	go func() {
		log.Printf("Control API listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Control API error: %v", err)
		}
	}()
}

func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleCycles(w http.ResponseWriter, _ *http.Request) {
	cycles, err := s.store.GetRecentCycles(20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cycles)
}

// handleScrape enqueues a scrape command; the body may narrow it with
// {"platform": "...", "category": "...", "max_pages": N, "keyword": "..."}.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var params models.CommandParams
	if r.Body != nil {
		// An empty body means "scrape everything".
		_ = json.NewDecoder(r.Body).Decode(&params)
	}

	command := models.CmdScrapeNow
	var raw []byte
	if params != (models.CommandParams{}) {
		command = models.CmdScrapePlatform
		raw, _ = json.Marshal(params)
	}

	if err := s.store.EnqueueCommand(command, raw); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) command(cmd models.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := s.store.EnqueueCommand(cmd, nil); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
