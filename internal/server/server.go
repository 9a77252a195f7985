// Package server exposes recorded runs over HTTP.
//
// Routes:
//
//	GET /healthz             store reachability
//	GET /runs                recent runs (?limit=N and field filters)
//	GET /runs/{id}           one run with its event log summary
//	GET /runs/{id}/events    the run's trace events (field filters)
//	GET /metrics             Prometheus exposition of run counts
//
// Filters are query parameters named after a field: ?status=failed,
// ?status=failed,cancelled for a set, and ?started_at=2025-03-01 for a
// lower bound on a time field.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/queryir"
	"github.com/roach88/cognos/internal/store"
	"github.com/roach88/cognos/internal/trace"
)

// DefaultLimit caps /runs when no limit is given.
const DefaultLimit = 50

// Store is the part of the run store the server reads.
type Store interface {
	Ping(ctx context.Context) error
	QueryRuns(ctx context.Context, filter queryir.Predicate, limit int) ([]store.Run, error)
	ReadRun(ctx context.Context, id string) (store.Run, error)
	GetRunState(ctx context.Context, id string) (store.RunState, error)
	QueryEvents(ctx context.Context, id string, filter queryir.Predicate) ([]trace.Event, error)
	CountRuns(ctx context.Context) (map[store.RunStatus]int, error)
}

// Server serves the run API.
type Server struct {
	Store  Store
	Logger *slog.Logger
}

// NewHandler creates the HTTP handler for st.
func NewHandler(st Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Store: st, Logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(&runCollector{store: st, logger: logger})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.Health)
	r.Get("/runs", s.ListRuns)
	r.Get("/runs/{id}", s.GetRun)
	r.Get("/runs/{id}/events", s.GetEvents)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

// Run is the JSON form of a stored run.
type Run struct {
	ID           string `json:"id"`
	Program      string `json:"program"`
	Entry        string `json:"entry,omitempty"`
	ProgramHash  string `json:"program_hash"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Result       any    `json:"result,omitempty"`
	OutputDigest string `json:"output_digest,omitempty"`
}

// RunDetail is a run with the summary of its event log.
type RunDetail struct {
	Run
	Events         int      `json:"events"`
	LastSeq        int64    `json:"last_seq"`
	Generations    int      `json:"generations"`
	ToolCalls      int      `json:"tool_calls"`
	Errors         int      `json:"errors"`
	OpenFlows      []string `json:"open_flows"`
	PendingFutures []string `json:"pending_futures"`
	IsComplete     bool     `json:"is_complete"`
}

func toRun(r store.Run) Run {
	out := Run{
		ID:           r.ID,
		Program:      r.Program,
		Entry:        r.Entry,
		ProgramHash:  r.ProgramHash,
		Status:       string(r.Status),
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339Nano),
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		OutputDigest: r.OutputDigest,
	}
	if !r.FinishedAt.IsZero() {
		out.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.Result != nil {
		out.Result = ir.ToGo(r.Result)
	}
	return out
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	filter, err := parseFilter(queryir.SourceRuns, r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := s.Store.QueryRuns(r.Context(), filter, limit)
	if err != nil {
		s.internalError(w, "list runs", err)
		return
	}
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRun(run))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.Store.GetRunState(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, fmt.Sprintf("run %s not found", id), http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "get run state", err)
		return
	}

	detail := RunDetail{
		Run:            toRun(state.Run),
		Events:         len(state.Events),
		LastSeq:        state.LastSeq,
		Generations:    state.Generations,
		ToolCalls:      state.ToolCalls,
		Errors:         state.Errors,
		OpenFlows:      nonNil(state.OpenFlows),
		PendingFutures: nonNil(state.PendingFutures),
		IsComplete:     state.IsComplete,
	}
	s.writeJSON(w, http.StatusOK, detail)
}

// GetEvents handles GET /runs/{id}/events.
func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.Store.ReadRun(ctx, id); errors.Is(err, sql.ErrNoRows) {
		http.Error(w, fmt.Sprintf("run %s not found", id), http.StatusNotFound)
		return
	} else if err != nil {
		s.internalError(w, "read run", err)
		return
	}

	filter, err := parseFilter(queryir.SourceEvents, r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := s.Store.QueryEvents(ctx, id, filter)
	if err != nil {
		s.internalError(w, "read events", err)
		return
	}
	if events == nil {
		events = []trace.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// parseFilter turns query parameters into a predicate over src. The limit
// parameter is not a filter. Parameters are read in name order so the
// compiled SQL is stable.
func parseFilter(src queryir.Source, params url.Values) (queryir.Predicate, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		if name != "limit" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var terms []string
	for _, name := range names {
		op := "="
		if queryir.Fields[src][name] == queryir.FieldTime {
			op = ">="
		}
		for _, v := range params[name] {
			terms = append(terms, name+op+v)
		}
	}
	return queryir.ParseTerms(src, terms)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("encode response", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.Logger.Error(op, "error", err)
	http.Error(w, fmt.Sprintf("%s: %v", op, err), http.StatusInternalServerError)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
