package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/queryir"
	"github.com/roach88/cognos/internal/store"
	"github.com/roach88/cognos/internal/trace"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedStore creates a store holding one finished run and one run that
// stopped with a flow still open.
func seedStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.BeginRun(ctx, store.Run{ID: "run-ok", Program: "agent.cg", ProgramHash: "h1", StartedAt: baseTime}))
	for i, k := range []trace.Kind{trace.KindFlowStart, trace.KindGenerate, trace.KindFlowEnd} {
		require.NoError(t, st.WriteEvent(ctx, trace.Event{
			Kind:          k,
			TS:            baseTime.Add(time.Duration(i) * time.Millisecond),
			Seq:           int64(i + 1),
			CorrelationID: "run-ok",
			Fields:        trace.Fields{"flow": "main"},
		}))
	}
	require.NoError(t, st.FinishRun(ctx, "run-ok", store.Outcome{
		Status:       store.StatusSucceeded,
		FinishedAt:   baseTime.Add(time.Second),
		Result:       ir.String("done"),
		OutputDigest: "digest-1",
	}))

	require.NoError(t, st.BeginRun(ctx, store.Run{ID: "run-open", Program: "loop.cg", ProgramHash: "h2", StartedAt: baseTime.Add(time.Minute)}))
	require.NoError(t, st.WriteEvent(ctx, trace.Event{
		Kind:          trace.KindFlowStart,
		TS:            baseTime.Add(time.Minute),
		Seq:           1,
		CorrelationID: "run-open",
		Fields:        trace.Fields{"flow": "main"},
	}))
	return st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestHealth_StoreDown(t *testing.T) {
	h := NewHandler(failingStore{err: errors.New("disk gone")}, quietLogger())

	rr := get(t, h, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "disk gone")
}

func TestListRuns(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var runs []Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-open", runs[0].ID, "newest first")
	assert.Equal(t, "run-ok", runs[1].ID)
	assert.Equal(t, "succeeded", runs[1].Status)
	assert.Equal(t, "done", runs[1].Result)
	assert.Equal(t, "digest-1", runs[1].OutputDigest)
}

func TestListRuns_StatusAndLimit(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	var runs []Run
	rr := get(t, h, "/runs?status=running")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-open", runs[0].ID)

	rr = get(t, h, "/runs?limit=1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestListRuns_Filters(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	tests := []struct {
		query string
		want  []string
	}{
		{"program=agent.cg", []string{"run-ok"}},
		{"status=succeeded,running", []string{"run-open", "run-ok"}},
		{"status=failed", []string{}},
		{"started_at=2025-03-01T12:00:30Z", []string{"run-open"}},
		{"program=loop.cg&status=running", []string{"run-open"}},
		{"program=loop.cg&status=succeeded", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := get(t, h, "/runs?"+tt.query)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			var runs []Run
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
			ids := make([]string, len(runs))
			for i, run := range runs {
				ids[i] = run.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestListRuns_BadFilter(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	tests := []struct {
		query string
		want  string
	}{
		{"owner=ada", `unknown field "owner"`},
		{"started_at=yesterday", "invalid time"},
		{"kind=generate", `unknown field "kind"`},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := get(t, h, "/runs?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestListRuns_BadLimit(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	for _, limit := range []string{"0", "-3", "many"} {
		rr := get(t, h, "/runs?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", limit)
	}
}

func TestGetRun(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/run-ok")

	require.Equal(t, http.StatusOK, rr.Code)
	var detail RunDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "run-ok", detail.ID)
	assert.Equal(t, 3, detail.Events)
	assert.Equal(t, int64(3), detail.LastSeq)
	assert.Equal(t, 1, detail.Generations)
	assert.Empty(t, detail.OpenFlows)
	assert.True(t, detail.IsComplete)
}

func TestGetRun_Incomplete(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/run-open")

	require.Equal(t, http.StatusOK, rr.Code)
	var detail RunDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "running", detail.Status)
	assert.Equal(t, []string{"main"}, detail.OpenFlows)
	assert.False(t, detail.IsComplete)
}

func TestGetRun_NotFound(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/missing")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run missing not found")
}

func TestGetEvents(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/run-ok/events")

	require.Equal(t, http.StatusOK, rr.Code)
	events, err := trace.ReadJSONL(strings.NewReader(jsonArrayToLines(t, rr.Body.Bytes())))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, trace.KindFlowStart, events[0].Kind)
	assert.Equal(t, "main", events[0].StringField("flow"))
	assert.Equal(t, int64(3), events[2].Seq)
}

func TestGetEvents_ByKind(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/run-ok/events?kind=generate")

	require.Equal(t, http.StatusOK, rr.Code)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "generate", raw[0]["kind"])
}

func TestGetEvents_BySeq(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/run-ok/events?seq=1,3")

	require.Equal(t, http.StatusOK, rr.Code)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "flow_start", raw[0]["kind"])
	assert.Equal(t, "flow_end", raw[1]["kind"])
}

func TestGetEvents_BadFilter(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/run-ok/events?seq=first")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `invalid int "first"`)
}

func TestGetEvents_NotFound(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/runs/missing/events")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetrics(t *testing.T) {
	h := NewHandler(seedStore(t), quietLogger())

	rr := get(t, h, "/metrics")

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `cognos_runs{status="succeeded"} 1`)
	assert.Contains(t, body, `cognos_runs{status="running"} 1`)
	assert.Contains(t, body, `cognos_runs{status="failed"} 0`)
}

func TestInternalError(t *testing.T) {
	h := NewHandler(failingStore{err: errors.New("locked")}, quietLogger())

	rr := get(t, h, "/runs")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "locked")
}

// jsonArrayToLines re-encodes a JSON array as JSON lines.
func jsonArrayToLines(t *testing.T, data []byte) string {
	t.Helper()
	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &items))
	var b strings.Builder
	for _, item := range items {
		b.Write(item)
		b.WriteByte('\n')
	}
	return b.String()
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (f failingStore) Ping(context.Context) error { return f.err }
func (f failingStore) QueryRuns(context.Context, queryir.Predicate, int) ([]store.Run, error) {
	return nil, f.err
}
func (f failingStore) ReadRun(context.Context, string) (store.Run, error) {
	return store.Run{}, f.err
}
func (f failingStore) GetRunState(context.Context, string) (store.RunState, error) {
	return store.RunState{}, f.err
}
func (f failingStore) QueryEvents(context.Context, string, queryir.Predicate) ([]trace.Event, error) {
	return nil, f.err
}
func (f failingStore) CountRuns(context.Context) (map[store.RunStatus]int, error) {
	return nil, f.err
}
