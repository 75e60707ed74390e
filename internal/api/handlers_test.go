package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/events"
	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/log"
	"github.com/mattjoyce/tessera/internal/metrics"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/runlog"
	"github.com/mattjoyce/tessera/internal/storage"
	"github.com/mattjoyce/tessera/internal/toolbox"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

type source struct{ processor.Base }

func (*source) Configure(*config.Node) error { return nil }

type sink struct{ processor.Base }

func (*sink) Configure(*config.Node) error { return nil }

// looper runs until the controller cancels it.
type looper struct {
	processor.Base
	started chan struct{}
	once    sync.Once
}

func (*looper) Configure(*config.Node) error { return nil }

func (l *looper) Execute(ctx context.Context) error {
	for {
		if err := processor.Checkpoint(ctx); err != nil {
			return err
		}
		l.once.Do(func() { close(l.started) })
		time.Sleep(time.Millisecond)
	}
}

type fixture struct {
	ctl     *control.Controller
	tb      *toolbox.Toolbox
	hub     *events.Hub
	handler http.Handler
}

func newFixture(t *testing.T, cfg Config, history RunHistory, entry processor.Processor) *fixture {
	t.Helper()
	tb := toolbox.New(processor.NewRegistry())

	src := &source{Base: processor.NewBase("source", "src")}
	src.NewPrimarySignal("out")
	out := &sink{Base: processor.NewBase("sink", "out")}
	out.NewSlot("in", func(context.Context, *frame.Frame) error { return nil })
	require.NoError(t, tb.AddProcessorInstance("src", src))
	require.NoError(t, tb.AddProcessorInstance("out", out))
	require.NoError(t, tb.MakeOrderedConnection("src:out", "out:in", 1))

	if entry != nil {
		require.NoError(t, tb.AddProcessorInstance(entry.Name(), entry))
		require.NoError(t, tb.PushBackToRunQueue(entry.Name()))
	} else {
		require.NoError(t, tb.PushBackToRunQueue("src"))
	}

	hub := events.NewHub(64)
	m := metrics.New()
	ctl := control.New(tb, control.WithEvents(hub), control.WithMetrics(m))
	srv := New(cfg, ctl, tb, history, hub, m.Handler(), log.Get())
	return &fixture{ctl: ctl, tb: tb, hub: hub, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func newLooper() *looper {
	return &looper{Base: processor.NewBase("looper", "loop"), started: make(chan struct{})}
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil, nil)

	rr := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[HealthzResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, 2, resp.ProcessorsCount)
}

func TestAuthAndScopes(t *testing.T) {
	cfg := Config{
		APIKey: "admin",
		Tokens: []config.APIToken{{Token: "reader", Scopes: []string{"run:ro"}}},
	}
	f := newFixture(t, cfg, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/status", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/status", "wrong", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/status", "reader", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/run", "reader", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, "/cycle-time", "reader", []byte(`{"cycle_time_ms":1}`)).Code)
}

func TestOpenAPIWithoutKeys(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	rr := f.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	doc := decode[map[string]any](t, rr)
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	cycle := paths["/cycle-time"].(map[string]any)
	assert.Contains(t, cycle, "get")
	assert.Contains(t, cycle, "put")
	assert.Len(t, doc["x-processors"], 2)
}

func TestRunCompletesAndCanBeRerun(t *testing.T) {
	f := newFixture(t, Config{APIKey: "k"}, nil, nil)

	rr := f.do(t, http.MethodPost, "/run", "k", nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	first := f.ctl.Wait()
	assert.Equal(t, control.Completed, first.State)

	rr = f.do(t, http.MethodPost, "/run", "k", nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	second := f.ctl.Wait()
	assert.Equal(t, control.Completed, second.State)
	assert.NotEqual(t, first.RunID, second.RunID)

	st := decode[control.Status](t, f.do(t, http.MethodGet, "/status", "k", nil))
	assert.Equal(t, control.Completed, st.State)
	assert.Equal(t, []string{"src"}, st.Executed)
}

func TestCancelRunningRun(t *testing.T) {
	loop := newLooper()
	f := newFixture(t, Config{}, nil, loop)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/cancel", "", nil).Code)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/run", "", nil).Code)
	<-loop.started

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/run", "", nil).Code)

	rr := f.do(t, http.MethodPost, "/cancel", "", []byte(`{"code": 5}`))
	require.Equal(t, http.StatusAccepted, rr.Code)

	st := f.ctl.Wait()
	assert.Equal(t, control.Cancelled, st.State)
	assert.Equal(t, 5, st.Code)
}

func TestCancelDefaultsToInterrupted(t *testing.T) {
	loop := newLooper()
	f := newFixture(t, Config{}, nil, loop)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/run", "", nil).Code)
	<-loop.started
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/cancel", "", nil).Code)
	assert.Equal(t, control.ExitInterrupted, f.ctl.Wait().Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/cancel", "", []byte(`{`)).Code)
}

func TestContinueReleasesBreakpoint(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	require.NoError(t, f.tb.SetBreakpoint("src:out"))
	f.ctl.SetCycleTime(5)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/continue", "", nil).Code)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/run", "", nil).Code)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	atBreak, err := f.ctl.WaitForBreakOrEnd(ctx)
	require.NoError(t, err)
	require.True(t, atBreak)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/continue", "", nil).Code)
	assert.Equal(t, control.Completed, f.ctl.Wait().State)
}

func TestCycleTime(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	ct := decode[CycleTime](t, f.do(t, http.MethodGet, "/cycle-time", "", nil))
	assert.Equal(t, uint(500), ct.CycleTimeMS)

	rr := f.do(t, http.MethodPut, "/cycle-time", "", []byte(`{"cycle_time_ms": 40}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uint(40), decode[CycleTime](t, rr).CycleTimeMS)
	assert.Equal(t, 40*time.Millisecond, f.ctl.CycleTime())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/cycle-time", "", []byte(`{"cycle_time_ms": -1}`)).Code)
}

func TestProcessorsAndConnections(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	procs := decode[[]ProcessorInfo](t, f.do(t, http.MethodGet, "/processors", "", nil))
	require.Len(t, procs, 2)
	bySrc := map[string]ProcessorInfo{}
	for _, p := range procs {
		bySrc[p.Name] = p
	}
	assert.True(t, bySrc["src"].Entry)
	assert.Equal(t, "out", bySrc["src"].Primary)
	assert.False(t, bySrc["out"].Entry)
	assert.Equal(t, []string{"in"}, bySrc["out"].Slots)

	wiring := decode[WiringResponse](t, f.do(t, http.MethodGet, "/connections", "", nil))
	require.Len(t, wiring.Connections, 1)
	assert.Equal(t, "src:out", wiring.Connections[0].Signal)
	assert.Equal(t, "out:in", wiring.Connections[0].Slot)
	require.NotNil(t, wiring.Connections[0].Order)
	assert.Equal(t, 1, *wiring.Connections[0].Order)
	assert.Equal(t, [][]string{{"src"}}, wiring.RunQueue)
	assert.Empty(t, wiring.Breakpoints)
	assert.True(t, wiring.SingleThreaded)
	assert.True(t, strings.HasPrefix(wiring.Fingerprint, "blake3:"))
}

func TestRunsEndpoints(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/runs", "", nil).Code)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := runlog.NewStore(db)
	require.NoError(t, store.RunFinished(context.Background(), control.Status{RunID: "r1", State: control.Completed, Executed: []string{"src"}}))

	f = newFixture(t, Config{}, store, nil)
	runs := decode[[]control.Status](t, f.do(t, http.MethodGet, "/runs?limit=5", "", nil))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/runs?limit=x", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/runs/r1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/runs/nope", "", nil).Code)
}

func TestEventsReplaysBufferedEvents(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	require.NoError(t, f.ctl.Run(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	body := rr.Body.String()
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: "+events.RunStarted)
	assert.Contains(t, body, "event: "+events.RunCompleted)
	assert.Contains(t, body, "id: 1\n")
}

func TestEventsFilterByType(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	require.NoError(t, f.ctl.Run(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?types=chain.", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	body := rr.Body.String()
	assert.Contains(t, body, "event: "+events.ChainStarted)
	assert.NotContains(t, body, "event: "+events.RunStarted)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{APIKey: "k"}, nil, nil)
	require.NoError(t, f.ctl.Run(context.Background()))

	rr := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `tessera_controller_runs_total{state="completed"} 1`)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

func TestParseTypes(t *testing.T) {
	assert.Nil(t, parseTypes(""))
	assert.Equal(t, []string{"run.", "chain."}, parseTypes(" run., ,chain."))
}
