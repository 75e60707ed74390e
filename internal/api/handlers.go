package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/runlog"
	"github.com/mattjoyce/tessera/internal/toolbox"
)

const maxRunsLimit = 500

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		State:           s.runner.Status().State.String(),
		ProcessorsCount: len(s.wiring.Processors()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

// handleRun handles POST /run. A terminal controller is reset first.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner.Status().State.Terminal() {
		if err := s.runner.Reset(); err != nil {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
	}

	if err := s.runner.Start(s.runCtx); err != nil {
		switch {
		case errors.Is(err, control.ErrNotIdle), errors.Is(err, toolbox.ErrRunInProgress):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("failed to start run", "error", err)
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	st := s.runner.Status()
	s.logger.Info("run started via API", "run_id", st.RunID)
	s.writeJSON(w, http.StatusAccepted, st)
}

// handleCancel handles POST /cancel with an optional {"code": n} body.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	code := control.ExitInterrupted
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Code != nil {
		code = *req.Code
	}

	if s.runner.Status().State != control.Running {
		s.writeError(w, http.StatusConflict, "no run in progress")
		return
	}
	s.runner.RequestCancellation(code)
	s.writeJSON(w, http.StatusAccepted, s.runner.Status())
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	if !s.runner.IsAtBreak() {
		s.writeError(w, http.StatusConflict, "run is not at a breakpoint")
		return
	}
	s.runner.Continue()
	s.writeJSON(w, http.StatusAccepted, s.runner.Status())
}

func (s *Server) handleGetCycleTime(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, CycleTime{CycleTimeMS: s.runner.CycleTimeMS()})
}

func (s *Server) handlePutCycleTime(w http.ResponseWriter, r *http.Request) {
	var req CycleTime
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "body must be {\"cycle_time_ms\": <uint>}")
		return
	}
	s.runner.SetCycleTime(req.CycleTimeMS)
	s.writeJSON(w, http.StatusOK, CycleTime{CycleTimeMS: s.runner.CycleTimeMS()})
}

func (s *Server) handleProcessors(w http.ResponseWriter, r *http.Request) {
	names := s.wiring.Processors()
	out := make([]ProcessorInfo, 0, len(names))
	for _, name := range names {
		p, ok := s.wiring.Processor(name)
		if !ok {
			continue
		}
		out = append(out, describeProcessor(p))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func describeProcessor(p processor.Processor) ProcessorInfo {
	ep := p.Endpoints()
	info := ProcessorInfo{
		Name:    p.Name(),
		Type:    p.Type(),
		Entry:   processor.IsEntry(p),
		Signals: ep.SignalNames(),
		Slots:   ep.SlotNames(),
	}
	if sig, ok := ep.Primary(); ok {
		info.Primary = sig.Name()
	}
	return info
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	breakpoints := s.wiring.Breakpoints()
	if breakpoints == nil {
		breakpoints = []string{}
	}
	s.writeJSON(w, http.StatusOK, WiringResponse{
		Connections:    s.wiring.Connections(),
		Breakpoints:    breakpoints,
		RunQueue:       s.wiring.RunQueue(),
		SingleThreaded: s.wiring.RunSingleThreaded(),
		Fingerprint:    s.wiring.Fingerprint(),
	})
}

// handleListRuns handles GET /runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "run journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "run journal disabled")
		return
	}
	runID := chi.URLParam(r, "runID")
	st, err := s.history.Get(r.Context(), runID)
	if errors.Is(err, runlog.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read run", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read run")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
