package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/runlog"
	"github.com/mattjoyce/tessera/internal/storage"
)

func openStore(t *testing.T) *runlog.Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return runlog.NewStore(db)
}

func recordRun(t *testing.T, s *runlog.Store, st control.Status) {
	t.Helper()
	ctx := context.Background()
	running := st
	running.State = control.Running
	if err := s.RunStarted(ctx, running); err != nil {
		t.Fatalf("RunStarted: %v", err)
	}
	if err := s.RunFinished(ctx, st); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}
}

func failedRun() control.Status {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	return control.Status{
		RunID:       "run-1",
		State:       control.Failed,
		Code:        control.ExitError,
		Executed:    []string{"load", "transform"},
		Fingerprint: "abc123",
		StartedAt:   &started,
		FinishedAt:  &finished,
		Failure: &control.Failure{
			Entry:     "transform",
			Processor: "validate",
			Endpoint:  "in",
			Message:   "bad record",
		},
	}
}

func TestBuildReportRendersFailure(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	recordRun(t, s, failedRun())

	out, err := BuildReport(context.Background(), s, "run-1")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	for _, want := range []string{
		"Run ID      : run-1",
		"State       : failed",
		"Exit code   : 1",
		"Duration    : 1.5s",
		"  [2] transform",
		"  processor : validate",
		"  endpoint  : in",
		"  message   : bad record",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestBuildJSONReport(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	recordRun(t, s, failedRun())

	out, err := BuildJSONReport(context.Background(), s, "run-1")
	if err != nil {
		t.Fatalf("BuildJSONReport: %v", err)
	}
	var r Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.State != "failed" || r.DurationMS != 1500 || r.Failure == nil || r.Failure.Entry != "transform" {
		t.Errorf("report = %+v", r)
	}
	if r.StartedAt != "2026-03-01T10:00:00Z" {
		t.Errorf("started_at = %q", r.StartedAt)
	}
}

func TestBuildReportUnknownRun(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	_, err := BuildReport(context.Background(), s, "missing")
	if !errors.Is(err, runlog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := BuildReport(context.Background(), s, " "); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestBuildList(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	out, err := BuildList(context.Background(), s, 10)
	if err != nil {
		t.Fatalf("BuildList: %v", err)
	}
	if out != "No runs recorded.\n" {
		t.Errorf("empty list = %q", out)
	}

	recordRun(t, s, failedRun())
	ok := failedRun()
	ok.RunID = "run-2"
	ok.State = control.Completed
	ok.Code = control.ExitSuccess
	ok.Failure = nil
	later := ok.StartedAt.Add(time.Minute)
	ok.StartedAt = &later
	recordRun(t, s, ok)

	out, err = BuildList(context.Background(), s, 10)
	if err != nil {
		t.Fatalf("BuildList: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "run-2") || !strings.Contains(lines[2], "validate:in") {
		t.Errorf("unexpected table:\n%s", out)
	}
}
