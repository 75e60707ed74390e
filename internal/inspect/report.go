// Package inspect renders journalled runs for the terminal.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/tessera/internal/control"
)

// History is the read side of the run journal.
type History interface {
	List(ctx context.Context, limit int) ([]control.Status, error)
	Get(ctx context.Context, id string) (control.Status, error)
}

// Report is the structured JSON representation of one run.
type Report struct {
	RunID       string           `json:"run_id"`
	State       string           `json:"state"`
	Code        int              `json:"code"`
	Fingerprint string           `json:"fingerprint"`
	StartedAt   string           `json:"started_at"`
	FinishedAt  string           `json:"finished_at,omitempty"`
	DurationMS  int64            `json:"duration_ms,omitempty"`
	Executed    []string         `json:"executed"`
	Failure     *control.Failure `json:"failure,omitempty"`
}

// BuildReport renders a terminal-friendly report for a run.
func BuildReport(ctx context.Context, h History, runID string) (string, error) {
	report, err := gatherReportData(ctx, h, runID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Run Report\n")
	fmt.Fprintf(&out, "Run ID      : %s\n", report.RunID)
	fmt.Fprintf(&out, "State       : %s\n", report.State)
	fmt.Fprintf(&out, "Exit code   : %d\n", report.Code)
	fmt.Fprintf(&out, "Fingerprint : %s\n", renderUnset(report.Fingerprint, "<none>"))
	fmt.Fprintf(&out, "Started     : %s\n", renderUnset(report.StartedAt, "<unknown>"))
	fmt.Fprintf(&out, "Finished    : %s\n", renderUnset(report.FinishedAt, "<running>"))
	if report.DurationMS > 0 {
		fmt.Fprintf(&out, "Duration    : %s\n", time.Duration(report.DurationMS)*time.Millisecond)
	}
	fmt.Fprintf(&out, "\n")

	if len(report.Executed) == 0 {
		fmt.Fprintf(&out, "Executed    : <none>\n")
	} else {
		fmt.Fprintf(&out, "Executed    :\n")
		for i, entry := range report.Executed {
			fmt.Fprintf(&out, "  [%d] %s\n", i+1, entry)
		}
	}

	if f := report.Failure; f != nil {
		fmt.Fprintf(&out, "\nFailure\n")
		fmt.Fprintf(&out, "  entry     : %s\n", f.Entry)
		fmt.Fprintf(&out, "  processor : %s\n", f.Processor)
		fmt.Fprintf(&out, "  endpoint  : %s\n", renderUnset(f.Endpoint, "<none>"))
		fmt.Fprintf(&out, "  message   : %s\n", f.Message)
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON report.
func BuildJSONReport(ctx context.Context, h History, runID string) (string, error) {
	report, err := gatherReportData(ctx, h, runID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

// BuildList renders the newest runs as a table.
func BuildList(ctx context.Context, h History, limit int) (string, error) {
	runs, err := h.List(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "No runs recorded.\n", nil
	}

	var out strings.Builder
	tw := tabwriter.NewWriter(&out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATE\tCODE\tSTARTED\tCHAINS\tFAILED IN")
	for _, st := range runs {
		r := newReport(st)
		failedIn := "-"
		if r.Failure != nil {
			failedIn = r.Failure.Processor
			if r.Failure.Endpoint != "" {
				failedIn += ":" + r.Failure.Endpoint
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
			r.RunID, r.State, r.Code, renderUnset(r.StartedAt, "-"), len(r.Executed), failedIn)
	}
	if err := tw.Flush(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func gatherReportData(ctx context.Context, h History, runID string) (*Report, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	st, err := h.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return newReport(st), nil
}

func newReport(st control.Status) *Report {
	r := &Report{
		RunID:       st.RunID,
		State:       st.State.String(),
		Code:        st.Code,
		Fingerprint: st.Fingerprint,
		Executed:    st.Executed,
		Failure:     st.Failure,
	}
	if r.Executed == nil {
		r.Executed = []string{}
	}
	if st.StartedAt != nil {
		r.StartedAt = st.StartedAt.UTC().Format(time.RFC3339)
	}
	if st.FinishedAt != nil {
		r.FinishedAt = st.FinishedAt.UTC().Format(time.RFC3339)
		if st.StartedAt != nil {
			r.DurationMS = st.FinishedAt.Sub(*st.StartedAt).Milliseconds()
		}
	}
	return r
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
