package events

// Event types published by the run controller.
const (
	RunStarted       = "run.started"
	RunCompleted     = "run.completed"
	RunCancelled     = "run.cancelled"
	RunFailed        = "run.failed"
	CancelRequested  = "run.cancel_requested"
	BreakReached     = "run.break"
	RunContinued     = "run.continued"
	ChainStarted     = "chain.started"
	ChainCompleted   = "chain.completed"
	ChainFailed      = "chain.failed"
	CycleTimeChanged = "controller.cycle_time"
)

// Event types published by the run scheduler.
const (
	ScheduleTriggered = "scheduler.triggered"
	ScheduleSkipped   = "scheduler.skipped"
	JournalPruned     = "scheduler.pruned"
)

// RunPayload accompanies run.* events.
type RunPayload struct {
	RunID    string   `json:"run_id"`
	State    string   `json:"state"`
	Code     int      `json:"code"`
	Executed []string `json:"executed,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ChainPayload accompanies chain.* events.
type ChainPayload struct {
	RunID      string `json:"run_id"`
	Entry      string `json:"entry"`
	Result     string `json:"result,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Processor  string `json:"processor,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SchedulePayload accompanies scheduler.* events.
type SchedulePayload struct {
	RunID   string `json:"run_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Removed int64  `json:"removed,omitempty"`
}
