package api

import "github.com/mattjoyce/tessera/internal/toolbox"

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	State           string `json:"state"`
	ProcessorsCount int    `json:"processors"`
}

// CancelRequest is the optional body of POST /cancel.
type CancelRequest struct {
	Code *int `json:"code,omitempty"`
}

// CycleTime is the body of GET and PUT /cycle-time.
type CycleTime struct {
	CycleTimeMS uint `json:"cycle_time_ms"`
}

// ProcessorInfo describes one processor instance and its endpoints.
type ProcessorInfo struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Entry   bool     `json:"entry"`
	Primary string   `json:"primary,omitempty"`
	Signals []string `json:"signals"`
	Slots   []string `json:"slots"`
}

// WiringResponse is returned by GET /connections.
type WiringResponse struct {
	Connections    []toolbox.Connection `json:"connections"`
	Breakpoints    []string             `json:"breakpoints"`
	RunQueue       [][]string           `json:"run_queue"`
	SingleThreaded bool                 `json:"single_threaded"`
	Fingerprint    string               `json:"fingerprint"`
}
