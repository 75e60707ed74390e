package toolbox

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the processor set, wiring and run queue. Two toolboxes
// wired the same way produce the same fingerprint regardless of the order
// the processors were added in.
func (t *Toolbox) Fingerprint() string {
	type procShape struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	type shape struct {
		Processors     []procShape  `json:"processors"`
		Connections    []Connection `json:"connections"`
		Breakpoints    []string     `json:"breakpoints"`
		RunQueue       [][]string   `json:"run_queue"`
		SingleThreaded bool         `json:"single_threaded"`
	}

	t.mu.RLock()
	procs := make([]procShape, 0, len(t.procs))
	for _, name := range sortedNames(t.procs) {
		procs = append(procs, procShape{Name: name, Type: t.procs[name].Type()})
	}
	single := t.singleThreaded
	t.mu.RUnlock()

	conns := t.Connections()
	sort.SliceStable(conns, func(i, j int) bool {
		if conns[i].Signal == conns[j].Signal {
			return conns[i].Slot < conns[j].Slot
		}
		return conns[i].Signal < conns[j].Signal
	})

	body, err := json.Marshal(shape{
		Processors:     procs,
		Connections:    conns,
		Breakpoints:    t.Breakpoints(),
		RunQueue:       t.RunQueue(),
		SingleThreaded: single,
	})
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(body)
	return "blake3:" + hex.EncodeToString(sum[:])
}
