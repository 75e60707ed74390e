package tui

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/events"
)

type eventMsg events.Event

type statusMsg control.Status

type cycleMsg uint

// actionMsg reports the result of a POST/PUT issued from a key press.
type actionMsg struct {
	action string
	err    error
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// client talks to the run-control API.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(baseURL, apiKey string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *client) newRequest(method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *client) fetchStatus() (control.Status, error) {
	var st control.Status
	req, err := c.newRequest(http.MethodGet, "/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("GET /status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// send issues a control request and returns the server's error text on failure.
func (c *client) send(method, path string, body []byte) error {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}
	return nil
}

func (c *client) statusCmd() tea.Cmd {
	return func() tea.Msg {
		st, err := c.fetchStatus()
		if err != nil {
			return errMsg(err)
		}
		return statusMsg(st)
	}
}

func (c *client) cycleTimeCmd() tea.Cmd {
	return func() tea.Msg {
		req, err := c.newRequest(http.MethodGet, "/cycle-time", nil)
		if err != nil {
			return errMsg(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()
		var body struct {
			CycleTimeMS uint `json:"cycle_time_ms"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return errMsg(fmt.Errorf("decode cycle time: %w", err))
		}
		return cycleMsg(body.CycleTimeMS)
	}
}

func (c *client) actionCmd(action, method, path string, body []byte) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{action: action, err: c.send(method, path, body)}
	}
}

func (c *client) setCycleTimeCmd(ms uint) tea.Cmd {
	body, _ := json.Marshal(map[string]uint{"cycle_time_ms": ms})
	return c.actionCmd("cycle time", http.MethodPut, "/cycle-time", body)
}

// subscribeCmd streams /events into ch until the connection drops.
func (c *client) subscribeCmd(ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := c.newRequest(http.MethodGet, "/events", nil)
		if err != nil {
			return errMsg(err)
		}
		resp, err := (&http.Client{}).Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()

		readSSE(bufio.NewScanner(resp.Body), ch)
		return sseDisconnectedMsg{}
	}
}

// readSSE parses SSE frames from scanner and forwards complete events.
func readSSE(scanner *bufio.Scanner, ch chan<- events.Event) {
	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(cur.Data) > 0 {
				cur.At = time.Now()
				ch <- cur
			}
			cur = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = []byte(line[6:])
		}
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}
