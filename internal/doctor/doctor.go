// Package doctor validates a tessera configuration before it is run.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"

	"github.com/mattjoyce/tessera/internal/auth"
	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/toolbox"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the processor types a factory can
// produce.
type Doctor struct {
	cfg     *config.Config
	factory processor.Factory
}

// New creates a Doctor from a loaded config and processor factory.
func New(cfg *config.Config, factory processor.Factory) *Doctor {
	return &Doctor{cfg: cfg, factory: factory}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	tb := d.validateToolbox(r)
	if tb != nil {
		d.validateProcessorConfig(r, tb)
		d.warnEmptyRunQueue(r, tb)
		d.warnUnwiredProcessors(r, tb)
		d.warnBreakpointsWithoutAPI(r, tb)
	}
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnUnresolvedEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateToolbox builds the toolbox from the toolbox section. It returns nil
// when the section cannot be built.
func (d *Doctor) validateToolbox(r *Result) *toolbox.Toolbox {
	node := d.cfg.Toolbox()
	if node == nil {
		d.addError(r, "toolbox", config.ToolboxKey, "toolbox section is missing")
		return nil
	}
	tb := toolbox.New(d.factory)
	if err := tb.Configure(node); err != nil {
		d.addError(r, "toolbox", config.ToolboxKey, err.Error())
		return nil
	}
	return tb
}

// validateProcessorConfig applies processor_config and flags sub-trees that
// name no processor.
func (d *Doctor) validateProcessorConfig(r *Result, tb *toolbox.Toolbox) {
	node := d.cfg.ProcessorConfig()
	if node == nil {
		return
	}
	for _, name := range node.Keys() {
		if !tb.HasProcessor(name) {
			d.addWarning(r, "processor_config", config.ProcessorConfigKey+"."+name,
				fmt.Sprintf("no processor named %q in the toolbox", name))
		}
	}
	if err := tb.ConfigureProcessors(node); err != nil {
		d.addError(r, "processor_config", config.ProcessorConfigKey, err.Error())
	}
}

func (d *Doctor) warnEmptyRunQueue(r *Result, tb *toolbox.Toolbox) {
	if len(tb.RunQueue()) == 0 {
		d.addWarning(r, "run_queue", "toolbox.run_queue", "run queue is empty; a run will do nothing")
	}
}

// warnUnwiredProcessors flags processors that are neither queued nor
// reachable through a connection.
func (d *Doctor) warnUnwiredProcessors(r *Result, tb *toolbox.Toolbox) {
	used := make(map[string]bool)
	for _, group := range tb.RunQueue() {
		for _, name := range group {
			used[name] = true
		}
	}
	for _, c := range tb.Connections() {
		if proc, _, err := toolbox.ParseAddress(c.Signal); err == nil {
			used[proc] = true
		}
		if proc, _, err := toolbox.ParseAddress(c.Slot); err == nil {
			used[proc] = true
		}
	}
	for _, name := range tb.Processors() {
		if !used[name] {
			d.addWarning(r, "unused", "toolbox.processors",
				fmt.Sprintf("processor %q is not queued and has no connections", name))
		}
	}
}

// warnBreakpointsWithoutAPI flags breakpoints nobody can continue from.
func (d *Doctor) warnBreakpointsWithoutAPI(r *Result, tb *toolbox.Toolbox) {
	if d.cfg.API.Enabled {
		return
	}
	for _, addr := range tb.Breakpoints() {
		d.addWarning(r, "breakpoint", addr,
			"breakpoint set but the API is disabled; a run parked here can only be cancelled")
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if d.cfg.API.APIKey == "" && len(d.cfg.API.Tokens) == 0 {
		if isLoopback(host) {
			d.addWarning(r, "api", "api", "API enabled but no authentication configured")
		} else {
			d.addError(r, "api", "api", fmt.Sprintf("API listens on %q without authentication", d.cfg.API.Listen))
		}
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

var knownScopes = []string{auth.ScopeAll, auth.ScopeRunRead, auth.ScopeRunWrite}

// validateTokenScopes checks that every token scope is one the API grants.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Tokens {
		for j, scope := range token.Scopes {
			if !slices.Contains(knownScopes, scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected one of %s)", scope, strings.Join(knownScopes, ", ")))
			}
		}
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnUnresolvedEnvVars flags token values whose ${VAR} reference survived
// interpolation.
func (d *Doctor) warnUnresolvedEnvVars(r *Result) {
	for i, token := range d.cfg.API.Tokens {
		if envVarRe.MatchString(token.Token) {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.tokens[%d].token", i),
				"token value still contains an environment variable reference")
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
