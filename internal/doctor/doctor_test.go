package doctor

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/log"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/processors/builtin"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

const validToolbox = `
toolbox:
  processors:
    - type: counter-source
      name: src
    - type: printer
      name: out
  connections:
    - signal: "src:value"
      slot: "out:in"
  run_queue: [src]
`

func validate(t *testing.T, doc string) *Result {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	reg := processor.NewRegistry()
	require.NoError(t, builtin.Register(reg, &strings.Builder{}))
	return New(cfg, reg).Validate()
}

func assertHasIssue(t *testing.T, issues []Issue, category, field string) {
	t.Helper()
	for _, i := range issues {
		if i.Category == category && (field == "" || i.Field == field) {
			return
		}
	}
	t.Errorf("expected issue category=%q field=%q, got %+v", category, field, issues)
}

func TestValidateValidConfig(t *testing.T) {
	r := validate(t, validToolbox)
	assert.True(t, r.Valid, "errors: %v", r.Errors)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, "Configuration valid.\n", FormatHuman(r))
}

func TestValidateMissingToolbox(t *testing.T) {
	r := validate(t, "service:\n  name: x\n")
	assert.False(t, r.Valid)
	assertHasIssue(t, r.Errors, "toolbox", "toolbox")
}

func TestValidateUnknownProcessorType(t *testing.T) {
	r := validate(t, "toolbox:\n  processors:\n    - type: nope\n")
	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors[0].Message, "nope")
}

func TestValidateBadConnection(t *testing.T) {
	r := validate(t, `
toolbox:
  processors:
    - type: printer
      name: out
  connections:
    - signal: "ghost:value"
      slot: "out:in"
`)
	assert.False(t, r.Valid)
	assertHasIssue(t, r.Errors, "toolbox", "")
}

func TestValidateProcessorConfig(t *testing.T) {
	r := validate(t, validToolbox+`
processor_config:
  out:
    format: yaml
  stranger:
    count: 1
`)
	assert.False(t, r.Valid)
	assertHasIssue(t, r.Errors, "processor_config", "processor_config")
	assertHasIssue(t, r.Warnings, "processor_config", "processor_config.stranger")
}

func TestValidateWarnings(t *testing.T) {
	r := validate(t, `
toolbox:
  processors:
    - type: counter-source
      name: src
    - type: printer
      name: out
    - type: tagger
      name: lonely
  connections:
    - signal: "src:value"
      slot: "out:in"
      breakpoint: true
`)
	assert.True(t, r.Valid, "errors: %v", r.Errors)
	assertHasIssue(t, r.Warnings, "run_queue", "")
	assertHasIssue(t, r.Warnings, "unused", "")
	assertHasIssue(t, r.Warnings, "breakpoint", "src:value")
	assert.Contains(t, FormatHuman(r), "warning(s)")
}

func TestValidateAPI(t *testing.T) {
	tests := []struct {
		name    string
		api     string
		valid   bool
		warning bool
	}{
		{"loopback without auth warns", "api:\n  enabled: true\n  listen: 127.0.0.1:8090\n", true, true},
		{"public without auth fails", "api:\n  enabled: true\n  listen: 0.0.0.0:8090\n", false, false},
		{"public with key", "api:\n  enabled: true\n  listen: 0.0.0.0:8090\n  api_key: k\n", true, false},
		{"bad listen", "api:\n  enabled: true\n  listen: nonsense\n", false, false},
		{"unknown scope", "api:\n  enabled: true\n  tokens:\n    - token: t\n      scopes: [jobs:rw]\n", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validate(t, validToolbox+tt.api)
			assert.Equal(t, tt.valid, r.Valid, "errors: %v", r.Errors)
			if tt.warning {
				assertHasIssue(t, r.Warnings, "api", "api")
			}
		})
	}
}

func TestFormatJSON(t *testing.T) {
	r := validate(t, "service:\n  name: x\n")
	out, err := FormatJSON(r)
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": false`)
	assert.Contains(t, out, `"category": "toolbox"`)
}
