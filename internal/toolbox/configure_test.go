package toolbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/processor"
)

func parse(t *testing.T, doc string) *config.Node {
	t.Helper()
	n, err := config.ParseNode([]byte(doc))
	require.NoError(t, err)
	return n
}

func TestConfigure(t *testing.T) {
	tb := newToolbox(t)
	err := tb.Configure(parse(t, `
run_single_threaded: false
processors:
  - type: test-primary
    name: pp
    value: 4
  - type: test-primary
    name: other
  - type: test-proc
connections:
  - signal: "pp:value"
    slot: "test-proc:in"
    order: 2
    breakpoint: true
  - signal: "other:value"
    slot: "test-proc:other"
run_queue:
  - pp
  - [pp, other]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"pp", "other", "test-proc"}, tb.Processors())
	assert.False(t, tb.RunSingleThreaded())
	assert.Equal(t, [][]string{{"pp"}, {"pp", "other"}}, tb.RunQueue())
	assert.Equal(t, []string{"pp:value"}, tb.Breakpoints())

	two := 2
	assert.Equal(t, []Connection{
		{Signal: "pp:value", Slot: "test-proc:in", Order: &two},
		{Signal: "other:value", Slot: "test-proc:other"},
	}, tb.Connections())

	p, ok := tb.Processor("pp")
	require.True(t, ok)
	assert.Equal(t, int64(4), p.(*testPrimary).value)
}

func TestConfigureErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
		msg  string
	}{
		{
			name: "missing type",
			doc:  "processors:\n  - name: x\n",
			msg:  "processor type is required",
		},
		{
			name: "unknown type",
			doc:  "processors:\n  - type: nope\n",
			want: processor.ErrUnknownType,
		},
		{
			name: "duplicate name",
			doc:  "processors:\n  - type: test-proc\n  - type: test-proc\n",
			want: ErrDuplicateInstanceName,
		},
		{
			name: "incomplete connection",
			doc:  "processors:\n  - type: test-proc\nconnections:\n  - signal: \"test-proc:out\"\n",
			msg:  "needs both signal and slot",
		},
		{
			name: "unknown endpoint",
			doc:  "processors:\n  - type: test-proc\nconnections:\n  - {signal: \"test-proc:nope\", slot: \"test-proc:in\"}\n",
			want: processor.ErrUnknownEndpoint,
		},
		{
			name: "run queue of non-entry",
			doc:  "processors:\n  - type: test-proc\nrun_queue: [test-proc]\n",
			want: ErrNotEntryProcessor,
		},
		{
			name: "bad run queue entry",
			doc:  "processors:\n  - type: test-primary\nrun_queue:\n  - {a: b}\n",
			msg:  "run queue entry must be",
		},
		{
			name: "bad configure value",
			doc:  "processors:\n  - {type: test-primary, value: many}\n",
			want: config.ErrTypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newToolbox(t).Configure(parse(t, tt.doc))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestConfigureNil(t *testing.T) {
	tb := newToolbox(t)
	require.NoError(t, tb.Configure(nil))
	assert.Empty(t, tb.Processors())
}

func TestConfigureProcessors(t *testing.T) {
	tb := newToolbox(t)
	require.NoError(t, tb.AddProcessor("test-primary", "a"))
	require.NoError(t, tb.AddProcessor("test-primary", "b"))

	require.NoError(t, tb.ConfigureProcessors(parse(t, "a:\n  value: 9\n")))

	a, _ := tb.Processor("a")
	b, _ := tb.Processor("b")
	assert.Equal(t, int64(9), a.(*testPrimary).value)
	assert.Equal(t, int64(0), b.(*testPrimary).value)

	err := tb.ConfigureProcessors(parse(t, "b:\n  value: nine\n"))
	assert.ErrorIs(t, err, config.ErrTypeMismatch)
}

func TestConfigureProcessorsDottedName(t *testing.T) {
	tb := newToolbox(t)
	require.NoError(t, tb.AddProcessor("test-primary", "reader.v2"))
	require.NoError(t, tb.AddProcessor("test-primary", "reader"))

	doc := "reader.v2:\n  value: 42\nreader:\n  value: 1\n  v2:\n    value: 7\n"
	require.NoError(t, tb.ConfigureProcessors(parse(t, doc)))

	dotted, _ := tb.Processor("reader.v2")
	plain, _ := tb.Processor("reader")
	assert.Equal(t, int64(42), dotted.(*testPrimary).value)
	assert.Equal(t, int64(1), plain.(*testPrimary).value)
}
