// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingObserver struct {
	started  []ToolCall
	finished []ToolCall
}

func (o *recordingObserver) ToolStarted(call ToolCall)  { o.started = append(o.started, call) }
func (o *recordingObserver) ToolFinished(call ToolCall) { o.finished = append(o.finished, call) }

func newTestTranslator(clock *fakeClock, obs Observer) *Translator {
	return NewTranslator(TranslatorOptions{
		Observer: obs,
		Logger:   zerolog.Nop(),
		Now:      clock.Now,
	})
}

// translateLine decodes line and returns the wire encoding of its frames.
func translateLine(t *testing.T, tr *Translator, line string) string {
	t.Helper()
	ev, err := Decode([]byte(line))
	require.NoError(t, err)
	frames, err := tr.Translate(ev)
	require.NoError(t, err)
	var b []byte
	for _, f := range frames {
		b = f.AppendTo(b)
	}
	return string(b)
}

func TestTranslator_ToolLifecycle(t *testing.T) {
	clock := newFakeClock()
	obs := &recordingObserver{}
	tr := newTestTranslator(clock, obs)

	got := translateLine(t, tr, `{"type":"data","event":"agent.text","text":"Fetching market data for AAPL"}`)
	assert.Equal(t, `2:[{"type":"data","event":"agent.text","text":"Fetching market data for AAPL"}]`+"\n", got)

	got = translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"t1","tool":"Bash","cli_tool":"mf-market-get","metadata":{"ticker": "AAPL"},"args":{"cmd":"mf-market-get AAPL"}}`)
	assert.Equal(t,
		`2:[{"type":"data","event":"agent.tool-start","tool_id":"t1","tool":"Bash","cli_tool":"mf-market-get","metadata":{"ticker":"AAPL"},"args":{"cmd":"mf-market-get AAPL"},"card":"market_data","description":"Fetching market data for AAPL"}]`+"\n",
		got)
	assert.Equal(t, []string{`"t1"`}, tr.Pending())

	clock.Advance(1500 * time.Millisecond)
	got = translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"t1","result":{"price":187.5}}`)
	assert.Equal(t,
		`2:[{"type":"data","event":"agent.tool-result","tool_id":"t1","cli_tool":"mf-market-get","metadata":{"ticker":"AAPL"},"result":{"price":187.5},"tool":"Bash","card":"market_data","duration_ms":1500}]`+"\n",
		got)
	assert.Empty(t, tr.Pending())

	require.Len(t, obs.started, 1)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, "t1", obs.finished[0].ID)
	assert.Equal(t, OutcomeSuccess, obs.finished[0].Outcome)
	assert.Equal(t, "Fetching market data for AAPL", obs.finished[0].Description)
	assert.Equal(t, 1500*time.Millisecond, obs.finished[0].Duration())
	assert.JSONEq(t, `{"price":187.5}`, string(obs.finished[0].Result))

	stats := tr.Stats()
	assert.Equal(t, 1, stats.Descriptions)
	assert.Equal(t, 1, stats.ToolsStarted)
	assert.Equal(t, 1, stats.ToolsSucceeded)
}

func TestTranslator_InterleavedToolsPairById(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTranslator(clock, nil)

	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"a","tool":"Bash","cli_tool":"mf-qa"}`)
	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"b","tool":"Bash","cli_tool":"mf-doc-diff"}`)

	got := translateLine(t, tr, `{"type":"data","event":"agent.tool-error","tool_id":"b","error":"exit 1"}`)
	assert.Equal(t,
		`2:[{"type":"data","event":"agent.tool-error","tool_id":"b","cli_tool":"mf-doc-diff","error":"exit 1","tool":"Bash","card":"doc_diff","duration_ms":0}]`+"\n",
		got)

	got = translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"a","result":"ok"}`)
	assert.Contains(t, got, `"cli_tool":"mf-qa"`)
	assert.Contains(t, got, `"card":"qa"`)
	assert.Empty(t, tr.Pending())
}

func TestTranslator_UnknownCLIToolFallback(t *testing.T) {
	tests := []struct {
		name  string
		start string
	}{
		{"no start", ""},
		{"empty cli_tool", `{"type":"data","event":"agent.tool-start","tool_id":"x","tool":"Read","cli_tool":""}`},
		{"null cli_tool", `{"type":"data","event":"agent.tool-start","tool_id":"x","tool":"Read","cli_tool":null}`},
		{"absent cli_tool", `{"type":"data","event":"agent.tool-start","tool_id":"x","tool":"Read"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranslator(newFakeClock(), nil)
			if tt.start != "" {
				translateLine(t, tr, tt.start)
			}
			got := translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"x","result":"r"}`)
			assert.Contains(t, got, `"cli_tool":"unknown"`)
			assert.Contains(t, got, `"card":"generic"`)
		})
	}
}

func TestTranslator_UnmatchedResultHasNoDuration(t *testing.T) {
	tr := newTestTranslator(newFakeClock(), nil)
	got := translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"zz","result":"r"}`)
	assert.Equal(t,
		`2:[{"type":"data","event":"agent.tool-result","tool_id":"zz","cli_tool":"unknown","result":"r","card":"generic"}]`+"\n",
		got)
	assert.Equal(t, 1, tr.Stats().Unmatched)
}

func TestTranslator_SecondTerminalEventIsUnmatched(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTranslator(clock, nil)

	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"t1","tool":"Bash","cli_tool":"mf-market-get","metadata":{"ticker":"MSFT"}}`)
	clock.Advance(200 * time.Millisecond)
	first := translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"t1","result":"ok"}`)
	assert.Contains(t, first, `"cli_tool":"mf-market-get"`)
	assert.Contains(t, first, `"duration_ms":200`)

	second := translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"t1","result":"again"}`)
	assert.Equal(t,
		`2:[{"type":"data","event":"agent.tool-result","tool_id":"t1","cli_tool":"unknown","result":"again","card":"generic"}]`+"\n",
		second)
	assert.NotContains(t, second, "duration_ms")
	assert.NotContains(t, second, "metadata")

	stats := tr.Stats()
	assert.Equal(t, 2, stats.ToolsSucceeded, "result events are counted even when unmatched")
	assert.Equal(t, 1, stats.Unmatched)
	assert.Empty(t, tr.Pending())
}

func TestTranslator_MistypedFieldsDoNotDropToolEvents(t *testing.T) {
	tr := newTestTranslator(newFakeClock(), nil)

	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"t1","tool":"Bash","cli_tool":"mf-qa","text":42}`)
	got := translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"t1","result":{"ok":true},"text":{"k":1},"summary":[1]}`)
	assert.Equal(t,
		`2:[{"type":"data","event":"agent.tool-result","tool_id":"t1","cli_tool":"mf-qa","result":{"ok":true},"tool":"Bash","card":"qa","duration_ms":0}]`+"\n",
		got)
	assert.Empty(t, tr.Pending())

	// Routing keys of the wrong type route nowhere.
	assert.Empty(t, translateLine(t, tr, `{"type":1,"event":"agent.text","text":"hello there"}`))
	assert.Empty(t, translateLine(t, tr, `{"type":"data","event":{"name":"agent.text"},"text":"hello there"}`))
	// A non-string text on agent.text carries nothing to show.
	assert.Empty(t, translateLine(t, tr, `{"type":"data","event":"agent.text","text":{"k":1}}`))

	got = translateLine(t, tr, `{"type":"data","event":"agent.completed","summary":{"k":1},"runtime_ms":5}`)
	assert.Equal(t, `2:[{"type":"data","event":"agent.completed","runtime_ms":5,"pending_tools":0}]`+"\n", got)
}

func TestTranslator_NumericToolIDs(t *testing.T) {
	tr := newTestTranslator(newFakeClock(), nil)
	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":7,"tool":"Bash","cli_tool":"mf-calc-simple"}`)
	got := translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":7,"result":1}`)
	assert.Contains(t, got, `"tool_id":7,`)
	assert.Contains(t, got, `"cli_tool":"mf-calc-simple"`)

	// A string id with the same digits is a different call.
	got = translateLine(t, tr, `{"type":"data","event":"agent.tool-result","tool_id":"7","result":1}`)
	assert.Contains(t, got, `"cli_tool":"unknown"`)
}

func TestTranslator_ContentTextAndNoHTMLEscaping(t *testing.T) {
	tr := newTestTranslator(newFakeClock(), nil)
	text := "AT&T revenue <b>grew</b> 4% year over year while margins were roughly flat overall."
	got := translateLine(t, tr, `{"type":"data","event":"agent.text","text":"`+text+`"}`)
	assert.Equal(t, `0:"`+text+`"`+"\n", got)
	assert.NotContains(t, got, `\u0026`)
	assert.NotContains(t, got, `\u003c`)

	// Content clears any remembered description.
	translateLine(t, tr, `{"type":"data","event":"agent.text","text":"Checking filings"}`)
	translateLine(t, tr, `{"type":"data","event":"agent.text","text":"`+text+`"}`)
	got = translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"t","tool":"Bash"}`)
	assert.NotContains(t, got, `"description"`)
}

func TestTranslator_CompletedWithSummary(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTranslator(clock, nil)
	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"open","tool":"Bash"}`)

	got := translateLine(t, tr, `{"type":"data","event":"agent.completed","summary":"Apple looks fairly valued.","runtime_ms":4200}`)
	assert.Equal(t,
		`0:"Apple looks fairly valued."`+"\n"+
			`2:[{"type":"data","event":"agent.completed","runtime_ms":4200,"pending_tools":1}]`+"\n",
		got)
	assert.True(t, tr.Stats().Completed)
}

func TestTranslator_CompletedMeasuresRuntime(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTranslator(clock, nil)
	clock.Advance(3 * time.Second)
	got := translateLine(t, tr, `{"type":"data","event":"agent.completed"}`)
	assert.Equal(t, `2:[{"type":"data","event":"agent.completed","runtime_ms":3000,"pending_tools":0}]`+"\n", got)
}

func TestTranslator_LogPassthroughAndAgentError(t *testing.T) {
	tr := newTestTranslator(newFakeClock(), nil)

	got := translateLine(t, tr, `{"type": "data", "event": "agent.log", "level": "info", "message": "<step 1>"}`)
	assert.Equal(t, `2:[{"type":"data","event":"agent.log","level":"info","message":"<step 1>"}]`+"\n", got)

	got = translateLine(t, tr, `{"type":"data","event":"agent.error","error":"rate limited"}`)
	assert.Equal(t, `3:"rate limited"`+"\n", got)

	got = translateLine(t, tr, `{"type":"data","event":"agent.error"}`)
	assert.Equal(t, `3:"agent reported an error"`+"\n", got)

	stats := tr.Stats()
	assert.Equal(t, 1, stats.Logs)
	assert.Equal(t, 2, stats.AgentErrors)
}

func TestTranslator_IgnoresNonDataAndUnknownEvents(t *testing.T) {
	tr := newTestTranslator(newFakeClock(), nil)
	assert.Empty(t, translateLine(t, tr, `{"type":"status","event":"agent.text","text":"hi"}`))
	assert.Empty(t, translateLine(t, tr, `{"type":"data","event":"agent.thinking","text":"hmm"}`))
	assert.Empty(t, translateLine(t, tr, `{"type":"data","event":"agent.text","text":""}`))
	assert.Equal(t, 2, tr.Stats().Ignored)
}

func TestTranslator_DrainOrphans(t *testing.T) {
	clock := newFakeClock()
	obs := &recordingObserver{}
	tr := newTestTranslator(clock, obs)
	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"b","tool":"Bash","cli_tool":"mf-qa"}`)
	translateLine(t, tr, `{"type":"data","event":"agent.tool-start","tool_id":"a","tool":"Bash"}`)
	clock.Advance(time.Second)

	orphans := tr.Drain()
	require.Len(t, orphans, 2)
	assert.Equal(t, "a", orphans[0].ID)
	assert.Equal(t, "b", orphans[1].ID)
	for _, o := range orphans {
		assert.Equal(t, OutcomeOrphaned, o.Outcome)
		assert.Equal(t, time.Second, o.Duration())
	}
	assert.Empty(t, tr.Pending())
	assert.Len(t, obs.finished, 2)
	assert.Equal(t, 2, tr.Stats().Orphaned)
}

func TestDecode(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode([]byte(`{"type":"data",`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	ev, err := Decode([]byte("  {\"type\":\"data\", \"event\":\"agent.text\"}\r"))
	require.NoError(t, err)
	assert.Equal(t, TypeData, ev.Type)
	assert.Equal(t, `{"type":"data","event":"agent.text"}`, string(ev.Raw))
	assert.True(t, strings.HasPrefix(string(ev.Raw), "{"))
}
