// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredBufferWriter_Framing(t *testing.T) {
	ClearRecentLogs()
	w := &structuredBufferWriter{}

	// 1. Split write: half line + rest\n
	part1 := `{"time":"2026-01-01T00:00:00Z","level":"info","component":"relay","event":"test.split","message":"part1`
	part2 := `_part2"}` + "\n"

	_, _ = w.Write([]byte(part1))
	assert.Empty(t, GetRecentLogs(), "partial write must not be captured")

	_, _ = w.Write([]byte(part2))
	logs := GetRecentLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "test.split", logs[0].Fields["event"])
	assert.Equal(t, "part1_part2", logs[0].Message)
	assert.Equal(t, "relay", logs[0].Component)

	// 2. Multi-line burst
	line2 := `{"time":"2026-01-01T00:00:01Z","level":"info","event":"burst.1","message":"msg1"}` + "\n"
	line3 := `{"time":"2026-01-01T00:00:02Z","level":"warn","event":"request.handled","message":"msg2"}` + "\n"
	_, _ = w.Write([]byte(line2 + line3))

	logs = GetRecentLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, "warn", logs[2].Level)
}

func TestStructuredBufferWriter_Bounds(t *testing.T) {
	ClearRecentLogs()
	w := &structuredBufferWriter{}

	giantChunk := strings.Repeat("A", maxPartialBytes+1) // no newline
	_, _ = w.Write([]byte(giantChunk))
	assert.Equal(t, 0, w.partial.Len(), "partial buffer should have been reset after overflow")
	assert.NotZero(t, GetBufferMetrics().DroppedPartialOverflow)

	giantLine := `{"level":"info","event":"too.big","message":"` + strings.Repeat("B", maxLineBytes) + `"}` + "\n"
	_, _ = w.Write([]byte(giantLine))
	assert.Empty(t, GetRecentLogs(), "giant line should have been dropped")
	assert.NotZero(t, GetBufferMetrics().DroppedTooLargeLines)

	_, _ = w.Write([]byte("not json\n"))
	assert.NotZero(t, GetBufferMetrics().DroppedMalformed)
}

func TestStructuredBufferWriter_RelevanceFilter(t *testing.T) {
	ClearRecentLogs()
	w := &structuredBufferWriter{}

	_, _ = w.Write([]byte(`{"level":"info","event":"tool.started","message":"ok"}` + "\n"))
	_, _ = w.Write([]byte(`{"level":"error","event":"agent.failed","message":"boom"}` + "\n"))
	_, _ = w.Write([]byte(`{"level":"debug","component":"config","message":"using default value"}` + "\n"))

	assert.Len(t, GetRecentLogs(), 2)
	assert.NotZero(t, GetBufferMetrics().DroppedIrrelevant)
}

func TestRing_WrapsOldestFirst(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.add(LogEntry{Message: string(rune('a' + i))})
	}
	got := r.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Message)
	assert.Equal(t, "e", got[2].Message)
}

func TestSubscribe_ReceivesLiveEntries(t *testing.T) {
	ClearRecentLogs()
	ch, cancel := Subscribe()
	defer cancel()

	w := &structuredBufferWriter{}
	_, _ = w.Write([]byte(`{"level":"info","message":"live"}` + "\n"))

	select {
	case e := <-ch:
		assert.Equal(t, "live", e.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive entry")
	}

	cancel()
	cancel() // idempotent
}

func TestConfigure_WritesJSONWithServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf, Service: "fingate-test", Version: "v9"})
	defer Configure(Config{})

	l := WithComponent("unit")
	l.Info().Str(FieldEvent, "unit.test").Msg("hello")

	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, "fingate-test", got["service"])
	assert.Equal(t, "v9", got["version"])
	assert.Equal(t, "unit", got[FieldComponent])
	assert.Equal(t, "hello", got["message"])
}

func TestSetLevel_RejectsUnknown(t *testing.T) {
	assert.Error(t, SetLevel("loud"))
	assert.NoError(t, SetLevel("info"))
}
