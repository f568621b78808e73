// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRecentCapacity = 1000
	maxPartialBytes       = 64 * 1024
	maxLineBytes          = 32 * 1024
	subscriberBuffer      = 64
)

// LogEntry is one structured log line captured for the UI log viewer.
type LogEntry struct {
	Seq       uint64         `json:"seq"`
	Time      time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"data,omitempty"`
}

// BufferMetrics reports why lines were not captured.
type BufferMetrics struct {
	Captured               uint64
	DroppedIrrelevant      uint64
	DroppedTooLargeLines   uint64
	DroppedPartialOverflow uint64
	DroppedMalformed       uint64
	DroppedSlowSubscriber  uint64
}

type ring struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
	subs    map[int]chan LogEntry
	nextSub int
	seq     uint64
}

var (
	recent = newRing(defaultRecentCapacity)

	captured               atomic.Uint64
	droppedIrrelevant      atomic.Uint64
	droppedTooLarge        atomic.Uint64
	droppedPartialOverflow atomic.Uint64
	droppedMalformed       atomic.Uint64
	droppedSlowSubscriber  atomic.Uint64

	recentWriter = &structuredBufferWriter{}
)

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = defaultRecentCapacity
	}
	return &ring{
		entries: make([]LogEntry, capacity),
		subs:    make(map[int]chan LogEntry),
	}
}

func (r *ring) add(e LogEntry) {
	r.mu.Lock()
	r.seq++
	e.Seq = r.seq
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	subs := make([]chan LogEntry, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			droppedSlowSubscriber.Add(1)
		}
	}
}

func (r *ring) snapshot() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		out := make([]LogEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// SetRecentCapacity resizes the ring buffer. Existing entries are discarded.
func SetRecentCapacity(capacity int) {
	fresh := newRing(capacity)
	recent.mu.Lock()
	fresh.subs = recent.subs
	fresh.nextSub = recent.nextSub
	recent.entries = fresh.entries
	recent.next = 0
	recent.full = false
	recent.mu.Unlock()
}

// GetRecentLogs returns captured entries, oldest first.
func GetRecentLogs() []LogEntry {
	return recent.snapshot()
}

// ClearRecentLogs empties the ring buffer and resets the drop counters.
func ClearRecentLogs() {
	recent.mu.Lock()
	for i := range recent.entries {
		recent.entries[i] = LogEntry{}
	}
	recent.next = 0
	recent.full = false
	recent.mu.Unlock()

	captured.Store(0)
	droppedIrrelevant.Store(0)
	droppedTooLarge.Store(0)
	droppedPartialOverflow.Store(0)
	droppedMalformed.Store(0)
	droppedSlowSubscriber.Store(0)
}

// GetBufferMetrics returns a snapshot of the capture counters.
func GetBufferMetrics() BufferMetrics {
	return BufferMetrics{
		Captured:               captured.Load(),
		DroppedIrrelevant:      droppedIrrelevant.Load(),
		DroppedTooLargeLines:   droppedTooLarge.Load(),
		DroppedPartialOverflow: droppedPartialOverflow.Load(),
		DroppedMalformed:       droppedMalformed.Load(),
		DroppedSlowSubscriber:  droppedSlowSubscriber.Load(),
	}
}

// Subscribe registers a live listener for new entries. Slow listeners lose
// entries rather than blocking the logger. The returned func unsubscribes.
func Subscribe() (<-chan LogEntry, func()) {
	ch := make(chan LogEntry, subscriberBuffer)
	recent.mu.Lock()
	id := recent.nextSub
	recent.nextSub++
	recent.subs[id] = ch
	recent.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			recent.mu.Lock()
			delete(recent.subs, id)
			recent.mu.Unlock()
		})
	}
}

// structuredBufferWriter reassembles zerolog output into lines and captures
// the relevant ones. zerolog writes one event per Write, but wrapping writers
// may split or batch, so framing is done on newlines.
type structuredBufferWriter struct {
	mu      sync.Mutex
	partial bytes.Buffer
}

func (w *structuredBufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			if w.partial.Len()+len(p) > maxPartialBytes {
				w.partial.Reset()
				droppedPartialOverflow.Add(1)
				return n, nil
			}
			w.partial.Write(p)
			return n, nil
		}

		var line []byte
		if w.partial.Len() > 0 {
			w.partial.Write(p[:idx])
			line = append([]byte(nil), w.partial.Bytes()...)
			w.partial.Reset()
		} else {
			line = p[:idx]
		}
		p = p[idx+1:]
		w.capture(line)
	}
	return n, nil
}

func (w *structuredBufferWriter) capture(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	if len(line) > maxLineBytes {
		droppedTooLarge.Add(1)
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		droppedMalformed.Add(1)
		return
	}

	level, _ := fields["level"].(string)
	if level == "debug" || level == "trace" || level == "" {
		droppedIrrelevant.Add(1)
		return
	}

	entry := LogEntry{Level: level}
	if msg, ok := fields["message"].(string); ok {
		entry.Message = msg
	} else if msg, ok := fields["msg"].(string); ok {
		entry.Message = msg
	}
	if c, ok := fields[FieldComponent].(string); ok {
		entry.Component = c
	}
	if ts, ok := fields["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Time = parsed
		}
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	for _, k := range []string{"level", "message", "msg", "time", FieldComponent, "service", "version"} {
		delete(fields, k)
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}

	recent.add(entry)
	captured.Add(1)
}
