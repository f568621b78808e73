// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package journal

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
	"github.com/ManuGH/fingate/internal/stream"
)

const (
	defaultQueueSize  = 1024
	defaultOpTimeout  = 5 * time.Second
	maxPromptRunes    = 500
	defaultPruneEvery = 10 * time.Minute
	dropWarnInterval  = 10 * time.Second
)

// Options tune a Journal.
type Options struct {
	QueueSize     int
	Retention     time.Duration // zero keeps everything
	PruneInterval time.Duration
	Logger        zerolog.Logger
	Now           func() time.Time
}

type op struct {
	name string
	fn   func(ctx context.Context) error
}

// Journal serialises writes to a Store on one background goroutine. Callers
// never block: when the queue is full the write is dropped and counted.
type Journal struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan op
	done   chan struct{}

	retention  time.Duration
	pruneEvery time.Duration
	dropWarn   *rate.Limiter
}

// New starts the writer goroutine. Close must be called to stop it.
func New(store Store, opts Options) *Journal {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	j := &Journal{
		store:      store,
		logger:     opts.Logger.With().Str(xglog.FieldComponent, "journal").Logger(),
		now:        opts.Now,
		queue:      make(chan op, opts.QueueSize),
		done:       make(chan struct{}),
		retention:  opts.Retention,
		pruneEvery: opts.PruneInterval,
		dropWarn:   rate.NewLimiter(rate.Every(dropWarnInterval), 1),
	}
	go j.run()
	return j
}

// Store exposes the backing store for reads.
func (j *Journal) Store() Store {
	return j.store
}

func (j *Journal) enqueue(name string, fn func(ctx context.Context) error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		metrics.RecordJournalWrite(name, "dropped")
		return
	}
	select {
	case j.queue <- op{name: name, fn: fn}:
		metrics.SetJournalQueueDepth(len(j.queue))
	default:
		metrics.RecordJournalWrite(name, "dropped")
		if j.dropWarn.Allow() {
			j.logger.Warn().Str("op", name).Int("queue_size", cap(j.queue)).Msg("journal queue full, dropping writes")
		}
	}
}

func (j *Journal) run() {
	defer close(j.done)

	var tick <-chan time.Time
	if j.retention > 0 {
		t := time.NewTicker(j.pruneEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case o, ok := <-j.queue:
			if !ok {
				return
			}
			j.exec(o)
			metrics.SetJournalQueueDepth(len(j.queue))
		case <-tick:
			j.prune()
		}
	}
}

func (j *Journal) exec(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if err := o.fn(ctx); err != nil {
		metrics.RecordJournalWrite(o.name, "error")
		j.logger.Warn().Err(err).Str("op", o.name).Msg("journal write failed")
		return
	}
	metrics.RecordJournalWrite(o.name, "ok")
}

func (j *Journal) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	n, err := j.store.Prune(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.logger.Warn().Err(err).Msg("journal prune failed")
		return
	}
	if n > 0 {
		metrics.AddJournalPruned(n)
		j.logger.Info().Int("runs", n).Msg("pruned journal")
	}
}

// Close drains queued writes, stops the writer and closes the store.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return errors.Join(ctx.Err(), j.store.Close())
	}
	return j.store.Close()
}

// Begin records a new run and returns the recorder that follows it.
func (j *Journal) Begin(run Run) *Recorder {
	if j == nil {
		return nil
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = j.now()
	}
	run.StartedAt = run.StartedAt.UTC().Truncate(time.Millisecond)
	run.Status = RunRunning
	run.Prompt = truncateRunes(run.Prompt, maxPromptRunes)
	j.enqueue("start_run", func(ctx context.Context) error {
		return j.store.StartRun(ctx, run)
	})
	return &Recorder{j: j, runID: run.ID}
}

// Recorder turns tool call notifications of one relay into journal writes.
// A nil Recorder ignores everything.
type Recorder struct {
	j     *Journal
	runID string
}

var _ stream.Observer = (*Recorder)(nil)

// RunID of the recorded run.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// ToolStarted implements stream.Observer.
func (r *Recorder) ToolStarted(call stream.ToolCall) {
	if r == nil {
		return
	}
	rec := r.record(call)
	rec.Status = ToolRunning
	r.j.enqueue("record_tool", func(ctx context.Context) error {
		return r.j.store.RecordTool(ctx, rec)
	})
}

// ToolFinished implements stream.Observer.
func (r *Recorder) ToolFinished(call stream.ToolCall) {
	if r == nil {
		return
	}
	rec := r.record(call)
	switch call.Outcome {
	case stream.OutcomeSuccess:
		rec.Status = ToolComplete
	case stream.OutcomeError:
		rec.Status = ToolError
	default:
		rec.Status = ToolOrphaned
	}
	rec.Error = call.Error
	if !call.FinishedAt.IsZero() {
		f := call.FinishedAt.UTC().Truncate(time.Millisecond)
		rec.FinishedAt = &f
	}
	rec.DurationMS = call.Duration().Milliseconds()
	r.j.enqueue("record_tool", func(ctx context.Context) error {
		return r.j.store.RecordTool(ctx, rec)
	})
}

// Finish closes the run with the relay outcome.
func (r *Recorder) Finish(status RunStatus, stats stream.Stats, runErr error) {
	if r == nil {
		return
	}
	res := RunResult{
		ID:         r.runID,
		Status:     status,
		FinishedAt: r.j.now().UTC().Truncate(time.Millisecond),
		ToolCalls:  stats.ToolsStarted,
		Malformed:  stats.Malformed,
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	r.j.enqueue("finish_run", func(ctx context.Context) error {
		return r.j.store.FinishRun(ctx, res)
	})
}

func (r *Recorder) record(call stream.ToolCall) ToolRecord {
	name := call.CLITool
	if name == "" {
		name = call.Tool
	}
	return ToolRecord{
		RunID:       r.runID,
		ToolID:      call.ID,
		Tool:        name,
		CLITool:     call.CLITool,
		Card:        string(call.Card),
		Description: call.Description,
		Ticker:      ExtractTicker(call.Metadata, call.Args),
		StartedAt:   call.StartedAt.UTC().Truncate(time.Millisecond),
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// Probe checks that the backing store answers reads. Stores with a cheaper
// native check (redis PING, sqlite quick_check) use it instead.
func (j *Journal) Probe(ctx context.Context) error {
	switch s := j.store.(type) {
	case interface{ Ping(context.Context) error }:
		return s.Ping(ctx)
	case interface{ Verify(context.Context) error }:
		return s.Verify(ctx)
	default:
		_, err := j.store.RecentTools(ctx, 1)
		return err
	}
}
