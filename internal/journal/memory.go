// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package journal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMaxRuns bounds the memory backend.
const DefaultMaxRuns = 200

type memRun struct {
	run   Run
	tools map[string]*ToolRecord
	order []string
}

// MemoryStore keeps the newest runs in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	maxRuns int
	runs    map[string]*memRun
	order   []string // run ids, oldest first
}

// NewMemoryStore returns a store holding at most maxRuns runs.
func NewMemoryStore(maxRuns int) *MemoryStore {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &MemoryStore{maxRuns: maxRuns, runs: make(map[string]*memRun)}
}

func (s *MemoryStore) StartRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	run.Tools = nil
	s.runs[run.ID] = &memRun{run: run, tools: make(map[string]*ToolRecord)}
	for len(s.order) > s.maxRuns {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, res RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[res.ID]
	if !ok {
		return ErrNotFound
	}
	finished := res.FinishedAt
	r.run.Status = res.Status
	r.run.Error = res.Error
	r.run.FinishedAt = &finished
	r.run.ToolCalls = res.ToolCalls
	r.run.Malformed = res.Malformed
	return nil
}

func (s *MemoryStore) RecordTool(_ context.Context, rec ToolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[rec.RunID]
	if !ok {
		return ErrNotFound
	}
	if _, seen := r.tools[rec.ToolID]; !seen {
		r.order = append(r.order, rec.ToolID)
	}
	cp := rec
	r.tools[rec.ToolID] = &cp
	return nil
}

func (s *MemoryStore) RecentTools(_ context.Context, limit int) ([]ToolRecord, error) {
	s.mu.RLock()
	var out []ToolRecord
	for _, r := range s.runs {
		for _, id := range r.order {
			out = append(out, *r.tools[id])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Run(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	run := r.run
	run.Tools = make([]ToolRecord, 0, len(r.order))
	for _, tid := range r.order {
		run.Tools = append(run.Tools, *r.tools[tid])
	}
	sort.SliceStable(run.Tools, func(i, j int) bool { return run.Tools[i].StartedAt.Before(run.Tools[j].StartedAt) })
	return &run, nil
}

func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.runs[id].run.StartedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
