// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps the journal in an embedded Badger database:
//   - runs:   "run:<id>" (JSON, without tools)
//   - tools:  "tool:<run>:<tool>" (JSON)
//   - recent: "recent:<started ns, big endian>:<run>:<tool>" (value = tool key)
//
// Entries expire after the retention period when one is set.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
}

// OpenBadgerStore opens the database directory at path.
func OpenBadgerStore(path string, retention time.Duration) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(path).WithLogger(nil), retention)
}

// OpenBadgerMemory opens a throwaway in-memory database.
func OpenBadgerMemory(retention time.Duration) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), retention)
}

func openBadger(opts badger.Options, retention time.Duration) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, retention: retention}, nil
}

func runKey(id string) []byte { return []byte("run:" + id) }

func toolKey(runID, toolID string) []byte { return []byte("tool:" + runID + ":" + toolID) }

func toolPrefix(runID string) []byte { return []byte("tool:" + runID + ":") }

var recentPrefix = []byte("recent:")

func recentKey(started time.Time, runID, toolID string) []byte {
	k := make([]byte, 0, len(recentPrefix)+8+len(runID)+len(toolID)+2)
	k = append(k, recentPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(started.UnixNano()))
	k = append(k, ':')
	k = append(k, runID...)
	k = append(k, ':')
	return append(k, toolID...)
}

func (s *BadgerStore) entry(key, val []byte) *badger.Entry {
	e := badger.NewEntry(key, val)
	if s.retention > 0 {
		e = e.WithTTL(s.retention)
	}
	return e
}

func (s *BadgerStore) StartRun(_ context.Context, run Run) error {
	run.Tools = nil
	buf, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(s.entry(runKey(run.ID), buf))
	})
}

func (s *BadgerStore) FinishRun(_ context.Context, res RunResult) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var run Run
		if err := getJSON(txn, runKey(res.ID), &run); err != nil {
			return err
		}
		finished := res.FinishedAt
		run.Status = res.Status
		run.Error = res.Error
		run.FinishedAt = &finished
		run.ToolCalls = res.ToolCalls
		run.Malformed = res.Malformed
		buf, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return txn.SetEntry(s.entry(runKey(res.ID), buf))
	})
}

func (s *BadgerStore) RecordTool(_ context.Context, rec ToolRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := toolKey(rec.RunID, rec.ToolID)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(rec.RunID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		// Drop the index entry of a previous version with another start time.
		var prev ToolRecord
		switch err := getJSON(txn, key, &prev); {
		case err == nil:
			if !prev.StartedAt.Equal(rec.StartedAt) {
				if err := txn.Delete(recentKey(prev.StartedAt, prev.RunID, prev.ToolID)); err != nil {
					return err
				}
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if err := txn.SetEntry(s.entry(key, buf)); err != nil {
			return err
		}
		return txn.SetEntry(s.entry(recentKey(rec.StartedAt, rec.RunID, rec.ToolID), key))
	})
}

func (s *BadgerStore) RecentTools(_ context.Context, limit int) ([]ToolRecord, error) {
	var out []ToolRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = recentPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, recentPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(recentPrefix); it.Next() {
			tk, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec ToolRecord
			if err := getJSON(txn, tk, &rec); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Run(_ context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, runKey(id), &run); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = toolPrefix(id)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec ToolRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			run.Tools = append(run.Tools, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(run.Tools, func(i, j int) bool { return run.Tools[i].StartedAt.Before(run.Tools[j].StartedAt) })
	return &run, nil
}

// Prune deletes runs started before cutoff together with their tool calls.
// With a retention configured, TTLs usually got there first.
func (s *BadgerStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	var doomed []Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("run:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var run Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return err
			}
			if run.StartedAt.Before(cutoff) {
				doomed = append(doomed, run)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, run := range doomed {
		full, err := s.Run(context.Background(), run.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			if full != nil {
				for _, t := range full.Tools {
					if err := txn.Delete(toolKey(t.RunID, t.ToolID)); err != nil {
						return err
					}
					if err := txn.Delete(recentKey(t.StartedAt, t.RunID, t.ToolID)); err != nil {
						return err
					}
				}
			}
			return txn.Delete(runKey(run.ID))
		})
		if err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
