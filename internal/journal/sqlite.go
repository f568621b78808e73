// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/fingate/internal/persistence/sqlite"
)

const sqliteSchemaVersion = 1

// SQLiteStore persists the journal in a single SQLite file.
type SQLiteStore struct {
	DB *sql.DB
}

// OpenSQLiteStore opens (and migrates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{DB: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var current int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= sqliteSchemaVersion {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at_ms INTEGER NOT NULL,
		finished_at_ms INTEGER,
		tool_calls INTEGER NOT NULL DEFAULT 0,
		malformed_lines INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_ms);

	CREATE TABLE IF NOT EXISTS tool_calls (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tool_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		cli_tool TEXT NOT NULL DEFAULT '',
		card TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		ticker TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at_ms INTEGER NOT NULL,
		finished_at_ms INTEGER,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, tool_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_started ON tool_calls(started_at_ms);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) StartRun(ctx context.Context, run Run) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO runs (id, request_id, prompt, status, started_at_ms)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		request_id = excluded.request_id,
		prompt = excluded.prompt,
		status = excluded.status,
		started_at_ms = excluded.started_at_ms`,
		run.ID, run.RequestID, run.Prompt, string(run.Status), run.StartedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, res RunResult) error {
	r, err := s.DB.ExecContext(ctx, `
	UPDATE runs SET status = ?, error = ?, finished_at_ms = ?, tool_calls = ?, malformed_lines = ?
	WHERE id = ?`,
		string(res.Status), res.Error, res.FinishedAt.UnixMilli(), res.ToolCalls, res.Malformed, res.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RecordTool(ctx context.Context, rec ToolRecord) error {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, rec.RunID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var finished sql.NullInt64
	if rec.FinishedAt != nil {
		finished = sql.NullInt64{Int64: rec.FinishedAt.UnixMilli(), Valid: true}
	}
	_, err = s.DB.ExecContext(ctx, `
	INSERT INTO tool_calls (run_id, tool_id, tool, cli_tool, card, description, ticker, status, error, started_at_ms, finished_at_ms, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, tool_id) DO UPDATE SET
		tool = excluded.tool,
		cli_tool = excluded.cli_tool,
		card = excluded.card,
		description = excluded.description,
		ticker = excluded.ticker,
		status = excluded.status,
		error = excluded.error,
		started_at_ms = excluded.started_at_ms,
		finished_at_ms = excluded.finished_at_ms,
		duration_ms = excluded.duration_ms`,
		rec.RunID, rec.ToolID, rec.Tool, rec.CLITool, rec.Card, rec.Description, rec.Ticker,
		string(rec.Status), rec.Error, rec.StartedAt.UnixMilli(), finished, rec.DurationMS,
	)
	return err
}

const toolColumns = `run_id, tool_id, tool, cli_tool, card, description, ticker, status, error, started_at_ms, finished_at_ms, duration_ms`

func (s *SQLiteStore) RecentTools(ctx context.Context, limit int) ([]ToolRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM tool_calls ORDER BY started_at_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanTools(rows)
}

func (s *SQLiteStore) Run(ctx context.Context, id string) (*Run, error) {
	var (
		run      Run
		status   string
		started  int64
		finished sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `
	SELECT id, request_id, prompt, status, error, started_at_ms, finished_at_ms, tool_calls, malformed_lines
	FROM runs WHERE id = ?`, id).Scan(
		&run.ID, &run.RequestID, &run.Prompt, &status, &run.Error, &started, &finished, &run.ToolCalls, &run.Malformed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = msToTime(started)
	if finished.Valid {
		t := msToTime(finished.Int64)
		run.FinishedAt = &t
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM tool_calls WHERE run_id = ? ORDER BY started_at_ms, rowid`, id)
	if err != nil {
		return nil, err
	}
	run.Tools, err = scanTools(rows)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	r, err := s.DB.ExecContext(ctx, `DELETE FROM runs WHERE started_at_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := r.RowsAffected()
	return int(n), nil
}

// Verify runs a quick integrity check.
func (s *SQLiteStore) Verify(ctx context.Context) error {
	issues, err := sqlite.Verify(ctx, s.DB, "quick")
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("journal: integrity check failed: %v", issues)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

func scanTools(rows *sql.Rows) ([]ToolRecord, error) {
	defer func() { _ = rows.Close() }()
	var out []ToolRecord
	for rows.Next() {
		var (
			rec      ToolRecord
			status   string
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&rec.RunID, &rec.ToolID, &rec.Tool, &rec.CLITool, &rec.Card, &rec.Description,
			&rec.Ticker, &status, &rec.Error, &started, &finished, &rec.DurationMS); err != nil {
			return nil, err
		}
		rec.Status = ToolStatus(status)
		rec.StartedAt = msToTime(started)
		if finished.Valid {
			t := msToTime(finished.Int64)
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
