package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/council/internal/council"
)

// Run is one recorded deliberation.
type Run struct {
	ID            string        `json:"id"`
	Prompt        string        `json:"prompt"`
	FinalAnswer   string        `json:"final_answer"`
	Reasoning     string        `json:"reasoning"`
	IsSelfImprove bool          `json:"is_self_improve"`
	StageCount    int           `json:"stage_count"`
	CreatedAt     time.Time     `json:"created_at"`
	Stages        []RunStageRow `json:"stages,omitempty"`
}

// RunStageRow is one stage output belonging to a run.
type RunStageRow struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

// RecordRun stores a finished run and its stage outputs. Failed or
// interrupted runs are not recorded.
func (db *DB) RecordRun(ctx context.Context, res *council.Result) error {
	if res == nil || res.Failed() || res.Interrupted {
		return nil
	}
	id := res.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := formatTime(db.now())

	return db.inTx(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, prompt, final_answer, reasoning, is_self_improve, stage_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, res.Prompt, res.FinalAnswer, res.ReasoningSummary, boolToInt(res.IsSelfImprove), len(res.Stages), created)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for i, s := range res.Stages {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_stages (run_id, position, name, output) VALUES (?, ?, ?, ?)
			`, id, i, string(s.Stage), s.Output); err != nil {
				return fmt.Errorf("insert run stage %s: %w", s.Stage, err)
			}
		}
		return nil
	})
}

// GetRun returns a run with its stages, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.queryRow(`
		SELECT id, prompt, final_answer, reasoning, is_self_improve, stage_count, created_at
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := db.query(`SELECT name, output FROM run_stages WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get run stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s RunStageRow
		if err := rows.Scan(&s.Name, &s.Output); err != nil {
			return nil, fmt.Errorf("scan run stage: %w", err)
		}
		r.Stages = append(r.Stages, s)
	}
	return r, rows.Err()
}

// ListRuns returns up to limit runs, newest first. Stage outputs are not
// loaded.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.query(`
		SELECT id, prompt, final_answer, reasoning, is_self_improve, stage_count, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// PurgeOldRuns deletes runs older than the specified duration.
// Returns the number of runs deleted.
func (db *DB) PurgeOldRuns(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(db.now().Add(-olderThan))

	result, err := db.exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r       Run
		selfImp int
		created string
	)
	if err := s.Scan(&r.ID, &r.Prompt, &r.FinalAnswer, &r.Reasoning, &selfImp, &r.StageCount, &created); err != nil {
		return nil, err
	}
	r.IsSelfImprove = selfImp != 0
	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	r.CreatedAt = t
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
