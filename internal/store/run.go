package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type runRepo struct {
	db *sql.DB
}

func (r *runRepo) StartRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO generation_runs
		(id, fingerprint, subject, model, difficulty, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Fingerprint, run.Subject, run.Model, run.Difficulty, run.Status,
		run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (r *runRepo) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `UPDATE generation_runs SET
		status = ?, outline_title = ?, sections = ?, fallback_sections = ?, colab_compatible = ?,
		qa_status = ?, semantic_status = ?, output_path = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, run.OutlineTitle, run.Sections, run.FallbackSections,
		boolToInt(run.ColabCompatible), run.QAStatus, run.SemanticStatus, run.OutputPath,
		run.ErrorMessage, run.FinishedAt.UnixMilli(), run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

const runColumns = `id, fingerprint, subject, model, difficulty, status, outline_title, sections,
	fallback_sections, colab_compatible, qa_status, semantic_status, output_path, error_message,
	started_at, finished_at`

func (r *runRepo) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := "SELECT " + runColumns + " FROM generation_runs ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *runRepo) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM generation_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var compatible int
	var started, finished int64
	err := row.Scan(&run.ID, &run.Fingerprint, &run.Subject, &run.Model, &run.Difficulty,
		&run.Status, &run.OutlineTitle, &run.Sections, &run.FallbackSections, &compatible,
		&run.QAStatus, &run.SemanticStatus, &run.OutputPath, &run.ErrorMessage, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.ColabCompatible = compatible != 0
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished > 0 {
		run.FinishedAt = time.UnixMilli(finished).UTC()
	}
	return &run, nil
}
