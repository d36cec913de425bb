package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// CatalogRepository records index rebuild runs and the outcome of every PDF
// they touched. It is a history of builds, not a copy of the index.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id TEXT PRIMARY KEY,
	trigger TEXT NOT NULL,
	status TEXT NOT NULL,
	generation TEXT,
	files_total INTEGER NOT NULL DEFAULT 0,
	files_skipped INTEGER NOT NULL DEFAULT 0,
	pages INTEGER NOT NULL DEFAULT 0,
	chunks INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS ingest_files (
	run_id TEXT NOT NULL REFERENCES ingest_runs(id) ON DELETE CASCADE,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	pages INTEGER NOT NULL DEFAULT 0,
	chunks INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	PRIMARY KEY (run_id, source)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) StartRun(ctx context.Context, run *domain.IngestRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingest_runs (id, trigger, status, started_at)
VALUES ($1,$2,$3,$4)
`, run.ID, run.Trigger, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

func (r *CatalogRepository) RecordFile(ctx context.Context, runID string, file domain.IngestFile) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingest_files (run_id, source, status, pages, chunks, error_message)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (run_id, source) DO UPDATE
SET status = EXCLUDED.status, pages = EXCLUDED.pages, chunks = EXCLUDED.chunks, error_message = EXCLUDED.error_message
`, runID, file.Source, string(file.Status), file.Pages, file.Chunks, nullString(file.Error))
	if err != nil {
		return fmt.Errorf("insert ingest file: %w", err)
	}
	return nil
}

func (r *CatalogRepository) FinishRun(ctx context.Context, run *domain.IngestRun) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE ingest_runs
SET status = $2, generation = $3, files_total = $4, files_skipped = $5, pages = $6, chunks = $7, error_message = $8, finished_at = $9
WHERE id = $1
`, run.ID, string(run.Status), nullString(run.Generation), run.FilesTotal, run.FilesSkipped, run.Pages, run.Chunks,
		nullString(run.Error), run.FinishedAt)
	if err != nil {
		return fmt.Errorf("update ingest run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "finish ingest run", fmt.Errorf("id=%s", run.ID))
	}
	return nil
}

func (r *CatalogRepository) LatestRun(ctx context.Context) (*domain.IngestRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, trigger, status, generation, files_total, files_skipped, pages, chunks, error_message, started_at, finished_at
FROM ingest_runs
ORDER BY started_at DESC
LIMIT 1
`)

	var run domain.IngestRun
	var status string
	var generation, errMessage sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.Trigger, &status, &generation, &run.FilesTotal, &run.FilesSkipped,
		&run.Pages, &run.Chunks, &errMessage, &run.StartedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get latest ingest run", err)
		}
		return nil, fmt.Errorf("scan ingest run: %w", err)
	}
	run.Status = domain.IngestStatus(status)
	run.Generation = generation.String
	run.Error = errMessage.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	files, err := r.listFiles(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Files = files
	return &run, nil
}

func (r *CatalogRepository) listFiles(ctx context.Context, runID string) ([]domain.IngestFile, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT source, status, pages, chunks, error_message
FROM ingest_files
WHERE run_id = $1
ORDER BY source
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ingest files: %w", err)
	}
	defer rows.Close()

	var files []domain.IngestFile
	for rows.Next() {
		var file domain.IngestFile
		var status string
		var errMessage sql.NullString
		if err := rows.Scan(&file.Source, &status, &file.Pages, &file.Chunks, &errMessage); err != nil {
			return nil, fmt.Errorf("scan ingest file: %w", err)
		}
		file.Status = domain.IngestStatus(status)
		file.Error = errMessage.String
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest files: %w", err)
	}
	return files, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
