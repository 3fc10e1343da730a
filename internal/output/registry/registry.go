// Package registry keeps a SQLite history of sweep results. Fine-tuned
// artifacts are overwritten on every sweep; the registry is where earlier
// metrics survive.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/crimson-sun/clinote/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	result_key TEXT NOT NULL,
	model_tag TEXT NOT NULL,
	text_column TEXT NOT NULL,
	accuracy REAL NOT NULL,
	precision_pct REAL NOT NULL,
	recall_pct REAL NOT NULL,
	f1_pct REAL NOT NULL,
	artifact_dir TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_key ON results(result_key);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);

CREATE TABLE IF NOT EXISTS report_rows (
	result_id INTEGER NOT NULL REFERENCES results(id),
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	precision REAL NOT NULL,
	recall REAL NOT NULL,
	f1 REAL NOT NULL,
	support INTEGER NOT NULL
);
`

// Entry is one stored result.
type Entry struct {
	RunID  uuid.UUID
	Record model.ResultRecord
}

// Registry is an output.Output that appends every record to a SQLite
// database under a per-process run id.
type Registry struct {
	db    *sql.DB
	runID uuid.UUID
}

// Open opens (or creates) the database at path, migrates it and registers
// a new run.
func Open(path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	r := &Registry{db: db, runID: uuid.New()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: migrate: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		r.runID.String(), formatTime(time.Now())); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: register run: %w", err)
	}
	slog.Info("registry opened", "path", path, "run_id", r.runID)
	return r, nil
}

func (r *Registry) migrate() error {
	_, err := r.db.Exec(schema)
	return err
}

// RunID returns the id under which this process stores its records.
func (r *Registry) RunID() uuid.UUID { return r.runID }

// Write stores the record and its report rows in one transaction.
func (r *Registry) Write(ctx context.Context, rec model.ResultRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO results (
			run_id, result_key, model_tag, text_column,
			accuracy, precision_pct, recall_pct, f1_pct,
			artifact_dir, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID.String(), rec.Key, rec.ModelTag, string(rec.Column),
		rec.Scores.Accuracy, rec.Scores.Precision, rec.Scores.Recall, rec.Scores.F1,
		rec.ArtifactDir, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("registry: save %s: %w", rec.Key, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	for i, row := range rec.Report {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_rows (result_id, position, name, precision, recall, f1, support)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, row.Name, row.Precision, row.Recall, row.F1, row.Support,
		); err != nil {
			return fmt.Errorf("registry: save %s report: %w", rec.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	return nil
}

// History returns every stored result for key, oldest first. An empty key
// returns all results.
func (r *Registry) History(ctx context.Context, key string) ([]Entry, error) {
	query := `
		SELECT id, run_id, result_key, model_tag, text_column,
		       accuracy, precision_pct, recall_pct, f1_pct,
		       COALESCE(artifact_dir, ''), created_at
		FROM results`
	var args []any
	if key != "" {
		query += ` WHERE result_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: query: %w", err)
	}
	defer rows.Close()

	var (
		entries []Entry
		ids     []int64
	)
	for rows.Next() {
		var (
			id             int64
			runID, col, ts string
			e              Entry
		)
		s := &e.Record.Scores
		if err := rows.Scan(&id, &runID, &e.Record.Key, &e.Record.ModelTag, &col,
			&s.Accuracy, &s.Precision, &s.Recall, &s.F1,
			&e.Record.ArtifactDir, &ts); err != nil {
			return nil, fmt.Errorf("registry: scan: %w", err)
		}
		if e.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("registry: run id: %w", err)
		}
		if e.Record.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("registry: created_at: %w", err)
		}
		e.Record.Column = model.TextColumn(col)
		entries = append(entries, e)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	rows.Close()

	for i := range entries {
		if entries[i].Record.Report, err = r.report(ctx, ids[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *Registry) report(ctx context.Context, resultID int64) ([]model.ReportRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, precision, recall, f1, support
		FROM report_rows WHERE result_id = ? ORDER BY position`, resultID)
	if err != nil {
		return nil, fmt.Errorf("registry: query report: %w", err)
	}
	defer rows.Close()

	var out []model.ReportRow
	for rows.Next() {
		var row model.ReportRow
		if err := rows.Scan(&row.Name, &row.Precision, &row.Recall, &row.F1, &row.Support); err != nil {
			return nil, fmt.Errorf("registry: scan report: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close marks the run finished and closes the database.
func (r *Registry) Close() error {
	_, err := r.db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`,
		formatTime(time.Now()), r.runID.String())
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("registry: close: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
