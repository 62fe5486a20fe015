package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"
)

// DBName is the store file name inside a trace directory.
const DBName = "trace.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	ops INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	op TEXT NOT NULL,
	line INTEGER NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_records_op ON records(run_id, op);
`

// Store persists runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates the store at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trace schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores run and its records, replacing an earlier copy.
func (s *Store) SaveRun(ctx context.Context, run Run, records []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, source, status, started_at, finished_at, ops) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Status, run.Started.UnixMilli(), run.Finished.UnixMilli(), len(records))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (run_id, seq, op, line, body) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, rec := range records {
		fields := gjson.GetMany(rec, "seq", "op", "line")
		if _, err = stmt.ExecContext(ctx, run.ID, fields[0].Int(), fields[1].String(), fields[2].Int(), rec); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, started_at, finished_at, ops FROM runs ORDER BY started_at DESC, id`)
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
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns one stored run. An id prefix is accepted when unambiguous.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, started_at, finished_at, ops FROM runs WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	if len(found) != 1 {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return found[0], nil
}

// Records returns the records of a run in order. op filters when not empty.
func (s *Store) Records(ctx context.Context, runID, op string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM records WHERE run_id = ? AND (? = '' OR op = ?) ORDER BY seq`, runID, op, op)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its records.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, id)
	return err
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run               Run
		started, finished int64
	)
	if err := rows.Scan(&run.ID, &run.Source, &run.Status, &started, &finished, &run.Ops); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Started = time.UnixMilli(started)
	run.Finished = time.UnixMilli(finished)
	return run, nil
}

// IsNotFound reports whether err means a missing run.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
