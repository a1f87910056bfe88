package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/backmassage/clipmaster/internal/jobs"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	engine     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	payload    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_created_at ON jobs (created_at);
`

const upsertJob = `
INSERT INTO jobs (id, status, engine, created_at, updated_at, payload)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	updated_at = excluded.updated_at,
	payload = excluded.payload`

// SQLiteStore persists one row per job holding its JSON snapshot.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the state database at path and
// applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping state db %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snap jobs.JobSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", snap.ID, err)
	}
	_, err = s.db.ExecContext(ctx, upsertJob,
		snap.ID, string(snap.Status), string(snap.Engine),
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
		payload)
	if err != nil {
		return fmt.Errorf("save job %s: %w", snap.ID, err)
	}
	return nil
}

// LoadAll returns every stored snapshot in creation order. Rows whose
// payload cannot be decoded are returned as a *CorruptRowError after the
// readable rows.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]jobs.JobSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer rows.Close()

	var (
		out     []jobs.JobSnapshot
		corrupt []string
	)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		var snap jobs.JobSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil || snap.ID != id {
			corrupt = append(corrupt, id)
			continue
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	if len(corrupt) > 0 {
		return out, &CorruptRowError{IDs: corrupt}
	}
	return out, nil
}

// Delete removes the row for id. Deleting a missing id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// CorruptRowError lists stored jobs whose payload could not be decoded.
type CorruptRowError struct {
	IDs []string
}

func (e *CorruptRowError) Error() string {
	return fmt.Sprintf("%d stored job(s) could not be decoded: %v", len(e.IDs), e.IDs)
}
