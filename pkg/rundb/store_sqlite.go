package rundb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/utils"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	document   BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_status ON runs(status);
`

// Stores run documents in a SQLite database.
type sqliteStore struct {
	db *sql.DB
}

// NewSqliteStore opens or creates the database at the path.
func NewSqliteStore(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers, a single connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) LoadRun(ctx context.Context, id string) (*run.Run, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", utils.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeRun(data)
}

func (s *sqliteStore) SaveRun(ctx context.Context, r *run.Run) error {
	data, err := encodeRun(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			document = excluded.document,
			updated_at = excluded.updated_at
	`,
		r.Id,
		string(r.Status),
		data,
		r.CreatedAt,
		r.LastUpdated,
	)
	return err
}

func (s *sqliteStore) query(ctx context.Context, query string, args ...any) ([]*run.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*run.Run{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		r, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *sqliteStore) ActiveRuns(ctx context.Context) ([]*run.Run, error) {
	return s.query(ctx, `SELECT document FROM runs WHERE status != ? ORDER BY created_at`, string(protocol.RunStatusFinished))
}

func (s *sqliteStore) ListRuns(ctx context.Context, status protocol.RunStatus) ([]*run.Run, error) {
	if status == "" {
		return s.query(ctx, `SELECT document FROM runs ORDER BY created_at`)
	}
	return s.query(ctx, `SELECT document FROM runs WHERE status = ? ORDER BY created_at`, string(status))
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
