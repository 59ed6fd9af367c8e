package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/censai/pkg/engine"
)

// ErrNotFound is returned when no row exists for the requested key.
var ErrNotFound = errors.New("store: not found")

// Store persists finding snapshots and imported threat intel in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("error applying %q: %w", pragma, err)
		}
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func initSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS snapshots (
	dataset_key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kev_ids (
	cve TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS epss_scores (
	cve TEXT PRIMARY KEY,
	score REAL NOT NULL
);
`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("error creating schema: %w", err)
	}
	return nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot stores snap as the latest snapshot for a dataset key,
// replacing any earlier one.
func (s *Store) SaveSnapshot(ctx context.Context, key string, snap engine.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("error encoding snapshot: %w", err)
	}
	// `excluded` is sqlite's alias for the row that triggered the conflict
	const query = `
INSERT INTO snapshots (dataset_key, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(dataset_key)
DO UPDATE SET
	payload = excluded.payload,
	updated_at = excluded.updated_at;
`
	if _, err := s.db.ExecContext(ctx, query, key, string(payload), s.now().UTC().Unix()); err != nil {
		return fmt.Errorf("error saving snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the latest snapshot for key or ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, key string) (engine.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE dataset_key = ?;`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading snapshot: %w", err)
	}

	snap := engine.Snapshot{}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("error decoding snapshot: %w", err)
	}
	return snap, nil
}

// ReplaceKEV swaps the cached KEV ids in one transaction.
func (s *Store) ReplaceKEV(ctx context.Context, ids []string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kev_ids;`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO kev_ids (cve) VALUES (?);`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadKEV returns the cached KEV ids in sorted order.
func (s *Store) LoadKEV(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cve FROM kev_ids ORDER BY cve;`)
	if err != nil {
		return nil, fmt.Errorf("error loading kev ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning kev id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReplaceEPSS swaps the cached EPSS scores in one transaction. Ids are
// written in sorted order.
func (s *Store) ReplaceEPSS(ctx context.Context, scores map[string]float64) error {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM epss_scores;`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO epss_scores (cve, score) VALUES (?, ?);`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, scores[id]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEPSS returns the cached EPSS scores.
func (s *Store) LoadEPSS(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cve, score FROM epss_scores;`)
	if err != nil {
		return nil, fmt.Errorf("error loading epss scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			id    string
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("error scanning epss score: %w", err)
		}
		out[id] = score
	}
	return out, rows.Err()
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("error during transaction: %w", err)
	}
	return tx.Commit()
}
