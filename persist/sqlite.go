package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps values in the token_values table of a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS token_values (
			token TEXT NOT NULL,
			kind TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (token, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_token_values_updated ON token_values(updated_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, token, kind string) ([]byte, error) {
	if err := validateKey(token, kind); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM token_values WHERE token = ? AND kind = ?`, token, kind,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s: %w", token, kind, err)
	}
	return data, nil
}

func (s *SQLiteStore) Save(ctx context.Context, token, kind string, data []byte) error {
	if err := validateKey(token, kind); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_values (token, kind, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(token, kind) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		token, kind, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", token, kind, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, token, kind string) error {
	if err := validateKey(token, kind); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM token_values WHERE token = ? AND kind = ?`, token, kind)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", token, kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", token, kind, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
