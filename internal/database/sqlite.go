package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "modernc.org/sqlite"
)

// KV is the durable key-value store behind the history collaborator.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type SQLiteDB struct {
	DB *sql.DB
	mu sync.Mutex
}

var _ KV = (*SQLiteDB)(nil)

func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	instance := &SQLiteDB{DB: db}
	if err := instance.initTables(); err != nil {
		db.Close()
		return nil, err
	}

	return instance, nil
}

func (s *SQLiteDB) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := s.DB.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM app_state WHERE key = ?`
	var value string
	err := s.DB.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteDB) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO app_state (key, value) VALUES (?, ?)
			  ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP;`
	_, err := s.DB.ExecContext(ctx, query, key, value)
	return err
}

func (s *SQLiteDB) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.DB.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, key)
	return err
}

func (s *SQLiteDB) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
