package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// KVStore persists values in a single SQLite file.
type KVStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var _ ports.StoreBackend = (*KVStore)(nil)

// Open opens (or creates) the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, logger *zap.SugaredLogger) (*KVStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Infow("opened SQLite store", "path", path)
	return &KVStore{db: db, logger: logger}, nil
}

func (s *KVStore) GetOrCreate(ctx context.Context, key string, generate func() ([]byte, error)) ([]byte, error) {
	value, err := s.Load(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return nil, err
	}

	value, err = generate()
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", key, err)
	}
	// another writer may have won the insert
	return s.Load(ctx, key)
}

func (s *KVStore) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *KVStore) Close() error {
	return s.db.Close()
}
