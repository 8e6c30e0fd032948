//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"plegma/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func DefaultStoreKind() string {
	return "sqlite"
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM cluster_configs; DELETE FROM cluster_summaries;`)
	return err
}

func (s *SQLiteStore) SaveClusterConfig(ctx context.Context, cfg model.ClusterConfig) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	cfg.VersionedRecord = model.NewVersionedRecord()
	payload, err := EncodeClusterConfig(cfg)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO cluster_configs (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, cfg.ID, cfg.SchemaVersion, cfg.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetClusterConfig(ctx context.Context, id string) (model.ClusterConfig, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ClusterConfig{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM cluster_configs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ClusterConfig{}, false, nil
		}
		return model.ClusterConfig{}, false, err
	}

	cfg, err := DecodeClusterConfig(payload)
	if err != nil {
		return model.ClusterConfig{}, false, fmt.Errorf("decode cluster config %s: %w", id, err)
	}
	return cfg, true, nil
}

func (s *SQLiteStore) ListClusterConfigs(ctx context.Context) ([]model.ClusterConfig, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM cluster_configs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ClusterConfig
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		cfg, err := DecodeClusterConfig(payload)
		if err != nil {
			return nil, fmt.Errorf("decode cluster config %s: %w", id, err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteClusterConfig(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM cluster_configs WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) SaveClusterSummary(ctx context.Context, summary model.ClusterSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeClusterSummary(summary)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO cluster_summaries (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, summary.ID, summary.SchemaVersion, summary.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetClusterSummary(ctx context.Context, id string) (model.ClusterSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ClusterSummary{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM cluster_summaries WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ClusterSummary{}, false, nil
		}
		return model.ClusterSummary{}, false, err
	}

	summary, err := DecodeClusterSummary(payload)
	if err != nil {
		return model.ClusterSummary{}, false, fmt.Errorf("decode cluster summary %s: %w", id, err)
	}
	return summary, true, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cluster_configs (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cluster_summaries (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
