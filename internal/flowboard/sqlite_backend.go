package flowboard

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteOperationTimeout = 5 * time.Second

// SQLiteBlobStore mirrors the Postgres backend for single-file local
// deployments that want durability without a server.
type SQLiteBlobStore struct {
	path   string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLiteBlobStore(path string) (BlobStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLiteBlobStore{path: path, openDB: sql.Open}, nil
}

func (b *SQLiteBlobStore) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		if dir := filepath.Dir(b.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.initErr = err
				return
			}
		}
		db, err := b.openDB("sqlite", b.path+"?_pragma=journal_mode(wal)")
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sqliteOperationTimeout)
		defer cancel()

		query := `
			CREATE TABLE IF NOT EXISTS flowboard_blobs (
				blob_key TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *SQLiteBlobStore) Get(name string) ([]byte, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOperationTimeout)
	defer cancel()

	var payload string
	err := b.db.QueryRowContext(ctx,
		"SELECT payload FROM flowboard_blobs WHERE blob_key = ?", name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (b *SQLiteBlobStore) Put(name string, data []byte) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOperationTimeout)
	defer cancel()

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO flowboard_blobs (blob_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (blob_key)
		DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (b *SQLiteBlobStore) Exists(name string) bool {
	if err := b.ensureReady(); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOperationTimeout)
	defer cancel()

	var one int
	return b.db.QueryRowContext(ctx,
		"SELECT 1 FROM flowboard_blobs WHERE blob_key = ?", name).Scan(&one) == nil
}

func (b *SQLiteBlobStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
