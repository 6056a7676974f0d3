package flowboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresBlobTableName    = "flowboard_blobs"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresBlobStore keeps each document as one row in a key/payload
// table. The connection and schema are initialized lazily on first use.
type PostgresBlobStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresBlobStore(dsn string) (BlobStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresBlobStore{
		dsn:       dsn,
		tableName: postgresBlobTableName,
		openDB:    sql.Open,
	}, nil
}

func (b *PostgresBlobStore) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				blob_key TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(b.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *PostgresBlobStore) Get(name string) ([]byte, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT payload FROM %s WHERE blob_key = $1", quoteIdentifier(b.tableName))
	var payload string
	err := b.db.QueryRowContext(ctx, query, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (b *PostgresBlobStore) Put(name string, data []byte) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (blob_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (blob_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`, quoteIdentifier(b.tableName))
	_, err := b.db.ExecContext(ctx, query, name, string(data))
	return err
}

func (b *PostgresBlobStore) Exists(name string) bool {
	if err := b.ensureReady(); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT 1 FROM %s WHERE blob_key = $1", quoteIdentifier(b.tableName))
	var one int
	return b.db.QueryRowContext(ctx, query, name).Scan(&one) == nil
}

func (b *PostgresBlobStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
