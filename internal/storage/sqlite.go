package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/codec"
)

// DBFile is the database file name inside the data directory.
const DBFile = "quire.db"

const currentKey = "current"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notebook (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key           TEXT PRIMARY KEY,
	last_saved_at TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL,
	checksum      TEXT NOT NULL DEFAULT ''
);
`

// Options configures the SQLite backend.
type Options struct {
	// Dir holds the database and the metadata mirror. Created if missing.
	Dir string
	// QuotaBytes caps the database size. Zero means FallbackQuotaBytes.
	QuotaBytes int64
}

// SQLite implements Backend on a local SQLite database.
type SQLite struct {
	conn     *sql.DB
	quick    *QuickCache
	quota    int64
	pageSize int64

	mu   sync.RWMutex
	meta Meta
	has  bool
}

var _ Backend = (*SQLite)(nil)

// Open opens (or creates) the database in opts.Dir and applies the schema.
// When the directory or the database cannot be opened at all, the error
// wraps apperr.ErrUnsupported.
func Open(opts Options) (*SQLite, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w: %w", apperr.ErrUnsupported, err)
	}
	quota := opts.QuotaBytes
	if quota <= 0 {
		quota = FallbackQuotaBytes
	}

	dsn := filepath.Join(opts.Dir, DBFile)
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w: %w", apperr.ErrUnsupported, err)
	}
	// A single connection keeps per-connection pragmas in force and makes
	// writes strictly sequential.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w: %w", apperr.ErrUnsupported, err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	s := &SQLite{conn: conn, quick: NewQuickCache(opts.Dir), quota: quota}
	if err := conn.QueryRow(`PRAGMA page_size`).Scan(&s.pageSize); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: page size: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	if err := s.loadMeta(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies the schema and records its version in user_version.
func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("storage: read schema version: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	if version > codec.SchemaVersion {
		return fmt.Errorf("storage: schema version %d is newer than supported %d: %w",
			version, codec.SchemaVersion, apperr.ErrUnsupported)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("storage: apply schema: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, codec.SchemaVersion)); err != nil {
		return fmt.Errorf("storage: set schema version: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *SQLite) loadMeta() error {
	var (
		savedAt string
		m       Meta
	)
	err := s.conn.QueryRow(`SELECT last_saved_at, size_bytes, checksum FROM meta WHERE key = ?`, currentKey).
		Scan(&savedAt, &m.ApproximateSizeBytes, &m.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return classify("load meta", err)
	}
	if t, perr := codec.ParseTime(savedAt); perr == nil {
		m.LastSavedAt = t
	}
	s.setMeta(m, true)
	return nil
}

// Put replaces the stored record and metadata in one transaction, then
// refreshes the metadata mirror.
func (s *SQLite) Put(ctx context.Context, rec *codec.Record) error {
	payload, err := codec.Marshal(rec)
	if err != nil {
		return err
	}
	meta := Meta{
		LastSavedAt:          time.Now().UTC(),
		ApproximateSizeBytes: int64(len(payload)),
		Checksum:             checksum.Sum(payload),
	}
	savedAt := codec.FormatTime(meta.LastSavedAt)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA max_page_count = %d`, s.maxPages())); err != nil {
		return classify("set quota", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notebook (key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload    = excluded.payload,
			updated_at = excluded.updated_at
	`, currentKey, payload, savedAt)
	if err != nil {
		return classify("put record", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, last_saved_at, size_bytes, checksum)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			last_saved_at = excluded.last_saved_at,
			size_bytes    = excluded.size_bytes,
			checksum      = excluded.checksum
	`, currentKey, savedAt, meta.ApproximateSizeBytes, meta.Checksum)
	if err != nil {
		return classify("put meta", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}

	s.setMeta(meta, true)
	// The mirror only feeds status display; the durable write already succeeded.
	_ = s.quick.Write(meta)
	return nil
}

// Get returns the stored record, verifying it against the stored checksum.
func (s *SQLite) Get(ctx context.Context) (*codec.Record, error) {
	var (
		payload []byte
		sum     sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT n.payload, m.checksum
		FROM notebook n LEFT JOIN meta m ON m.key = n.key
		WHERE n.key = ?
	`, currentKey).Scan(&payload, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get record", err)
	}
	if sum.Valid && sum.String != "" && sum.String != checksum.Sum(payload) {
		return nil, fmt.Errorf("storage: stored record checksum mismatch: %w", apperr.ErrDeserialization)
	}
	return codec.Unmarshal(payload)
}

// Clear deletes the record and metadata and compacts the file.
func (s *SQLite) Clear(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM notebook`); err != nil {
		return classify("clear record", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
		return classify("clear meta", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	// Reclaim pages so capacity figures drop back; failure only delays that.
	_, _ = s.conn.ExecContext(ctx, `VACUUM`)

	s.setMeta(Meta{}, false)
	if err := s.quick.Remove(); err != nil {
		return err
	}
	return nil
}

// CapacityStatus measures the database size in pages against the quota,
// falling back to the last written size when the pragmas cannot be read.
func (s *SQLite) CapacityStatus(ctx context.Context) (Capacity, error) {
	var pages int64
	if err := s.conn.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pages); err != nil {
		meta, _ := s.Meta()
		return fallbackCapacity(meta, s.quota), nil
	}
	return NewCapacity(pages*s.pageSize, s.quota), nil
}

// Meta returns the metadata of the last successful write.
func (s *SQLite) Meta() (Meta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, s.has
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) setMeta(m Meta, ok bool) {
	s.mu.Lock()
	s.meta, s.has = m, ok
	s.mu.Unlock()
}

func (s *SQLite) maxPages() int64 {
	if s.pageSize <= 0 {
		return 1 << 30
	}
	n := s.quota / s.pageSize
	if n < 1 {
		n = 1
	}
	return n
}

// classify maps a driver error onto the storage error kinds.
func classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrFull {
		return fmt.Errorf("storage: %s: %w: %w", op, apperr.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("storage: %s: %w: %w", op, apperr.ErrBackendUnavailable, err)
}
