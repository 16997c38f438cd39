package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

// createdAtLayout is fixed width so that lexical order equals time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS backups (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	source_name        TEXT    NOT NULL DEFAULT '',
	source_path        TEXT    NOT NULL,
	archive_path       TEXT    NOT NULL,
	compression_kind   TEXT    NOT NULL,
	size_bytes         INTEGER,
	archive_size_bytes INTEGER,
	created_at         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups (created_at);
`

const selectColumns = `id, source_name, source_path, archive_path, compression_kind, size_bytes, archive_size_bytes, created_at`

type SQLiteCatalog struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLite(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", path))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open sqlite catalog: %w", domain.ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to connect to sqlite catalog at %s: %w", domain.ErrStoreUnavailable, path, err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func (c *SQLiteCatalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("%w: failed to create tables: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *SQLiteCatalog) Insert(ctx context.Context, record *domain.BackupRecord) (id domain.RecordID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO backups (source_name, source_path, archive_path, compression_kind, size_bytes, archive_size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.SourceName,
		record.SourcePath,
		record.ArchivePath,
		string(record.CompressionKind),
		nullInt64(record.SizeBytes),
		nullInt64(record.ArchiveSizeBytes),
		record.CreatedAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert record: %w", domain.ErrStoreUnavailable, err)
	}

	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: read inserted id: %w", domain.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrStoreUnavailable, err)
	}

	record.ID = domain.RecordID(lastID)
	return record.ID, nil
}

func (c *SQLiteCatalog) Get(ctx context.Context, id domain.RecordID) (*domain.BackupRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM backups WHERE id = ?`, int64(id))

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get record: %w", domain.ErrStoreUnavailable, err)
	}
	return record, nil
}

func (c *SQLiteCatalog) List(ctx context.Context) ([]*domain.BackupRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM backups ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	records := make([]*domain.BackupRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan record: %w", domain.ErrStoreUnavailable, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list records: %w", domain.ErrStoreUnavailable, err)
	}
	return records, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.BackupRecord, error) {
	var (
		r           domain.BackupRecord
		kind        string
		size        sql.NullInt64
		archiveSize sql.NullInt64
		createdAt   string
	)
	if err := row.Scan(&r.ID, &r.SourceName, &r.SourcePath, &r.ArchivePath, &kind, &size, &archiveSize, &createdAt); err != nil {
		return nil, err
	}

	t, err := time.Parse(createdAtLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}

	r.CompressionKind = domain.CompressionKind(kind)
	r.CreatedAt = t
	if size.Valid {
		r.SizeBytes = domain.Int64Ptr(size.Int64)
	}
	if archiveSize.Valid {
		r.ArchiveSizeBytes = domain.Int64Ptr(archiveSize.Int64)
	}
	return &r, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
