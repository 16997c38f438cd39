package database

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

const (
	recordKeyPrefix = "record:"
	sequenceKey     = "meta:sequence:record"
	schemaKey       = "meta:schema"
	schemaVersion   = "1"
)

// BadgerCatalog stores each record as JSON under record:<big-endian id>, so
// key order equals insertion order.
type BadgerCatalog struct {
	db  *badger.DB
	seq *badger.Sequence
	mu  sync.Mutex
}

func NewBadger(path string, logger Logger) (*BadgerCatalog, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if logger != nil {
		opts.Logger = &badgerLogger{logger: logger}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger catalog at %s: %w", domain.ErrStoreUnavailable, path, err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), 16)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to lease record ids: %w", domain.ErrStoreUnavailable, err)
	}

	return &BadgerCatalog{db: db, seq: seq}, nil
}

func (c *BadgerCatalog) EnsureSchema(ctx context.Context) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(schemaKey), []byte(schemaVersion))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to ensure schema: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Insert assigns the next id to record and writes it in a single transaction.
func (c *BadgerCatalog) Insert(ctx context.Context, record *domain.BackupRecord) (domain.RecordID, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to allocate record id: %w", domain.ErrStoreUnavailable, err)
	}
	// badger sequences start at zero
	id := domain.RecordID(n + 1)

	stored := cloneRecord(record)
	stored.ID = id
	data, err := json.Marshal(stored)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to encode record: %w", domain.ErrStoreUnavailable, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(id), data)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert record: %w", domain.ErrStoreUnavailable, err)
	}

	record.ID = id
	return id, nil
}

func (c *BadgerCatalog) Get(ctx context.Context, id domain.RecordID) (*domain.BackupRecord, error) {
	var record domain.BackupRecord

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: id %d", domain.ErrRecordNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("%w: get record: %w", domain.ErrStoreUnavailable, err)
		}

		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
		if err != nil {
			return fmt.Errorf("%w: failed to decode record %d: %w", domain.ErrStoreUnavailable, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *BadgerCatalog) List(ctx context.Context) ([]*domain.BackupRecord, error) {
	records := make([]*domain.BackupRecord, 0)

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record domain.BackupRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %w", domain.ErrStoreUnavailable, err)
	}

	sortRecords(records)
	return records, nil
}

func (c *BadgerCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if err := c.seq.Release(); err != nil {
		firstErr = fmt.Errorf("release sequence: %w", err)
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close badger: %w", err)
	}
	return firstErr
}

func recordKey(id domain.RecordID) []byte {
	key := make([]byte, len(recordKeyPrefix)+8)
	copy(key, recordKeyPrefix)
	binary.BigEndian.PutUint64(key[len(recordKeyPrefix):], uint64(id))
	return key
}

func sortRecords(records []*domain.BackupRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// badgerLogger routes badger's internal logging into the application
// logger. Badger is chatty at info level, so that is demoted to debug.
type badgerLogger struct {
	logger Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.logger.Errorf("badger: "+f, v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.logger.Warnf("badger: "+f, v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.logger.Debugf("badger: "+f, v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.logger.Debugf("badger: "+f, v...) }
