package domain

import "context"

// Catalog is the durable store of backup records.
//
// Insert must be atomic: a record is either fully visible to later reads or
// not at all. Implementations serialize concurrent inserts. List returns
// records ordered by CreatedAt ascending, ties broken by ID.
type Catalog interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, record *BackupRecord) (RecordID, error)
	Get(ctx context.Context, id RecordID) (*BackupRecord, error)
	List(ctx context.Context) ([]*BackupRecord, error)
	Close() error
}

// Notifier is told about every committed backup.
type Notifier interface {
	Notify(ctx context.Context, record *BackupRecord) error
}
