// Package database holds the catalog backends that persist backup records.
//
// Three backends are available, chosen by connection string:
//
//	badger://<dir>     embedded key-value store (default)
//	sqlite://<file>    embedded relational store, table "backups"
//	memory://          process-local, lost on exit
//
// A string without a scheme is treated as a sqlite file when it ends in
// .db, .sqlite or .sqlite3 and as a badger directory otherwise.
package database

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type Driver string

const (
	DriverBadger Driver = "badger"
	DriverSQLite Driver = "sqlite"
	DriverMemory Driver = "memory"
)

type DSN struct {
	Driver Driver
	Path   string
}

func (d DSN) String() string {
	return string(d.Driver) + "://" + d.Path
}

func ParseDSN(s string) (DSN, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DSN{}, fmt.Errorf("empty catalog connection string")
	}

	scheme, rest, hasScheme := strings.Cut(s, "://")
	if !hasScheme {
		if s == string(DriverMemory) {
			return DSN{Driver: DriverMemory}, nil
		}
		switch strings.ToLower(filepath.Ext(s)) {
		case ".db", ".sqlite", ".sqlite3":
			return DSN{Driver: DriverSQLite, Path: s}, nil
		}
		return DSN{Driver: DriverBadger, Path: s}, nil
	}

	var dsn DSN
	switch strings.ToLower(scheme) {
	case "memory":
		return DSN{Driver: DriverMemory}, nil
	case "badger":
		dsn = DSN{Driver: DriverBadger, Path: rest}
	case "sqlite", "sqlite3":
		dsn = DSN{Driver: DriverSQLite, Path: rest}
	default:
		return DSN{}, fmt.Errorf("unsupported catalog scheme %q", scheme)
	}

	if dsn.Path == "" {
		return DSN{}, fmt.Errorf("catalog connection string %q has no path", s)
	}
	return dsn, nil
}

// Open connects to the catalog named by dsn. The schema is not created;
// call EnsureSchema once after opening.
func Open(dsn string, logger Logger) (domain.Catalog, error) {
	parsed, err := ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	switch parsed.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverBadger:
		c, err := NewBadger(parsed.Path, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverSQLite:
		c, err := NewSQLite(parsed.Path)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: unknown driver %q", domain.ErrStoreUnavailable, parsed.Driver)
}

func cloneRecord(r *domain.BackupRecord) *domain.BackupRecord {
	c := *r
	if r.SizeBytes != nil {
		c.SizeBytes = domain.Int64Ptr(*r.SizeBytes)
	}
	if r.ArchiveSizeBytes != nil {
		c.ArchiveSizeBytes = domain.Int64Ptr(*r.ArchiveSizeBytes)
	}
	return &c
}
