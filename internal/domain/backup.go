package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CompressionKind selects the archive container produced for a backup.
type CompressionKind string

const (
	KindNone   CompressionKind = "none"
	KindZip    CompressionKind = "zip"
	KindTar    CompressionKind = "tar"
	KindTarGz  CompressionKind = "tar.gz"
	KindTarLz4 CompressionKind = "tar.lz4"
	KindTarXz  CompressionKind = "tar.xz"
)

// CompressionKinds lists every kind that produces an archive file.
var CompressionKinds = []CompressionKind{KindZip, KindTar, KindTarGz, KindTarLz4, KindTarXz}

// ParseCompressionKind accepts the canonical names as well as the common
// aliases (tgz, targz, gzip, lz4, xz). Matching is case-insensitive.
func ParseCompressionKind(s string) (CompressionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return KindNone, nil
	case "zip":
		return KindZip, nil
	case "tar":
		return KindTar, nil
	case "tar.gz", "tgz", "targz", "tar_gz", "gzip":
		return KindTarGz, nil
	case "tar.lz4", "lz4", "tar_lz4":
		return KindTarLz4, nil
	case "tar.xz", "txz", "xz", "tar_xz":
		return KindTarXz, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCompression, s)
}

// Extension returns the file name suffix for archives of this kind,
// including the leading dot. KindNone has no extension.
func (k CompressionKind) Extension() string {
	if k == KindNone {
		return ""
	}
	return "." + string(k)
}

func (k CompressionKind) Valid() bool {
	if k == KindNone {
		return true
	}
	for _, c := range CompressionKinds {
		if c == k {
			return true
		}
	}
	return false
}

func (k CompressionKind) String() string {
	return string(k)
}

// SourceDirectory is a validated directory that is about to be backed up.
type SourceDirectory struct {
	Path    string
	Name    string
	ModTime time.Time
	// Size is nil until computed, and stays nil when sizing is skipped or fails.
	Size *int64
}

// BackupArchive is the artifact produced for a backup. For KindNone the
// path is the source directory itself and Size is nil.
type BackupArchive struct {
	Path      string
	Kind      CompressionKind
	Size      *int64
	Entries   int
	CreatedAt time.Time
}

type RecordID int64

// BackupRecord is the catalog entry for one completed backup.
type BackupRecord struct {
	ID               RecordID        `json:"id"`
	SourceName       string          `json:"source_name"`
	SourcePath       string          `json:"source_path"`
	ArchivePath      string          `json:"archive_path"`
	CompressionKind  CompressionKind `json:"compression_kind"`
	SizeBytes        *int64          `json:"size_bytes"`
	ArchiveSizeBytes *int64          `json:"archive_size_bytes"`
	CreatedAt        time.Time       `json:"created_at"`
}

func Int64Ptr(v int64) *int64 {
	return &v
}

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SafeName turns a directory base name into something usable as a file name
// on every common filesystem.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	return unsafeNameChars.ReplaceAllString(name, "_")
}
