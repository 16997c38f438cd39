package compressor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Builder produces archive files from directory trees. It is safe for
// concurrent use as long as each call targets a different destination.
type Builder struct {
	logger Logger
	level  int
	now    func() time.Time
}

// New returns a Builder. level is handed to the deflate and gzip codecs;
// -1 selects the codec default.
func New(logger Logger, level int) *Builder {
	return &Builder{
		logger: logger,
		level:  level,
		now:    time.Now,
	}
}

// entry is one item in the archive. rel is slash separated and relative to
// the source root; directory entries end in "/".
type entry struct {
	rel  string
	path string
	info fs.FileInfo
	link string
}

// Build writes an archive of sourcePath to destPath. For KindNone nothing is
// written and the returned archive points at the source itself.
//
// On failure the partially written destination is removed before the error
// is returned, so callers never observe a truncated archive. An existing
// destination is never overwritten.
func (b *Builder) Build(ctx context.Context, sourcePath, destPath string, kind domain.CompressionKind) (*domain.BackupArchive, error) {
	if kind == domain.KindNone {
		return &domain.BackupArchive{
			Path:      sourcePath,
			Kind:      domain.KindNone,
			CreatedAt: b.now(),
		}, nil
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedCompression, kind)
	}

	root, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, err)
	}
	dest, err := filepath.Abs(destPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrArchiveWrite, err)
	}

	if _, err := os.Lstat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDestinationExists, dest)
	}

	entries, err := b.collect(ctx, root, dest)
	if err != nil {
		return nil, err
	}

	b.logger.Debugf("Writing %d entries from %s to %s (%s)", len(entries), root, dest, kind)
	size, err := b.write(ctx, entries, dest, kind)
	if err != nil {
		return nil, err
	}

	return &domain.BackupArchive{
		Path:      dest,
		Kind:      kind,
		Size:      domain.Int64Ptr(size),
		Entries:   len(entries),
		CreatedAt: b.now(),
	}, nil
}

// collect walks root in lexical order and returns the entries to archive:
// regular files, symlinks and empty directories. Non-empty directories are
// implied by their contents.
func (b *Builder) collect(ctx context.Context, root, exclude string) ([]entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrSourceUnreadable, domain.ErrNotADirectory, root)
	}

	// WalkDir does not descend into a symlinked root, so walk its target.
	// The destination is resolved the same way to keep the exclusion working.
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, err)
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(exclude)); err == nil {
		exclude = filepath.Join(dir, filepath.Base(exclude))
	}

	var entries []entry
	parents := make(map[string]struct{})

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if p == exclude {
			b.logger.Debugf("Excluding archive destination %s from its own source", p)
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		e := entry{rel: rel, path: p, info: info}
		switch mode := info.Mode(); {
		case mode.IsDir():
			e.rel += "/"
		case mode&fs.ModeSymlink != 0:
			if e.link, err = os.Readlink(p); err != nil {
				return err
			}
		case mode.IsRegular():
		default:
			b.logger.Debugf("Skipping irregular file %s (%s)", p, mode.Type())
			return nil
		}
		entries = append(entries, e)
		parents[path.Dir(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrArchiveWrite, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, err)
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.info.IsDir() {
			if _, hasChildren := parents[e.rel[:len(e.rel)-1]]; hasChildren {
				continue
			}
		}
		kept = append(kept, e)
	}
	return kept, nil
}

// write streams entries into a new file at dest and returns its final size.
func (b *Builder) write(ctx context.Context, entries []entry, dest string, kind domain.CompressionKind) (size int64, err error) {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if errors.Is(err, fs.ErrExist) {
		return 0, fmt.Errorf("%w: %s", domain.ErrDestinationExists, dest)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create archive file: %w", domain.ErrArchiveWrite, err)
	}

	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			b.logger.Warnf("Failed to remove partial archive %s: %v", dest, rmErr)
		}
	}()

	sink := &sinkWriter{w: f}
	aw, err := newArchiveWriter(sink, kind, b.level)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrArchiveWrite, err)
	}

	for _, e := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = aw.Close()
			return 0, fmt.Errorf("%w: %w", domain.ErrArchiveWrite, ctxErr)
		}
		if err := b.addEntry(aw, sink, e); err != nil {
			_ = aw.Close()
			return 0, err
		}
	}

	if err := aw.Close(); err != nil {
		return 0, fmt.Errorf("%w: failed to finalize archive: %w", domain.ErrArchiveWrite, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("%w: failed to sync archive: %w", domain.ErrArchiveWrite, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("%w: failed to close archive: %w", domain.ErrArchiveWrite, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrArchiveWrite, err)
	}
	return info.Size(), nil
}

func (b *Builder) addEntry(aw archiveWriter, sink *sinkWriter, e entry) error {
	if !e.info.Mode().IsRegular() {
		if _, err := aw.header(e); err != nil {
			return fmt.Errorf("%w: failed to add %s: %w", domain.ErrArchiveWrite, e.rel, err)
		}
		return nil
	}

	//nolint:gosec // e.path comes from walking the source tree
	src, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", domain.ErrSourceUnreadable, e.path, err)
	}
	defer src.Close()

	w, err := aw.header(e)
	if err != nil {
		return fmt.Errorf("%w: failed to add %s: %w", domain.ErrArchiveWrite, e.rel, err)
	}

	// The size captured during the walk is what the header promised; a file
	// that shrank since then cannot be archived consistently.
	if _, err := io.CopyN(w, src, e.info.Size()); err != nil {
		if sink.err != nil {
			return fmt.Errorf("%w: failed to write %s: %w", domain.ErrArchiveWrite, e.rel, sink.err)
		}
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("file changed during backup: %w", err)
		}
		return fmt.Errorf("%w: failed to read %s: %w", domain.ErrSourceUnreadable, e.path, err)
	}

	b.logger.Debugf("Added %s to archive", e.rel)
	return nil
}

// sinkWriter remembers the first error returned by the destination so that
// copy failures can be attributed to the source or the archive.
type sinkWriter struct {
	w   io.Writer
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}
