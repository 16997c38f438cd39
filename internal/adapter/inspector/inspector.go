package inspector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// DirectoryInspector validates source directories and measures them.
type DirectoryInspector struct {
	logger Logger
}

func New(logger Logger) *DirectoryInspector {
	return &DirectoryInspector{logger: logger}
}

// Inspect resolves path to an absolute directory and captures its name and
// modification time. Size is left nil.
func (i *DirectoryInspector) Inspect(path string) (*domain.SourceDirectory, error) {
	abs, _, info, err := statDir(path)
	if err != nil {
		return nil, err
	}

	modTime := info.ModTime()
	if modTime.IsZero() {
		modTime = time.Now().Truncate(time.Second)
	}

	return &domain.SourceDirectory{
		Path:    abs,
		Name:    domain.SafeName(filepath.Base(abs)),
		ModTime: modTime,
	}, nil
}

// ComputeSize sums the size of every regular file under path. A symlinked
// root is followed, symlinks below it are not. Entries that cannot be read
// are skipped and logged; only a missing or non-directory root is an error.
func (i *DirectoryInspector) ComputeSize(ctx context.Context, path string) (int64, error) {
	_, root, _, err := statDir(path)
	if err != nil {
		return 0, err
	}

	var total int64
	skipped := 0

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root && d == nil {
				return err
			}
			skipped++
			i.logger.Debugf("Skipping unreadable entry %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skipped++
			i.logger.Debugf("Skipping %s: %v", p, err)
			return nil
		}
		total += info.Size()
		return nil
	})
	if walkErr != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", root, walkErr)
	}

	if skipped > 0 {
		i.logger.Warnf("Size of %s is partial: %d entries could not be read", root, skipped)
	}
	return total, nil
}

// statDir returns the absolute form of path, the same path with symlinks
// resolved, and the directory's info.
func statDir(path string) (string, string, os.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", nil, fmt.Errorf("%w: %s", domain.ErrNotFound, abs)
	}
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", "", nil, fmt.Errorf("%w: %s", domain.ErrNotADirectory, abs)
	}

	// WalkDir does not descend into a symlinked root.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to resolve links in %s: %w", abs, err)
	}
	return abs, resolved, info, nil
}
