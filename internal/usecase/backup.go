package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type Inspector interface {
	Inspect(path string) (*domain.SourceDirectory, error)
	ComputeSize(ctx context.Context, path string) (int64, error)
}

type ArchiveBuilder interface {
	Build(ctx context.Context, sourcePath, destPath string, kind domain.CompressionKind) (*domain.BackupArchive, error)
}

type LocalStorage interface {
	GetPath(filename string) string
}

type Metrics interface {
	ObserveBackup(source, kind, status string, took time.Duration, sourceBytes, archiveBytes int64)
}

// Request describes one backup. An empty Kind means ZIP; Compress false
// always means KindNone.
type Request struct {
	SourcePath    string
	CalculateSize bool
	Compress      bool
	Kind          domain.CompressionKind
}

type Result struct {
	RunID    string
	RecordID domain.RecordID
	Record   *domain.BackupRecord
	Source   *domain.SourceDirectory
	Archive  *domain.BackupArchive
	Duration time.Duration
}

// Backup runs the pipeline validating, sizing, archiving, recording. A
// record is only inserted once its archive is complete on disk, so every
// catalog entry points at an existing artifact.
type Backup struct {
	inspector    Inspector
	builder      ArchiveBuilder
	catalog      domain.Catalog
	localStorage LocalStorage
	notifier     domain.Notifier
	metrics      Metrics
	logger       Logger
	now          func() time.Time
}

// NewBackup wires the pipeline. notifier and metrics are optional.
func NewBackup(
	inspector Inspector,
	builder ArchiveBuilder,
	catalog domain.Catalog,
	localStorage LocalStorage,
	notifier domain.Notifier,
	metrics Metrics,
	logger Logger,
) *Backup {
	return &Backup{
		inspector:    inspector,
		builder:      builder,
		catalog:      catalog,
		localStorage: localStorage,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// run carries the state of one Execute call.
type run struct {
	id     string
	prefix string
	start  time.Time
	kind   domain.CompressionKind
	stage  domain.Stage
}

func (uc *Backup) Execute(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		id:    uuid.NewString()[:8],
		start: uc.now(),
		kind:  requestKind(req),
		stage: domain.StageValidating,
	}
	r.prefix = fmt.Sprintf("[%s]", r.id)

	res, err := uc.execute(ctx, req, r)
	if err != nil {
		uc.observe(r, nil, nil, err)
		uc.logger.Errorf("%s Backup failed while %s: %v", r.prefix, r.stage, err)
		return nil, &domain.StageError{Stage: r.stage, Err: err}
	}

	uc.observe(r, res.Source, res.Archive, nil)
	return res, nil
}

func (uc *Backup) execute(ctx context.Context, req Request, r *run) (*Result, error) {
	if !r.kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedCompression, r.kind)
	}

	source, err := uc.inspector.Inspect(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSource, err)
	}
	r.prefix = fmt.Sprintf("[%s %s]", source.Name, r.id)
	uc.logger.Infof("%s Starting backup of %s (%s)", r.prefix, source.Path, r.kind)

	if req.CalculateSize {
		r.stage = domain.StageSizing
		uc.size(ctx, source, r)
	}

	r.stage = domain.StageArchiving
	archive, err := uc.archive(ctx, source, r)
	if err != nil {
		return nil, err
	}

	r.stage = domain.StageRecording
	record := &domain.BackupRecord{
		SourceName:       source.Name,
		SourcePath:       source.Path,
		ArchivePath:      archive.Path,
		CompressionKind:  archive.Kind,
		SizeBytes:        source.Size,
		ArchiveSizeBytes: archive.Size,
		CreatedAt:        archive.CreatedAt,
	}

	id, err := uc.catalog.Insert(ctx, record)
	if err != nil {
		if archive.Kind != domain.KindNone {
			uc.logger.Warnf("%s Archive kept at %s but not recorded", r.prefix, archive.Path)
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return nil, err
	}

	r.stage = domain.StageDone
	took := uc.now().Sub(r.start)
	uc.logger.Infof("%s Backup #%d completed in %s: %s", r.prefix, id, took.Round(time.Millisecond), record.ArchivePath)

	uc.notify(ctx, record, r)

	return &Result{
		RunID:    r.id,
		RecordID: id,
		Record:   record,
		Source:   source,
		Archive:  archive,
		Duration: took,
	}, nil
}

// size fills in source.Size. Failures only cost the size, never the backup.
func (uc *Backup) size(ctx context.Context, source *domain.SourceDirectory, r *run) {
	uc.logger.Infof("%s Calculating size...", r.prefix)

	total, err := uc.inspector.ComputeSize(ctx, source.Path)
	if err != nil {
		uc.logger.Warnf("%s Size calculation failed, continuing without size: %v", r.prefix, err)
		return
	}

	source.Size = domain.Int64Ptr(total)
	uc.logger.Infof("%s Source size: %s", r.prefix, humanize.IBytes(uint64(total)))
}

func (uc *Backup) archive(ctx context.Context, source *domain.SourceDirectory, r *run) (*domain.BackupArchive, error) {
	dest := source.Path
	if r.kind != domain.KindNone {
		dest = uc.localStorage.GetPath(ArchiveName(source.Name, uc.now(), r.kind))
		uc.logger.Infof("%s Creating %s archive: %s", r.prefix, r.kind, dest)
	} else {
		uc.logger.Infof("%s Compression disabled, recording the source directory itself", r.prefix)
	}

	archive, err := uc.builder.Build(ctx, source.Path, dest, r.kind)
	if err != nil {
		if !errors.Is(err, domain.ErrArchiveWrite) {
			err = fmt.Errorf("%w: %w", domain.ErrArchiveWrite, err)
		}
		return nil, err
	}

	if archive.Kind == domain.KindNone {
		return archive, nil
	}

	// The record may only reference an artifact that exists right now.
	info, err := os.Stat(archive.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: archive missing after build: %w", domain.ErrArchiveWrite, err)
	}
	if archive.Size == nil {
		archive.Size = domain.Int64Ptr(info.Size())
	}

	uc.logger.Infof("%s Archive complete: %d entries, %s%s",
		r.prefix, archive.Entries, humanize.IBytes(uint64(*archive.Size)), ratio(source.Size, *archive.Size))
	return archive, nil
}

func (uc *Backup) notify(ctx context.Context, record *domain.BackupRecord, r *run) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Notify(ctx, record); err != nil {
		uc.logger.Warnf("%s Failed to send notification: %v", r.prefix, err)
		return
	}
	uc.logger.Debugf("%s Notification sent", r.prefix)
}

func (uc *Backup) observe(r *run, source *domain.SourceDirectory, archive *domain.BackupArchive, err error) {
	if uc.metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}

	name := ""
	sourceBytes, archiveBytes := int64(-1), int64(-1)
	if source != nil {
		name = source.Name
		if source.Size != nil {
			sourceBytes = *source.Size
		}
	}
	if archive != nil && archive.Size != nil {
		archiveBytes = *archive.Size
	}

	uc.metrics.ObserveBackup(name, string(r.kind), status, uc.now().Sub(r.start), sourceBytes, archiveBytes)
}

func requestKind(req Request) domain.CompressionKind {
	if !req.Compress {
		return domain.KindNone
	}
	if req.Kind == "" {
		return domain.KindZip
	}
	return req.Kind
}

func ratio(sourceSize *int64, archiveSize int64) string {
	if sourceSize == nil || *sourceSize == 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1f%% of original)", float64(archiveSize)/float64(*sourceSize)*100)
}
