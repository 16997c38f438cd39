package usecase

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Yazan-Dev9/DataSafe/internal/adapter/compressor"
	"github.com/Yazan-Dev9/DataSafe/internal/adapter/database"
	"github.com/Yazan-Dev9/DataSafe/internal/adapter/inspector"
	"github.com/Yazan-Dev9/DataSafe/internal/adapter/storage"
	"github.com/Yazan-Dev9/DataSafe/internal/domain"
	"github.com/Yazan-Dev9/DataSafe/internal/infrastructure/logger"
)

// countingCatalog wraps a catalog and counts insert attempts.
type countingCatalog struct {
	domain.Catalog
	mu      sync.Mutex
	inserts int
	err     error
}

func (c *countingCatalog) Insert(ctx context.Context, r *domain.BackupRecord) (domain.RecordID, error) {
	c.mu.Lock()
	c.inserts++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return c.Catalog.Insert(ctx, r)
}

type failingBuilder struct {
	err error
}

func (f *failingBuilder) Build(ctx context.Context, src, dest string, kind domain.CompressionKind) (*domain.BackupArchive, error) {
	return nil, f.err
}

type sizeFailingInspector struct {
	*inspector.DirectoryInspector
}

func (s sizeFailingInspector) ComputeSize(ctx context.Context, path string) (int64, error) {
	return 0, errors.New("walk exploded")
}

type recordingNotifier struct {
	records []*domain.BackupRecord
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, r *domain.BackupRecord) error {
	n.records = append(n.records, r)
	return n.err
}

type observation struct {
	source, kind, status string
	sourceBytes          int64
	archiveBytes         int64
}

type recordingMetrics struct {
	observed []observation
}

func (m *recordingMetrics) ObserveBackup(source, kind, status string, took time.Duration, sourceBytes, archiveBytes int64) {
	m.observed = append(m.observed, observation{source, kind, status, sourceBytes, archiveBytes})
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestBackup(t *testing.T) {
	Convey("Given a backup pipeline over a temporary home", t, func() {
		home := t.TempDir()
		destDir := filepath.Join(home, ".backups")

		log := logger.Nop()
		insp := inspector.New(log)
		builder := compressor.New(log, -1)
		local, err := storage.NewLocal(destDir)
		So(err, ShouldBeNil)

		catalog := &countingCatalog{Catalog: database.NewMemory()}
		So(catalog.EnsureSchema(context.Background()), ShouldBeNil)
		notifier := &recordingNotifier{}
		metrics := &recordingMetrics{}

		uc := NewBackup(insp, builder, catalog, local, notifier, metrics, log)
		ctx := context.Background()

		documents := filepath.Join(home, "Documents")
		writeFile(t, filepath.Join(documents, "letter.txt"), 3072)
		writeFile(t, filepath.Join(documents, "report.txt"), 5120)

		Convey("Backing up Documents with default options", func() {
			res, err := uc.Execute(ctx, Request{SourcePath: documents, CalculateSize: true, Compress: true})

			Convey("It produces one ZIP with both files and a matching record", func() {
				So(err, ShouldBeNil)
				So(res.RecordID, ShouldNotEqual, domain.RecordID(0))
				So(len(res.RunID), ShouldEqual, 8)

				rec := res.Record
				So(rec.CompressionKind, ShouldEqual, domain.KindZip)
				So(rec.SourceName, ShouldEqual, "Documents")
				So(rec.SourcePath, ShouldEqual, documents)
				So(rec.SizeBytes, ShouldNotBeNil)
				So(*rec.SizeBytes, ShouldEqual, int64(8192))
				So(rec.ArchiveSizeBytes, ShouldNotBeNil)
				So(filepath.Dir(rec.ArchivePath), ShouldEqual, destDir)

				name, _, kind, err := ParseArchiveName(filepath.Base(rec.ArchivePath))
				So(err, ShouldBeNil)
				So(name, ShouldEqual, "Documents")
				So(kind, ShouldEqual, domain.KindZip)

				zr, err := zip.OpenReader(rec.ArchivePath)
				So(err, ShouldBeNil)
				defer zr.Close()
				So(len(zr.File), ShouldEqual, 2)
				So(res.Archive.Entries, ShouldEqual, 2)

				stored, err := catalog.Get(ctx, res.RecordID)
				So(err, ShouldBeNil)
				So(stored.ArchivePath, ShouldEqual, rec.ArchivePath)
				So(*stored.SizeBytes, ShouldEqual, int64(8192))
			})

			Convey("It notifies and observes the committed record", func() {
				So(err, ShouldBeNil)
				So(len(notifier.records), ShouldEqual, 1)
				So(notifier.records[0].ID, ShouldEqual, res.RecordID)

				So(len(metrics.observed), ShouldEqual, 1)
				So(metrics.observed[0], ShouldResemble, observation{
					source: "Documents", kind: "zip", status: "success",
					sourceBytes: 8192, archiveBytes: *res.Record.ArchiveSizeBytes,
				})
			})
		})

		Convey("Backing up Projects without compression", func() {
			projects := filepath.Join(home, "Projects")
			writeFile(t, filepath.Join(projects, "main.go"), 100)
			writeFile(t, filepath.Join(projects, "pkg", "lib.go"), 250)

			res, err := uc.Execute(ctx, Request{SourcePath: projects, CalculateSize: true, Compress: false})

			Convey("The record points at the source directory itself", func() {
				So(err, ShouldBeNil)
				So(res.Record.ArchivePath, ShouldEqual, projects)
				So(res.Record.CompressionKind, ShouldEqual, domain.KindNone)
				So(*res.Record.SizeBytes, ShouldEqual, int64(350))
				So(res.Record.ArchiveSizeBytes, ShouldBeNil)
				So(dirEntries(t, destDir), ShouldBeEmpty)
			})
		})

		Convey("Backing up a path that does not exist", func() {
			_, err := uc.Execute(ctx, Request{SourcePath: "/no/such/dir", CalculateSize: true, Compress: true})

			Convey("It fails validation before writing anything", func() {
				So(errors.Is(err, domain.ErrInvalidSource), ShouldBeTrue)
				So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)

				stage, ok := domain.FailedStage(err)
				So(ok, ShouldBeTrue)
				So(stage, ShouldEqual, domain.StageValidating)

				So(catalog.inserts, ShouldEqual, 0)
				So(dirEntries(t, destDir), ShouldBeEmpty)
				So(len(notifier.records), ShouldEqual, 0)
				So(metrics.observed[0].status, ShouldEqual, "failure")
			})
		})

		Convey("Backing up a regular file", func() {
			_, err := uc.Execute(ctx, Request{SourcePath: filepath.Join(documents, "letter.txt"), Compress: true})

			So(errors.Is(err, domain.ErrInvalidSource), ShouldBeTrue)
			So(errors.Is(err, domain.ErrNotADirectory), ShouldBeTrue)
		})

		Convey("Requesting an unknown compression kind", func() {
			_, err := uc.Execute(ctx, Request{SourcePath: documents, Compress: true, Kind: "rar"})

			So(errors.Is(err, domain.ErrUnsupportedCompression), ShouldBeTrue)
			stage, _ := domain.FailedStage(err)
			So(stage, ShouldEqual, domain.StageValidating)
			So(catalog.inserts, ShouldEqual, 0)
		})

		Convey("When the archive build fails", func() {
			uc := NewBackup(insp, &failingBuilder{err: domain.ErrArchiveWrite}, catalog, local, notifier, metrics, log)
			_, err := uc.Execute(ctx, Request{SourcePath: documents, CalculateSize: true, Compress: true, Kind: domain.KindTarGz})

			Convey("Nothing is recorded", func() {
				So(errors.Is(err, domain.ErrArchiveWrite), ShouldBeTrue)
				stage, _ := domain.FailedStage(err)
				So(stage, ShouldEqual, domain.StageArchiving)
				So(catalog.inserts, ShouldEqual, 0)
			})
		})

		Convey("When the source changes while archiving", func() {
			uc := NewBackup(insp, &failingBuilder{err: domain.ErrSourceUnreadable}, catalog, local, nil, nil, log)
			_, err := uc.Execute(ctx, Request{SourcePath: documents, Compress: true})

			So(errors.Is(err, domain.ErrSourceUnreadable), ShouldBeTrue)
			So(errors.Is(err, domain.ErrArchiveWrite), ShouldBeTrue)
			stage, _ := domain.FailedStage(err)
			So(stage, ShouldEqual, domain.StageArchiving)
			So(catalog.inserts, ShouldEqual, 0)
		})

		Convey("When the source is a symlink to a directory", func() {
			link := filepath.Join(home, "Docs")
			So(os.Symlink(documents, link), ShouldBeNil)

			res, err := uc.Execute(ctx, Request{SourcePath: link, CalculateSize: true, Compress: true})

			Convey("The link is followed and its contents are archived", func() {
				So(err, ShouldBeNil)
				So(res.Record.SourcePath, ShouldEqual, link)
				So(res.Record.SourceName, ShouldEqual, "Docs")
				So(*res.Record.SizeBytes, ShouldEqual, int64(8192))
				So(res.Archive.Entries, ShouldEqual, 2)

				zr, err := zip.OpenReader(res.Record.ArchivePath)
				So(err, ShouldBeNil)
				defer zr.Close()
				names := make([]string, 0, len(zr.File))
				for _, f := range zr.File {
					names = append(names, f.Name)
				}
				So(names, ShouldResemble, []string{"letter.txt", "report.txt"})
			})
		})

		Convey("When the catalog rejects the insert", func() {
			catalog.err = errors.New("disk I/O error")
			_, err := uc.Execute(ctx, Request{SourcePath: documents, CalculateSize: true, Compress: true, Kind: domain.KindTar})

			Convey("The failure is a store error and the archive stays on disk", func() {
				So(errors.Is(err, domain.ErrStoreUnavailable), ShouldBeTrue)
				stage, _ := domain.FailedStage(err)
				So(stage, ShouldEqual, domain.StageRecording)

				files := dirEntries(t, destDir)
				So(len(files), ShouldEqual, 1)
				_, _, kind, err := ParseArchiveName(files[0])
				So(err, ShouldBeNil)
				So(kind, ShouldEqual, domain.KindTar)
				So(len(notifier.records), ShouldEqual, 0)
			})
		})

		Convey("When size calculation fails", func() {
			uc := NewBackup(sizeFailingInspector{insp}, builder, catalog, local, nil, nil, log)
			res, err := uc.Execute(ctx, Request{SourcePath: documents, CalculateSize: true, Compress: true})

			Convey("The backup still succeeds with an unknown size", func() {
				So(err, ShouldBeNil)
				So(res.Record.SizeBytes, ShouldBeNil)
				So(res.Record.ArchiveSizeBytes, ShouldNotBeNil)
			})
		})

		Convey("When size calculation is disabled", func() {
			res, err := uc.Execute(ctx, Request{SourcePath: documents, CalculateSize: false, Compress: true})

			So(err, ShouldBeNil)
			So(res.Record.SizeBytes, ShouldBeNil)
			So(metrics.observed[0].sourceBytes, ShouldEqual, int64(-1))
		})

		Convey("When the notifier fails", func() {
			notifier.err = errors.New("telegram down")
			res, err := uc.Execute(ctx, Request{SourcePath: documents, Compress: true})

			So(err, ShouldBeNil)
			So(res.RecordID, ShouldNotEqual, domain.RecordID(0))
		})

		Convey("When two runs of the same source share a timestamp", func() {
			fixed := time.Date(2025, 3, 1, 10, 30, 0, 0, time.Local)
			uc.now = func() time.Time { return fixed }

			first, err := uc.Execute(ctx, Request{SourcePath: documents, Compress: true})
			So(err, ShouldBeNil)

			_, err = uc.Execute(ctx, Request{SourcePath: documents, Compress: true})

			Convey("The second fails and the first archive is untouched", func() {
				So(errors.Is(err, domain.ErrDestinationExists), ShouldBeTrue)
				So(errors.Is(err, domain.ErrArchiveWrite), ShouldBeTrue)
				So(filepath.Base(first.Record.ArchivePath), ShouldEqual, "Documents-2025-03-01-103000.zip")

				records, err := catalog.List(ctx)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)

				zr, err := zip.OpenReader(first.Record.ArchivePath)
				So(err, ShouldBeNil)
				zr.Close()
			})
		})

		Convey("Every recorded archive exists on disk", func() {
			for _, kind := range domain.CompressionKinds {
				_, err := uc.Execute(ctx, Request{SourcePath: documents, Compress: true, Kind: kind})
				So(err, ShouldBeNil)
				// archive names have second resolution
				uc.now = func(base time.Time) func() time.Time {
					return func() time.Time { return base.Add(time.Second) }
				}(uc.now())
			}

			records, err := catalog.List(ctx)
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, len(domain.CompressionKinds))
			for _, rec := range records {
				_, statErr := os.Stat(rec.ArchivePath)
				So(statErr, ShouldBeNil)
			}
		})
	})
}
