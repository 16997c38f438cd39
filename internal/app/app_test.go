package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Yazan-Dev9/DataSafe/internal/config"
	"github.com/Yazan-Dev9/DataSafe/internal/domain"
	"github.com/Yazan-Dev9/DataSafe/internal/infrastructure/logger"
)

func testConfig(root, dsn string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "datasafe", LogLevel: "debug", LogFormat: "console"},
		Backup: config.BackupConfig{
			LocalPath:        filepath.Join(root, "backups"),
			CalculateSize:    true,
			Compress:         true,
			Compression:      "zip",
			CompressionLevel: -1,
		},
		Catalog: config.CatalogConfig{DSN: dsn},
		Metrics: config.MetricsConfig{Textfile: filepath.Join(root, "metrics", "datasafe.prom")},
	}
}

func TestApp(t *testing.T) {
	Convey("Given an app on a badger catalog", t, func() {
		root := t.TempDir()
		src := filepath.Join(root, "Music")
		So(os.MkdirAll(filepath.Join(src, "album"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(src, "album", "track.flac"), make([]byte, 4096), 0o644), ShouldBeNil)

		cfg := testConfig(root, "badger://"+filepath.Join(root, "backups", "catalog"))
		ctx := context.Background()

		a, err := New(ctx, cfg, WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		Convey("A backup is recorded and listed", func() {
			res, err := a.Backup(ctx, src, "")
			So(err, ShouldBeNil)
			So(res.Record.CompressionKind, ShouldEqual, domain.KindZip)
			So(a.ArchiveExists(res.Record), ShouldBeTrue)

			records, err := a.Records(ctx)
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)

			got, err := a.Record(ctx, res.RecordID)
			So(err, ShouldBeNil)
			So(got.SourcePath, ShouldEqual, src)

			archives, err := a.Archives(ctx)
			So(err, ShouldBeNil)
			So(len(archives), ShouldEqual, 1)
			So(archives[0].Path, ShouldEqual, res.Record.ArchivePath)

			So(a.Shutdown(), ShouldBeNil)

			Convey("Records survive a restart", func() {
				a, err := New(ctx, cfg, WithLogger(logger.Nop()))
				So(err, ShouldBeNil)
				defer a.Shutdown()

				got, err := a.Record(ctx, res.RecordID)
				So(err, ShouldBeNil)
				So(got.ArchivePath, ShouldEqual, res.Record.ArchivePath)
			})

			Convey("Shutdown writes the metrics textfile", func() {
				content, err := os.ReadFile(cfg.Metrics.Textfile)
				So(err, ShouldBeNil)
				So(string(content), ShouldContainSubstring, `datasafe_backups_total{kind="zip",status="success"} 1`)
			})
		})

		Convey("An explicit kind overrides the configuration", func() {
			defer a.Shutdown()

			res, err := a.Backup(ctx, src, domain.KindNone)
			So(err, ShouldBeNil)
			So(res.Record.ArchivePath, ShouldEqual, src)

			res, err = a.Backup(ctx, src, domain.KindTarLz4)
			So(err, ShouldBeNil)
			So(filepath.Ext(res.Record.ArchivePath), ShouldEqual, ".lz4")
		})

		Convey("Unknown records are reported", func() {
			defer a.Shutdown()

			_, err := a.Record(ctx, 99)
			So(errors.Is(err, domain.ErrRecordNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an unusable catalog", t, func() {
		root := t.TempDir()
		cfg := testConfig(root, "ftp://example.com/catalog")
		out := &syncBuffer{}
		log, err := logger.New(logger.Options{Level: "info", Output: out})
		So(err, ShouldBeNil)

		_, err = New(context.Background(), cfg, WithLogger(log))

		So(errors.Is(err, domain.ErrStoreUnavailable), ShouldBeTrue)

		Convey("The failure is logged and the logger flushed", func() {
			So(out.String(), ShouldContainSubstring, "Failed to open catalog")
			So(out.syncs, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a backup directory that cannot be created", t, func() {
		root := t.TempDir()
		blocker := filepath.Join(root, "blocker")
		So(os.WriteFile(blocker, nil, 0o644), ShouldBeNil)
		cfg := testConfig(root, "memory://")
		cfg.Backup.LocalPath = filepath.Join(blocker, "backups")
		out := &syncBuffer{}
		log, err := logger.New(logger.Options{Level: "info", Output: out})
		So(err, ShouldBeNil)

		_, err = New(context.Background(), cfg, WithLogger(log))

		So(err, ShouldNotBeNil)
		So(out.String(), ShouldContainSubstring, "Failed to initialize local storage")
		So(out.syncs, ShouldBeGreaterThan, 0)
	})
}

// syncBuffer is a log sink that counts flushes.
type syncBuffer struct {
	bytes.Buffer
	syncs int
}

func (b *syncBuffer) Sync() error {
	b.syncs++
	return nil
}
