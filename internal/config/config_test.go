package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/pflag"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	home, _ := os.UserHomeDir()

	Convey("Given no config file", t, func() {
		cfg, err := Load("", nil)

		Convey("Defaults are applied and ~ is expanded", func() {
			So(err, ShouldBeNil)
			So(cfg.App.Name, ShouldEqual, "datasafe")
			So(cfg.App.LogLevel, ShouldEqual, "info")
			So(cfg.App.LogFormat, ShouldEqual, "console")
			So(cfg.Backup.LocalPath, ShouldEqual, filepath.Join(home, ".backups"))
			So(cfg.Backup.CalculateSize, ShouldBeTrue)
			So(cfg.Backup.CompressionLevel, ShouldEqual, -1)
			So(cfg.Catalog.DSN, ShouldEqual, "badger://"+filepath.Join(home, ".backups", "catalog"))
			So(cfg.Kind(), ShouldEqual, domain.KindZip)
			So(cfg.Notify.Telegram.Enabled, ShouldBeFalse)
		})
	})

	Convey("Given a YAML file", t, func() {
		path := writeConfig(t, `
app:
  log_level: debug
  log_format: json
backup:
  local_path: /srv/backups
  compression: tgz
  compression_level: 9
catalog:
  dsn: sqlite:///srv/backups/catalog.db
`)
		cfg, err := Load(path, nil)

		Convey("Its values override the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.App.LogLevel, ShouldEqual, "debug")
			So(cfg.App.LogFormat, ShouldEqual, "json")
			So(cfg.Backup.LocalPath, ShouldEqual, "/srv/backups")
			So(cfg.Kind(), ShouldEqual, domain.KindTarGz)
			So(cfg.Backup.CompressionLevel, ShouldEqual, 9)
			So(cfg.Catalog.DSN, ShouldEqual, "sqlite:///srv/backups/catalog.db")
		})

		Convey("Environment variables take precedence over the file", func() {
			os.Setenv("DATASAFE_BACKUP_COMPRESSION", "tar")
			os.Setenv("DATASAFE_BACKUP_CALCULATE_SIZE", "false")
			defer os.Unsetenv("DATASAFE_BACKUP_COMPRESSION")
			defer os.Unsetenv("DATASAFE_BACKUP_CALCULATE_SIZE")

			cfg, err := Load(path, nil)
			So(err, ShouldBeNil)
			So(cfg.Kind(), ShouldEqual, domain.KindTar)
			So(cfg.Backup.CalculateSize, ShouldBeFalse)
		})

		Convey("Flags set on the command line take precedence over everything", func() {
			os.Setenv("DATASAFE_BACKUP_COMPRESSION", "tar")
			defer os.Unsetenv("DATASAFE_BACKUP_COMPRESSION")

			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flags.String("compression", "zip", "")
			flags.Bool("compress", true, "")
			flags.String("dest", "", "")
			So(flags.Parse([]string{"--compression=xz", "--dest=/mnt/usb"}), ShouldBeNil)

			cfg, err := Load(path, flags)
			So(err, ShouldBeNil)
			So(cfg.Kind(), ShouldEqual, domain.KindTarXz)
			So(cfg.Backup.LocalPath, ShouldEqual, "/mnt/usb")
		})

		Convey("Unset flags leave configured values alone", func() {
			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flags.String("compression", "zip", "")
			So(flags.Parse(nil), ShouldBeNil)

			cfg, err := Load(path, flags)
			So(err, ShouldBeNil)
			So(cfg.Kind(), ShouldEqual, domain.KindTarGz)
		})
	})

	Convey("Given compression disabled", t, func() {
		path := writeConfig(t, "backup:\n  compress: false\n  compression: tar.xz\n")
		cfg, err := Load(path, nil)

		So(err, ShouldBeNil)
		So(cfg.Kind(), ShouldEqual, domain.KindNone)
	})

	Convey("Given invalid settings", t, func() {
		Convey("An unknown compression kind is rejected", func() {
			_, err := Load(writeConfig(t, "backup:\n  compression: rar\n"), nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "backup.compression")
		})

		Convey("A compression level out of range is rejected", func() {
			_, err := Load(writeConfig(t, "backup:\n  compression_level: 12\n"), nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "Backup.CompressionLevel must be at most 9")
		})

		Convey("An unknown log format is rejected", func() {
			_, err := Load(writeConfig(t, "app:\n  log_format: xml\n"), nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "App.LogFormat")
		})

		Convey("Telegram needs credentials once enabled", func() {
			_, err := Load(writeConfig(t, "notify:\n  telegram:\n    enabled: true\n"), nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "Notify.Telegram.BotToken is required")
			So(err.Error(), ShouldContainSubstring, "Notify.Telegram.ChatID is required")
		})

		Convey("A missing file is reported", func() {
			_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to read config")
		})
	})
}

func TestExpandHome(t *testing.T) {
	Convey("ExpandHome", t, func() {
		home, err := os.UserHomeDir()
		So(err, ShouldBeNil)

		got, err := ExpandHome("~/x/y")
		So(err, ShouldBeNil)
		So(got, ShouldEqual, filepath.Join(home, "x", "y"))

		got, _ = ExpandHome("~")
		So(got, ShouldEqual, home)

		got, _ = ExpandHome("/abs/~/path")
		So(got, ShouldEqual, "/abs/~/path")

		got, _ = ExpandHome("~other/path")
		So(got, ShouldEqual, "~other/path")
	})
}
