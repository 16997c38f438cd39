// cmd/datasafe/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/gosuri/uitable"
	"github.com/spf13/pflag"

	"github.com/Yazan-Dev9/DataSafe/internal/app"
	"github.com/Yazan-Dev9/DataSafe/internal/config"
	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

const usage = `Usage: datasafe [flags] <command> [args]

Commands:
  backup <dir>   archive a directory and record it in the catalog
  list           list recorded backups, oldest first
  show <id>      show one recorded backup
  archives       list files in the backup directory

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("datasafe", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}

	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	asJSON := flags.Bool("json", false, "print records as JSON")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("log-file", "", "also write JSON logs to this file")
	flags.String("dest", "~/.backups", "directory archives are written to")
	flags.Bool("size", true, "calculate the source size before archiving")
	flags.Bool("compress", true, "create an archive; false records the directory as is")
	flags.StringP("compression", "k", "zip", "archive kind (zip, tar, tar.gz, tar.lz4, tar.xz)")
	flags.Int("compression-level", -1, "deflate/gzip level 0-9, -1 for the codec default")
	flags.String("catalog", "badger://~/.backups/catalog", "catalog connection string (badger://, sqlite://, memory://)")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file on exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	switch cmd := rest[0]; cmd {
	case "backup":
		if len(rest) != 2 {
			return fmt.Errorf("usage: datasafe backup <dir>")
		}
		return backup(ctx, application, rest[1], stdout)
	case "list":
		return list(ctx, application, *asJSON, stdout)
	case "show":
		if len(rest) != 2 {
			return fmt.Errorf("usage: datasafe show <id>")
		}
		return show(ctx, application, rest[1], *asJSON, stdout)
	case "archives":
		return archives(ctx, application, stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func backup(ctx context.Context, a *app.App, dir string, out io.Writer) error {
	res, err := a.Backup(ctx, dir, "")
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Backup #%d completed in %s\n\n", res.RecordID, res.Duration.Round(time.Millisecond))
	printRecord(out, res.Record, true)
	return nil
}

func list(ctx context.Context, a *app.App, asJSON bool, out io.Writer) error {
	records, err := a.Records(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No backups recorded.")
		return nil
	}

	table := newTable()
	table.RightAlign(0)
	table.RightAlign(4)
	table.RightAlign(6)
	table.AddRow("ID", "CREATED", "SOURCE", "KIND", "SIZE", "ARCHIVE", "ARCHIVE SIZE")
	for _, r := range records {
		archive := r.ArchivePath
		if !a.ArchiveExists(r) {
			archive += " (missing)"
		}
		table.AddRow(
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.SourcePath,
			r.CompressionKind,
			sizeText(r.SizeBytes),
			archive,
			sizeText(r.ArchiveSizeBytes),
		)
	}
	_, err = fmt.Fprintln(out, table)
	return err
}

func show(ctx context.Context, a *app.App, rawID string, asJSON bool, out io.Writer) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid record id %q", rawID)
	}

	record, err := a.Record(ctx, domain.RecordID(id))
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	printRecord(out, record, a.ArchiveExists(record))
	return nil
}

func archives(ctx context.Context, a *app.App, out io.Writer) error {
	files, err := a.Archives(ctx)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Fprintf(out, "No archives in %s.\n", a.BackupDir())
		return nil
	}

	table := newTable()
	table.RightAlign(1)
	table.AddRow("NAME", "SIZE", "MODIFIED")
	for _, f := range files {
		table.AddRow(f.Name, humanize.IBytes(uint64(f.Size)), humanize.Time(f.ModTime))
	}
	_, err = fmt.Fprintln(out, table)
	return err
}

func newTable() *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	return table
}

func printRecord(out io.Writer, r *domain.BackupRecord, archiveExists bool) {
	archive := r.ArchivePath
	if !archiveExists {
		archive += " (missing)"
	}

	fmt.Fprintf(out, "Record:       #%d\n", r.ID)
	fmt.Fprintf(out, "Source:       %s\n", r.SourcePath)
	fmt.Fprintf(out, "Size:         %s\n", sizeText(r.SizeBytes))
	fmt.Fprintf(out, "Compression:  %s\n", r.CompressionKind)
	fmt.Fprintf(out, "Archive:      %s\n", archive)
	fmt.Fprintf(out, "Archive size: %s\n", sizeText(r.ArchiveSizeBytes))
	fmt.Fprintf(out, "Created:      %s (%s)\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(r.CreatedAt))
}

func sizeText(size *int64) string {
	if size == nil {
		return "unknown"
	}
	return humanize.IBytes(uint64(*size))
}
