package app

import (
	"context"
	"fmt"

	"github.com/Yazan-Dev9/DataSafe/internal/adapter/compressor"
	"github.com/Yazan-Dev9/DataSafe/internal/adapter/database"
	"github.com/Yazan-Dev9/DataSafe/internal/adapter/inspector"
	"github.com/Yazan-Dev9/DataSafe/internal/adapter/notifier"
	"github.com/Yazan-Dev9/DataSafe/internal/adapter/storage"
	"github.com/Yazan-Dev9/DataSafe/internal/config"
	"github.com/Yazan-Dev9/DataSafe/internal/domain"
	"github.com/Yazan-Dev9/DataSafe/internal/infrastructure/logger"
	"github.com/Yazan-Dev9/DataSafe/internal/infrastructure/metrics"
	"github.com/Yazan-Dev9/DataSafe/internal/usecase"
)

// App owns the process wide resources: the catalog connection, the backup
// directory, the logger and the metrics registry.
type App struct {
	config       *config.Config
	logger       *logger.Logger
	catalog      domain.Catalog
	localStorage *storage.LocalStorage
	metrics      *metrics.Metrics
	backupUC     *usecase.Backup
}

// Option customises New.
type Option func(*options)

type options struct {
	logger *logger.Logger
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		var err error
		log, err = logger.New(logger.Options{
			Level:  cfg.App.LogLevel,
			Format: cfg.App.LogFormat,
			File:   cfg.App.LogFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	log.Debugf("Starting %s", cfg.App.Name)

	localStorage, err := storage.NewLocal(cfg.Backup.LocalPath)
	if err != nil {
		log.Errorf("Failed to initialize local storage: %v", err)
		log.Close()
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	catalog, err := database.Open(cfg.Catalog.DSN, log)
	if err != nil {
		log.Errorf("Failed to open catalog: %v", err)
		log.Close()
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := catalog.EnsureSchema(ctx); err != nil {
		_ = catalog.Close()
		log.Errorf("Failed to prepare catalog: %v", err)
		log.Close()
		return nil, fmt.Errorf("failed to prepare catalog: %w", err)
	}
	log.Debugf("Catalog ready: %s", cfg.Catalog.DSN)

	m := metrics.New()

	var notify domain.Notifier
	if cfg.Notify.Telegram.Enabled {
		tg, err := notifier.NewTelegram(notifier.TelegramConfig{
			BotToken: cfg.Notify.Telegram.BotToken,
			ChatID:   cfg.Notify.Telegram.ChatID,
			SendFile: cfg.Notify.Telegram.SendFile,
		})
		if err != nil {
			log.Errorf("Failed to initialize Telegram: %v", err)
		} else {
			notify = tg
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	backupUC := usecase.NewBackup(
		inspector.New(log),
		compressor.New(log, cfg.Backup.CompressionLevel),
		catalog,
		localStorage,
		notify,
		m,
		log,
	)

	return &App{
		config:       cfg,
		logger:       log,
		catalog:      catalog,
		localStorage: localStorage,
		metrics:      m,
		backupUC:     backupUC,
	}, nil
}

// Backup runs one backup of sourcePath with the configured defaults.
// kind overrides the configured compression kind when not empty.
func (a *App) Backup(ctx context.Context, sourcePath string, kind domain.CompressionKind) (*usecase.Result, error) {
	req := usecase.Request{
		SourcePath:    sourcePath,
		CalculateSize: a.config.Backup.CalculateSize,
		Compress:      a.config.Backup.Compress,
		Kind:          a.config.Kind(),
	}
	if kind != "" {
		req.Compress = kind != domain.KindNone
		req.Kind = kind
	}
	return a.backupUC.Execute(ctx, req)
}

func (a *App) Records(ctx context.Context) ([]*domain.BackupRecord, error) {
	return a.catalog.List(ctx)
}

func (a *App) Record(ctx context.Context, id domain.RecordID) (*domain.BackupRecord, error) {
	return a.catalog.Get(ctx, id)
}

// Archives lists the files currently in the backup directory.
func (a *App) Archives(ctx context.Context) ([]storage.ArchiveFile, error) {
	return a.localStorage.List(ctx)
}

// ArchiveExists reports whether the artifact of record is still on disk.
func (a *App) ArchiveExists(record *domain.BackupRecord) bool {
	return a.localStorage.Exists(record.ArchivePath)
}

func (a *App) BackupDir() string {
	return a.localStorage.BasePath()
}

// Shutdown releases the catalog and flushes metrics and logs. It is safe to
// call once after New succeeded.
func (a *App) Shutdown() error {
	var firstErr error

	if err := a.catalog.Close(); err != nil {
		a.logger.Errorf("Failed to close catalog: %v", err)
		firstErr = fmt.Errorf("close catalog: %w", err)
	}

	if path := a.config.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.logger.Errorf("Failed to write metrics: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			a.logger.Debugf("Metrics written to %s", path)
		}
	}

	a.logger.Close()
	return firstErr
}
