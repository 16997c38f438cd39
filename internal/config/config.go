package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

const EnvPrefix = "DATASAFE"

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Backup  BackupConfig  `mapstructure:"backup"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type AppConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	LogLevel  string `mapstructure:"log_level" validate:"required"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=console json"`
	LogFile   string `mapstructure:"log_file"`
}

type BackupConfig struct {
	LocalPath        string `mapstructure:"local_path" validate:"required"`
	CalculateSize    bool   `mapstructure:"calculate_size"`
	Compress         bool   `mapstructure:"compress"`
	Compression      string `mapstructure:"compression"`
	CompressionLevel int    `mapstructure:"compression_level" validate:"min=-1,max=9"`
}

type CatalogConfig struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token" validate:"required_if=Enabled true"`
	ChatID   int64  `mapstructure:"chat_id" validate:"required_if=Enabled true"`
	SendFile bool   `mapstructure:"send_file"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"log-level":         "app.log_level",
	"log-format":        "app.log_format",
	"log-file":          "app.log_file",
	"dest":              "backup.local_path",
	"size":              "backup.calculate_size",
	"compress":          "backup.compress",
	"compression":       "backup.compression",
	"compression-level": "backup.compression_level",
	"catalog":           "catalog.dsn",
	"metrics-textfile":  "metrics.textfile",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "datasafe")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")
	v.SetDefault("app.log_file", "")

	v.SetDefault("backup.local_path", "~/.backups")
	v.SetDefault("backup.calculate_size", true)
	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.compression", string(domain.KindZip))
	v.SetDefault("backup.compression_level", -1)

	v.SetDefault("catalog.dsn", "badger://~/.backups/catalog")

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", 0)
	v.SetDefault("notify.telegram.send_file", false)

	v.SetDefault("metrics.textfile", "")
}

// Load reads configuration from defaults, the optional YAML file at path,
// DATASAFE_* environment variables and any flags in flags that were set on
// the command line, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return translate(verrs)
		}
		return err
	}

	if _, err := domain.ParseCompressionKind(c.Backup.Compression); err != nil {
		return fmt.Errorf("backup.compression: %w", err)
	}

	return nil
}

// Kind is the compression kind a backup uses by default. Disabling
// compression always yields KindNone.
func (c *Config) Kind() domain.CompressionKind {
	if !c.Backup.Compress {
		return domain.KindNone
	}
	kind, err := domain.ParseCompressionKind(c.Backup.Compression)
	if err != nil {
		return domain.KindZip
	}
	return kind
}

func (c *Config) expandPaths() error {
	var err error
	if c.Backup.LocalPath, err = ExpandHome(c.Backup.LocalPath); err != nil {
		return err
	}
	if c.App.LogFile, err = ExpandHome(c.App.LogFile); err != nil {
		return err
	}
	if c.Metrics.Textfile, err = ExpandHome(c.Metrics.Textfile); err != nil {
		return err
	}

	if scheme, rest, ok := strings.Cut(c.Catalog.DSN, "://"); ok {
		if rest, err = ExpandHome(rest); err != nil {
			return err
		}
		c.Catalog.DSN = scheme + "://" + rest
	} else if c.Catalog.DSN, err = ExpandHome(c.Catalog.DSN); err != nil {
		return err
	}
	return nil
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func translate(verrs validator.ValidationErrors) error {
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "required_if":
			messages = append(messages, fmt.Sprintf("%s is required when %s", field, strings.ReplaceAll(fe.Param(), " ", "=")))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}
