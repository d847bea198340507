package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "sqldash"

// Config is the root configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
	Query  QueryConfig  `mapstructure:"query"`
	Editor EditorConfig `mapstructure:"editor"`
	AI     AIConfig     `mapstructure:"ai"`
	UI     UIConfig     `mapstructure:"ui"`
}

// StoreConfig locates the local SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// QueryConfig bounds report execution.
type QueryConfig struct {
	RowLimit int           `mapstructure:"row_limit"`
	MaxRows  int           `mapstructure:"max_rows"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EditorConfig tunes the placeholder suggestion popup.
type EditorConfig struct {
	MaxVisible int  `mapstructure:"max_visible"`
	AutoClose  bool `mapstructure:"auto_close"`
}

type AIConfig struct {
	Model string `mapstructure:"model"`
}

type UIConfig struct {
	Theme string `mapstructure:"theme"`
}

// Load reads configuration from path, or from config.yaml in the user
// config directory or the working directory when path is empty. A missing
// file is not an error. SQLDASH_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appName))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SQLDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks value ranges.
func Validate(cfg *Config) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("log.level must be one of: %v, got %s", validLevels, cfg.Log.Level)
	}
	if cfg.Query.RowLimit < 0 {
		return fmt.Errorf("query.row_limit must be >= 0, got %d", cfg.Query.RowLimit)
	}
	if cfg.Query.MaxRows < 1 {
		return fmt.Errorf("query.max_rows must be >= 1, got %d", cfg.Query.MaxRows)
	}
	if cfg.Query.RowLimit > cfg.Query.MaxRows {
		return fmt.Errorf("query.row_limit (%d) must be <= query.max_rows (%d)", cfg.Query.RowLimit, cfg.Query.MaxRows)
	}
	if cfg.Query.Timeout < time.Second || cfg.Query.Timeout > time.Hour {
		return fmt.Errorf("query.timeout must be between 1s and 1h, got %v", cfg.Query.Timeout)
	}
	if cfg.Editor.MaxVisible < 1 || cfg.Editor.MaxVisible > 50 {
		return fmt.Errorf("editor.max_visible must be between 1 and 50, got %d", cfg.Editor.MaxVisible)
	}
	validThemes := []string{"dark", "light"}
	if !slices.Contains(validThemes, cfg.UI.Theme) {
		return fmt.Errorf("ui.theme must be one of: %v, got %s", validThemes, cfg.UI.Theme)
	}
	return nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("store.path", defaultStorePath())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")

	v.SetDefault("query.row_limit", 10)
	v.SetDefault("query.max_rows", 10000)
	v.SetDefault("query.timeout", "60s")

	v.SetDefault("editor.max_visible", 8)
	v.SetDefault("editor.auto_close", false)

	v.SetDefault("ai.model", "")

	v.SetDefault("ui.theme", "dark")
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, appName, appName+".db")
}
