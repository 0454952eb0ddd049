package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"olie/internal/board"
	"olie/internal/models"
	"olie/internal/util"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Addr      string         `yaml:"addr"`
	StaticDir string         `yaml:"static_dir"`
	LogLevel  string         `yaml:"log_level"`
	Database  DatabaseConfig `yaml:"database"`
	Board     BoardConfig    `yaml:"board"`
	S3        S3Config       `yaml:"s3"`
}

// DatabaseConfig selects the SQLite driver and file.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// BoardConfig describes the column layout shared by every board.
type BoardConfig struct {
	Columns         []string `yaml:"columns"`
	UnmatchedStatus string   `yaml:"unmatched_status"`
	RenumberOnMove  bool     `yaml:"renumber_on_move"`
}

// S3Config points at an S3 compatible bucket used for board snapshots.
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Prefix       string `yaml:"prefix"`
}

// Enabled reports whether snapshots can be written.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Addr:      ":8080",
		StaticDir: "web/dist",
		LogLevel:  "info",
		Database: DatabaseConfig{
			Driver: DriverCGO,
			Path:   "data/olie.db",
		},
		Board: BoardConfig{
			Columns:         append([]string(nil), models.DefaultColumns...),
			UnmatchedStatus: string(board.UnmatchedDrop),
			RenumberOnMove:  true,
		},
		S3: S3Config{
			Region:       "us-east-1",
			UsePathStyle: true,
			Prefix:       "olie",
		},
	}
}

// Load reads path on top of the defaults, applies environment overrides and validates
// the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Addr = util.EnvOrDefault("OLIE_ADDR", c.Addr)
	c.StaticDir = util.EnvOrDefault("OLIE_STATIC_DIR", c.StaticDir)
	c.LogLevel = util.EnvOrDefault("OLIE_LOG_LEVEL", c.LogLevel)
	c.Database.Driver = util.EnvOrDefault("OLIE_DB_DRIVER", c.Database.Driver)
	c.Database.Path = util.EnvOrDefault("OLIE_DB_PATH", c.Database.Path)
	c.Board.Columns = util.EnvListOrDefault("OLIE_BOARD_COLUMNS", c.Board.Columns)
	c.Board.UnmatchedStatus = util.EnvOrDefault("OLIE_BOARD_UNMATCHED_STATUS", c.Board.UnmatchedStatus)
	c.Board.RenumberOnMove = util.EnvBoolOrDefault("OLIE_BOARD_RENUMBER_ON_MOVE", c.Board.RenumberOnMove)
	c.S3.Endpoint = util.EnvOrDefault("OLIE_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Bucket = util.EnvOrDefault("OLIE_S3_BUCKET", c.S3.Bucket)
	c.S3.Region = util.EnvOrDefault("OLIE_S3_REGION", c.S3.Region)
	c.S3.AccessKey = util.EnvOrDefault("OLIE_S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = util.EnvOrDefault("OLIE_S3_SECRET_KEY", c.S3.SecretKey)
	c.S3.UsePathStyle = util.EnvBoolOrDefault("OLIE_S3_USE_PATH_STYLE", c.S3.UsePathStyle)
	c.S3.Prefix = util.EnvOrDefault("OLIE_S3_PREFIX", c.S3.Prefix)
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverCGO, DriverPureGo:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if _, err := c.Board.Options(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Options converts the board section into manager options.
func (b BoardConfig) Options() (board.Options, error) {
	policy, err := board.ParseUnmatchedPolicy(b.UnmatchedStatus)
	if err != nil {
		return board.Options{}, err
	}
	opts := board.Options{
		Columns:           b.Columns,
		OnUnmatchedStatus: policy,
		RenumberOnMove:    b.RenumberOnMove,
	}
	if err := opts.Validate(); err != nil {
		return board.Options{}, err
	}
	return opts, nil
}

// ParseLevel maps a textual log level onto slog.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}
