package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StatusModeTriState = "tristate"
	StatusModeExists   = "exists"

	JournalDriverSQLite = "sqlite"
	JournalDriverPgx    = "pgx"
)

type Config struct {
	Addr string `yaml:"addr"`

	// RootDir holds properties_config.json and static/.
	RootDir string `yaml:"root_dir"`
	// AnnotationDir is the initial active directory; defaults to <root_dir>/annotations.
	AnnotationDir string `yaml:"annotation_dir"`

	StatusMode    string `yaml:"status_mode"`
	StatusWorkers int    `yaml:"status_workers"`

	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Suggest SuggestConfig `yaml:"suggest"`
	Watch   WatchConfig   `yaml:"watch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

// JournalConfig enables the save journal when Driver is set.
type JournalConfig struct {
	Driver string `yaml:"driver"` // "", sqlite, pgx
	DSN    string `yaml:"dsn"`
}

type SuggestConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

func Default() *Config {
	return &Config{
		Addr:          "127.0.0.1:5000",
		RootDir:       ".",
		StatusMode:    StatusModeTriState,
		StatusWorkers: 8,
		Log:           LogConfig{Level: "info"},
		Suggest: SuggestConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 60 * time.Second,
		},
		Watch: WatchConfig{Debounce: 200 * time.Millisecond},
	}
}

// Load reads defaults, then the YAML file at path (if any), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func (c *Config) applyEnvOverrides() {
	// platform PORT wins over the configured port but keeps the host
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		host := "127.0.0.1"
		if i := strings.LastIndex(c.Addr, ":"); i >= 0 {
			host = c.Addr[:i]
		}
		c.Addr = host + ":" + p
	}
	c.Addr = getEnv("ANNOTATOR_ADDR", c.Addr)
	c.RootDir = getEnv("ANNOTATOR_ROOT", c.RootDir)
	c.AnnotationDir = getEnv("ANNOTATOR_ANNOTATION_DIR", c.AnnotationDir)
	c.StatusMode = getEnv("ANNOTATOR_STATUS_MODE", c.StatusMode)
	if v := getEnv("ANNOTATOR_STATUS_WORKERS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StatusWorkers = n
		}
	}
	c.Log.Level = getEnv("ANNOTATOR_LOG_LEVEL", c.Log.Level)

	if dsn := getEnv("DATABASE_URL", ""); dsn != "" {
		c.Journal.DSN = dsn
		if c.Journal.Driver == "" {
			c.Journal.Driver = JournalDriverPgx
		}
	}
	c.Journal.Driver = getEnv("ANNOTATOR_JOURNAL_DRIVER", c.Journal.Driver)
	c.Journal.DSN = getEnv("ANNOTATOR_JOURNAL_DSN", c.Journal.DSN)

	c.Suggest.APIKey = getEnv("GEMINI_API_KEY", c.Suggest.APIKey)
	c.Suggest.Model = getEnv("GEMINI_MODEL", c.Suggest.Model)

	if v := getEnv("ANNOTATOR_WATCH", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Watch.Enabled = b
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	switch c.StatusMode {
	case StatusModeTriState, StatusModeExists:
	default:
		errs = append(errs, fmt.Errorf("unknown status_mode %q", c.StatusMode))
	}
	if c.StatusWorkers <= 0 {
		errs = append(errs, fmt.Errorf("status_workers must be > 0, got %d", c.StatusWorkers))
	}
	switch c.Journal.Driver {
	case "":
	case JournalDriverSQLite, JournalDriverPgx:
		if strings.TrimSpace(c.Journal.DSN) == "" {
			errs = append(errs, fmt.Errorf("journal driver %s needs a dsn", c.Journal.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown journal driver %q", c.Journal.Driver))
	}
	return errors.Join(errs...)
}

// ResolvedAnnotationDir returns the initial active annotation directory.
func (c *Config) ResolvedAnnotationDir() string {
	if strings.TrimSpace(c.AnnotationDir) != "" {
		return filepath.Clean(c.AnnotationDir)
	}
	return filepath.Join(c.RootDir, "annotations")
}

func (c *Config) SuggestEnabled() bool { return strings.TrimSpace(c.Suggest.APIKey) != "" }
