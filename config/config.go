package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultPort         = 8000
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 1 << 20
	DefaultModelDir     = "saved_models"
	DefaultLogLevel     = "info"
	DefaultDBDriver     = "sqlite3"
)

type Config struct {
	HTTP struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Models struct {
		Dir string `yaml:"dir"`
	} `yaml:"models"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		// RecordPredictions writes every served prediction to the predictions table.
		RecordPredictions bool `yaml:"record_predictions"`
	} `yaml:"database"`
}

// Default returns a config with every field set to its default.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path on top of the defaults. A missing file
// yields the defaults. Relative model, log and sqlite paths resolve against
// the directory holding the file.
func Load(path string) (*Config, error) {
	c := &Config{}
	payload, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.applyDefaults()
		return c, nil
	case err != nil:
		return nil, errors.Wrapf(err, "read config: %s", path)
	}

	if err := yaml.UnmarshalStrict(payload, c); err != nil {
		return nil, errors.Wrapf(err, "parse config: %s", path)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config: %s", path)
	}

	base := filepath.Dir(path)
	c.Models.Dir = resolve(base, c.Models.Dir)
	if c.Log.File != "" {
		c.Log.File = resolve(base, c.Log.File)
	}
	if c.Database.Driver == DefaultDBDriver && c.Database.DSN != "" && c.Database.DSN != ":memory:" {
		c.Database.DSN = resolve(base, c.Database.DSN)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return errors.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.RecordPredictions && c.Database.DSN == "" {
		return errors.New("database.record_predictions needs database.dsn")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultPort
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = DefaultTimeout
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Models.Dir == "" {
		c.Models.Dir = DefaultModelDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDBDriver
	}
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
