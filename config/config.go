package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
)

type Log struct {
	Level  string `config:"level"`
	Format string `config:"format"`
}

type Database struct {
	Driver          string `config:"driver"`
	DSN             string `config:"dsn"`
	MaxOpenConns    int    `config:"max_open_conns"`
	MaxIdleConns    int    `config:"max_idle_conns"`
	ConnMaxLifetime string `config:"conn_max_lifetime"`
}

type Cache struct {
	RedisAddr string `config:"redis_addr"`
	TTL       string `config:"ttl"`
}

type Config struct {
	Addr            string   `config:"addr"`
	RequestTimeout  string   `config:"request_timeout"`
	ShutdownTimeout string   `config:"shutdown_timeout"`
	Log             Log      `config:"log"`
	Database        Database `config:"database"`
	Cache           Cache    `config:"cache"`
}

// Default is what the server runs with when no file sets a key.
func Default() Config {
	return Config{
		Addr:            ":5000",
		RequestTimeout:  "3s",
		ShutdownTimeout: "10s",
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Database: Database{
			Driver:          "sqlite3",
			DSN:             "todo.db?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "5m",
		},
		Cache: Cache{
			TTL: "5m",
		},
	}
}

// Load reads path on top of the defaults, then path's ".local" sibling when
// it exists. A missing path is not an error. Values may reference the
// environment as ${VAR|default}.
func Load(path string) (*Config, error) {
	appConfig := Default()

	c := config.New("todo-api")
	c.WithOptions(func(opt *config.Options) {
		opt.ParseEnv = true
		opt.DecoderConfig.TagName = "config"
	})
	c.AddDriver(yaml.Driver)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := c.LoadFiles(path); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}

		if err := c.LoadExists(localPath(path)); err != nil {
			return nil, err
		}
	}

	if len(c.Data()) > 0 {
		if err := c.BindStruct("", &appConfig); err != nil {
			return nil, err
		}
	}

	if err := appConfig.Validate(); err != nil {
		return nil, err
	}
	return &appConfig, nil
}

func localPath(path string) string {
	for _, ext := range []string{".yml", ".yaml"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext) + ".local" + ext
		}
	}
	return path + ".local"
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.Database.Driver == "" || c.Database.DSN == "" {
		return fmt.Errorf("database driver and dsn are required")
	}
	for name, v := range map[string]string{
		"request_timeout":            c.RequestTimeout,
		"shutdown_timeout":           c.ShutdownTimeout,
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
		"cache.ttl":                  c.Cache.TTL,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Durations below are checked by Validate, so parse errors cannot occur on a
// loaded Config.

func (c *Config) RequestTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.RequestTimeout)
	return d
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.ShutdownTimeout)
	return d
}

func (d *Database) ConnMaxLifetimeDuration() time.Duration {
	v, _ := parseDuration(d.ConnMaxLifetime)
	return v
}

func (c *Cache) TTLDuration() time.Duration {
	d, _ := parseDuration(c.TTL)
	return d
}
