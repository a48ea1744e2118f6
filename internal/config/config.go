// Package config loads Altilium's server configuration. The teacher loads
// a small hand-rolled "key value" file format in conf.go; Altilium keeps
// the same "file of named settings with defaults" shape but parses TOML
// with github.com/BurntSushi/toml, a genuine dependency rather than a
// bespoke line parser.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// FsyncPolicy controls how aggressively the AOF is flushed to disk.
type FsyncPolicy string

const (
	FsyncAlways   FsyncPolicy = "always"
	FsyncEverySec FsyncPolicy = "everysec"
	FsyncNo       FsyncPolicy = "no"
)

// Config mirrors every tunable named in the server's operating contract,
// plus the ambient additions (admin bind address, log level) a real
// deployment needs that the original command surface does not mention.
type Config struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	RequirePass string `toml:"requirepass"`

	SnapshotPath       string `toml:"snapshot_path"`
	AOFPath            string `toml:"aof_path"`
	SnapshotIntervalMs int64  `toml:"snapshot_interval_ms"`
	AOFFsync           string `toml:"aof_fsync"`
	ExpireTickMs       int64  `toml:"expire_tick_ms"`

	AdminBindAddr string `toml:"admin_bind_addr"`
	LogLevel      string `toml:"log_level"`
}

// Default returns the configuration used when no file is supplied, with
// every field set to the documented default.
func Default() Config {
	return Config{
		Host:               "127.0.0.1",
		Port:               6379,
		SnapshotPath:       "data.snapshot.json",
		AOFPath:            "data.aof",
		SnapshotIntervalMs: 60000,
		AOFFsync:           string(FsyncEverySec),
		ExpireTickMs:       100,
		AdminBindAddr:      "127.0.0.1:9121",
		LogLevel:           "info",
	}
}

// Load reads a TOML file at path, overlaying it onto Default(). An empty
// path returns Default() unchanged, matching the teacher's "run with no
// config file" mode.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the server impossible to run
// correctly, rather than failing later in some unrelated subsystem.
func (c Config) Validate() error {
	switch FsyncPolicy(c.AOFFsync) {
	case FsyncAlways, FsyncEverySec, FsyncNo:
	default:
		return fmt.Errorf("config: invalid aof_fsync %q", c.AOFFsync)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.SnapshotIntervalMs <= 0 {
		return fmt.Errorf("config: snapshot_interval_ms must be positive")
	}
	if c.ExpireTickMs <= 0 {
		return fmt.Errorf("config: expire_tick_ms must be positive")
	}
	return nil
}

func (c Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMs) * time.Millisecond
}

func (c Config) ExpireTick() time.Duration {
	return time.Duration(c.ExpireTickMs) * time.Millisecond
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
