// Package config resolves the settings of a filter run. Sources are applied
// in increasing precedence: built-in defaults, an optional YAML file, a
// .env file, then the process environment. Command-line flags are layered
// on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"halofilter/internal/faults"
)

// Environment keys.
const (
	EnvWorkers     = "HALO_WORKERS"
	EnvPassThreads = "HALO_PASS_THREADS"
	EnvLogLevel    = "HALO_LOG_LEVEL"
	EnvLogFile     = "HALO_LOG_FILE"
	EnvDev         = "HALO_DEV"
	EnvListen      = "HALO_LISTEN"
	EnvWSPath      = "HALO_WS_PATH"
	EnvCompress    = "HALO_COMPRESS"
	EnvHistoryDB   = "HALO_HISTORY_DB"
)

// DefaultEnvFile is read when Load is given no explicit .env files.
const DefaultEnvFile = ".env"

// Config holds all settings of a run.
type Config struct {
	// Workers is the job size, coordinator included.
	Workers int `yaml:"workers"`
	// AutoWorkers is true while Workers is only the GOMAXPROCS default; the
	// job then shrinks the pool to the image height (see WorkersFor).
	AutoWorkers bool `yaml:"-"`
	// PassThreads is the number of goroutines per convolution pass.
	PassThreads int `yaml:"pass_threads"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Dev      bool   `yaml:"dev"`

	// Listen, when set, makes the coordinator wait for remote workers on
	// this address instead of running them in-process.
	Listen   string `yaml:"listen"`
	WSPath   string `yaml:"ws_path"`
	Compress bool   `yaml:"compress"`

	// HistoryDB is the SQLite file jobs are recorded in. Empty disables history.
	HistoryDB string `yaml:"history_db"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Workers:     runtime.GOMAXPROCS(0),
		AutoWorkers: true,
		PassThreads: 1,
		LogLevel:    "info",
		WSPath:      "/halo",
	}
}

// Load builds a Config from path (skipped when empty), the given .env files
// (DefaultEnvFile when none) and the environment. A missing .env file is
// not an error; a missing config file is.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readYAML(path); err != nil {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	dotenv := map[string]string{}
	for _, f := range envFiles {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := dotenv[k]; !seen {
				dotenv[k] = v
			}
		}
	}

	if err := cfg.applyEnv(envLookup(dotenv)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return faults.ErrInvalidConfig(path, err.Error())
	}

	var set struct {
		Workers *int `yaml:"workers"`
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return faults.ErrInvalidConfig(path, err.Error())
	}
	if set.Workers != nil {
		c.AutoWorkers = false
	}
	return nil
}

// envLookup prefers the process environment over .env values.
func envLookup(dotenv map[string]string) func(string) string {
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
}

func (c *Config) applyEnv(get func(string) string) error {
	var err error
	if get(EnvWorkers) != "" {
		c.AutoWorkers = false
	}
	if c.Workers, err = parseInt(get, EnvWorkers, c.Workers); err != nil {
		return err
	}
	if c.PassThreads, err = parseInt(get, EnvPassThreads, c.PassThreads); err != nil {
		return err
	}
	if c.Dev, err = parseBool(get, EnvDev, c.Dev); err != nil {
		return err
	}
	if c.Compress, err = parseBool(get, EnvCompress, c.Compress); err != nil {
		return err
	}
	c.LogLevel = getOrDefault(get, EnvLogLevel, c.LogLevel)
	c.LogFile = getOrDefault(get, EnvLogFile, c.LogFile)
	c.Listen = getOrDefault(get, EnvListen, c.Listen)
	c.WSPath = getOrDefault(get, EnvWSPath, c.WSPath)
	c.HistoryDB = getOrDefault(get, EnvHistoryDB, c.HistoryDB)
	return nil
}

func getOrDefault(get func(string) string, key, def string) string {
	if v := get(key); v != "" {
		return v
	}
	return def
}

func parseInt(get func(string) string, key string, def int) (int, error) {
	v := get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, faults.ErrInvalidConfig(key, fmt.Sprintf("%q is not an integer", v))
	}
	return n, nil
}

// parseBool accepts true/1/yes/on and false/0/no/off, case-insensitively.
func parseBool(get func(string) string, key string, def bool) (bool, error) {
	v := get(key)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, faults.ErrInvalidConfig(key, fmt.Sprintf("%q is not a boolean", v))
	}
}

// WorkersFor returns the job size for an image of the given height. The
// GOMAXPROCS default is capped at height; an explicit count is returned
// unchanged.
func (c *Config) WorkersFor(height int) int {
	if c.AutoWorkers && height > 0 {
		return min(c.Workers, height)
	}
	return c.Workers
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return faults.ErrInvalidWorkers(c.Workers)
	}
	if c.PassThreads < 1 {
		return faults.ErrInvalidConfig("pass_threads", fmt.Sprintf("%d is not positive", c.PassThreads))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return faults.ErrInvalidConfig("log_level", fmt.Sprintf("%q is not one of %s", c.LogLevel, strings.Join(logLevels, ", ")))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return faults.ErrInvalidConfig("ws_path", fmt.Sprintf("%q must start with /", c.WSPath))
	}
	return nil
}
