package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"halofilter/internal/faults"
)

var allKeys = []string{
	EnvWorkers, EnvPassThreads, EnvLogLevel, EnvLogFile, EnvDev,
	EnvListen, EnvWSPath, EnvCompress, EnvHistoryDB,
}

// clearEnv blanks every key so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile(%s) returned error: %v", path, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), ".env")

	cfg, err := Load("", missing)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	want := Config{
		Workers:     runtime.GOMAXPROCS(0),
		AutoWorkers: true,
		PassThreads: 1,
		LogLevel:    "info",
		WSPath:      "/halo",
	}
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "halo.yaml", `
workers: 3
pass_threads: 2
log_level: debug
listen: ":7070"
history_db: jobs.db
`)
	envPath := writeFile(t, dir, ".env", "HALO_WORKERS=5\nHALO_COMPRESS=yes\nHALO_LOG_LEVEL=warn\n")
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"workers from .env over yaml", cfg.Workers, 5},
		{"workers explicit", cfg.AutoWorkers, false},
		{"pass threads from yaml", cfg.PassThreads, 2},
		{"log level from environment over .env", cfg.LogLevel, "error"},
		{"compress from .env", cfg.Compress, true},
		{"listen from yaml", cfg.Listen, ":7070"},
		{"history from yaml", cfg.HistoryDB, "jobs.db"},
		{"ws path default", cfg.WSPath, "/halo"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	noEnv := filepath.Join(dir, "absent.env")

	tests := []struct {
		name     string
		yaml     string
		env      map[string]string
		wantCode string
	}{
		{"unknown yaml field", "threads: 2\n", nil, faults.ErrCodeInvalidConfig},
		{"bad integer", "", map[string]string{EnvWorkers: "many"}, faults.ErrCodeInvalidConfig},
		{"bad boolean", "", map[string]string{EnvDev: "maybe"}, faults.ErrCodeInvalidConfig},
		{"zero workers", "workers: 0\n", nil, faults.ErrCodeInvalidWorkers},
		{"bad log level", "", map[string]string{EnvLogLevel: "loud"}, faults.ErrCodeInvalidConfig},
		{"relative ws path", "ws_path: halo\n", nil, faults.ErrCodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, t.TempDir(), "halo.yaml", tt.yaml)
			}

			_, err := Load(path, noEnv)
			if got := faults.Code(err); got != tt.wantCode {
				t.Errorf("Load() error code = %q, want %q (err %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of a missing config file returned nil error")
	}
}

func TestLoad_ExplicitWorkers(t *testing.T) {
	noEnv := filepath.Join(t.TempDir(), "absent.env")

	tests := []struct {
		name     string
		yaml     string
		env      string
		wantAuto bool
	}{
		{"default", "", "", true},
		{"yaml without workers", "pass_threads: 2\n", "", true},
		{"yaml workers", "workers: 16\n", "", false},
		{"environment workers", "", "16", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvWorkers, tt.env)
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, t.TempDir(), "halo.yaml", tt.yaml)
			}

			cfg, err := Load(path, noEnv)
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			if cfg.AutoWorkers != tt.wantAuto {
				t.Errorf("AutoWorkers = %v, want %v", cfg.AutoWorkers, tt.wantAuto)
			}
		})
	}
}

func TestConfig_WorkersFor(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		height int
		want   int
	}{
		{"default capped at height", Config{Workers: 8, AutoWorkers: true}, 4, 4},
		{"default below height", Config{Workers: 8, AutoWorkers: true}, 100, 8},
		{"explicit kept above height", Config{Workers: 8}, 4, 8},
		{"explicit below height", Config{Workers: 3}, 4, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.WorkersFor(tt.height); got != tt.want {
				t.Errorf("WorkersFor(%d) = %d, want %d", tt.height, got, tt.want)
			}
		})
	}
}
