package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "hanzivid.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

const validYAML = `
database:
  path: "/var/lib/hanzivid/index.db"

catalog:
  hsk_path: "/data/hsk.json"
  cedict_path: "/data/cedict_ts.u8"
  offline: true
  download_timeout: "30s"

transcribe:
  engine: "command"
  command: "whisper-ctranslate2"
  model: "medium"
  timeout: "1h"

segment:
  dict_files: "zh_s.txt, custom.txt,"

ingest:
  workers: 8

log:
  level: "debug"
  format: "json"
`

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HANZIVID_CONFIG", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Path != "hanzivid.db" {
		t.Errorf("Database.Path = %q, want hanzivid.db", cfg.Database.Path)
	}
	if cfg.Transcribe.Engine != EngineAuto || cfg.Transcribe.Language != "zh" {
		t.Errorf("Transcribe = %+v, want auto/zh", cfg.Transcribe)
	}
	if cfg.Transcribe.Timeout != 30*time.Minute {
		t.Errorf("Transcribe.Timeout = %v, want 30m", cfg.Transcribe.Timeout)
	}
	if cfg.Catalog.Offline || !strings.HasPrefix(cfg.Catalog.CEDICTURL, "https://") {
		t.Errorf("Catalog = %+v, want auto download with default URLs", cfg.Catalog)
	}
	if cfg.Ingest.Workers != 4 || cfg.Query.DefaultLimit != 10 {
		t.Errorf("Ingest.Workers = %d, Query.DefaultLimit = %d", cfg.Ingest.Workers, cfg.Query.DefaultLimit)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Path != "/var/lib/hanzivid/index.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if !cfg.Catalog.Offline {
		t.Error("Catalog.Offline should be true")
	}
	if cfg.Catalog.DownloadTimeout != 30*time.Second {
		t.Errorf("Catalog.DownloadTimeout = %v", cfg.Catalog.DownloadTimeout)
	}
	if cfg.Transcribe.Engine != EngineCommand || cfg.Transcribe.Command != "whisper-ctranslate2" || cfg.Transcribe.Model != "medium" {
		t.Errorf("Transcribe = %+v", cfg.Transcribe)
	}
	if got := cfg.Segment.DictFileList(); len(got) != 2 || got[0] != "zh_s.txt" || got[1] != "custom.txt" {
		t.Errorf("DictFileList() = %v", got)
	}
	if cfg.Ingest.Workers != 8 {
		t.Errorf("Ingest.Workers = %d, want 8", cfg.Ingest.Workers)
	}
	// Not in the file: default applies.
	if cfg.Ingest.SyncBatch != 8 {
		t.Errorf("Ingest.SyncBatch = %d, want 8", cfg.Ingest.SyncBatch)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("HANZIVID_CONFIG", path)
	t.Setenv("HANZIVID_WORKERS", "2")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Ingest.Workers != 2 {
		t.Errorf("Ingest.Workers = %d, want 2 from env", cfg.Ingest.Workers)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn from env", cfg.Log.Level)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "ingest:\n  workers: -1\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "workers") {
		t.Fatalf("expected workers validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database:   DatabaseConfig{Path: "x.db"},
			Catalog:    CatalogConfig{HSKPath: "hsk.json"},
			Transcribe: TranscribeConfig{Engine: EngineAuto, Command: "whisper"},
			Ingest:     IngestConfig{Workers: 1, SyncBatch: 1},
			Query:      QueryConfig{DefaultLimit: 5},
			Log:        LogConfig{Level: "info", Format: "JSON"},
		}
	}
	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db path", func(c *Config) { c.Database.Path = " " }, "database.path"},
		{"no catalog", func(c *Config) { c.Catalog.HSKPath = "" }, "catalog"},
		{"unknown engine", func(c *Config) { c.Transcribe.Engine = "cloud" }, "engine"},
		{"command engine without command", func(c *Config) { c.Transcribe.Command = "" }, "command"},
		{"negative timeout", func(c *Config) { c.Transcribe.Timeout = -time.Second }, "timeout"},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }, "workers"},
		{"zero limit", func(c *Config) { c.Query.DefaultLimit = 0 }, "default_limit"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}

	fileOnly := valid()
	fileOnly.Transcribe = TranscribeConfig{Engine: EngineFile}
	if err := fileOnly.Validate(); err != nil {
		t.Fatalf("file engine needs no command: %v", err)
	}
}
