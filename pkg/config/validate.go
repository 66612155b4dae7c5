package config

import (
	"fmt"
	"strings"
)

// Validate checks the loaded configuration. Load calls it automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path must be set")
	}
	if c.Catalog.HSKPath == "" && c.Catalog.CEDICTPath == "" {
		return fmt.Errorf("catalog: at least one of hsk_path or cedict_path must be set")
	}
	if c.Catalog.DownloadTimeout < 0 {
		return fmt.Errorf("catalog.download_timeout must be >= 0 (got %s)", c.Catalog.DownloadTimeout)
	}
	if err := c.Transcribe.validate(); err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be >= 1 (got %d)", c.Ingest.Workers)
	}
	if c.Ingest.SyncBatch < 1 {
		return fmt.Errorf("ingest.sync_batch must be >= 1 (got %d)", c.Ingest.SyncBatch)
	}
	if c.Query.DefaultLimit < 1 {
		return fmt.Errorf("query.default_limit must be >= 1 (got %d)", c.Query.DefaultLimit)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

func (t *TranscribeConfig) validate() error {
	switch t.Engine {
	case EngineFile:
		return nil
	case EngineCommand, EngineAuto:
	default:
		return fmt.Errorf("engine must be one of %s, %s, %s (got %q)", EngineFile, EngineCommand, EngineAuto, t.Engine)
	}
	if strings.TrimSpace(t.Command) == "" {
		return fmt.Errorf("command must be set for engine %q", t.Engine)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %s)", t.Timeout)
	}
	return nil
}

// DictFileList splits DictFiles.
func (s SegmentConfig) DictFileList() []string {
	var out []string
	for _, f := range strings.Split(s.DictFiles, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
