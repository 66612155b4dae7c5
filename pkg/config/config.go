// Package config loads hanzivid settings from YAML and the environment.
package config

import "time"

// Config is the root application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Segment    SegmentConfig    `yaml:"segment"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Query      QueryConfig      `yaml:"query"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"HANZIVID_DB" env-default:"hanzivid.db"`
}

// CatalogConfig names the vocabulary sources and where to fetch them.
type CatalogConfig struct {
	HSKPath         string        `yaml:"hsk_path"         env:"HANZIVID_HSK_PATH"         env-default:"data/hsk.json"`
	CEDICTPath      string        `yaml:"cedict_path"      env:"HANZIVID_CEDICT_PATH"      env-default:"data/cedict_ts.u8"`
	HSKURL          string        `yaml:"hsk_url"          env:"HANZIVID_HSK_URL"          env-default:"https://raw.githubusercontent.com/drkameleon/complete-hsk-vocabulary/main/complete.min.json"`
	CEDICTURL       string        `yaml:"cedict_url"       env:"HANZIVID_CEDICT_URL"       env-default:"https://www.mdbg.net/chinese/export/cedict/cedict_ts.u8.gz"`
	// Offline disables downloading missing sources.
	Offline         bool          `yaml:"offline"          env:"HANZIVID_OFFLINE"`
	DownloadTimeout time.Duration `yaml:"download_timeout" env:"HANZIVID_DOWNLOAD_TIMEOUT" env-default:"2m"`
}

// Recognition engines.
const (
	EngineFile    = "file"    // transcript files next to the media only
	EngineCommand = "command" // whisper-compatible command line only
	EngineAuto    = "auto"    // transcript files first, then the command
)

// TranscribeConfig selects and configures the speech recognition engine.
type TranscribeConfig struct {
	Engine    string        `yaml:"engine"     env:"HANZIVID_ENGINE"            env-default:"auto"`
	Command   string        `yaml:"command"    env:"HANZIVID_WHISPER_COMMAND"   env-default:"whisper"`
	Model     string        `yaml:"model"      env:"HANZIVID_WHISPER_MODEL"     env-default:"small"`
	Language  string        `yaml:"language"   env:"HANZIVID_WHISPER_LANGUAGE"  env-default:"zh"`
	WorkDir   string        `yaml:"work_dir"   env:"HANZIVID_WHISPER_WORK_DIR"`
	Timeout   time.Duration `yaml:"timeout"    env:"HANZIVID_WHISPER_TIMEOUT"   env-default:"30m"`
	CachePath string        `yaml:"cache_path" env:"HANZIVID_TRANSCRIPT_CACHE"  env-default:"transcripts.cache"`
}

// SegmentConfig configures the word segmentation engine.
type SegmentConfig struct {
	// DictFiles is a comma-separated list of gse dictionary files. Empty
	// uses the embedded dictionary.
	DictFiles string `yaml:"dict_files" env:"HANZIVID_SEGMENT_DICT"`
}

// IngestConfig holds processing settings.
type IngestConfig struct {
	Workers   int `yaml:"workers"    env:"HANZIVID_WORKERS"    env-default:"4"`
	SyncBatch int `yaml:"sync_batch" env:"HANZIVID_SYNC_BATCH" env-default:"8"`
}

// QueryConfig holds lookup defaults.
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit" env:"HANZIVID_QUERY_LIMIT" env-default:"10"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}
