// Package app wires configuration into the processing and query components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/japaniel/hanzivid/pkg/catalog"
	"github.com/japaniel/hanzivid/pkg/config"
	"github.com/japaniel/hanzivid/pkg/db"
	"github.com/japaniel/hanzivid/pkg/domain"
	"github.com/japaniel/hanzivid/pkg/ingest"
	"github.com/japaniel/hanzivid/pkg/locator"
	"github.com/japaniel/hanzivid/pkg/resolve"
	"github.com/japaniel/hanzivid/pkg/segment"
	"github.com/japaniel/hanzivid/pkg/source"
	"github.com/japaniel/hanzivid/pkg/transcribe"
)

// App holds the open database and the components built on it.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Catalog  *catalog.Catalog
	Resolver *resolve.Resolver
	Ingester *ingest.Ingester
	Locator  *locator.Locator

	cache *transcribe.Cache
}

// New opens the database, loads the catalog and builds the query side.
// Recognition and segmentation engines are attached by EnableProcessing.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}

	cat, err := LoadCatalog(ctx, cfg.Catalog, conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	res := resolve.New(cat)

	ig := ingest.NewIngester(conn, nil, nil, res, logger)
	ig.Workers = cfg.Ingest.Workers
	ig.Describer = &source.Describer{Logger: logger}

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       conn,
		Catalog:  cat,
		Resolver: res,
		Ingester: ig,
		Locator:  locator.New(conn, res, logger),
	}, nil
}

// EnableProcessing loads the segmentation dictionary and the recognition
// engine, and fails videos left transcribing by a previous run.
func (a *App) EnableProcessing(ctx context.Context) error {
	if a.Ingester.Segmenter == nil {
		seg, err := segment.NewAnalyzer(a.Config.Segment.DictFileList()...)
		if err != nil {
			return err
		}
		a.Ingester.Segmenter = seg
	}
	if a.Ingester.Recognizer == nil {
		rec, cache, err := NewRecognizer(a.Config.Transcribe, a.Logger)
		if err != nil {
			return err
		}
		a.Ingester.Recognizer = rec
		a.cache = cache
	}
	_, err := a.Ingester.Recover(ctx)
	return err
}

// Close releases the transcript cache and the database.
func (a *App) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}

// LoadCatalog builds the catalog from the configured source files,
// downloading missing ones unless offline. Without any source file it falls
// back to the vocabulary stored by earlier runs.
func LoadCatalog(ctx context.Context, cfg config.CatalogConfig, conn *sql.DB, logger *slog.Logger) (*catalog.Catalog, error) {
	if !cfg.Offline {
		client := &http.Client{Timeout: cfg.DownloadTimeout}
		for _, f := range []struct{ url, path string }{
			{cfg.HSKURL, cfg.HSKPath},
			{cfg.CEDICTURL, cfg.CEDICTPath},
		} {
			if f.path == "" {
				continue
			}
			if err := catalog.EnsureFile(ctx, client, f.url, f.path, logger); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Warn("catalog source unavailable", slog.String("path", f.path), slog.Any("error", err))
			}
		}
	}

	src := catalog.Sources{HSKPath: existing(cfg.HSKPath), CEDICTPath: existing(cfg.CEDICTPath)}
	if src.HSKPath != "" || src.CEDICTPath != "" {
		return catalog.Load(ctx, src, logger)
	}

	entries, err := db.LoadVocabulary(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("load stored vocabulary: %w", err)
	}
	if len(entries) == 0 {
		logger.Warn("no catalog sources found; every token will be unclassified")
	} else {
		logger.Info("catalog rebuilt from stored vocabulary", slog.Int("entries", len(entries)))
	}
	return catalog.FromEntries(entries, logger), nil
}

func existing(path string) string {
	if path == "" {
		return ""
	}
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return ""
	}
	return path
}

// NewRecognizer builds the recognition engine selected by cfg. The returned
// cache is nil when caching is disabled and must be closed by the caller.
func NewRecognizer(cfg config.TranscribeConfig, logger *slog.Logger) (transcribe.Recognizer, *transcribe.Cache, error) {
	files := transcribe.FileRecognizer{}
	cmd := transcribe.NewWhisperRecognizer(cfg.Command, cfg.Model, cfg.Language, logger)
	cmd.WorkDir = cfg.WorkDir

	var engine transcribe.Recognizer = cmd
	if cfg.Timeout > 0 {
		engine = withTimeout(cmd, cfg.Timeout)
	}

	var rec transcribe.Recognizer
	switch cfg.Engine {
	case config.EngineFile:
		return files, nil, nil
	case config.EngineCommand:
		rec = engine
	case config.EngineAuto, "":
		rec = transcribe.Chain{files, engine}
	default:
		return nil, nil, fmt.Errorf("unknown recognition engine %q", cfg.Engine)
	}

	if cfg.CachePath == "" {
		return rec, nil, nil
	}
	cache, err := transcribe.OpenCache(cfg.CachePath)
	if err != nil {
		return nil, nil, err
	}
	return &transcribe.CachedRecognizer{Inner: rec, Cache: cache, Logger: logger}, cache, nil
}

func withTimeout(r transcribe.Recognizer, d time.Duration) transcribe.Recognizer {
	return transcribe.RecognizerFunc(func(ctx context.Context, src string) ([]domain.Segment, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return r.Recognize(ctx, src)
	})
}
