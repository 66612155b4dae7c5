package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sources names the files a catalog is built from. Either may be empty.
type Sources struct {
	HSKPath    string
	CEDICTPath string
}

// Load parses both sources concurrently and builds the catalog.
// Malformed entries are skipped with a warning; only unreadable files fail.
func Load(ctx context.Context, src Sources, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	var (
		levels []LevelEntry
		dict   []CedictEntry
	)
	g, _ := errgroup.WithContext(ctx)
	if src.HSKPath != "" {
		g.Go(func() error {
			entries, stats, err := LoadHSK(src.HSKPath)
			if err != nil {
				return fmt.Errorf("load hsk %s: %w", src.HSKPath, err)
			}
			warnSkipped(logger, "hsk", src.HSKPath, stats)
			levels = entries
			return nil
		})
	}
	if src.CEDICTPath != "" {
		g.Go(func() error {
			entries, stats, err := LoadCEDICT(src.CEDICTPath)
			if err != nil {
				return fmt.Errorf("load cedict %s: %w", src.CEDICTPath, err)
			}
			warnSkipped(logger, "cedict", src.CEDICTPath, stats)
			dict = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cat := Build(levels, dict, logger)
	st := cat.Stats()
	logger.Info("catalog loaded",
		slog.Int("entries", st.Entries),
		slog.Int("ranked", st.Ranked),
		slog.Int("word_variants", st.WordVariants),
		slog.Int("char_variants", st.CharVariants),
		slog.Int("level_conflicts", st.LevelConflicts),
		slog.Duration("took", time.Since(start)))
	return cat, nil
}

func warnSkipped(logger *slog.Logger, kind, path string, stats ParseStats) {
	if stats.Skipped == 0 {
		return
	}
	logger.Warn("skipped malformed catalog entries",
		slog.String("source", kind),
		slog.String("path", path),
		slog.Int("skipped", stats.Skipped),
		slog.Int("parsed", stats.Parsed))
}
