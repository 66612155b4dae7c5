package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/japaniel/hanzivid/pkg/db"
	"github.com/japaniel/hanzivid/pkg/domain"
)

// Result reports what a finalized attempt committed.
type Result struct {
	Occurrences int
	Stats       domain.VideoStats
	LowYield    bool
}

// Indexer commits accumulated attempts to the database.
type Indexer struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewIndexer returns an indexer writing to conn.
func NewIndexer(conn *sql.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{conn: conn, logger: logger}
}

// Finalize atomically replaces the video's occurrences with the
// accumulator's and marks the video indexed. Readers see either the previous
// set or the new one, never a mix. It fails with domain.ErrStaleAttempt when
// attemptID no longer owns the video.
func (ix *Indexer) Finalize(ctx context.Context, acc *Accumulator, attemptID string) (Result, error) {
	occs := acc.Occurrences()
	res := Result{
		Occurrences: len(occs),
		Stats:       acc.Stats(),
		LowYield:    acc.LowYield(),
	}
	batch := db.IndexBatch{
		VideoID:     acc.VideoID(),
		AttemptID:   attemptID,
		Occurrences: occs,
		Vocabulary:  acc.Vocabulary(),
		Stats:       res.Stats,
	}
	if err := db.CommitIndex(ctx, ix.conn, batch); err != nil {
		return Result{}, fmt.Errorf("finalize video %s: %w", acc.VideoID(), err)
	}

	if res.LowYield {
		ix.logger.Warn("transcript produced no vocabulary occurrences",
			slog.String("video_id", acc.VideoID()),
			slog.Int("segments", res.Stats.Segments),
			slog.Int("unclassified", res.Stats.Unclassified))
	}
	ix.logger.Info("video indexed",
		slog.String("video_id", acc.VideoID()),
		slog.String("attempt_id", attemptID),
		slog.Int("occurrences", res.Occurrences),
		slog.Int("unique_words", res.Stats.UniqueWords))
	return res, nil
}
