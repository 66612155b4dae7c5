package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/japaniel/hanzivid/pkg/db"
	"github.com/japaniel/hanzivid/pkg/domain"
)

// vocabularyChunk is the number of entries upserted by one write.
const vocabularyChunk = 500

// SyncVocabulary upserts catalog entries into the vocabulary table in chunks
// through a BatchWriter, batchSize chunks per transaction. It returns the
// number of entries written.
func SyncVocabulary(ctx context.Context, conn *sql.DB, entries []domain.VocabularyEntry, batchSize int, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bw := NewBatchWriter(conn, batchSize, 0)
	for start := 0; start < len(entries); start += vocabularyChunk {
		if err := ctx.Err(); err != nil {
			_ = bw.Close()
			return 0, err
		}
		chunk := entries[start:min(start+vocabularyChunk, len(entries))]
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			if err := db.UpsertVocabulary(ctx, tx, chunk); err != nil {
				return fmt.Errorf("upsert %d vocabulary entries: %w", len(chunk), err)
			}
			return nil
		}); err != nil {
			_ = bw.Close()
			return 0, err
		}
	}
	if err := bw.Close(); err != nil {
		return 0, err
	}
	logger.Info("vocabulary synchronized",
		slog.Int("entries", len(entries)),
		slog.Int64("chunks", bw.Committed()))
	return len(entries), nil
}
