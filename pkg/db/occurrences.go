package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/japaniel/hanzivid/pkg/domain"
)

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// CommitIndex replaces a video's occurrences and stats with the batch and
// marks the video indexed, all in one transaction. The write only happens if
// the video is still transcribing under batch.AttemptID; otherwise it returns
// ErrStaleAttempt and nothing changes.
func CommitIndex(ctx context.Context, conn *sql.DB, b IndexBatch) error {
	return withTx(ctx, conn, func(tx *sql.Tx) error {
		ts := now()
		query, args, err := sq.Update("videos").
			Set("status", string(domain.StatusIndexed)).
			Set("failure_reason", "").
			Set("indexed_at", ts).
			Set("updated_at", ts).
			Where(sq.Eq{"id": b.VideoID, "attempt_id": b.AttemptID, "status": string(domain.StatusTranscribing)}).
			ToSql()
		if err != nil {
			return err
		}
		if err := execGuarded(ctx, tx, query, args, b.VideoID, b.AttemptID); err != nil {
			return err
		}
		if err := finishAttempt(ctx, tx, b.VideoID, b.AttemptID, domain.StatusIndexed, "", ts); err != nil {
			return err
		}

		if err := UpsertVocabulary(ctx, tx, b.Vocabulary); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM occurrences WHERE video_id = ?`, b.VideoID); err != nil {
			return fmt.Errorf("clear occurrences: %w", err)
		}
		if err := insertOccurrences(ctx, tx, b.VideoID, b.Occurrences); err != nil {
			return err
		}
		return upsertStats(ctx, tx, b.VideoID, b.Stats)
	})
}

func insertOccurrences(ctx context.Context, tx *sql.Tx, videoID string, occs []domain.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO occurrences (video_id, word, start_time, end_time, quality, sentence)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, o := range occs {
		if _, err := stmt.ExecContext(ctx, videoID, o.Word, o.Start, o.End, o.Quality, o.Sentence); err != nil {
			return fmt.Errorf("insert occurrence %q at %.3f: %w", o.Word, o.Start, err)
		}
	}
	return nil
}

func upsertStats(ctx context.Context, tx *sql.Tx, videoID string, st domain.VideoStats) error {
	lc := st.LevelCounts
	_, err := tx.ExecContext(ctx, `INSERT INTO video_stats
		(video_id, segments, total_words, unique_words, unranked, hsk1, hsk2, hsk3, hsk4, hsk5, hsk6, unclassified, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
		  segments = excluded.segments,
		  total_words = excluded.total_words,
		  unique_words = excluded.unique_words,
		  unranked = excluded.unranked,
		  hsk1 = excluded.hsk1, hsk2 = excluded.hsk2, hsk3 = excluded.hsk3,
		  hsk4 = excluded.hsk4, hsk5 = excluded.hsk5, hsk6 = excluded.hsk6,
		  unclassified = excluded.unclassified,
		  updated_at = excluded.updated_at`,
		videoID, st.Segments, st.TotalWords, st.UniqueWords,
		lc[0], lc[1], lc[2], lc[3], lc[4], lc[5], lc[6], st.Unclassified, now())
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

// GetVideoStats loads the stats of an indexed video.
func GetVideoStats(ctx context.Context, db DBExecutor, videoID string) (domain.VideoStats, error) {
	st := domain.VideoStats{VideoID: videoID}
	lc := &st.LevelCounts
	err := db.QueryRowContext(ctx, `SELECT segments, total_words, unique_words, unranked,
		hsk1, hsk2, hsk3, hsk4, hsk5, hsk6, unclassified FROM video_stats WHERE video_id = ?`, videoID).
		Scan(&st.Segments, &st.TotalWords, &st.UniqueWords, &lc[0],
			&lc[1], &lc[2], &lc[3], &lc[4], &lc[5], &lc[6], &st.Unclassified)
	if isNoRows(err) {
		return domain.VideoStats{}, fmt.Errorf("stats for video %s: %w", videoID, domain.ErrNotFound)
	}
	return st, err
}

// QueryOccurrences returns examples of q.Word ordered by quality, then
// video id, then start time.
func QueryOccurrences(ctx context.Context, db DBExecutor, q OccurrenceQuery) ([]Example, error) {
	if q.Limit <= 0 || q.Word == "" {
		return []Example{}, nil
	}
	b := sq.Select("o.video_id", "o.word", "o.start_time", "o.end_time", "o.quality", "o.sentence", "v.title", "v.source").
		From("occurrences o").
		Join("videos v ON v.id = o.video_id").
		Where(sq.Eq{"o.word": q.Word}).
		OrderBy("o.quality DESC", "o.video_id ASC", "o.start_time ASC").
		Limit(uint64(q.Limit))
	if len(q.VideoIDs) > 0 {
		b = b.Where(sq.Eq{"o.video_id": q.VideoIDs})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query occurrences: %w", err)
	}
	defer rows.Close()

	out := []Example{}
	for rows.Next() {
		var e Example
		if err := rows.Scan(&e.VideoID, &e.Word, &e.Start, &e.End, &e.Quality, &e.Sentence, &e.Title, &e.Source); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VideoWords lists the distinct words of a video with their counts and
// learner status, narrowed by f.
func VideoWords(ctx context.Context, db DBExecutor, videoID string, order WordSort, f WordFilter) ([]WordCount, error) {
	b := sq.Select("v.word", "v.traditional", "v.level", "v.pinyin", "v.gloss", "COUNT(*) AS n", "MIN(o.start_time)",
		"COALESCE(ws.status, 'unknown')", "COALESCE(ws.review_count, 0)").
		From("occurrences o").
		Join("vocabulary v ON v.word = o.word").
		LeftJoin("word_status ws ON ws.word = v.word").
		Where(sq.Eq{"o.video_id": videoID}).
		GroupBy("v.word")
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		b = b.Where(sq.Eq{"COALESCE(ws.status, 'unknown')": statuses})
	}
	if len(f.Levels) > 0 {
		levels := make([]int, len(f.Levels))
		for i, l := range f.Levels {
			levels[i] = int(l)
		}
		b = b.Where(sq.Eq{"v.level": levels})
	}
	switch order {
	case SortFrequency, "":
		b = b.OrderBy("n DESC", "v.word ASC")
	case SortLevel:
		b = b.OrderBy("CASE WHEN v.level = 0 THEN 7 ELSE v.level END ASC", "n DESC", "v.word ASC")
	case SortAlphabetical:
		b = b.OrderBy("v.pinyin COLLATE NOCASE ASC", "v.word ASC")
	default:
		return nil, fmt.Errorf("unknown word order %q", order)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WordCount
	for rows.Next() {
		var wc WordCount
		var status string
		e := &wc.Entry
		if err := rows.Scan(&e.Word, &e.Traditional, &e.Level, &e.Pinyin, &e.Gloss, &wc.Count, &wc.FirstStart, &status, &wc.ReviewCount); err != nil {
			return nil, err
		}
		wc.Status = domain.WordStatus(status)
		out = append(out, wc)
	}
	return out, rows.Err()
}

// CountOccurrences returns the number of indexed occurrences of a video, or
// of every video when videoID is empty.
func CountOccurrences(ctx context.Context, db DBExecutor, videoID string) (int, error) {
	b := sq.Select("COUNT(*)").From("occurrences")
	if videoID != "" {
		b = b.Where(sq.Eq{"video_id": videoID})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
