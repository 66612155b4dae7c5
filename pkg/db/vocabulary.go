package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/japaniel/hanzivid/pkg/domain"
)

const upsertVocabularySQL = `INSERT INTO vocabulary (word, traditional, level, pinyin, gloss)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(word) DO UPDATE SET
	  traditional = COALESCE(NULLIF(excluded.traditional, ''), vocabulary.traditional),
	  level = excluded.level,
	  pinyin = COALESCE(NULLIF(excluded.pinyin, ''), vocabulary.pinyin),
	  gloss = COALESCE(NULLIF(excluded.gloss, ''), vocabulary.gloss)`

// UpsertVocabulary inserts or refreshes catalog entries.
func UpsertVocabulary(ctx context.Context, db DBExecutor, entries []domain.VocabularyEntry) error {
	for _, e := range entries {
		if e.Word == "" {
			return fmt.Errorf("vocabulary word must be non-empty")
		}
		lvl := e.Level
		if !lvl.Valid() {
			lvl = domain.Unranked
		}
		if _, err := db.ExecContext(ctx, upsertVocabularySQL, e.Word, e.Traditional, int(lvl), e.Pinyin, e.Gloss); err != nil {
			return fmt.Errorf("upsert vocabulary %q: %w", e.Word, err)
		}
	}
	return nil
}

var vocabularyColumns = []string{"word", "traditional", "level", "pinyin", "gloss"}

// LoadVocabulary returns every stored catalog entry.
func LoadVocabulary(ctx context.Context, db DBExecutor) ([]domain.VocabularyEntry, error) {
	query, args, err := sq.Select(vocabularyColumns...).From("vocabulary").OrderBy("word ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.VocabularyEntry
	for rows.Next() {
		var e domain.VocabularyEntry
		if err := rows.Scan(&e.Word, &e.Traditional, &e.Level, &e.Pinyin, &e.Gloss); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetVocabulary loads a single entry.
func GetVocabulary(ctx context.Context, db DBExecutor, word string) (domain.VocabularyEntry, error) {
	query, args, err := sq.Select(vocabularyColumns...).From("vocabulary").Where(sq.Eq{"word": word}).ToSql()
	if err != nil {
		return domain.VocabularyEntry{}, err
	}
	var e domain.VocabularyEntry
	err = db.QueryRowContext(ctx, query, args...).Scan(&e.Word, &e.Traditional, &e.Level, &e.Pinyin, &e.Gloss)
	if err != nil {
		if isNoRows(err) {
			return domain.VocabularyEntry{}, fmt.Errorf("word %q: %w", word, domain.ErrNotFound)
		}
		return domain.VocabularyEntry{}, err
	}
	return e, nil
}

// CountVocabulary returns the number of stored entries.
func CountVocabulary(ctx context.Context, db DBExecutor) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vocabulary`).Scan(&n)
	return n, err
}
