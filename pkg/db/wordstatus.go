package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// WordState is the learner's status for one word. ReviewCount counts how
// many times the word has been marked.
type WordState struct {
	Word        string
	Status      domain.WordStatus
	ReviewCount int
	UpdatedAt   *time.Time
}

// SetWordStatus marks a stored vocabulary word and returns its new state.
// A word missing from the vocabulary table is ErrNotFound.
func SetWordStatus(ctx context.Context, db DBExecutor, word string, status domain.WordStatus) (WordState, error) {
	if _, err := domain.ParseWordStatus(string(status)); err != nil {
		return WordState{}, err
	}
	if _, err := GetVocabulary(ctx, db, word); err != nil {
		return WordState{}, err
	}
	_, err := db.ExecContext(ctx, `INSERT INTO word_status (word, status, review_count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(word) DO UPDATE SET
		  status = excluded.status,
		  review_count = word_status.review_count + 1,
		  updated_at = excluded.updated_at`,
		word, string(status), now())
	if err != nil {
		return WordState{}, fmt.Errorf("set status of %q: %w", word, err)
	}
	return GetWordStatus(ctx, db, word)
}

// GetWordStatus returns the state of word. Words never marked are
// WordUnknown with no reviews.
func GetWordStatus(ctx context.Context, db DBExecutor, word string) (WordState, error) {
	query, args, err := sq.Select("status", "review_count", "updated_at").
		From("word_status").
		Where(sq.Eq{"word": word}).
		ToSql()
	if err != nil {
		return WordState{}, err
	}
	ws := WordState{Word: word}
	var status string
	var updated time.Time
	err = db.QueryRowContext(ctx, query, args...).Scan(&status, &ws.ReviewCount, &updated)
	switch {
	case isNoRows(err):
		ws.Status = domain.WordUnknown
		return ws, nil
	case err != nil:
		return WordState{}, fmt.Errorf("status of %q: %w", word, err)
	}
	ws.Status = domain.WordStatus(status)
	ws.UpdatedAt = &updated
	return ws, nil
}

// WordSeen reports whether any committed index contains word.
func WordSeen(ctx context.Context, db DBExecutor, word string) (bool, error) {
	var seen bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM occurrences WHERE word = ?)`, word).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("word %q seen: %w", word, err)
	}
	return seen, nil
}
