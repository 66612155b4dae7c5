// Package locator answers "where is this word said" queries against the
// committed index.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/japaniel/hanzivid/pkg/db"
	"github.com/japaniel/hanzivid/pkg/domain"
)

// Normalizer maps a user query onto a catalog key. *resolve.Resolver
// implements it.
type Normalizer interface {
	Word(query string) string
}

// Locator reads occurrences. Only committed attempts are visible, so a
// video being re-processed keeps returning its previous examples.
type Locator struct {
	db     db.DBExecutor
	words  Normalizer
	logger *slog.Logger
}

// New returns a locator over conn. A nil words only trims queries.
func New(conn db.DBExecutor, words Normalizer, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{db: conn, words: words, logger: logger}
}

func (l *Locator) normalize(query string) string {
	q := strings.TrimSpace(query)
	if q == "" || l.words == nil {
		return q
	}
	return l.words.Word(q)
}

// Find returns up to limit examples of word across all videos, best first:
// quality descending, then video id, then start time. An unknown word or a
// non-positive limit gives an empty result.
func (l *Locator) Find(ctx context.Context, word string, limit int) ([]db.Example, error) {
	return l.FindIn(ctx, word, limit)
}

// FindIn is Find restricted to the given videos. No ids means every video.
func (l *Locator) FindIn(ctx context.Context, word string, limit int, videoIDs ...string) ([]db.Example, error) {
	key := l.normalize(word)
	ex, err := db.QueryOccurrences(ctx, l.db, db.OccurrenceQuery{Word: key, VideoIDs: videoIDs, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", word, err)
	}
	l.logger.Debug("word lookup", slog.String("query", word), slog.String("word", key), slog.Int("examples", len(ex)))
	return ex, nil
}

// WordInfo is a catalog entry with its best examples.
type WordInfo struct {
	Entry     domain.VocabularyEntry
	InCatalog bool // a vocabulary row exists for the word
	Seen      bool // the word occurs in at least one indexed video
	State     db.WordState
	Examples  []db.Example
}

// Word returns what is known about word together with up to limit examples.
// A word missing from the vocabulary is not an error; InCatalog is false.
func (l *Locator) Word(ctx context.Context, word string, limit int) (WordInfo, error) {
	key := l.normalize(word)
	info := WordInfo{
		Entry:    domain.VocabularyEntry{Word: key},
		State:    db.WordState{Word: key, Status: domain.WordUnknown},
		Examples: []db.Example{},
	}
	if key == "" {
		return info, nil
	}
	e, err := db.GetVocabulary(ctx, l.db, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return info, nil
	case err != nil:
		return WordInfo{}, err
	}
	info.Entry = e
	info.InCatalog = true
	if info.Seen, err = db.WordSeen(ctx, l.db, key); err != nil {
		return WordInfo{}, err
	}
	if info.State, err = db.GetWordStatus(ctx, l.db, key); err != nil {
		return WordInfo{}, err
	}
	if info.Examples, err = l.FindIn(ctx, key, limit); err != nil {
		return WordInfo{}, err
	}
	return info, nil
}

// Mark records the learner's status for word.
func (l *Locator) Mark(ctx context.Context, word string, status domain.WordStatus) (db.WordState, error) {
	key := l.normalize(word)
	ws, err := db.SetWordStatus(ctx, l.db, key, status)
	if err != nil {
		return db.WordState{}, fmt.Errorf("mark %q: %w", word, err)
	}
	l.logger.Info("word status updated", slog.String("word", key), slog.String("status", string(ws.Status)), slog.Int("reviews", ws.ReviewCount))
	return ws, nil
}

// VideoWords lists the distinct words of a video, narrowed by f.
func (l *Locator) VideoWords(ctx context.Context, videoID string, order db.WordSort, f db.WordFilter) ([]db.WordCount, error) {
	if _, err := db.GetVideo(ctx, l.db, videoID); err != nil {
		return nil, err
	}
	return db.VideoWords(ctx, l.db, videoID, order, f)
}

// Stats returns the statistics of the last committed attempt of a video.
func (l *Locator) Stats(ctx context.Context, videoID string) (domain.VideoStats, error) {
	return db.GetVideoStats(ctx, l.db, videoID)
}
