package db

import (
	"time"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// Attempt is one processing run of a video.
type Attempt struct {
	ID            string
	VideoID       string
	Attempt       int
	Status        domain.Status
	FailureReason string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// IndexBatch is everything one successful attempt writes.
type IndexBatch struct {
	VideoID     string
	AttemptID   string
	Occurrences []domain.Occurrence
	Vocabulary  []domain.VocabularyEntry
	Stats       domain.VideoStats
}

// Example is an occurrence joined with its video's metadata.
type Example struct {
	domain.Occurrence
	Title  string
	Source string
}

// WordCount is a word found in a video with its occurrence count and the
// learner's status for it.
type WordCount struct {
	Entry       domain.VocabularyEntry
	Count       int
	FirstStart  float64
	Status      domain.WordStatus
	ReviewCount int
}

// WordFilter narrows VideoWords. Zero values match everything; level 0
// selects words outside HSK.
type WordFilter struct {
	Statuses []domain.WordStatus
	Levels   []domain.Level
}

// WordSort orders a video's word list.
type WordSort string

const (
	SortFrequency    WordSort = "frequency"
	SortLevel        WordSort = "level"
	SortAlphabetical WordSort = "alphabetical"
)

// VideoFilter narrows ListVideos. Zero values match everything.
type VideoFilter struct {
	Statuses []domain.Status
	Limit    uint64
}

// OccurrenceQuery selects examples of one word.
type OccurrenceQuery struct {
	Word     string
	VideoIDs []string
	Limit    int
}
