// Package domain holds the value types shared by the indexing pipeline:
// catalog entries, transcript segments, tokens, occurrences and video records.
package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Level is an HSK level. Unranked marks dictionary words outside levels 1..6.
type Level int

const (
	Unranked Level = 0
	MinLevel Level = 1
	MaxLevel Level = 6
)

// Valid reports whether l is a ranked HSK level.
func (l Level) Valid() bool { return l >= MinLevel && l <= MaxLevel }

func (l Level) String() string {
	if !l.Valid() {
		return "unranked"
	}
	return fmt.Sprintf("HSK%d", int(l))
}

// VocabularyEntry is a catalog word keyed by its canonical (simplified) form.
type VocabularyEntry struct {
	Word        string
	Traditional string
	Level       Level
	Pinyin      string
	Gloss       string
}

// Segment is one timed unit of recognized speech. Times are in seconds.
type Segment struct {
	VideoID string
	Text    string
	Start   float64
	End     float64
}

// Duration returns End - Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// RuneLen returns the length of the segment text in characters.
func (s Segment) RuneLen() int { return utf8.RuneCountInString(s.Text) }

// Token is a contiguous substring of a segment's text. Offset and Length
// count characters (runes), not bytes.
type Token struct {
	Text   string
	Offset int
	Length int
}

// End returns the character offset just past the token.
func (t Token) End() int { return t.Offset + t.Length }

// TimedToken is a token with an estimated time range inside its segment.
type TimedToken struct {
	Token
	Start float64
	End   float64
}

// Occurrence is one located instance of a vocabulary word in a video.
type Occurrence struct {
	VideoID  string
	Word     string
	Start    float64
	End      float64
	Quality  float64
	Sentence string
}

// Overlaps reports whether the two intervals share any time,
// using start_a < end_b && start_b < end_a.
func (o Occurrence) Overlaps(other Occurrence) bool {
	return o.Start < other.End && other.Start < o.End
}

// Contains reports whether other's interval lies inside o's interval.
func (o Occurrence) Contains(other Occurrence) bool {
	return o.Start <= other.Start && other.End <= o.End
}

// VideoRecord tracks a source video and its current processing attempt.
type VideoRecord struct {
	ID            string
	Source        string
	Title         string
	Status        Status
	FailureReason string
	Attempt       int
	AttemptID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	IndexedAt     *time.Time
}

// Retryable reports whether the record can be sent back to pending.
func (v VideoRecord) Retryable() bool {
	return v.Status.CanTransition(StatusPending)
}

// VideoStats summarizes the vocabulary found in one indexed video.
// LevelCounts[0] counts unranked words; LevelCounts[1..6] count HSK levels.
// Level counts are over unique words.
type VideoStats struct {
	VideoID      string
	Segments     int
	TotalWords   int
	UniqueWords  int
	LevelCounts  [7]int
	Unclassified int
}
