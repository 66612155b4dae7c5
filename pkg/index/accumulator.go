// Package index collects word occurrences for one video and commits them
// atomically.
package index

import (
	"math"
	"sort"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// Quality weights: interval duration up to fullDuration, and closeness to
// the start of the segment.
const (
	durationWeight   = 0.7
	centralityWeight = 0.3
	fullDuration     = 1.5 // seconds
)

type occurrence struct {
	domain.Occurrence
	segStart float64
	segDur   float64
}

// Accumulator gathers the occurrences of a single processing attempt. It is
// owned by one worker and is not safe for concurrent use.
type Accumulator struct {
	videoID      string
	byWord       map[string][]occurrence
	vocab        map[string]domain.VocabularyEntry
	segments     int
	textSegments int
	recorded     int
	unclassified int
}

// NewAccumulator returns an empty accumulator for videoID.
func NewAccumulator(videoID string) *Accumulator {
	return &Accumulator{
		videoID: videoID,
		byWord:  make(map[string][]occurrence),
		vocab:   make(map[string]domain.VocabularyEntry),
	}
}

// VideoID returns the video the accumulator belongs to.
func (a *Accumulator) VideoID() string { return a.videoID }

// AddSegment counts a processed segment.
func (a *Accumulator) AddSegment(seg domain.Segment) {
	a.segments++
	if seg.Text != "" {
		a.textSegments++
	}
}

// Record adds an occurrence of entry at [start, end] inside seg.
func (a *Accumulator) Record(entry domain.VocabularyEntry, start, end float64, seg domain.Segment) {
	a.recorded++
	if _, ok := a.vocab[entry.Word]; !ok {
		a.vocab[entry.Word] = entry
	}
	o := occurrence{
		Occurrence: domain.Occurrence{
			VideoID:  a.videoID,
			Word:     entry.Word,
			Start:    start,
			End:      end,
			Sentence: seg.Text,
		},
		segStart: seg.Start,
		segDur:   seg.Duration(),
	}
	o.Quality = quality(o.Start, o.End, o.segStart, o.segDur)
	a.byWord[entry.Word] = append(a.byWord[entry.Word], o)
}

// Unclassified counts a token that matched no catalog word.
func (a *Accumulator) Unclassified() { a.unclassified++ }

// Occurrences returns the de-duplicated occurrences sorted by word and start.
// Occurrences of the same word whose intervals overlap, or where one contains
// the other, are merged into their union.
func (a *Accumulator) Occurrences() []domain.Occurrence {
	words := make([]string, 0, len(a.byWord))
	for w := range a.byWord {
		words = append(words, w)
	}
	sort.Strings(words)

	var out []domain.Occurrence
	for _, w := range words {
		for _, o := range dedupe(a.byWord[w]) {
			out = append(out, o.Occurrence)
		}
	}
	return out
}

// Vocabulary returns the catalog entries referenced by recorded occurrences.
func (a *Accumulator) Vocabulary() []domain.VocabularyEntry {
	out := make([]domain.VocabularyEntry, 0, len(a.vocab))
	for _, e := range a.vocab {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out
}

// Stats summarizes the attempt so far.
func (a *Accumulator) Stats() domain.VideoStats {
	st := domain.VideoStats{
		VideoID:      a.videoID,
		Segments:     a.segments,
		TotalWords:   a.recorded,
		UniqueWords:  len(a.vocab),
		Unclassified: a.unclassified,
	}
	for _, e := range a.vocab {
		if e.Level.Valid() {
			st.LevelCounts[e.Level]++
		} else {
			st.LevelCounts[domain.Unranked]++
		}
	}
	return st
}

// LowYield reports a transcript with text that produced no occurrences.
func (a *Accumulator) LowYield() bool {
	return a.textSegments > 0 && a.recorded == 0
}

func dedupe(list []occurrence) []occurrence {
	if len(list) == 0 {
		return nil
	}
	sorted := make([]occurrence, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	out := []occurrence{sorted[0]}
	for _, o := range sorted[1:] {
		cur := &out[len(out)-1]
		if !mergeable(cur.Occurrence, o.Occurrence) {
			out = append(out, o)
			continue
		}
		best := math.Max(cur.Quality, o.Quality)
		cur.End = math.Max(cur.End, o.End)
		cur.Quality = math.Max(best, quality(cur.Start, cur.End, cur.segStart, cur.segDur))
	}
	return out
}

func mergeable(a, b domain.Occurrence) bool {
	return a.Overlaps(b) || a.Contains(b) || b.Contains(a)
}

// quality is 0.7*min(duration, 1.5s)/1.5s + 0.3*centrality where centrality
// is 1 at the segment start and falls linearly to 0 at its end.
func quality(start, end, segStart, segDur float64) float64 {
	dur := math.Min(math.Max(end-start, 0), fullDuration) / fullDuration
	centrality := 1.0
	if segDur > 0 {
		centrality = 1 - (start-segStart)/segDur
		centrality = math.Min(math.Max(centrality, 0), 1)
	}
	return durationWeight*dur + centralityWeight*centrality
}
