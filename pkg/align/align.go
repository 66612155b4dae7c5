// Package align estimates word-level times inside a transcript segment.
//
// Recognition engines give times per segment only. Each token gets a share
// of the segment's duration proportional to its length in characters;
// punctuation and whitespace between tokens receive no time, so the token
// intervals partition the segment.
package align

import (
	"math"
	"unicode/utf8"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// Interpolate assigns start and end times to tokens of seg.
func Interpolate(seg domain.Segment, tokens []domain.Token) ([]domain.TimedToken, error) {
	if err := ValidateSegment(seg); err != nil {
		return nil, err
	}
	if err := ValidateTokens(seg.Text, tokens); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	total := 0
	for _, t := range tokens {
		total += t.Length
	}
	dur := seg.Duration()

	out := make([]domain.TimedToken, len(tokens))
	if total == 0 || dur == 0 {
		for i, t := range tokens {
			out[i] = domain.TimedToken{Token: t, Start: seg.Start, End: seg.Start}
		}
		return out, nil
	}

	at := func(chars int) float64 {
		if chars == total {
			return seg.End
		}
		return seg.Start + dur*float64(chars)/float64(total)
	}
	consumed := 0
	for i, t := range tokens {
		start := at(consumed)
		consumed += t.Length
		out[i] = domain.TimedToken{Token: t, Start: start, End: at(consumed)}
	}
	return out, nil
}

// ValidateSegment checks the segment's time range.
func ValidateSegment(seg domain.Segment) error {
	switch {
	case math.IsNaN(seg.Start) || math.IsNaN(seg.End) || math.IsInf(seg.Start, 0) || math.IsInf(seg.End, 0):
		return domain.MalformedSegmentf("non-finite time [%v, %v]", seg.Start, seg.End)
	case seg.Start < 0:
		return domain.MalformedSegmentf("negative start %v", seg.Start)
	case seg.End < seg.Start:
		return domain.MalformedSegmentf("end %v before start %v", seg.End, seg.Start)
	}
	return nil
}

// ValidateTokens checks that tokens are ordered, non-overlapping, inside
// text, and that each token's text matches its span.
func ValidateTokens(text string, tokens []domain.Token) error {
	runes := []rune(text)
	prevEnd := 0
	for i, t := range tokens {
		if t.Offset < 0 || t.Length < 0 {
			return domain.MalformedSegmentf("token %d has negative span", i)
		}
		if t.Offset < prevEnd {
			return domain.MalformedSegmentf("token %d at %d overlaps previous token ending at %d", i, t.Offset, prevEnd)
		}
		if t.End() > len(runes) {
			return domain.MalformedSegmentf("token %d ends at %d past text length %d", i, t.End(), len(runes))
		}
		if utf8.RuneCountInString(t.Text) != t.Length || string(runes[t.Offset:t.End()]) != t.Text {
			return domain.MalformedSegmentf("token %d %q does not match text at %d", i, t.Text, t.Offset)
		}
		prevEnd = t.End()
	}
	return nil
}

// Span returns the sub-interval of tt covering characters [from, to) of the
// token. Resolution uses it when a token holds several catalog words.
func Span(tt domain.TimedToken, from, to int) (start, end float64) {
	if tt.Length == 0 {
		return tt.Start, tt.End
	}
	from = max(0, min(from, tt.Length))
	to = max(from, min(to, tt.Length))
	at := func(n int) float64 {
		if n == tt.Length {
			return tt.End
		}
		return tt.Start + (tt.End-tt.Start)*float64(n)/float64(tt.Length)
	}
	return at(from), at(to)
}
