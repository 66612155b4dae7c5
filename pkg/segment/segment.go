// Package segment splits transcript text into word tokens with character
// offsets.
package segment

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-ego/gse"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// Segmenter turns a segment's text into an ordered, non-overlapping list of
// tokens. Punctuation and whitespace between tokens are gaps and are not
// returned.
type Segmenter interface {
	Segment(ctx context.Context, text string) ([]domain.Token, error)
}

// Func adapts a plain function into a Segmenter.
type Func func(ctx context.Context, text string) ([]domain.Token, error)

func (f Func) Segment(ctx context.Context, text string) ([]domain.Token, error) {
	return f(ctx, text)
}

// Analyzer handles Mandarin word segmentation backed by gse.
type Analyzer struct {
	seg gse.Segmenter
	hmm bool
}

// NewAnalyzer loads the segmentation dictionaries. With no files the
// embedded default dictionary is used.
func NewAnalyzer(dictFiles ...string) (*Analyzer, error) {
	seg, err := gse.New(dictFiles...)
	if err != nil {
		return nil, fmt.Errorf("load segmentation dictionary: %w", err)
	}
	return &Analyzer{seg: seg, hmm: true}, nil
}

// Segment cuts text into words and locates each one in the text.
func (a *Analyzer) Segment(ctx context.Context, text string) ([]domain.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces := a.seg.Cut(text, a.hmm)
	return Locate(text, pieces)
}

// Locate converts engine output pieces into tokens with rune offsets.
// Pieces must appear in order in text; whitespace the engine dropped is
// skipped. A piece that does not match the text at the cursor yields an
// error wrapping domain.ErrMalformedSegment.
func Locate(text string, pieces []string) ([]domain.Token, error) {
	runes := []rune(text)
	cursor := 0
	var tokens []domain.Token

	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		pr := []rune(piece)
		if !unicode.IsSpace(pr[0]) {
			for cursor < len(runes) && unicode.IsSpace(runes[cursor]) {
				cursor++
			}
		}
		if !matchAt(runes, cursor, pr) {
			return nil, domain.MalformedSegmentf("piece %q not found at offset %d of %q", piece, cursor, text)
		}
		if IsWord(piece) {
			tokens = append(tokens, domain.Token{
				Text:   piece,
				Offset: cursor,
				Length: len(pr),
			})
		}
		cursor += len(pr)
	}
	return tokens, nil
}

func matchAt(text []rune, at int, piece []rune) bool {
	if at+len(piece) > len(text) {
		return false
	}
	for i, r := range piece {
		if text[at+i] != r {
			return false
		}
	}
	return true
}

// IsWord reports whether s carries at least one letter or digit. Pieces made
// only of punctuation, symbols or spaces are gaps.
func IsWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

// HasHan reports whether s contains a Chinese character.
func HasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
