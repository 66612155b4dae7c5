package align

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/hanzivid/pkg/domain"
)

const eps = 1e-9

func tok(text string, offset int) domain.Token {
	return domain.Token{Text: text, Offset: offset, Length: len([]rune(text))}
}

func TestInterpolateExample(t *testing.T) {
	seg := domain.Segment{Text: "我爱学中文", Start: 0, End: 5}
	got, err := Interpolate(seg, []domain.Token{tok("我", 0), tok("爱", 1), tok("学", 2), tok("中文", 3)})
	require.NoError(t, err)

	want := [][2]float64{{0, 1}, {1, 2}, {2, 3}, {3, 5}}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.InDelta(t, w[0], got[i].Start, eps, "start of %s", got[i].Text)
		assert.InDelta(t, w[1], got[i].End, eps, "end of %s", got[i].Text)
	}
}

func TestInterpolateGapsGetNoTime(t *testing.T) {
	seg := domain.Segment{Text: "你好，世界", Start: 10, End: 14}
	got, err := Interpolate(seg, []domain.Token{tok("你好", 0), tok("世界", 3)})
	require.NoError(t, err)

	assert.InDelta(t, 10, got[0].Start, eps)
	assert.InDelta(t, 12, got[0].End, eps)
	assert.InDelta(t, 12, got[1].Start, eps)
	assert.Equal(t, 14.0, got[1].End)
}

func TestInterpolateZeroDuration(t *testing.T) {
	seg := domain.Segment{Text: "中文", Start: 3, End: 3}
	got, err := Interpolate(seg, []domain.Token{tok("中", 0), tok("文", 1)})
	require.NoError(t, err)
	for _, tt := range got {
		assert.Equal(t, 3.0, tt.Start)
		assert.Equal(t, 3.0, tt.End)
	}
}

func TestInterpolateEmpty(t *testing.T) {
	got, err := Interpolate(domain.Segment{Text: "，", Start: 0, End: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Interpolate(domain.Segment{Text: "", Start: 0, End: 1}, []domain.Token{{Text: "", Offset: 0, Length: 0}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].End)
}

func TestInterpolatePartitionProperty(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	alphabet := []rune("我你他是的了不在有人这中大为上个国说们到学生")
	for iter := 0; iter < 200; iter++ {
		var (
			text   []rune
			tokens []domain.Token
		)
		for n := 1 + r.Intn(8); n > 0; n-- {
			if r.Intn(3) == 0 {
				text = append(text, '，')
			}
			l := 1 + r.Intn(4)
			word := make([]rune, l)
			for i := range word {
				word[i] = alphabet[r.Intn(len(alphabet))]
			}
			tokens = append(tokens, domain.Token{Text: string(word), Offset: len(text), Length: l})
			text = append(text, word...)
		}
		start := r.Float64() * 100
		seg := domain.Segment{Text: string(text), Start: start, End: start + r.Float64()*10}

		got, err := Interpolate(seg, tokens)
		require.NoError(t, err)
		require.Len(t, got, len(tokens))

		assert.Equal(t, seg.Start, got[0].Start)
		assert.Equal(t, seg.End, got[len(got)-1].End)
		for i, tt := range got {
			assert.LessOrEqual(t, tt.Start, tt.End)
			assert.GreaterOrEqual(t, tt.Start, seg.Start)
			assert.LessOrEqual(t, tt.End, seg.End)
			if i > 0 {
				assert.InDelta(t, got[i-1].End, tt.Start, eps, "intervals must be contiguous")
			}
			want := seg.Duration() * float64(tt.Length) / float64(totalLen(tokens))
			assert.InDelta(t, want, tt.End-tt.Start, 1e-6)
		}
	}
}

func totalLen(tokens []domain.Token) int {
	n := 0
	for _, t := range tokens {
		n += t.Length
	}
	return n
}

func TestInterpolateMalformed(t *testing.T) {
	cases := []struct {
		name   string
		seg    domain.Segment
		tokens []domain.Token
	}{
		{"end before start", domain.Segment{Text: "我", Start: 2, End: 1}, []domain.Token{tok("我", 0)}},
		{"negative start", domain.Segment{Text: "我", Start: -1, End: 1}, []domain.Token{tok("我", 0)}},
		{"nan", domain.Segment{Text: "我", Start: math.NaN(), End: 1}, nil},
		{"out of bounds", domain.Segment{Text: "我", Start: 0, End: 1}, []domain.Token{tok("我爱", 0)}},
		{"overlap", domain.Segment{Text: "我爱", Start: 0, End: 1}, []domain.Token{tok("我爱", 0), tok("爱", 1)}},
		{"text mismatch", domain.Segment{Text: "我爱", Start: 0, End: 1}, []domain.Token{tok("你", 0)}},
		{"bad length", domain.Segment{Text: "我爱", Start: 0, End: 1}, []domain.Token{{Text: "我", Offset: 0, Length: 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Interpolate(tc.seg, tc.tokens)
			assert.ErrorIs(t, err, domain.ErrMalformedSegment)
		})
	}
}

func TestSpan(t *testing.T) {
	tt := domain.TimedToken{Token: tok("中文课", 0), Start: 3, End: 6}
	s, e := Span(tt, 0, 2)
	assert.InDelta(t, 3, s, eps)
	assert.InDelta(t, 5, e, eps)

	s, e = Span(tt, 2, 3)
	assert.InDelta(t, 5, s, eps)
	assert.Equal(t, 6.0, e)

	s, e = Span(tt, 0, 3)
	assert.Equal(t, 3.0, s)
	assert.Equal(t, 6.0, e)

	// Out of range bounds are clamped.
	s, e = Span(tt, -1, 10)
	assert.Equal(t, 3.0, s)
	assert.Equal(t, 6.0, e)
	s, e = Span(tt, 2, 1)
	assert.InDelta(t, 5, s, eps)
	assert.InDelta(t, 5, e, eps)
}
