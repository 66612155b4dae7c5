package domain

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusTranscribing, true},
		{StatusTranscribing, StatusIndexed, true},
		{StatusTranscribing, StatusFailed, true},
		{StatusFailed, StatusPending, true},
		{StatusIndexed, StatusPending, true},
		{StatusPending, StatusIndexed, false},
		{StatusFailed, StatusIndexed, false},
		{StatusIndexed, StatusFailed, false},
		{StatusTranscribing, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
			err := tt.from.CheckTransition(tt.to)
			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("indexed")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, st)

	_, err = ParseStatus("done")
	assert.Error(t, err)
}

func TestCollaboratorErrorMatchesBoth(t *testing.T) {
	err := NewCollaboratorError("recognition", io.ErrUnexpectedEOF)
	wrapped := errors.Join(errors.New("attempt failed"), err)

	assert.ErrorIs(t, wrapped, ErrCollaboratorFailure)
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)

	var ce *CollaboratorError
	require.ErrorAs(t, wrapped, &ce)
	assert.Equal(t, "recognition", ce.Stage)
}

func TestOccurrenceIntervals(t *testing.T) {
	a := Occurrence{Start: 1.0, End: 2.0}
	b := Occurrence{Start: 1.5, End: 2.5}
	c := Occurrence{Start: 2.0, End: 3.0}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c), "touching intervals do not overlap")
	assert.True(t, a.Contains(Occurrence{Start: 1.2, End: 1.8}))
	assert.True(t, a.Contains(Occurrence{Start: 2.0, End: 2.0}))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "HSK3", Level(3).String())
	assert.Equal(t, "unranked", Unranked.String())
	assert.False(t, Level(7).Valid())
}

func TestVideoRecordRetryable(t *testing.T) {
	assert.True(t, VideoRecord{Status: StatusFailed}.Retryable())
	assert.False(t, VideoRecord{Status: StatusTranscribing}.Retryable())
}

func TestParseWordStatus(t *testing.T) {
	for in, want := range map[string]WordStatus{"known": WordKnown, " Practice ": WordPractice, "UNKNOWN": WordUnknown} {
		got, err := ParseWordStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseWordStatus("mastered")
	assert.Error(t, err)
}
