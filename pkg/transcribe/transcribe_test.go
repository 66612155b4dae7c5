package transcribe

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/hanzivid/pkg/domain"
)

const sampleSRT = "\ufeff1\n00:00:00,000 --> 00:00:01,830\n你好\n欢迎来到这个视频\n\n2\n00:00:01,910 --> 00:00:03,5 position:10%\n我爱学中文\n\n3\n00:01:02,000 --> 00:01:04,000\n\n"

func TestParseSRT(t *testing.T) {
	segs, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, "你好欢迎来到这个视频", segs[0].Text)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.InDelta(t, 1.83, segs[0].End, 1e-9)
	assert.Equal(t, "我爱学中文", segs[1].Text)
	assert.InDelta(t, 1.91, segs[1].Start, 1e-9)
	assert.InDelta(t, 3.5, segs[1].End, 1e-9)
}

func TestParseSRTErrors(t *testing.T) {
	_, err := ParseSRT(strings.NewReader("1\n00:00:aa,000 --> 00:00:01,000\n你好\n"))
	assert.Error(t, err)
	_, err = ParseSRT(strings.NewReader("你好\n"))
	assert.Error(t, err)

	segs, err := ParseSRT(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestParseWhisperJSON(t *testing.T) {
	doc := `{"text": "...", "language": "zh", "segments": [
		{"id": 0, "text": " 你好 ", "start": 0.0, "end": 1.2, "avg_logprob": -0.2},
		{"id": 1, "text": "", "start": 1.2, "end": 1.4},
		{"id": 2, "text": "我爱学中文", "start": 1.4, "end": 3.0}
	]}`
	segs, err := ParseWhisperJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "你好", segs[0].Text)
	assert.Equal(t, 3.0, segs[1].End)

	bare, err := ParseWhisperJSON(strings.NewReader(`[{"text":"中文","start":1,"end":2}]`))
	require.NoError(t, err)
	assert.Len(t, bare, 1)

	_, err = ParseWhisperJSON(strings.NewReader(`{"segments": 3}`))
	assert.Error(t, err)
}

func TestWriteJSONRoundTrip(t *testing.T) {
	in := []domain.Segment{{Text: "你好", Start: 0, End: 1}, {Text: "再见", Start: 1, End: 2.5}}
	var sb strings.Builder
	require.NoError(t, WriteJSON(&sb, "vid", in))
	assert.Contains(t, sb.String(), "你好")

	out, err := ParseWhisperJSON(strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFormat(t *testing.T) {
	got := Format([]domain.Segment{{Text: "你好", Start: 1.2, End: 64.5}})
	assert.Equal(t, "[00:01.20 - 01:04.50] 你好", got)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileRecognizer(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "lesson.mp4")
	writeFile(t, video, "not really a video")
	writeFile(t, filepath.Join(dir, "lesson.srt"), sampleSRT)

	ctx := context.Background()
	segs, err := FileRecognizer{}.Recognize(ctx, video)
	require.NoError(t, err)
	assert.Len(t, segs, 2)
	assert.True(t, HasTranscript(video))

	direct := filepath.Join(dir, "other.json")
	writeFile(t, direct, `{"segments": []}`)
	segs, err = FileRecognizer{}.Recognize(ctx, direct)
	require.NoError(t, err)
	assert.Empty(t, segs)

	_, err = FileRecognizer{}.Recognize(ctx, filepath.Join(dir, "missing.mp4"))
	assert.ErrorIs(t, err, domain.ErrCollaboratorFailure)
	assert.ErrorIs(t, err, ErrNoTranscript)
	var ce *domain.CollaboratorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageRecognition, ce.Stage)
}

func TestCommandRecognizer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	writeFile(t, video, "x")

	rec := &CommandRecognizer{
		Command: "sh",
		Args: []string{"-c",
			`printf '{"segments":[{"text":"%s","start":0,"end":2}]}' "$3" > "$1/$2.json"`,
			"sh", "{output_dir}", "{stem}", "{language}"},
		Language: "zh",
		WorkDir:  dir,
	}
	segs, err := rec.Recognize(context.Background(), video)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "zh", segs[0].Text)

	failing := &CommandRecognizer{Command: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}, WorkDir: dir}
	_, err = failing.Recognize(context.Background(), video)
	assert.ErrorIs(t, err, domain.ErrCollaboratorFailure)
	assert.Contains(t, err.Error(), "boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rec.Recognize(ctx, video)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedRecognizer(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCache(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	video := filepath.Join(dir, "clip.mp4")
	writeFile(t, video, "v1")

	var calls int32
	inner := RecognizerFunc(func(ctx context.Context, source string) ([]domain.Segment, error) {
		atomic.AddInt32(&calls, 1)
		return []domain.Segment{{Text: "你好", Start: 0, End: 1}}, nil
	})
	rec := &CachedRecognizer{Inner: inner, Cache: cache}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		segs, err := rec.Recognize(ctx, video)
		require.NoError(t, err)
		require.Len(t, segs, 1)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cache.Len())

	// Changing the file invalidates the entry.
	writeFile(t, video, "version two")
	_, err = rec.Recognize(ctx, video)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	require.NoError(t, cache.Delete(video))
	assert.Equal(t, 0, cache.Len())

	boom := errors.New("engine crashed")
	failing := &CachedRecognizer{Inner: RecognizerFunc(func(context.Context, string) ([]domain.Segment, error) {
		return nil, domain.NewCollaboratorError(StageRecognition, boom)
	}), Cache: cache}
	_, err = failing.Recognize(ctx, "https://example.com/v")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len(), "failures are not cached")
}

func TestChain(t *testing.T) {
	first := RecognizerFunc(func(context.Context, string) ([]domain.Segment, error) {
		return nil, domain.NewCollaboratorError(StageRecognition, ErrNoTranscript)
	})
	second := RecognizerFunc(func(context.Context, string) ([]domain.Segment, error) {
		return []domain.Segment{{Text: "好"}}, nil
	})
	segs, err := Chain{first, second}.Recognize(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, segs, 1)

	_, err = Chain{first}.Recognize(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrCollaboratorFailure)

	_, err = Chain{}.Recognize(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrCollaboratorFailure)
}
