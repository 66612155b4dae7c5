package transcribe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/japaniel/hanzivid/pkg/domain"
)

type whisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the JSON document written by whisper and by SaveJSON.
type Transcript struct {
	VideoID  string           `json:"video_id,omitempty"`
	Language string           `json:"language,omitempty"`
	Text     string           `json:"text,omitempty"`
	Segments []whisperSegment `json:"segments"`
}

// ParseWhisperJSON reads a whisper JSON transcript: either an object with a
// "segments" array or a bare array of {text, start, end}.
func ParseWhisperJSON(r io.Reader) ([]domain.Segment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty transcript document")
	}

	var raw []whisperSegment
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse transcript: %w", err)
		}
	} else {
		var doc Transcript
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse transcript: %w", err)
		}
		raw = doc.Segments
	}

	segments := make([]domain.Segment, 0, len(raw))
	for _, s := range raw {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{Text: text, Start: s.Start, End: s.End})
	}
	return segments, nil
}

// WriteJSON writes segments in the whisper layout.
func WriteJSON(w io.Writer, videoID string, segments []domain.Segment) error {
	doc := Transcript{VideoID: videoID, Language: "zh", Segments: make([]whisperSegment, len(segments))}
	for i, s := range segments {
		doc.Segments[i] = whisperSegment{Text: s.Text, Start: s.Start, End: s.End}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
