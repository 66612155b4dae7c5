package transcribe

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/japaniel/hanzivid/pkg/domain"
)

var srtTime = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})(?:[,.](\d{1,3}))?$`)

// ParseSRT parses SubRip text into segments.
//
//	1                                 sequence number
//	00:00:00,000 --> 00:00:01,830     start --> end
//	你好                              line
//	欢迎来到这个视频                    line
//
// Multi-line cues are joined without a separator. Cues with no text are
// dropped.
func ParseSRT(r io.Reader) ([]domain.Segment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		segments []domain.Segment
		cur      *domain.Segment
		text     strings.Builder
		lineNo   int
	)
	flush := func() {
		if cur != nil && strings.TrimSpace(text.String()) != "" {
			cur.Text = strings.TrimSpace(text.String())
			segments = append(segments, *cur)
		}
		cur = nil
		text.Reset()
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" {
			flush()
			continue
		}
		if strings.Contains(line, "-->") {
			flush()
			parts := strings.SplitN(line, "-->", 2)
			start, err := parseSRTTime(parts[0])
			if err != nil {
				return nil, fmt.Errorf("srt line %d: %w", lineNo, err)
			}
			// Cue settings may follow the end time.
			endField := strings.Fields(parts[1])
			if len(endField) == 0 {
				return nil, fmt.Errorf("srt line %d: missing end time", lineNo)
			}
			end, err := parseSRTTime(endField[0])
			if err != nil {
				return nil, fmt.Errorf("srt line %d: %w", lineNo, err)
			}
			cur = &domain.Segment{Start: start, End: end}
			continue
		}
		// Sequence numbers precede the timing line.
		if cur == nil && isDigitOnly(line) {
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("srt line %d: text outside a cue", lineNo)
		}
		text.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	flush()
	return segments, nil
}

func parseSRTTime(s string) (float64, error) {
	m := srtTime.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp %q", strings.TrimSpace(s))
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	ms := 0
	if m[4] != "" {
		// "5" means 500ms, as in "00:00:01.5".
		frac := m[4] + strings.Repeat("0", 3-len(m[4]))
		ms, _ = strconv.Atoi(frac)
	}
	return float64(h*3600+mins*60+sec) + float64(ms)/1000, nil
}

// checks if a string contains only digits
func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// FormatTimestamp renders seconds as MM:SS.xx.
func FormatTimestamp(seconds float64) string {
	m := int(seconds) / 60
	s := seconds - float64(m*60)
	return fmt.Sprintf("%02d:%05.2f", m, s)
}

// Format joins segments into readable text, one line per segment:
//
//	[00:01.20 - 00:04.50] 你好，欢迎来到这个视频
func Format(segments []domain.Segment) string {
	lines := make([]string, len(segments))
	for i, seg := range segments {
		lines[i] = fmt.Sprintf("[%s - %s] %s", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Text)
	}
	return strings.Join(lines, "\n")
}
