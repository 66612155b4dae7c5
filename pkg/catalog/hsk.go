package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// LevelEntry assigns an HSK level to a word as written in the source file.
type LevelEntry struct {
	Word  string
	Level domain.Level
}

var (
	digitsRe   = regexp.MustCompile(`\d+`)
	groupKeyRe = regexp.MustCompile(`(?i)^hsk\s*([1-9])$`)
)

// ParseHSK reads HSK level data. Three layouts are accepted:
//
//	{"我": 1, "喜欢": "1"}                                   flat map
//	[{"s": "我", "l": ["new-1", "old-1"]}, ...]             entry list (s|simplified|hanzi, l|level)
//	{"hsk1": [{"hanzi": "我"}, "你"], "hsk2": [...]}         grouped by level
//
// Entries without a word or without a level in 1..6 are skipped and counted.
func ParseHSK(r io.Reader) ([]LevelEntry, ParseStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("read hsk: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ParseStats{}, nil
	}

	switch data[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, ParseStats{}, fmt.Errorf("parse hsk list: %w", err)
		}
		var (
			out   []LevelEntry
			stats ParseStats
		)
		for _, raw := range list {
			stats.Lines++
			word, lvl, ok := parseListEntry(raw, domain.Unranked)
			if !ok {
				stats.Skipped++
				continue
			}
			out = append(out, LevelEntry{Word: word, Level: lvl})
			stats.Parsed++
		}
		return out, stats, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, ParseStats{}, fmt.Errorf("parse hsk map: %w", err)
		}
		out, stats := parseHSKObject(obj)
		return out, stats, nil
	default:
		return nil, ParseStats{}, fmt.Errorf("parse hsk: unexpected leading byte %q", data[0])
	}
}

func parseHSKObject(obj map[string]json.RawMessage) ([]LevelEntry, ParseStats) {
	// Map iteration order is random; sort keys so the output is stable.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		out   []LevelEntry
		stats ParseStats
	)
	add := func(word string, lvl domain.Level, ok bool) {
		stats.Lines++
		if !ok {
			stats.Skipped++
			return
		}
		out = append(out, LevelEntry{Word: word, Level: lvl})
		stats.Parsed++
	}
	for _, k := range keys {
		raw := obj[k]
		if m := groupKeyRe.FindStringSubmatch(k); m != nil && isArray(raw) {
			n, _ := strconv.Atoi(m[1])
			var list []json.RawMessage
			if err := json.Unmarshal(raw, &list); err != nil {
				add("", 0, false)
				continue
			}
			for _, item := range list {
				add(parseListEntry(item, domain.Level(n)))
			}
			continue
		}
		lvl, ok := extractLevel(raw)
		word := strings.TrimSpace(k)
		add(word, lvl, ok && word != "")
	}
	return out, stats
}

// parseListEntry accepts either a bare string (level comes from the group)
// or an object carrying the word and optionally its level.
func parseListEntry(raw json.RawMessage, groupLevel domain.Level) (string, domain.Level, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, groupLevel, s != "" && groupLevel.Valid()
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", 0, false
	}
	word := firstString(obj, "s", "simplified", "hanzi", "word")
	if word == "" {
		return "", 0, false
	}
	lvl := groupLevel
	for _, key := range []string{"l", "level", "hsk"} {
		if v, ok := obj[key]; ok {
			if parsed, ok := extractLevel(v); ok {
				lvl = parsed
			}
			break
		}
	}
	return word, lvl, lvl.Valid()
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// extractLevel pulls the first number out of values like 3, "3", "HSK 3" or
// ["new-1", "old-3"]. Only levels 1..6 are accepted.
func extractLevel(raw json.RawMessage) (domain.Level, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		l := domain.Level(int(n))
		return l, l.Valid()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return levelFromString(s)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if l, ok := extractLevel(item); ok {
				return l, true
			}
		}
	}
	return 0, false
}

func levelFromString(s string) (domain.Level, bool) {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	l := domain.Level(n)
	return l, l.Valid()
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// LoadHSK parses the HSK level file at path.
func LoadHSK(path string) ([]LevelEntry, ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ParseStats{}, err
	}
	defer f.Close()
	return ParseHSK(f)
}
