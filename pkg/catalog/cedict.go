package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// CedictEntry is one line of a CC-CEDICT file:
//
//	學習 学习 [xue2 xi2] /to study/to learn/
type CedictEntry struct {
	Traditional string
	Simplified  string
	Pinyin      string
	Definitions []string
}

// ParseStats counts what a source parser kept and skipped.
type ParseStats struct {
	Lines   int
	Parsed  int
	Skipped int
}

var cedictLine = regexp.MustCompile(`^(\S+)\s+(\S+)\s+\[([^\]]*)\]\s+/(.+)/\s*$`)

// ParseCEDICT reads CC-CEDICT text. Comment and blank lines are ignored;
// lines that do not match the entry layout are skipped and counted.
func ParseCEDICT(r io.Reader) ([]CedictEntry, ParseStats, error) {
	var (
		entries []CedictEntry
		stats   ParseStats
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Lines++

		m := cedictLine.FindStringSubmatch(line)
		if m == nil {
			stats.Skipped++
			continue
		}
		var defs []string
		for _, d := range strings.Split(m[4], "/") {
			if d = strings.TrimSpace(d); d != "" {
				defs = append(defs, d)
			}
		}
		if len(defs) == 0 {
			stats.Skipped++
			continue
		}
		entries = append(entries, CedictEntry{
			Traditional: m[1],
			Simplified:  m[2],
			Pinyin:      strings.TrimSpace(m[3]),
			Definitions: defs,
		})
		stats.Parsed++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("read cedict: %w", err)
	}
	return entries, stats, nil
}

// LoadCEDICT parses the CC-CEDICT file at path.
func LoadCEDICT(path string) ([]CedictEntry, ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ParseStats{}, err
	}
	defer f.Close()
	return ParseCEDICT(f)
}
