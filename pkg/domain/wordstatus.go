package domain

import (
	"fmt"
	"strings"
)

// WordStatus is how well the learner knows a word. Words never marked are
// WordUnknown.
type WordStatus string

const (
	WordUnknown  WordStatus = "unknown"
	WordPractice WordStatus = "practice"
	WordKnown    WordStatus = "known"
)

// ParseWordStatus accepts a status name, case-insensitively.
func ParseWordStatus(s string) (WordStatus, error) {
	switch ws := WordStatus(strings.ToLower(strings.TrimSpace(s))); ws {
	case WordUnknown, WordPractice, WordKnown:
		return ws, nil
	}
	return "", fmt.Errorf("unknown word status %q (want known, practice or unknown)", s)
}
