// Package catalog loads the leveled vocabulary (HSK) and the dictionary
// (CC-CEDICT) into one immutable lookup structure keyed by canonical word.
//
// A Catalog is built once and then only read, so it is shared across
// goroutines without locking.
package catalog

import (
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// Stats describes how a catalog was assembled.
type Stats struct {
	Entries        int
	Ranked         int
	WordVariants   int
	CharVariants   int
	LevelConflicts int
}

// Catalog maps canonical (simplified) words to vocabulary entries and folds
// variant written forms onto those words.
type Catalog struct {
	entries  map[string]domain.VocabularyEntry
	variants map[string]string // whole-word traditional form -> canonical
	runes    map[rune]rune     // single-character traditional -> simplified
	maxLen   int
	stats    Stats
}

type builder struct {
	logger   *slog.Logger
	entries  map[string]*domain.VocabularyEntry
	glosses  map[string][]string
	levels   map[string]domain.Level
	keys     map[string]struct{}
	variants map[string]string
	runes    map[rune]rune
	stats    Stats
}

// Build assembles a catalog from HSK levels and dictionary entries.
// When the same canonical word is given different levels, the lowest level
// wins and the conflict is logged.
func Build(levels []LevelEntry, dict []CedictEntry, logger *slog.Logger) *Catalog {
	b := newBuilder(logger)

	// Only dictionary headwords are canonical up front; HSK words are folded
	// through the dictionary's variants so traditional-script lists land on
	// the simplified entry.
	for _, e := range dict {
		b.keys[widthFold(e.Simplified)] = struct{}{}
	}
	for _, e := range dict {
		b.addVariant(widthFold(e.Traditional), widthFold(e.Simplified))
	}
	for _, e := range dict {
		b.addDefinition(widthFold(e.Simplified), widthFold(e.Traditional), e.Pinyin, e.Definitions)
	}
	for _, l := range levels {
		b.addLevel(b.fold(widthFold(l.Word)), l.Level)
	}
	return b.finish()
}

// FromEntries rebuilds a catalog from previously persisted entries.
func FromEntries(entries []domain.VocabularyEntry, logger *slog.Logger) *Catalog {
	b := newBuilder(logger)
	for _, e := range entries {
		b.keys[e.Word] = struct{}{}
	}
	for _, e := range entries {
		if e.Traditional != "" {
			b.addVariant(e.Traditional, e.Word)
		}
	}
	for _, e := range entries {
		var defs []string
		if e.Gloss != "" {
			defs = strings.Split(e.Gloss, "; ")
		}
		b.addDefinition(e.Word, e.Traditional, e.Pinyin, defs)
		if e.Level.Valid() {
			b.addLevel(e.Word, e.Level)
		}
	}
	return b.finish()
}

func newBuilder(logger *slog.Logger) *builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &builder{
		logger:   logger,
		entries:  make(map[string]*domain.VocabularyEntry),
		glosses:  make(map[string][]string),
		levels:   make(map[string]domain.Level),
		keys:     make(map[string]struct{}),
		variants: make(map[string]string),
		runes:    make(map[rune]rune),
	}
}

// addVariant records trad as a variant of simp. A form that is itself a
// canonical key is never folded away, and the first mapping seen wins.
func (b *builder) addVariant(trad, simp string) {
	if trad == "" || simp == "" || trad == simp {
		return
	}
	if _, canonical := b.keys[trad]; !canonical {
		if _, seen := b.variants[trad]; !seen {
			b.variants[trad] = simp
			b.stats.WordVariants++
		}
	}

	tr, sr := []rune(trad), []rune(simp)
	if len(tr) != len(sr) {
		return
	}
	for i := range tr {
		if tr[i] == sr[i] {
			continue
		}
		if _, canonical := b.keys[string(tr[i])]; canonical {
			continue
		}
		if _, seen := b.runes[tr[i]]; !seen {
			b.runes[tr[i]] = sr[i]
			b.stats.CharVariants++
		}
	}
}

func (b *builder) addDefinition(word, trad, pinyin string, defs []string) {
	if word == "" {
		return
	}
	e := b.entry(word)
	if e.Traditional == "" && trad != word {
		e.Traditional = trad
	}
	if e.Pinyin == "" {
		e.Pinyin = pinyin
	}
	for _, d := range defs {
		if !contains(b.glosses[word], d) {
			b.glosses[word] = append(b.glosses[word], d)
		}
	}
}

func (b *builder) addLevel(word string, lvl domain.Level) {
	if word == "" || !lvl.Valid() {
		return
	}
	prev, ok := b.levels[word]
	switch {
	case !ok:
		b.levels[word] = lvl
	case prev != lvl:
		b.stats.LevelConflicts++
		kept := min(prev, lvl)
		b.logger.Warn("catalog level conflict",
			slog.String("word", word),
			slog.Int("level_a", int(prev)),
			slog.Int("level_b", int(lvl)),
			slog.Int("kept", int(kept)))
		b.levels[word] = kept
	}
	b.entry(word)
}

func (b *builder) entry(word string) *domain.VocabularyEntry {
	e, ok := b.entries[word]
	if !ok {
		e = &domain.VocabularyEntry{Word: word}
		b.entries[word] = e
	}
	return e
}

// fold applies variant folding with the maps built so far.
func (b *builder) fold(s string) string {
	c := Catalog{variants: b.variants, runes: b.runes, entries: nil}
	return c.fold(s)
}

func (b *builder) finish() *Catalog {
	// Collapse chains such as a->b, b->c so one pass of fold reaches a
	// fixed point.
	for from, to := range b.runes {
		seen := map[rune]bool{from: true}
		for {
			next, ok := b.runes[to]
			if !ok || seen[next] {
				break
			}
			seen[to] = true
			to = next
		}
		b.runes[from] = to
	}

	c := &Catalog{
		entries:  make(map[string]domain.VocabularyEntry, len(b.entries)),
		variants: b.variants,
		runes:    b.runes,
		stats:    b.stats,
	}
	for word, e := range b.entries {
		e.Level = b.levels[word]
		e.Gloss = strings.Join(b.glosses[word], "; ")
		c.entries[word] = *e
		if n := utf8.RuneCountInString(word); n > c.maxLen {
			c.maxLen = n
		}
		if e.Level.Valid() {
			c.stats.Ranked++
		}
	}
	c.stats.Entries = len(c.entries)
	return c
}

// Normalize folds s onto its canonical lookup key: compatibility/width
// normalization, whole-word variant folding, then per-character folding.
// Normalize is idempotent.
func (c *Catalog) Normalize(s string) string {
	s = widthFold(s)
	if s == "" {
		return ""
	}
	if _, ok := c.entries[s]; ok {
		return s
	}
	return c.fold(s)
}

func (c *Catalog) fold(s string) string {
	if v, ok := c.variants[s]; ok {
		return v
	}
	var sb strings.Builder
	sb.Grow(len(s))
	changed := false
	for _, r := range s {
		if to, ok := c.runes[r]; ok {
			sb.WriteRune(to)
			changed = true
			continue
		}
		sb.WriteRune(r)
	}
	if !changed {
		return s
	}
	out := sb.String()
	if v, ok := c.variants[out]; ok {
		return v
	}
	return out
}

// Lookup returns the entry for an already normalized key.
func (c *Catalog) Lookup(key string) (domain.VocabularyEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Entry normalizes word and looks it up.
func (c *Catalog) Entry(word string) (domain.VocabularyEntry, bool) {
	return c.Lookup(c.Normalize(word))
}

// MaxWordLen is the length in characters of the longest key.
func (c *Catalog) MaxWordLen() int { return c.maxLen }

// Len returns the number of canonical entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Stats returns build diagnostics.
func (c *Catalog) Stats() Stats { return c.stats }

// Entries returns all entries sorted by word.
func (c *Catalog) Entries() []domain.VocabularyEntry {
	out := make([]domain.VocabularyEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out
}

func widthFold(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
