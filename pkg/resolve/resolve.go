// Package resolve maps segmented tokens onto catalog words.
package resolve

import (
	"github.com/japaniel/hanzivid/pkg/domain"
)

// Catalog is the read-only lookup the resolver needs.
type Catalog interface {
	Normalize(s string) string
	Lookup(key string) (domain.VocabularyEntry, bool)
	MaxWordLen() int
}

// Match is a resolved catalog word. Length is the number of leading
// characters of the token the word covers.
type Match struct {
	Entry  domain.VocabularyEntry
	Length int
}

// Resolver looks tokens up longest-match-first. It holds no mutable state
// and is safe for concurrent use.
type Resolver struct {
	cat Catalog
}

// New returns a resolver over cat.
func New(cat Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// Resolve tries the whole token and then progressively shorter prefixes,
// normalizing each candidate before lookup. Candidates longer than the
// catalog's longest word are skipped.
func (r *Resolver) Resolve(text string) (Match, bool) {
	runes := []rune(text)
	n := len(runes)
	if limit := r.cat.MaxWordLen(); limit > 0 && n > limit {
		n = limit
	}
	for ; n > 0; n-- {
		key := r.cat.Normalize(string(runes[:n]))
		if key == "" {
			continue
		}
		if e, ok := r.cat.Lookup(key); ok {
			return Match{Entry: e, Length: n}, true
		}
	}
	return Match{}, false
}

// Word normalizes a query the same way tokens are normalized.
func (r *Resolver) Word(query string) string {
	return r.cat.Normalize(query)
}
