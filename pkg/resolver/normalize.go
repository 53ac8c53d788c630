package resolver

import (
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a name into the form compared by the substring, prefix and
// fuzzy tiers: lowercase, diacritics removed, non-alphanumerics dropped, and
// the confusable characters l/1 folded to i and 0 folded to o.
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks(), s)
	if err != nil {
		folded = s
	}

	var out strings.Builder
	out.Grow(len(folded))
	for _, r := range folded {
		r = unicode.ToLower(r)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		switch r {
		case 'l', '1':
			r = 'i'
		case '0':
			r = 'o'
		}
		out.WriteRune(r)
	}
	return out.String()
}

// stripMarks decomposes and drops combining marks ("é" -> "e").
// A transform.Transformer is stateful, so each call builds its own chain.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// normalizer caches Normalize results. Creator names and aliases are
// normalized on every fuzzy pass, so the cache holds the hot set.
type normalizer struct {
	cache *lru.Cache[string, string]
}

func newNormalizer(size int) *normalizer {
	if size <= 0 {
		return &normalizer{}
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return &normalizer{}
	}
	return &normalizer{cache: cache}
}

func (n *normalizer) normalize(s string) string {
	if n.cache == nil {
		return Normalize(s)
	}
	if v, ok := n.cache.Get(s); ok {
		return v
	}
	v := Normalize(s)
	n.cache.Add(s, v)
	return v
}
