package seller

import (
	"iter"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify folds accents, lowercases and joins alphanumeric runs with hyphens:
// "Padaria São João" becomes "padaria-sao-joao".
func Slugify(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// SlugCandidates yields base, base-2, base-3 and so on, at most limit values.
func SlugCandidates(base string, limit int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 1; i <= limit; i++ {
			candidate := base
			if i > 1 {
				candidate = base + "-" + strconv.Itoa(i)
			}
			if !yield(candidate) {
				return
			}
		}
	}
}
