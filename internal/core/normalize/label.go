// Package normalize maps raw upstream rows onto fixed schemas: alias probing,
// safe numeric coercion, key validation, label cleaning and load stamping
package normalize

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// labelChains pools transformer chains; a chain carries state and is not concurrency safe
var labelChains = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			runes.Remove(runes.In(unicode.Cf)), // ZWJ, ZWNJ, BOM and friends
			width.Fold,
		)
	},
}

// Label cleans a free-text upstream label (affiliate names, source aliases,
// sheet cells). Pipeline:
// 1 drop invalid UTF-8 and control characters (tabs and newlines become spaces)
// 2 NFKC, strip format characters, fold fullwidth forms
// 3 collapse whitespace runs and trim
// Case is preserved
func Label(s string) string {
	if s == "" {
		return ""
	}
	s = Sanitize(s)

	tr := labelChains.Get().(transform.Transformer)
	out, _, err := transform.String(tr, s)
	tr.Reset()
	labelChains.Put(tr)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// Sanitize drops invalid UTF-8 bytes, NUL, DEL and C0/C1 controls. Tab, CR
// and LF survive as whitespace. Clean input is returned unchanged
func Sanitize(s string) string {
	clean := true
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if (r == utf8.RuneError && size == 1) || dropRune(r) {
			clean = false
			break
		}
		i += size
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !(r == utf8.RuneError && size == 1) && !dropRune(r) {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func dropRune(r rune) bool {
	switch {
	case r == '\n' || r == '\r' || r == '\t':
		return false
	case r < 0x20 || r == 0x7F:
		return true
	case r >= 0x80 && r <= 0x9F:
		return true
	}
	return false
}
