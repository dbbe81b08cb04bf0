package narration

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"slidecast/packages/backend/slide"
)

// terminators end a sentence, including the Arabic question mark and the
// ellipsis character.
const terminators = ".!?؟…"

var repeatedTerminators = regexp.MustCompile(`([` + terminators + `])(\s*[` + terminators + `])+`)

// BuildText flattens a slide into the string that is spoken for it: title,
// subtitle, then every non-blank bullet, each ending in sentence punctuation.
// The result is deterministic for identical slide content.
func BuildText(s slide.Slide) string {
	parts := make([]string, 0, 2+len(s.Bullets))
	for _, p := range append([]string{s.Title, s.Subtitle}, s.Bullets...) {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		if last, _ := utf8.DecodeLastRuneInString(p); !strings.ContainsRune(terminators, last) {
			p += "."
		}
		parts = append(parts, p)
	}
	return repeatedTerminators.ReplaceAllString(strings.Join(parts, " "), "$1")
}
