package importer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/matheus3301/gravvy/internal/store"
)

// SectionKey returns the index section of a contact: the first letter of
// the first name, or of the last name when there is no first name,
// upper-cased with diacritics removed. Names that do not start with a
// letter go to store.SectionOther.
func SectionKey(first, last string) string {
	name := strings.TrimSpace(first)
	if name == "" {
		name = strings.TrimSpace(last)
	}
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}
	r, _ := utf8.DecodeRuneInString(folded)
	if r == utf8.RuneError || !unicode.IsLetter(r) {
		return store.SectionOther
	}
	return string(unicode.ToUpper(r))
}
