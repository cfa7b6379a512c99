package view

import (
	"cmp"
	"maps"
	"slices"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/matheus3301/gravvy/internal/store"
)

// Contacts returns the address book grouped by section, letters first and
// store.SectionOther last, names in collation order within a section.
func (g *Graph) Contacts() []store.Contact {
	g.mu.RLock()
	out := slices.Collect(maps.Values(g.contacts))
	g.mu.RUnlock()
	sortContacts(out)
	return out
}

func sortContacts(cs []store.Contact) {
	col := collate.New(language.Und, collate.Loose)
	slices.SortFunc(cs, func(a, b store.Contact) int {
		if a.Section != b.Section {
			if a.Section == store.SectionOther {
				return 1
			}
			if b.Section == store.SectionOther {
				return -1
			}
			return cmp.Compare(a.Section, b.Section)
		}
		if c := col.CompareString(a.FullName(), b.FullName()); c != 0 {
			return c
		}
		return cmp.Compare(a.RecordID, b.RecordID)
	})
}

// SearchContacts returns contacts whose name fuzzily matches query, best
// matches first. An empty query returns every contact.
func (g *Graph) SearchContacts(query string) []store.Contact {
	all := g.Contacts()
	if query == "" {
		return all
	}
	names := make([]string, len(all))
	for i, c := range all {
		names[i] = c.FullName()
	}
	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.Stable(ranks)

	out := make([]store.Contact, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, all[r.OriginalIndex])
	}
	return out
}
