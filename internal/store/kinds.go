package store

import (
	"fmt"
	"slices"
)

// kindDeps lists, for every kind, the kinds it references. A kind must be
// written after its dependencies and removed before them.
var kindDeps = map[Kind][]Kind{
	KindUser:      nil,
	KindThumbnail: {KindUser},
	KindContact:   {KindUser},
	KindVideo:     {KindUser},
	KindClip:      {KindVideo, KindUser},
	KindMember:    {KindVideo, KindUser},
	KindActivity:  {KindUser, KindVideo, KindClip},
}

var kindOrder = mustSortKinds(kindDeps)

// KindOrder returns every kind in dependency order: users first, activities
// last.
func KindOrder() []Kind {
	return slices.Clone(kindOrder)
}

func mustSortKinds(deps map[Kind][]Kind) []Kind {
	order, err := sortKinds(deps)
	if err != nil {
		panic(err)
	}
	return order
}

// sortKinds is Kahn's algorithm with lexical tie-breaking, so the result is
// the same on every run.
func sortKinds(deps map[Kind][]Kind) ([]Kind, error) {
	inDegree := make(map[Kind]int, len(deps))
	dependents := make(map[Kind][]Kind, len(deps))
	for k, ds := range deps {
		inDegree[k] += 0
		for _, d := range ds {
			if _, ok := deps[d]; !ok {
				return nil, fmt.Errorf("kind %s depends on unknown kind %s", k, d)
			}
			inDegree[k]++
			dependents[d] = append(dependents[d], k)
		}
	}

	var ready []Kind
	for k, n := range inDegree {
		if n == 0 {
			ready = append(ready, k)
		}
	}

	order := make([]Kind, 0, len(deps))
	for len(ready) > 0 {
		slices.Sort(ready)
		k := ready[0]
		ready = ready[1:]
		order = append(order, k)
		for _, dep := range dependents[k] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(deps) {
		return nil, fmt.Errorf("cycle in kind dependencies")
	}
	return order, nil
}
