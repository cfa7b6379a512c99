// Package rank orders the video collection.
//
// Two orders exist. Compare is the ranking policy, applied only by an
// explicit reorder pass, which persists each video's rank in Video.Order.
// Display is what readers show between passes: the persisted order, with
// videos not yet placed on top. Keeping them apart means a background
// refresh that changes a count never reshuffles the list.
package rank

import (
	"cmp"
	"slices"

	"github.com/matheus3301/gravvy/internal/store"
)

// Compare orders two videos by prominence, most prominent first:
//
//  1. not yet placed (store.OrderNew)
//  2. participation freshness
//  3. unseen clips
//  4. unseen likes
//  5. relevance score
//  6. last update
//
// Every key sorts descending. The hash key breaks any remaining tie so the
// order is total.
func Compare(a, b store.Video) int {
	aNew, bNew := a.Order == store.OrderNew, b.Order == store.OrderNew
	switch {
	case aNew && !bNew:
		return -1
	case bNew && !aNew:
		return 1
	}
	if c := cmp.Compare(b.Participation, a.Participation); c != 0 {
		return c
	}
	if c := cmp.Compare(b.UnseenClipsCount, a.UnseenClipsCount); c != 0 {
		return c
	}
	if c := cmp.Compare(b.UnseenLikesCount, a.UnseenLikesCount); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.HashKey, b.HashKey)
}

// Reorder returns copies of videos sorted by Compare, with Order set to the
// dense rank, 0 being most prominent. The input is not modified.
func Reorder(videos []store.Video) []store.Video {
	out := slices.Clone(videos)
	slices.SortFunc(out, Compare)
	for i := range out {
		out[i].Order = int64(i)
	}
	return out
}

// Display orders videos as readers show them: unplaced videos first, ranked
// among themselves by Compare, then by persisted order.
func Display(a, b store.Video) int {
	aNew, bNew := a.Order == store.OrderNew, b.Order == store.OrderNew
	switch {
	case aNew && bNew:
		return Compare(a, b)
	case aNew:
		return -1
	case bNew:
		return 1
	}
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.HashKey, b.HashKey)
}

// Changed returns the videos of ranked whose order differs from before,
// keyed by hash key.
func Changed(before, ranked []store.Video) []store.Video {
	prev := make(map[string]int64, len(before))
	for _, v := range before {
		prev[v.HashKey] = v.Order
	}
	var out []store.Video
	for _, v := range ranked {
		if o, ok := prev[v.HashKey]; !ok || o != v.Order {
			out = append(out, v)
		}
	}
	return out
}
