package store

import (
	"maps"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// ChangeSet is the immutable result of one committed transaction: the final
// value of every entity written and the identity of every entity deleted.
// Cascaded deletions of owned children are implied, not listed.
type ChangeSet struct {
	ID         ulid.ULID
	Source     string
	CommitAt   time.Time
	Users      []User
	Thumbnails []Thumbnail
	Contacts   []Contact
	Videos     []Video
	Clips      []Clip
	Members    []Member
	Activities []Activity
	Deleted    map[Kind][]string
}

// Empty reports whether the transaction changed nothing.
func (cs *ChangeSet) Empty() bool {
	return cs == nil || len(cs.Kinds()) == 0
}

// Kinds returns the kinds touched by the change set, in dependency order.
func (cs *ChangeSet) Kinds() []Kind {
	if cs == nil {
		return nil
	}
	counts := map[Kind]int{
		KindUser:      len(cs.Users),
		KindThumbnail: len(cs.Thumbnails),
		KindContact:   len(cs.Contacts),
		KindVideo:     len(cs.Videos),
		KindClip:      len(cs.Clips),
		KindMember:    len(cs.Members),
		KindActivity:  len(cs.Activities),
	}
	var kinds []Kind
	for _, k := range kindOrder {
		if counts[k] > 0 || len(cs.Deleted[k]) > 0 {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// recorder accumulates writes made through a Tx. Later writes to the same
// identity replace earlier ones; a delete cancels a pending upsert.
type recorder struct {
	users      map[string]User
	thumbnails map[string]Thumbnail
	contacts   map[string]Contact
	videos     map[string]Video
	clips      map[string]Clip
	members    map[string]Member
	activities map[string]Activity
	deleted    map[Kind]map[string]struct{}
}

func newRecorder() *recorder {
	return &recorder{
		users:      make(map[string]User),
		thumbnails: make(map[string]Thumbnail),
		contacts:   make(map[string]Contact),
		videos:     make(map[string]Video),
		clips:      make(map[string]Clip),
		members:    make(map[string]Member),
		activities: make(map[string]Activity),
		deleted:    make(map[Kind]map[string]struct{}),
	}
}

func (r *recorder) upserted(k Kind, id string) {
	delete(r.deleted[k], id)
}

func (r *recorder) remove(k Kind, id string) {
	switch k {
	case KindUser:
		delete(r.users, id)
	case KindThumbnail:
		delete(r.thumbnails, id)
	case KindContact:
		delete(r.contacts, id)
	case KindVideo:
		delete(r.videos, id)
	case KindClip:
		delete(r.clips, id)
	case KindMember:
		delete(r.members, id)
	case KindActivity:
		delete(r.activities, id)
	}
	if r.deleted[k] == nil {
		r.deleted[k] = make(map[string]struct{})
	}
	r.deleted[k][id] = struct{}{}
}

func (r *recorder) changeSet(source string) *ChangeSet {
	cs := &ChangeSet{
		ID:         ulid.Make(),
		Source:     source,
		CommitAt:   time.Now().UTC(),
		Users:      sortedValues(r.users),
		Thumbnails: sortedValues(r.thumbnails),
		Contacts:   sortedValues(r.contacts),
		Videos:     sortedValues(r.videos),
		Clips:      sortedValues(r.clips),
		Members:    sortedValues(r.members),
		Activities: sortedValues(r.activities),
		Deleted:    make(map[Kind][]string),
	}
	for k, ids := range r.deleted {
		if len(ids) > 0 {
			cs.Deleted[k] = slices.Sorted(maps.Keys(ids))
		}
	}
	return cs
}

func sortedValues[T any](m map[string]T) []T {
	if len(m) == 0 {
		return nil
	}
	out := make([]T, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k])
	}
	return out
}
