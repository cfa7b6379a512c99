// Package remote is the boundary to the Gravvy REST service.
package remote

import "context"

// Collection names a server listing.
type Collection string

const (
	CollectionVideos     Collection = "videos"
	CollectionVideo      Collection = "video"
	CollectionMembers    Collection = "members"
	CollectionActivities Collection = "activities"
	CollectionFavorites  Collection = "favorites"
)

// Scope selects what FetchCollection lists. VideoKey is required for the
// video and members collections.
type Scope struct {
	Collection Collection
	VideoKey   string
}

// Op is a remote mutation.
type Op string

const (
	OpCreate             Op = "create"
	OpPlay               Op = "play"
	OpLike               Op = "like"
	OpUnlike             Op = "unlike"
	OpClearNotifications Op = "clear_notifications"
	OpLeave              Op = "leave"
	OpDeleteVideo        Op = "delete_video"
	OpRevokeMember       Op = "revoke_member"
	OpDeleteClip         Op = "delete_clip"
)

// Mutation is one change to mirror to the server. Target is the hash key of
// the video the change applies to.
type Mutation struct {
	ID      string
	Op      Op
	Target  string
	Payload Record
}

// API is the remote service as seen by the sync engine. Implementations must
// be safe for concurrent use.
type API interface {
	// FetchCollection returns every record of a listing, following
	// pagination. The video collection returns one record.
	FetchCollection(ctx context.Context, scope Scope) ([]Record, error)

	// Mutate applies a change on the server and returns the resulting
	// object, or nil when the server returns none.
	Mutate(ctx context.Context, m Mutation) (Record, error)

	// FetchImage downloads an image by absolute URL.
	FetchImage(ctx context.Context, url string) ([]byte, error)
}
