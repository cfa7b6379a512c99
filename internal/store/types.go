package store

import (
	"strings"
	"time"
)

// Kind names one entity collection. It doubles as the suffix of the
// collection's "data changed" bus signal.
type Kind string

const (
	KindUser      Kind = "users"
	KindThumbnail Kind = "thumbnails"
	KindContact   Kind = "contacts"
	KindVideo     Kind = "videos"
	KindClip      Kind = "clips"
	KindMember    Kind = "members"
	KindActivity  Kind = "activities"
)

// Relationship classifies a user relative to the signed-in account.
type Relationship int

const (
	RelationshipUnknown Relationship = 0
	RelationshipContact Relationship = 100
	RelationshipSelf    Relationship = 200
)

// Membership is the signed-in user's relationship to a video.
type Membership int

const (
	MembershipNone Membership = iota
	MembershipInvited
	MembershipMember
	MembershipCreated
)

// Participation tracks whether the signed-in user has looked at a video
// since it last changed. Higher values are fresher.
type Participation int

const (
	ParticipationSeen Participation = iota
	ParticipationUnseen
	ParticipationNew
)

// MemberStatus is the state of one user's membership in a video.
type MemberStatus int

const (
	MemberInvited MemberStatus = iota
	MemberActive
)

// ObjectType is the kind of entity an activity acts on.
type ObjectType string

const (
	ObjectNone  ObjectType = ""
	ObjectUser  ObjectType = "user"
	ObjectVideo ObjectType = "video"
	ObjectClip  ObjectType = "clip"
)

// OrderNew marks a video that has not been placed by a reorder pass yet.
const OrderNew int64 = -1

// LocalKeyPrefix prefixes the hash key of videos created locally and not yet
// confirmed by the server.
const LocalKeyPrefix = "local-"

// SectionOther is the contact section of names that do not start with a
// letter. It sorts after every letter section.
const SectionOther = "#"

// User is identified by its E.164 phone number.
type User struct {
	Phone        string
	FullName     string
	AvatarURL    string
	Relationship Relationship
	Favorited    bool
	UpdatedAt    time.Time
}

// Thumbnail is the downloaded avatar image of a user.
type Thumbnail struct {
	UserPhone         string
	Image             []byte
	LoadingInProgress bool
	UpdatedAt         time.Time
}

// Contact is an address-book person, linked to users by phone number.
type Contact struct {
	RecordID  string
	FirstName string
	LastName  string
	Section   string
	Phones    []string
	UpdatedAt time.Time
}

// FullName joins the non-empty name parts.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Video is identified by its server hash key.
type Video struct {
	HashKey                string
	Title                  string
	OwnerPhone             string
	Membership             Membership
	Participation          Participation
	Liked                  bool
	LikesCount             int
	PlaysCount             int
	UnseenClipsCount       int
	UnseenLikesCount       int
	Score                  float64
	Order                  int64
	PhotoThumbnailURL      string
	PhotoSmallThumbnailURL string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsLocal reports whether the video has not been confirmed by the server.
func (v Video) IsLocal() bool {
	return strings.HasPrefix(v.HashKey, LocalKeyPrefix)
}

// HasPendingNotifications reports unseen content on the video.
func (v Video) HasPendingNotifications() bool {
	return v.UnseenClipsCount > 0 || v.UnseenLikesCount > 0 || v.Participation != ParticipationSeen
}

// Clip is one recorded segment of a video.
type Clip struct {
	ID                string
	VideoKey          string
	OwnerPhone        string
	Order             int
	Duration          float64
	MP4URL            string
	PhotoThumbnailURL string
	UpdatedAt         time.Time
}

// Member is one user's relationship to one video.
type Member struct {
	VideoKey  string
	UserPhone string
	Status    MemberStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the member's identity.
func (m Member) Key() string {
	return MemberKey(m.VideoKey, m.UserPhone)
}

// MemberKey builds the identity of the member of video for phone.
func MemberKey(videoKey, phone string) string {
	return videoKey + "/" + phone
}

// Activity is an append-only feed entry.
type Activity struct {
	ID             string
	Verb           string
	ActorPhone     string
	ObjectType     ObjectType
	ObjectID       string
	TargetVideoKey string
	CreatedAt      time.Time
}

// Mutation is a local change waiting to be mirrored to the server.
type Mutation struct {
	ID           int64
	MutationID   string
	Kind         Kind
	Op           string
	Target       string
	Payload      string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	CreatedAt    time.Time
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
