package importer

import (
	"time"

	"github.com/matheus3301/gravvy/internal/remote"
)

// Server field names.
const (
	FieldPhoneNumber         = "phone_number"
	FieldFullName            = "full_name"
	FieldAvatarThumbnail     = "avatar_thumbnail"
	FieldUpdatedAt           = "updated_at"
	FieldCreatedAt           = "created_at"
	FieldHashKey             = "hash_key"
	FieldTitle               = "title"
	FieldOwner               = "owner"
	FieldMembership          = "membership"
	FieldParticipation       = "participation"
	FieldLiked               = "liked"
	FieldLikesCount          = "likes_count"
	FieldPlaysCount          = "plays_count"
	FieldUnseenClipsCount    = "unseen_clips_count"
	FieldUnseenLikesCount    = "unseen_likes_count"
	FieldScore               = "score"
	FieldPhotoThumbnail      = "photo_thumbnail"
	FieldPhotoSmallThumbnail = "photo_small_thumbnail"
	FieldClips               = "clips"
	FieldIdentifier          = "identifier"
	FieldOrder               = "order"
	FieldDuration            = "duration"
	FieldMP4                 = "mp4"
	FieldVideo               = "video"
	FieldUser                = "user"
	FieldStatus              = "status"
	FieldVerb                = "verb"
	FieldActor               = "actor"
	FieldObjectType          = "object_type"
	FieldObject              = "object"
	FieldTarget              = "target"

	// Address book people, see addressbook.Person.Record.
	FieldRecordID  = "record_id"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldPhones    = "phones"
)

// Server records are often partial: a nested owner may carry only its phone
// number. The set helpers copy a field only when the record has it, so a
// partial record never blanks what a full one stored.

func setString(dst *string, rec remote.Record, key string) {
	if rec.Has(key) {
		*dst = rec.String(key)
	}
}

func setInt(dst *int, rec remote.Record, key string) {
	if rec.Has(key) {
		*dst = rec.Int(key)
	}
}

func setFloat(dst *float64, rec remote.Record, key string) {
	if rec.Has(key) {
		*dst = rec.Float(key)
	}
}

func setBool(dst *bool, rec remote.Record, key string) {
	if rec.Has(key) {
		*dst = rec.Bool(key)
	}
}

func setTime(dst *time.Time, rec remote.Record, key string) {
	if t := rec.Time(key); !t.IsZero() {
		*dst = t
	}
}

func identity(rec remote.Record, key string) (string, bool) {
	if rec == nil {
		return "", false
	}
	id := rec.String(key)
	return id, id != ""
}
