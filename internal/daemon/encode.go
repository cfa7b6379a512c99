package daemon

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/gravvy/internal/store"
)

func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// VideoFields renders a video for the control service and the CLI.
func VideoFields(v store.Video) map[string]any {
	return map[string]any{
		"hash_key":           v.HashKey,
		"title":              v.Title,
		"owner":              v.OwnerPhone,
		"membership":         int64(v.Membership),
		"participation":      int64(v.Participation),
		"liked":              v.Liked,
		"likes_count":        int64(v.LikesCount),
		"plays_count":        int64(v.PlaysCount),
		"unseen_clips_count": int64(v.UnseenClipsCount),
		"unseen_likes_count": int64(v.UnseenLikesCount),
		"score":              v.Score,
		"order":              v.Order,
		"local":              v.IsLocal(),
		"created_at":         timeValue(v.CreatedAt),
		"updated_at":         timeValue(v.UpdatedAt),
	}
}

// ClipFields renders a clip.
func ClipFields(c store.Clip) map[string]any {
	return map[string]any{
		"id":       c.ID,
		"owner":    c.OwnerPhone,
		"order":    int64(c.Order),
		"duration": c.Duration,
		"mp4_url":  c.MP4URL,
	}
}

// MemberFields renders a member.
func MemberFields(m store.Member) map[string]any {
	return map[string]any{
		"phone":      m.UserPhone,
		"status":     int64(m.Status),
		"created_at": timeValue(m.CreatedAt),
	}
}

// ContactFields renders an address book contact.
func ContactFields(c store.Contact) map[string]any {
	phones := make([]any, len(c.Phones))
	for i, p := range c.Phones {
		phones[i] = p
	}
	return map[string]any{
		"record_id": c.RecordID,
		"name":      c.FullName(),
		"section":   c.Section,
		"phones":    phones,
	}
}

// List wraps rendered items as {"items": [...]}.
func List[T any](items []T, fields func(T) map[string]any) (*structpb.Struct, error) {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = fields(it)
	}
	return structpb.NewStruct(map[string]any{"items": out})
}
