package chat

import (
	"time"

	"govibe/internal/common"
	"govibe/internal/store"
)

// ReplyRef is a denormalized snapshot of a quoted message, embedded in the
// reply so the quote renders even if the original scrolls out of the window.
type ReplyRef struct {
	MessageID  string             `json:"message_id"`
	SenderName string             `json:"sender_name"`
	Excerpt    string             `json:"excerpt"`
	Kind       common.ContentKind `json:"kind"`
}

type Message struct {
	ID         string             `json:"id"`
	SenderID   string             `json:"sender_id"`
	SenderName string             `json:"sender_name"`
	Kind       common.ContentKind `json:"kind"`
	Text       string             `json:"text"`
	MediaURL   string             `json:"media_url,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	Read       bool               `json:"read"`
	Edited     bool               `json:"edited"`
	ExpiresAt  time.Time          `json:"expires_at,omitzero"`
	ReplyTo    *ReplyRef          `json:"reply_to,omitempty"`
	Reactions  map[string]string  `json:"reactions,omitempty"`  // member id -> emoji
	StarredBy  []string           `json:"starred_by,omitempty"` // member ids
	DeletedFor []string           `json:"-"`                    // per-member soft-delete set
}

// Expired reports whether the message's disappearing TTL has passed.
func (m Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !m.ExpiresAt.After(now)
}

// DeletedForMember reports whether the member soft-deleted this message.
func (m Message) DeletedForMember(id string) bool {
	for _, d := range m.DeletedFor {
		if d == id {
			return true
		}
	}
	return false
}

// StarredByMember reports whether the member starred this message.
func (m Message) StarredByMember(id string) bool {
	for _, s := range m.StarredBy {
		if s == id {
			return true
		}
	}
	return false
}

// Excerpt returns the short preview used for reply quotes and the
// conversation's lastMessage mirror.
func (m Message) Excerpt() string {
	switch m.Kind {
	case common.KindImage:
		return "Image"
	case common.KindAudio:
		return "Voice message"
	case common.KindDeleted:
		return "Message deleted"
	}
	if len(m.Text) > 80 {
		return m.Text[:80]
	}
	return m.Text
}

func messageFromDoc(doc store.Doc) Message {
	d := doc.Data
	m := Message{
		ID:         doc.ID,
		SenderID:   asString(d["uid"]),
		SenderName: asString(d["displayName"]),
		Kind:       common.ContentKind(asString(d["type"])),
		Text:       asString(d["text"]),
		CreatedAt:  asTime(d["createdAt"]),
		Read:       asBool(d["read"]),
		Edited:     asBool(d["edited"]),
		ExpiresAt:  asTime(d["expiresAt"]),
		Reactions:  asStringMap(d["reactions"]),
		StarredBy:  asStringSlice(d["starredBy"]),
		DeletedFor: asStringSlice(d["deletedFor"]),
	}

	switch m.Kind {
	case common.KindImage:
		m.MediaURL = asString(d["imageUrl"])
	case common.KindAudio:
		m.MediaURL = asString(d["audioUrl"])
	}

	if ref, ok := d["replyTo"].(map[string]any); ok {
		m.ReplyTo = &ReplyRef{
			MessageID:  asString(ref["id"]),
			SenderName: asString(ref["senderName"]),
			Excerpt:    asString(ref["excerpt"]),
			Kind:       common.ContentKind(asString(ref["kind"])),
		}
	}
	return m
}

// doc value coercion helpers; store data is schemaless so missing or
// mistyped fields degrade to zero values instead of failing.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func asBoolMap(v any) map[string]bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, val := range m {
		out[k] = asBool(val)
	}
	return out
}

func asInt64Map(v any) map[string]int64 {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, val := range m {
		out[k] = asInt64(val)
	}
	return out
}

func asTimeMap(v any) map[string]time.Time {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]time.Time, len(m))
	for k, val := range m {
		out[k] = asTime(val)
	}
	return out
}
