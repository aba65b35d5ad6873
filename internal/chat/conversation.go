package chat

import (
	"time"

	"govibe/internal/common"
	"govibe/internal/store"
)

// Conversation is the metadata document shared by all members of a chat.
// Unread counters are a UX hint, not a source of truth: they are mutated by
// atomic increments that can race, and are zeroed locally the moment the
// conversation becomes active. Per-message read state lives on the messages.
type Conversation struct {
	Key             string
	Kind            common.ConversationKind
	Members         []string
	GroupName       string
	CreatedAt       time.Time
	LastInteraction time.Time
	LastMessage     string
	UnreadCount     map[string]int64
	Typing          map[string]bool
	ClearedBefore   map[string]time.Time
	Disappearing    common.DisappearMode
	HiddenFor       []string
}

func conversationFromDoc(doc store.Doc) Conversation {
	d := doc.Data
	c := Conversation{
		Key:             doc.ID,
		Kind:            common.ConversationKind(asString(d["type"])),
		Members:         asStringSlice(d["members"]),
		GroupName:       asString(d["groupName"]),
		CreatedAt:       asTime(d["createdAt"]),
		LastInteraction: asTime(d["lastInteraction"]),
		LastMessage:     asString(d["lastMessage"]),
		UnreadCount:     asInt64Map(d["unreadCount"]),
		Typing:          asBoolMap(d["typing"]),
		ClearedBefore:   asTimeMap(d["clearedBefore"]),
		Disappearing:    common.DisappearMode(asString(d["disappearing"])),
		HiddenFor:       asStringSlice(d["hiddenFor"]),
	}
	if !c.Disappearing.IsValid() {
		c.Disappearing = common.DisappearOff
	}
	return c
}

// Peer is what the user selected from the directory: either another member
// or an existing group.
type Peer struct {
	ID      string
	Name    string
	IsGroup bool
	Members []string // group member ids, including the local user
}
