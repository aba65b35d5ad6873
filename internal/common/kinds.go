package common

import "time"

// ContentKind represents the payload kind of a chat message
type ContentKind string

const (
	KindText    ContentKind = "text"
	KindImage   ContentKind = "image"
	KindAudio   ContentKind = "audio"
	KindDeleted ContentKind = "deleted"
)

// String returns the string representation
func (ck ContentKind) String() string {
	return string(ck)
}

// IsValid checks if the content kind is valid
func (ck ContentKind) IsValid() bool {
	switch ck {
	case KindText, KindImage, KindAudio, KindDeleted:
		return true
	}
	return false
}

// ConversationKind distinguishes one-to-one chats from groups
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

func (ck ConversationKind) String() string {
	return string(ck)
}

// DisappearMode is the per-conversation TTL applied to newly sent messages
type DisappearMode string

const (
	DisappearOff DisappearMode = "off"
	Disappear24h DisappearMode = "24h"
	Disappear7d  DisappearMode = "7d"
)

func (dm DisappearMode) String() string {
	return string(dm)
}

// IsValid checks if the disappearing mode is one of the supported values
func (dm DisappearMode) IsValid() bool {
	return dm == DisappearOff || dm == Disappear24h || dm == Disappear7d
}

// TTL returns the message lifetime for the mode, zero for off
func (dm DisappearMode) TTL() time.Duration {
	switch dm {
	case Disappear24h:
		return 24 * time.Hour
	case Disappear7d:
		return 7 * 24 * time.Hour
	}
	return 0
}
