package chat

import (
	"context"

	"govibe/internal/common"
	"govibe/internal/store"
)

// ResolveKey derives the conversation key for a pair of member ids. Both
// sides sort the pair, so they compute the same key without any directory
// lookup and the key is stable across sessions.
func ResolveKey(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}

// conversationPath returns the document path for a conversation key.
func conversationPath(key string) string {
	return "chats/" + key
}

// messagesCollection returns the message sub-collection path for a key.
func messagesCollection(key string) string {
	return conversationPath(key) + "/messages"
}

// ensureConversation bootstraps the conversation document on first selection
// of a peer, or zeroes the local unread counter if it already exists. The
// counter write is fire-and-forget; a failure only means transient badge lag.
func (s *Session) ensureConversation(ctx context.Context, key string, kind common.ConversationKind, members []string, groupName string) error {
	path := conversationPath(key)

	_, err := s.st.Get(ctx, path)
	if err == nil {
		if uerr := s.st.Update(ctx, path, map[string]any{
			"unreadCount." + s.me.ID: int64(0),
		}); uerr != nil {
			s.log.Warn().Err(uerr).Str("chat", key).Msg("unread reset failed")
		}
		return nil
	}
	if err != store.ErrNotFound {
		return err
	}

	data := map[string]any{
		"members":         toAnySlice(members),
		"createdAt":       store.ServerTimestamp{},
		"lastInteraction": store.ServerTimestamp{},
		"type":            kind.String(),
		"disappearing":    common.DisappearOff.String(),
		"unreadCount":     zeroCounters(members),
	}
	if kind == common.ConversationGroup {
		data["groupName"] = groupName
	}
	return s.st.Set(ctx, path, data)
}

// zeroCounters builds the initial unread map covering exactly the member set.
func zeroCounters(members []string) map[string]any {
	counters := make(map[string]any, len(members))
	for _, m := range members {
		counters[m] = int64(0)
	}
	return counters
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
