package chat

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"govibe/internal/common"
	"govibe/internal/store"
)

// Client covers the account-level operations that live outside any single
// open conversation: group lifecycle, the member directory, presence
// heartbeats and privacy settings.
type Client struct {
	st  store.Store
	me  User
	log zerolog.Logger
}

func NewClient(st store.Store, me User, log zerolog.Logger) *Client {
	return &Client{st: st, me: me, log: log}
}

// CreateGroup creates a group conversation with a fresh key and returns the
// Peer to open it with. The creator is always a member.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (Peer, error) {
	if err := common.ValidateGroupName(name); err != nil {
		return Peer{}, err
	}

	seen := map[string]bool{c.me.ID: true}
	members := []string{c.me.ID}
	for _, id := range memberIDs {
		if err := common.ValidateMemberID(id); err != nil {
			return Peer{}, err
		}
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	sort.Strings(members)

	key := "group_" + uuid.NewString()
	data := map[string]any{
		"members":         toAnySlice(members),
		"createdAt":       store.ServerTimestamp{},
		"lastInteraction": store.ServerTimestamp{},
		"type":            common.ConversationGroup.String(),
		"groupName":       strings.TrimSpace(name),
		"disappearing":    common.DisappearOff.String(),
		"unreadCount":     zeroCounters(members),
	}
	if err := c.st.Set(ctx, conversationPath(key), data); err != nil {
		return Peer{}, err
	}

	return Peer{ID: key, Name: name, IsGroup: true, Members: members}, nil
}

// AddMember adds a member to an existing group. The new member starts with a
// zeroed unread counter so the aggregate map covers the whole member set.
func (c *Client) AddMember(ctx context.Context, groupKey, memberID string) error {
	if err := common.ValidateMemberID(memberID); err != nil {
		return err
	}
	return c.st.Update(ctx, conversationPath(groupKey), map[string]any{
		"members":                  store.ArrayUnion{Value: memberID},
		"unreadCount." + memberID: int64(0),
	})
}

// LeaveGroup removes the local member from a group's member set. The member's
// typing flag and unread counter go with it.
func (c *Client) LeaveGroup(ctx context.Context, groupKey string) error {
	return c.st.Update(ctx, conversationPath(groupKey), map[string]any{
		"members":                   store.ArrayRemove{Value: c.me.ID},
		"unreadCount." + c.me.ID:   store.FieldDelete{},
		"typing." + c.me.ID:        store.FieldDelete{},
		"clearedBefore." + c.me.ID: store.FieldDelete{},
	})
}

// DeleteGroup deletes a group conversation and all of its messages.
func (c *Client) DeleteGroup(ctx context.Context, groupKey string) error {
	return deleteConversation(ctx, c.st, groupKey)
}

// HideConversation removes a conversation from the local member's list
// without deleting anything; sending or receiving a message unhides it.
func (c *Client) HideConversation(ctx context.Context, key string) error {
	return c.st.Update(ctx, conversationPath(key), map[string]any{
		"hiddenFor": store.ArrayUnion{Value: c.me.ID},
	})
}

// UnhideConversation reverses HideConversation.
func (c *Client) UnhideConversation(ctx context.Context, key string) error {
	return c.st.Update(ctx, conversationPath(key), map[string]any{
		"hiddenFor": store.ArrayRemove{Value: c.me.ID},
	})
}

// SetOnline publishes the local member's presence. Going offline also stamps
// lastSeen so peers can render "last seen at".
func (c *Client) SetOnline(ctx context.Context, online bool) error {
	fields := map[string]any{"isOnline": online}
	if !online {
		fields["lastSeen"] = store.ServerTimestamp{}
	}
	return c.setUserFields(ctx, fields)
}

// SetReadReceipts toggles the local member's read-receipt privacy setting.
// When off, this member's sessions stop marking inbound messages read.
func (c *Client) SetReadReceipts(ctx context.Context, enabled bool) error {
	return c.setUserFields(ctx, map[string]any{
		"privacy.readReceipts": enabled,
	})
}

// setUserFields updates the member's user document, creating it on first
// write.
func (c *Client) setUserFields(ctx context.Context, fields map[string]any) error {
	path := "users/" + c.me.ID
	err := c.st.Update(ctx, path, fields)
	if err == store.ErrNotFound {
		return c.st.Set(ctx, path, fields)
	}
	return err
}

// Conversations lists the local member's visible conversations, most recent
// interaction first. Hidden conversations are filtered out.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	snap, err := c.st.RunQuery(ctx, store.Query{
		Collection: "chats",
		Filters: []store.Filter{
			{Field: "members", Op: store.OpArrayContains, Value: c.me.ID},
		},
		OrderBy:    "lastInteraction",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Conversation, 0, len(snap))
	for _, doc := range snap {
		conv := conversationFromDoc(doc)
		hidden := false
		for _, id := range conv.HiddenFor {
			if id == c.me.ID {
				hidden = true
				break
			}
		}
		if !hidden {
			out = append(out, conv)
		}
	}
	return out, nil
}

// deleteConversation removes a conversation document and every message under
// it, in chunked batches so no single batch exceeds the store's op limit.
func deleteConversation(ctx context.Context, st store.Store, key string) error {
	snap, err := st.RunQuery(ctx, store.Query{Collection: messagesCollection(key)})
	if err != nil {
		return err
	}

	ops := make([]store.Op, 0, len(snap)+1)
	for _, doc := range snap {
		ops = append(ops, store.Op{Kind: store.OpDelete, Path: doc.Path})
	}
	ops = append(ops, store.Op{Kind: store.OpDelete, Path: conversationPath(key)})

	for len(ops) > 0 {
		n := len(ops)
		if n > batchLimit {
			n = batchLimit
		}
		if err := st.ApplyBatch(ctx, ops[:n]); err != nil {
			return err
		}
		ops = ops[n:]
	}
	return nil
}

// batchLimit caps the op count per atomic batch, mirroring the write limits
// of hosted document stores.
const batchLimit = 400
