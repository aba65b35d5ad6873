package chat

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"govibe/internal/common"
	"govibe/internal/store"
)

// Action dispatch: every user intent validates its preconditions, applies a
// purely local optimistic effect where one exists, issues the remote writes,
// and lets the next push be the source of truth. Validation failures are
// silent no-ops; write failures surface once through the notice callback and
// are not retried.

// SendText sends a trimmed text message. Empty input and a closed session
// are silent no-ops.
func (s *Session) SendText(ctx context.Context, text string) error {
	return s.sendText(ctx, text, nil)
}

// Reply sends a text message quoting another message. The quote is a
// denormalized snapshot so it survives the original leaving the window.
func (s *Session) Reply(ctx context.Context, text string, quoted Message) error {
	ref := &ReplyRef{
		MessageID:  quoted.ID,
		SenderName: quoted.SenderName,
		Excerpt:    quoted.Excerpt(),
		Kind:       quoted.Kind,
	}
	return s.sendText(ctx, text, ref)
}

func (s *Session) sendText(ctx context.Context, text string, reply *ReplyRef) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	fields := map[string]any{"text": text}
	if reply != nil {
		fields["replyTo"] = map[string]any{
			"id":         reply.MessageID,
			"senderName": reply.SenderName,
			"excerpt":    reply.Excerpt,
			"kind":       reply.Kind.String(),
		}
	}
	return s.send(ctx, common.KindText, text, fields)
}

// SendImage uploads the blob to the media host and sends an image message.
func (s *Session) SendImage(ctx context.Context, content io.Reader, filename string) error {
	return s.sendMedia(ctx, common.KindImage, content, filename, common.MediaFileTypeImage)
}

// SendVoice uploads a recorded audio blob and sends an audio message. The
// host stores audio under the video resource type so it transcodes for
// playback.
func (s *Session) SendVoice(ctx context.Context, content io.Reader, filename string) error {
	return s.sendMedia(ctx, common.KindAudio, content, filename, common.MediaFileTypeVideo)
}

func (s *Session) sendMedia(ctx context.Context, kind common.ContentKind, content io.Reader, filename string, fileType common.MediaFileType) error {
	s.mu.Lock()
	if !s.open || s.uploader == nil || s.uploading {
		s.mu.Unlock()
		return nil
	}
	s.uploading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.uploading = false
		s.mu.Unlock()
	}()

	url, err := s.uploader.Upload(ctx, content, filename, fileType)
	if err != nil {
		// Upload state is reset by the defer so the user may retry manually.
		s.notify("upload", err)
		return err
	}

	fields := map[string]any{"text": ""}
	if kind == common.KindImage {
		fields["imageUrl"] = url
		fields["fileName"] = filename
	} else {
		fields["audioUrl"] = url
	}
	return s.send(ctx, kind, "", fields)
}

// send is the shared tail of all send operations: pending overlay entry,
// message write, then the best-effort sibling update of the conversation
// document. A failed sibling update never rolls back the message write.
func (s *Session) send(ctx context.Context, kind common.ContentKind, text string, fields map[string]any) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	key := s.key
	convKind := s.kind
	members := append([]string(nil), s.members...)
	peerID := s.peerID
	mode := s.disappearing

	p := Pending{
		ClientID:  uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: s.clock(),
	}
	s.pending = append(s.pending, p)
	s.mu.Unlock()

	s.typing.reset()

	data := map[string]any{
		"type":        kind.String(),
		"createdAt":   store.ServerTimestamp{},
		"uid":         s.me.ID,
		"displayName": s.me.Name,
		"read":        false,
	}
	for k, v := range fields {
		data[k] = v
	}
	if ttl := mode.TTL(); ttl > 0 {
		data["expiresAt"] = s.clock().Add(ttl)
	}

	if _, err := s.st.Add(ctx, messagesCollection(key), data); err != nil {
		s.removePending(p.ClientID)
		s.notify("send", err)
		return err
	}

	preview := Message{Kind: kind, Text: text}.Excerpt()
	s.updateConversationAfterSend(ctx, key, convKind, members, peerID, preview)
	return nil
}

func (s *Session) updateConversationAfterSend(ctx context.Context, key string, kind common.ConversationKind, members []string, peerID, preview string) {
	updates := map[string]any{
		"typing." + s.me.ID: false,
		"lastInteraction":   store.ServerTimestamp{},
		"lastMessage":       preview,
	}
	if kind == common.ConversationGroup {
		for _, m := range members {
			if m != s.me.ID {
				updates["unreadCount."+m] = store.Increment{Delta: 1}
			}
		}
	} else if peerID != "" {
		updates["unreadCount."+peerID] = store.Increment{Delta: 1}
	}

	// Messages must never be lost because a counter update failed.
	if err := s.st.Update(ctx, conversationPath(key), updates); err != nil {
		s.log.Warn().Err(err).Str("chat", key).Msg("post-send conversation update failed")
	}
}

func (s *Session) removePending(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending[:0]
	for _, p := range s.pending {
		if p.ClientID != clientID {
			out = append(out, p)
		}
	}
	s.pending = out
}

// Edit rewrites a text message's body. Only the original sender may edit,
// only text messages, and only within the edit window measured against the
// server-assigned creation time. Client-enforced policy, not a security
// boundary.
func (s *Session) Edit(ctx context.Context, messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	key := s.key
	m, ok := s.findLocked(messageID)
	window := s.editWindow
	now := s.clock()
	s.mu.Unlock()

	if !ok {
		return ErrMessageNotFound
	}
	if m.SenderID != s.me.ID {
		return ErrNotSender
	}
	if m.Kind != common.KindText {
		return ErrNotText
	}
	if now.Sub(m.CreatedAt) > window {
		return ErrEditWindowExpired
	}

	err := s.st.Update(ctx, messagePath(key, messageID), map[string]any{
		"text":   text,
		"edited": true,
	})
	if err != nil {
		s.notify("edit", err)
	}
	return err
}

// Scope selects delete semantics.
type Scope string

const (
	ScopeMe       Scope = "me"       // hide for the local member only
	ScopeEveryone Scope = "everyone" // tombstone for all members
)

// Delete removes a message for the local member or, for the original sender,
// for everyone. Delete-for-everyone replaces content with a tombstone rather
// than removing the record, preserving ordering and reply references.
func (s *Session) Delete(ctx context.Context, messageID string, scope Scope) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	key := s.key
	m, ok := s.findLocked(messageID)
	s.mu.Unlock()

	if !ok {
		return ErrMessageNotFound
	}

	var fields map[string]any
	switch scope {
	case ScopeEveryone:
		if m.SenderID != s.me.ID {
			return ErrNotSender
		}
		fields = map[string]any{
			"type":      common.KindDeleted.String(),
			"text":      "",
			"imageUrl":  store.FieldDelete{},
			"audioUrl":  store.FieldDelete{},
			"deletedAt": store.ServerTimestamp{},
		}
	default:
		fields = map[string]any{
			"deletedFor": store.ArrayUnion{Value: s.me.ID},
		}
	}

	err := s.st.Update(ctx, messagePath(key, messageID), fields)
	if err != nil {
		s.notify("delete", err)
	}
	return err
}

// React toggles the local member's reaction: setting the same emoji twice
// clears it, one reaction per member per message.
func (s *Session) React(ctx context.Context, messageID, emoji string) error {
	if emoji == "" {
		return nil
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	key := s.key
	m, ok := s.findLocked(messageID)
	s.mu.Unlock()

	if !ok {
		return ErrMessageNotFound
	}

	field := "reactions." + s.me.ID
	var fields map[string]any
	if m.Reactions[s.me.ID] == emoji {
		fields = map[string]any{field: store.FieldDelete{}}
	} else {
		fields = map[string]any{field: emoji}
	}

	err := s.st.Update(ctx, messagePath(key, messageID), fields)
	if err != nil {
		s.notify("react", err)
	}
	return err
}

// Star toggles the local member's star on a message.
func (s *Session) Star(ctx context.Context, messageID string) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	key := s.key
	m, ok := s.findLocked(messageID)
	s.mu.Unlock()

	if !ok {
		return ErrMessageNotFound
	}

	var fields map[string]any
	if m.StarredByMember(s.me.ID) {
		fields = map[string]any{"starredBy": store.ArrayRemove{Value: s.me.ID}}
	} else {
		fields = map[string]any{"starredBy": store.ArrayUnion{Value: s.me.ID}}
	}

	err := s.st.Update(ctx, messagePath(key, messageID), fields)
	if err != nil {
		s.notify("star", err)
	}
	return err
}

// SetDisappearing changes the conversation's disappearing-message policy for
// messages sent from now on; existing messages keep their expiry.
func (s *Session) SetDisappearing(ctx context.Context, mode common.DisappearMode) error {
	if !mode.IsValid() {
		return ErrInvalidMode
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	key := s.key
	s.mu.Unlock()

	err := s.st.Update(ctx, conversationPath(key), map[string]any{
		"disappearing": mode.String(),
	})
	if err != nil {
		s.notify("disappearing", err)
	}
	return err
}

// ClearHistory moves the local member's cleared-before watermark to now;
// older messages disappear from this member's view without being deleted.
func (s *Session) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	key := s.key
	s.mu.Unlock()

	err := s.st.Update(ctx, conversationPath(key), map[string]any{
		"clearedBefore." + s.me.ID: store.ServerTimestamp{},
	})
	if err != nil {
		s.notify("clear", err)
	}
	return err
}

// LoadOlder grows the message window and re-attaches the message
// subscription. The tail id does not change, so the reconciler classifies
// the wider snapshot as an update, not an arrival.
func (s *Session) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.window += defaultWindow
	window := s.window
	key := s.key
	gen := s.gen
	old := s.unsubMsgs
	s.mu.Unlock()

	if old != nil {
		old()
	}

	unsub, err := s.subscribeMessages(ctx, gen, key, window)
	if err != nil {
		s.notify("load-older", err)
		return err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.unsubMsgs = unsub
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		unsub()
	}
	return nil
}

func (s *Session) findLocked(messageID string) (Message, bool) {
	for _, m := range s.msgs {
		if m.ID == messageID {
			return m, true
		}
	}
	return Message{}, false
}

func messagePath(key, messageID string) string {
	return messagesCollection(key) + "/" + messageID
}
