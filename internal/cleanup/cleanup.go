// Package cleanup implements full account deletion: direct conversations
// disappear entirely, groups survive with the member removed and their
// messages anonymized.
package cleanup

import (
	"context"

	"github.com/rs/zerolog"

	"govibe/internal/common"
	"govibe/internal/store"
)

// batchLimit caps the op count per atomic batch, mirroring the write limits
// of hosted document stores.
const batchLimit = 400

// AnonymousID replaces the member id on messages kept after deletion, so
// group history stays coherent without pointing at a live account.
const (
	AnonymousID   = "deleted_user"
	AnonymousName = "Deleted User"
)

type Service struct {
	st  store.Store
	log zerolog.Logger
}

func NewService(st store.Store, log zerolog.Logger) *Service {
	return &Service{st: st, log: log}
}

// DeleteAccount removes a member. The deleted flag commits first on its own
// so subscribed peers react before the heavy cascade runs; the cascade is
// chunked, so a crash mid-way leaves partial but re-runnable state.
func (s *Service) DeleteAccount(ctx context.Context, memberID string) error {
	if err := common.ValidateMemberID(memberID); err != nil {
		return err
	}

	userPath := "users/" + memberID
	if err := s.st.Update(ctx, userPath, map[string]any{
		"deleted":   true,
		"deletedAt": store.ServerTimestamp{},
	}); err != nil {
		// Missing user doc is fine, the cascade below still applies.
		s.log.Debug().Err(err).Str("member", memberID).Msg("deleted flag write skipped")
	}

	snap, err := s.st.RunQuery(ctx, store.Query{
		Collection: "chats",
		Filters: []store.Filter{
			{Field: "members", Op: store.OpArrayContains, Value: memberID},
		},
	})
	if err != nil {
		return err
	}

	b := newBatcher(s.st, batchLimit)

	for _, chatDoc := range snap {
		kind := common.ConversationKind(docString(chatDoc, "type"))
		if kind == common.ConversationGroup {
			if err := s.scrubGroup(ctx, b, chatDoc.Path, memberID); err != nil {
				return err
			}
		} else {
			if err := s.dropConversation(ctx, b, chatDoc.Path); err != nil {
				return err
			}
		}
		if err := b.flushIfFull(ctx); err != nil {
			return err
		}
	}

	b.add(store.Op{Kind: store.OpDelete, Path: userPath})

	if err := b.flush(ctx); err != nil {
		return err
	}

	s.log.Info().Str("member", memberID).Int("chats", len(snap)).Msg("account deleted")
	return nil
}

// dropConversation queues the conversation document and all of its messages
// for deletion.
func (s *Service) dropConversation(ctx context.Context, b *batcher, chatPath string) error {
	msgs, err := s.st.RunQuery(ctx, store.Query{Collection: chatPath + "/messages"})
	if err != nil {
		return err
	}
	for _, m := range msgs {
		b.add(store.Op{Kind: store.OpDelete, Path: m.Path})
		if err := b.flushIfFull(ctx); err != nil {
			return err
		}
	}
	b.add(store.Op{Kind: store.OpDelete, Path: chatPath})
	return nil
}

// scrubGroup removes the member from the group document and anonymizes the
// messages they sent; the messages themselves stay.
func (s *Service) scrubGroup(ctx context.Context, b *batcher, chatPath, memberID string) error {
	b.add(store.Op{
		Kind: store.OpUpdate,
		Path: chatPath,
		Fields: map[string]any{
			"members":                   store.ArrayRemove{Value: memberID},
			"unreadCount." + memberID:   store.FieldDelete{},
			"typing." + memberID:        store.FieldDelete{},
			"clearedBefore." + memberID: store.FieldDelete{},
		},
	})

	msgs, err := s.st.RunQuery(ctx, store.Query{
		Collection: chatPath + "/messages",
		Filters: []store.Filter{
			{Field: "uid", Op: store.OpEqual, Value: memberID},
		},
	})
	if err != nil {
		return err
	}

	for _, m := range msgs {
		b.add(store.Op{
			Kind: store.OpUpdate,
			Path: m.Path,
			Fields: map[string]any{
				"uid":         AnonymousID,
				"displayName": AnonymousName,
			},
		})
		if err := b.flushIfFull(ctx); err != nil {
			return err
		}
	}
	return nil
}

// batcher accumulates ops and commits them in store-limit-sized chunks.
type batcher struct {
	st    store.Store
	limit int
	ops   []store.Op
}

func newBatcher(st store.Store, limit int) *batcher {
	return &batcher{st: st, limit: limit}
}

func (b *batcher) add(op store.Op) {
	b.ops = append(b.ops, op)
}

func (b *batcher) flushIfFull(ctx context.Context) error {
	if len(b.ops) < b.limit {
		return nil
	}
	return b.flush(ctx)
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	err := b.st.ApplyBatch(ctx, b.ops)
	b.ops = b.ops[:0]
	return err
}

func docString(doc store.Doc, key string) string {
	s, _ := doc.Data[key].(string)
	return s
}
