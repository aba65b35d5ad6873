package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govibe/internal/store"
)

func TestSetGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"name": "alice"}))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, "users/u1", doc.Path)
	assert.Equal(t, "alice", doc.Data["name"])

	require.NoError(t, s.Delete(ctx, "users/u1"))
	_, err = s.Get(ctx, "users/u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting a missing document is not an error.
	require.NoError(t, s.Delete(ctx, "users/u1"))
}

func TestUpdateMissingDocFails(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "users/ghost", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{
		"nested": map[string]any{"a": int64(1)},
		"arr":    []any{"x"},
	}))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	doc.Data["nested"].(map[string]any)["a"] = int64(99)
	doc.Data["arr"].([]any)[0] = "mutated"

	again, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Data["nested"].(map[string]any)["a"])
	assert.Equal(t, "x", again.Data["arr"].([]any)[0])
}

func TestServerTimestampsStrictlyIncrease(t *testing.T) {
	s := New()
	frozen := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return frozen }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "m/a", map[string]any{"at": store.ServerTimestamp{}}))
	require.NoError(t, s.Set(ctx, "m/b", map[string]any{"at": store.ServerTimestamp{}}))

	a, _ := s.Get(ctx, "m/a")
	b, _ := s.Get(ctx, "m/b")
	at := a.Data["at"].(time.Time)
	bt := b.Data["at"].(time.Time)
	assert.True(t, bt.After(at), "frozen clock still yields distinct, ordered stamps")
}

func TestIncrementSentinel(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats/c", map[string]any{}))

	// Incrementing an absent field starts from zero.
	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"unreadCount.bob": store.Increment{Delta: 1}}))
	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"unreadCount.bob": store.Increment{Delta: 2}}))
	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"unreadCount.bob": store.Increment{Delta: -1}}))

	doc, _ := s.Get(ctx, "chats/c")
	counters := doc.Data["unreadCount"].(map[string]any)
	assert.Equal(t, int64(2), counters["bob"])
}

func TestArraySentinels(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats/c", map[string]any{}))

	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"hiddenFor": store.ArrayUnion{Value: "alice"}}))
	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"hiddenFor": store.ArrayUnion{Value: "bob"}}))
	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"hiddenFor": store.ArrayUnion{Value: "alice"}}))

	doc, _ := s.Get(ctx, "chats/c")
	assert.Equal(t, []any{"alice", "bob"}, doc.Data["hiddenFor"], "union never duplicates")

	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"hiddenFor": store.ArrayRemove{Value: "alice"}}))
	doc, _ = s.Get(ctx, "chats/c")
	assert.Equal(t, []any{"bob"}, doc.Data["hiddenFor"])
}

func TestFieldDeleteAndDottedPaths(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats/c", map[string]any{
		"typing": map[string]any{"alice": true, "bob": false},
	}))

	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{
		"typing.alice": store.FieldDelete{},
		"typing.carol": true,
	}))

	doc, _ := s.Get(ctx, "chats/c")
	typing := doc.Data["typing"].(map[string]any)
	_, hasAlice := typing["alice"]
	assert.False(t, hasAlice)
	assert.Equal(t, false, typing["bob"])
	assert.Equal(t, true, typing["carol"])

	// Dotted writes create the intermediate map on demand.
	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"privacy.readReceipts": false}))
	doc, _ = s.Get(ctx, "chats/c")
	assert.Equal(t, false, doc.Data["privacy"].(map[string]any)["readReceipts"])
}

func TestAddAssignsUniqueIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	id1, err := s.Add(ctx, "chats/c/messages", map[string]any{"text": "one"})
	require.NoError(t, err)
	id2, err := s.Add(ctx, "chats/c/messages", map[string]any{"text": "two"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	doc, err := s.Get(ctx, "chats/c/messages/"+id1)
	require.NoError(t, err)
	assert.Equal(t, "one", doc.Data["text"])
}

func TestRunQueryFiltersOrderAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		id   string
		uid  string
		at   time.Time
		read bool
	}{
		{"m1", "alice", base, true},
		{"m2", "bob", base.Add(time.Minute), false},
		{"m3", "bob", base.Add(2 * time.Minute), false},
		{"m4", "alice", base.Add(3 * time.Minute), true},
	}
	for _, m := range seed {
		require.NoError(t, s.Set(ctx, "chats/c/messages/"+m.id, map[string]any{
			"uid": m.uid, "createdAt": m.at, "read": m.read,
		}))
	}
	// A document in another collection never leaks into the result.
	require.NoError(t, s.Set(ctx, "chats/other/messages/mx", map[string]any{"uid": "bob"}))

	snap, err := s.RunQuery(ctx, store.Query{
		Collection: "chats/c/messages",
		Filters:    []store.Filter{{Field: "uid", Op: store.OpEqual, Value: "bob"}},
	})
	require.NoError(t, err)
	require.Len(t, snap, 2)

	snap, err = s.RunQuery(ctx, store.Query{
		Collection: "chats/c/messages",
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "m4", snap[0].ID)
	assert.Equal(t, "m3", snap[1].ID)

	snap, err = s.RunQuery(ctx, store.Query{
		Collection: "chats/c/messages",
		Filters:    []store.Filter{{Field: "createdAt", Op: store.OpGreaterThan, Value: base.Add(time.Minute)}},
		OrderBy:    "createdAt",
	})
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "m3", snap[0].ID)

	snap, err = s.RunQuery(ctx, store.Query{
		Collection: "chats/c/messages",
		Filters:    []store.Filter{{Field: "createdAt", Op: store.OpLessOrEqual, Value: base.Add(time.Minute)}},
	})
	require.NoError(t, err)
	assert.Len(t, snap, 2)
}

func TestRunQueryArrayContains(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats/a", map[string]any{"members": []any{"alice", "bob"}}))
	require.NoError(t, s.Set(ctx, "chats/b", map[string]any{"members": []any{"bob", "carol"}}))
	require.NoError(t, s.Set(ctx, "chats/c", map[string]any{"members": "not-an-array"}))

	snap, err := s.RunQuery(ctx, store.Query{
		Collection: "chats",
		Filters:    []store.Filter{{Field: "members", Op: store.OpArrayContains, Value: "bob"}},
	})
	require.NoError(t, err)
	assert.Len(t, snap, 2)

	snap, err = s.RunQuery(ctx, store.Query{
		Collection: "chats",
		Filters:    []store.Filter{{Field: "members", Op: store.OpArrayContains, Value: "alice"}},
	})
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID)
}

func TestSubscribeDeliversInitialAndChanges(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats/c/messages/m1", map[string]any{"text": "hi"}))

	var snaps []store.Snapshot
	unsub, err := s.Subscribe(ctx, store.Query{Collection: "chats/c/messages"}, func(snap store.Snapshot) {
		snaps = append(snaps, snap)
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1, "attach delivers the current result set")
	assert.Len(t, snaps[0], 1)

	require.NoError(t, s.Set(ctx, "chats/c/messages/m2", map[string]any{"text": "yo"}))
	require.Len(t, snaps, 2)
	assert.Len(t, snaps[1], 2)

	// A write elsewhere does not wake this subscription.
	require.NoError(t, s.Set(ctx, "chats/other/messages/mz", map[string]any{"text": "noise"}))
	assert.Len(t, snaps, 2)

	unsub()
	require.NoError(t, s.Delete(ctx, "chats/c/messages/m1"))
	assert.Len(t, snaps, 2, "no deliveries after unsubscribe")
}

func TestSubscribeDocReportsExistence(t *testing.T) {
	s := New()
	ctx := context.Background()

	type event struct {
		exists bool
		data   map[string]any
	}
	var events []event
	unsub, err := s.SubscribeDoc(ctx, "chats/c", func(doc store.Doc, exists bool) {
		events = append(events, event{exists, doc.Data})
	})
	require.NoError(t, err)
	defer unsub()

	require.Len(t, events, 1)
	assert.False(t, events[0].exists, "attach reports a missing document")

	require.NoError(t, s.Set(ctx, "chats/c", map[string]any{"type": "direct"}))
	require.Len(t, events, 2)
	assert.True(t, events[1].exists)
	assert.Equal(t, "direct", events[1].data["type"])

	require.NoError(t, s.Delete(ctx, "chats/c"))
	require.Len(t, events, 3)
	assert.False(t, events[2].exists)
}

func TestReentrantWriteDeliversFreshState(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats/c", map[string]any{"n": int64(0)}))

	// The handler writes back into the store on the first change. Every
	// delivery after that must reflect the final state, never a snapshot
	// captured before the nested write.
	var seen []int64
	reacted := false
	_, err := s.SubscribeDoc(ctx, "chats/c", func(doc store.Doc, exists bool) {
		if !exists {
			return
		}
		n := doc.Data["n"].(int64)
		seen = append(seen, n)
		if n == 1 && !reacted {
			reacted = true
			_ = s.Update(ctx, "chats/c", map[string]any{"n": int64(2)})
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "chats/c", map[string]any{"n": int64(1)}))

	require.NotEmpty(t, seen)
	assert.Equal(t, int64(2), seen[len(seen)-1], "latest delivery carries the latest state")
}

func TestApplyBatchIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats/c/messages/m1", map[string]any{"read": false}))

	err := s.ApplyBatch(ctx, []store.Op{
		{Kind: store.OpUpdate, Path: "chats/c/messages/m1", Fields: map[string]any{"read": true}},
		{Kind: store.OpUpdate, Path: "chats/c/messages/ghost", Fields: map[string]any{"read": true}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	doc, _ := s.Get(ctx, "chats/c/messages/m1")
	assert.Equal(t, false, doc.Data["read"], "failed batch leaves no partial writes")

	// A batch may create a document and update it in the same transaction.
	require.NoError(t, s.ApplyBatch(ctx, []store.Op{
		{Kind: store.OpSet, Path: "chats/c/messages/m9", Fields: map[string]any{"read": false}},
		{Kind: store.OpUpdate, Path: "chats/c/messages/m9", Fields: map[string]any{"read": true}},
	}))
	doc, _ = s.Get(ctx, "chats/c/messages/m9")
	assert.Equal(t, true, doc.Data["read"])
}

func TestDocIDAndParentCollection(t *testing.T) {
	assert.Equal(t, "m1", store.DocID("chats/c/messages/m1"))
	assert.Equal(t, "solo", store.DocID("solo"))
	assert.Equal(t, "chats/c/messages", store.ParentCollection("chats/c/messages/m1"))
	assert.Equal(t, "", store.ParentCollection("solo"))
}
