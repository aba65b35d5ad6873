package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"govibe/internal/common"
	"govibe/internal/store"
	"govibe/internal/store/mocks"
)

// mockedSession opens a session against a MockStore and hands the test the
// captured snapshot handler, so snapshots arrive exactly when the test says.
type mockedSession struct {
	s       *Session
	st      *mocks.MockStore
	push    store.SnapshotHandler
	notices []Notice
}

func newMockedSession(t *testing.T, clock *fakeClock) *mockedSession {
	t.Helper()
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockStore(ctrl)

	env := &mockedSession{st: ms}

	ms.EXPECT().Get(gomock.Any(), "chats/alice_bob").Return(store.Doc{
		ID:   "alice_bob",
		Path: "chats/alice_bob",
		Data: map[string]any{"type": "direct", "members": []any{"alice", "bob"}},
	}, nil)
	ms.EXPECT().Update(gomock.Any(), "chats/alice_bob",
		map[string]any{"unreadCount.alice": int64(0)}).Return(nil)
	ms.EXPECT().SubscribeDoc(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(store.Unsubscribe(func() {}), nil).AnyTimes()
	ms.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ store.Query, fn store.SnapshotHandler) (store.Unsubscribe, error) {
			env.push = fn
			fn(nil)
			return func() {}, nil
		})

	env.s = NewSession(ms, User{ID: "alice", Name: "alice"}, Options{
		Clock:         clock.Now,
		SweepInterval: time.Hour,
		OnNotice:      func(n Notice) { env.notices = append(env.notices, n) },
	})
	t.Cleanup(env.s.Shutdown)

	require.NoError(t, env.s.Open(context.Background(), Peer{ID: "bob"}))
	require.NotNil(t, env.push)
	return env
}

func textDoc(id, sender, text string, createdAt time.Time, extra map[string]any) store.Doc {
	data := map[string]any{
		"type":        "text",
		"uid":         sender,
		"displayName": sender,
		"text":        text,
		"createdAt":   createdAt,
		"read":        true,
	}
	for k, v := range extra {
		data[k] = v
	}
	return store.Doc{ID: id, Path: "chats/alice_bob/messages/" + id, Data: data}
}

func TestSendTextShowsPendingUntilConfirmed(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.st.EXPECT().Add(ctx, "chats/alice_bob/messages", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, data map[string]any) (string, error) {
			assert.Equal(t, "hi", data["text"])
			assert.Equal(t, "alice", data["uid"])
			assert.Equal(t, false, data["read"])
			assert.IsType(t, store.ServerTimestamp{}, data["createdAt"])
			_, hasExpiry := data["expiresAt"]
			assert.False(t, hasExpiry, "no expiry while disappearing is off")
			return "srv-1", nil
		})
	env.st.EXPECT().Update(ctx, "chats/alice_bob", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, fields map[string]any) error {
			assert.Equal(t, false, fields["typing.alice"])
			assert.Equal(t, "hi", fields["lastMessage"])
			assert.Equal(t, store.Increment{Delta: 1}, fields["unreadCount.bob"])
			return nil
		})

	require.NoError(t, env.s.SendText(ctx, "hi"))

	// No snapshot yet: the optimistic entry carries the view.
	v := env.s.View()
	require.Len(t, v.Rows, 1)
	assert.Equal(t, RowPending, v.Rows[0].State)
	assert.Equal(t, "hi", v.Rows[0].Pending.Text)

	// The confirming snapshot replaces it; ids never matched, only counted.
	env.push(store.Snapshot{textDoc("srv-1", "alice", "hi", clock.Now(), nil)})
	v = env.s.View()
	require.Len(t, v.Rows, 1)
	assert.Equal(t, RowConfirmed, v.Rows[0].State)
	assert.Equal(t, "srv-1", v.Rows[0].Message.ID)
}

func TestSendFailureRemovesPendingAndNotifies(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.st.EXPECT().Add(ctx, "chats/alice_bob/messages", gomock.Any()).
		Return("", errors.New("write refused"))

	err := env.s.SendText(ctx, "doomed")
	require.Error(t, err)
	assert.Empty(t, env.s.View().Rows, "failed send must not linger as pending")
	require.Len(t, env.notices, 1)
	assert.Equal(t, "send", env.notices[0].Op)
}

func TestSendSurvivesSiblingUpdateFailure(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.st.EXPECT().Add(ctx, "chats/alice_bob/messages", gomock.Any()).Return("srv-1", nil)
	env.st.EXPECT().Update(ctx, "chats/alice_bob", gomock.Any()).
		Return(errors.New("counter update refused"))

	require.NoError(t, env.s.SendText(ctx, "kept"),
		"message write succeeded, counter failure is not the caller's problem")
	assert.Empty(t, env.notices)
}

func TestWidenedWindowDoesNotConfirmPending(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	recent := textDoc("m2", "alice", "recent", clock.Now().Add(-5*time.Minute), nil)
	env.push(store.Snapshot{recent})

	env.st.EXPECT().Add(ctx, "chats/alice_bob/messages", gomock.Any()).Return("srv-9", nil)
	env.st.EXPECT().Update(ctx, "chats/alice_bob", gomock.Any()).Return(nil)
	require.NoError(t, env.s.SendText(ctx, "in flight"))

	var widened store.SnapshotHandler
	env.st.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ store.Query, fn store.SnapshotHandler) (store.Unsubscribe, error) {
			widened = fn
			return func() {}, nil
		})
	require.NoError(t, env.s.LoadOlder(ctx))
	require.NotNil(t, widened)

	// The wider window surfaces an older own message that was off-window
	// before. It is not a confirmation; the optimistic entry must survive.
	older := textDoc("m0", "alice", "older", clock.Now().Add(-10*time.Minute), nil)
	widened(store.Snapshot{recent, older})

	v := env.s.View()
	require.Len(t, v.Rows, 3)
	assert.Equal(t, RowPending, v.Rows[2].State)
	assert.Equal(t, "in flight", v.Rows[2].Pending.Text)

	// The real confirmation lands past the previous tail and retires it.
	sent := textDoc("srv-9", "alice", "in flight", clock.Now(), nil)
	widened(store.Snapshot{sent, recent, older})

	v = env.s.View()
	require.Len(t, v.Rows, 3)
	for _, row := range v.Rows {
		assert.Equal(t, RowConfirmed, row.State)
	}
}

func TestEditWindowEnforcement(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.push(store.Snapshot{
		textDoc("m3", "alice", "mine image", clock.Now(), map[string]any{"type": "image", "imageUrl": "u"}),
		textDoc("m2", "bob", "theirs", clock.Now(), nil),
		textDoc("m1", "alice", "mine", clock.Now(), nil),
	})

	require.ErrorIs(t, env.s.Edit(ctx, "missing", "x"), ErrMessageNotFound)
	require.ErrorIs(t, env.s.Edit(ctx, "m2", "x"), ErrNotSender)
	require.ErrorIs(t, env.s.Edit(ctx, "m3", "x"), ErrNotText)

	clock.Advance(4 * time.Minute)
	env.st.EXPECT().Update(ctx, "chats/alice_bob/messages/m1",
		map[string]any{"text": "edited", "edited": true}).Return(nil)
	require.NoError(t, env.s.Edit(ctx, "m1", "edited"))

	clock.Advance(2 * time.Minute)
	require.ErrorIs(t, env.s.Edit(ctx, "m1", "too late"), ErrEditWindowExpired)
}

func TestReactTogglesPerMember(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.push(store.Snapshot{
		textDoc("m1", "bob", "react to me", clock.Now(), map[string]any{
			"reactions": map[string]any{"alice": "👍"},
		}),
	})

	// Same emoji again clears the reaction.
	env.st.EXPECT().Update(ctx, "chats/alice_bob/messages/m1",
		map[string]any{"reactions.alice": store.FieldDelete{}}).Return(nil)
	require.NoError(t, env.s.React(ctx, "m1", "👍"))

	// A different emoji replaces it.
	env.st.EXPECT().Update(ctx, "chats/alice_bob/messages/m1",
		map[string]any{"reactions.alice": "❤️"}).Return(nil)
	require.NoError(t, env.s.React(ctx, "m1", "❤️"))

	require.NoError(t, env.s.React(ctx, "m1", ""), "empty emoji is a no-op")
	require.ErrorIs(t, env.s.React(ctx, "gone", "👍"), ErrMessageNotFound)
}

func TestStarToggle(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.push(store.Snapshot{
		textDoc("m2", "bob", "starred", clock.Now(), map[string]any{"starredBy": []any{"alice"}}),
		textDoc("m1", "bob", "plain", clock.Now(), nil),
	})

	env.st.EXPECT().Update(ctx, "chats/alice_bob/messages/m1",
		map[string]any{"starredBy": store.ArrayUnion{Value: "alice"}}).Return(nil)
	require.NoError(t, env.s.Star(ctx, "m1"))

	env.st.EXPECT().Update(ctx, "chats/alice_bob/messages/m2",
		map[string]any{"starredBy": store.ArrayRemove{Value: "alice"}}).Return(nil)
	require.NoError(t, env.s.Star(ctx, "m2"))
}

func TestDeleteForEveryoneStripsMedia(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.push(store.Snapshot{
		textDoc("m1", "alice", "", clock.Now(), map[string]any{"type": "image", "imageUrl": "u"}),
	})

	env.st.EXPECT().Update(ctx, "chats/alice_bob/messages/m1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, fields map[string]any) error {
			assert.Equal(t, common.KindDeleted.String(), fields["type"])
			assert.Equal(t, store.FieldDelete{}, fields["imageUrl"])
			assert.Equal(t, store.FieldDelete{}, fields["audioUrl"])
			assert.IsType(t, store.ServerTimestamp{}, fields["deletedAt"])
			return nil
		})
	require.NoError(t, env.s.Delete(ctx, "m1", ScopeEveryone))
}

// reentrantUploader records uploads and, when wired to a session, issues a
// second media send from inside the first one.
type reentrantUploader struct {
	s     *Session
	calls int
	fail  bool
}

func (u *reentrantUploader) Upload(_ context.Context, _ io.Reader, filename string, _ common.MediaFileType) (string, error) {
	u.calls++
	if u.s != nil {
		_ = u.s.SendImage(context.Background(), strings.NewReader("x"), "nested.jpg")
	}
	if u.fail {
		return "", errors.New("upload refused")
	}
	return "http://cdn.example/" + filename, nil
}

func TestSendImageSingleFlight(t *testing.T) {
	clock := newFakeClock()
	st := newTestStore(clock)
	up := &reentrantUploader{}
	session, _ := newTestSession(t, st, clock, "alice", Options{Uploader: up})
	up.s = session
	ctx := context.Background()

	require.NoError(t, session.Open(ctx, Peer{ID: "bob"}))
	require.NoError(t, session.SendImage(ctx, strings.NewReader("jpegbytes"), "photo.jpg"))

	assert.Equal(t, 1, up.calls, "a send issued while one is uploading is a no-op")

	v := session.View()
	require.Len(t, v.Rows, 1)
	m := v.Rows[0].Message
	assert.Equal(t, common.KindImage, m.Kind)
	assert.Equal(t, "http://cdn.example/photo.jpg", m.MediaURL)
}

func TestSendVoiceCarriesAudioURL(t *testing.T) {
	clock := newFakeClock()
	st := newTestStore(clock)
	session, _ := newTestSession(t, st, clock, "alice", Options{Uploader: &reentrantUploader{}})
	ctx := context.Background()

	require.NoError(t, session.Open(ctx, Peer{ID: "bob"}))
	require.NoError(t, session.SendVoice(ctx, strings.NewReader("oggbytes"), "note.ogg"))

	v := session.View()
	require.Len(t, v.Rows, 1)
	assert.Equal(t, common.KindAudio, v.Rows[0].Message.Kind)
	assert.Equal(t, "http://cdn.example/note.ogg", v.Rows[0].Message.MediaURL)
}

func TestSendImageUploadFailure(t *testing.T) {
	clock := newFakeClock()
	st := newTestStore(clock)
	up := &reentrantUploader{fail: true}
	var notices []Notice
	session, _ := newTestSession(t, st, clock, "alice", Options{
		Uploader: up,
		OnNotice: func(n Notice) { notices = append(notices, n) },
	})
	ctx := context.Background()

	require.NoError(t, session.Open(ctx, Peer{ID: "bob"}))
	require.Error(t, session.SendImage(ctx, strings.NewReader("x"), "photo.jpg"))

	assert.Empty(t, session.View().Rows, "nothing sent, nothing pending")
	require.Len(t, notices, 1)
	assert.Equal(t, "upload", notices[0].Op)

	// The guard resets, so the user can retry.
	up.fail = false
	require.NoError(t, session.SendImage(ctx, strings.NewReader("x"), "photo.jpg"))
	assert.Len(t, session.View().Rows, 1)
}

func TestActionsOnClosedSessionAreNoops(t *testing.T) {
	clock := newFakeClock()
	env := newMockedSession(t, clock)
	ctx := context.Background()

	env.s.Close()

	require.NoError(t, env.s.SendText(ctx, "into the void"))
	require.NoError(t, env.s.ClearHistory(ctx))
	require.NoError(t, env.s.LoadOlder(ctx))
	assert.Empty(t, env.s.View().Rows)
}
