package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"govibe/internal/common"
	"govibe/internal/logging"
	"govibe/internal/media"
	"govibe/internal/mood"
	"govibe/internal/store"
)

// Event classifies one reconciliation pass for the presentation layer, which
// uses it to decide scrolling and audio cues: the initial population renders
// without animation, genuinely new activity scrolls smoothly, and pagination
// or field-only updates (a reaction, an edit) must not move the viewport.
type Event int

const (
	EventInitialLoad Event = iota
	EventNewMessage
	EventUpdated
)

// Arrival is the payload of the per-reconciliation callback. Local is true
// when the newest message was authored by the local user (no cue).
type Arrival struct {
	Event    Event
	SenderID string
	Local    bool
}

// Notice is a one-shot, non-blocking failure report for a user-initiated
// action that has no automatic retry.
type Notice struct {
	Op  string
	Err error
}

// User identifies the local, authenticated member.
type User struct {
	ID   string
	Name string
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	Window        int           // initial message window, grows by itself on LoadOlder
	EditWindow    time.Duration // max message age for edits
	TypingIdle    time.Duration // idle period before typing=false
	SweepInterval time.Duration // local expiry sweep period
	Clock         func() time.Time
	Logger        *zerolog.Logger
	Classifier    mood.Classifier
	Uploader      media.Uploader
	OnArrival     func(Arrival)
	OnNotice      func(Notice)
}

const (
	defaultWindow        = 20
	defaultEditWindow    = 5 * time.Minute
	defaultTypingIdle    = 2 * time.Second
	defaultSweepInterval = 60 * time.Second
)

// Session owns the full subscription state for one active conversation at a
// time. Switching conversations replaces the session's subscriptions
// atomically: the old handles are torn down synchronously before the new
// ones attach, and a generation counter drops any stale push that was
// already in flight. All derived state is guarded by one mutex, so snapshot
// handlers execute serially; handlers stay idempotent because a new push can
// arrive before a previous handler's side-effect writes complete.
type Session struct {
	st  store.Store
	me  User
	log zerolog.Logger

	classifier mood.Classifier
	uploader   media.Uploader
	clock      func() time.Time
	onArrival  func(Arrival)
	onNotice   func(Notice)

	window        int
	editWindow    time.Duration
	sweepInterval time.Duration

	typing *typingIndicator

	mu        sync.Mutex
	gen       int // bumped on every Open/Close; stale handlers compare and bail
	open      bool
	uploading bool

	key       string
	kind      common.ConversationKind
	members   []string
	groupName string
	peerID    string

	unsubConv     store.Unsubscribe
	unsubMsgs     store.Unsubscribe
	unsubPresence store.Unsubscribe
	unsubSettings store.Unsubscribe

	conv          Conversation
	lastSnap      store.Snapshot
	msgs          []Message
	pending       []Pending
	loaded        bool
	peerTyping    bool
	clearedBefore time.Time
	disappearing  common.DisappearMode
	curMood       *mood.Mood
	peerOnline    bool
	peerLastSeen  time.Time
	readReceipts  bool

	sweepStop chan struct{}
}

func NewSession(st store.Store, me User, opts Options) *Session {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.EditWindow <= 0 {
		opts.EditWindow = defaultEditWindow
	}
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = defaultTypingIdle
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Classifier == nil {
		opts.Classifier = mood.NewKeywordClassifier()
	}

	log := logging.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	s := &Session{
		st:            st,
		me:            me,
		log:           log,
		classifier:    opts.Classifier,
		uploader:      opts.Uploader,
		clock:         opts.Clock,
		onArrival:     opts.OnArrival,
		onNotice:      opts.OnNotice,
		window:        opts.Window,
		editWindow:    opts.EditWindow,
		sweepInterval: opts.SweepInterval,
		readReceipts:  true,
		disappearing:  common.DisappearOff,
		sweepStop:     make(chan struct{}),
	}
	s.typing = newTypingIndicator(opts.TypingIdle, s.writeTyping)

	go s.sweepLoop()
	return s
}

// Open switches the session to the conversation for the given peer, creating
// the conversation document on first contact. Existing subscriptions are torn
// down before the new ones attach.
func (s *Session) Open(ctx context.Context, peer Peer) error {
	var key, groupName string
	var kind common.ConversationKind
	var members []string

	if peer.IsGroup {
		key = peer.ID
		kind = common.ConversationGroup
		groupName = peer.Name
		members = peer.Members
	} else {
		if err := common.ValidateMemberID(peer.ID); err != nil {
			return err
		}
		key = ResolveKey(s.me.ID, peer.ID)
		kind = common.ConversationDirect
		members = []string{s.me.ID, peer.ID}
	}

	if err := s.ensureConversation(ctx, key, kind, members, groupName); err != nil {
		return err
	}

	s.teardown()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.open = true
	s.key = key
	s.kind = kind
	s.members = members
	s.groupName = groupName
	s.peerID = ""
	if !peer.IsGroup {
		s.peerID = peer.ID
	}
	window := s.window
	s.mu.Unlock()

	unsubConv, err := s.st.SubscribeDoc(ctx, conversationPath(key), func(doc store.Doc, exists bool) {
		s.handleConvDoc(gen, doc, exists)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("chat", key).Msg("metadata subscription failed")
	}

	var unsubPresence store.Unsubscribe
	if !peer.IsGroup {
		unsubPresence, err = s.st.SubscribeDoc(ctx, "users/"+peer.ID, func(doc store.Doc, exists bool) {
			s.handlePresence(gen, doc, exists)
		})
		if err != nil {
			s.log.Warn().Err(err).Str("peer", peer.ID).Msg("presence subscription failed")
		}
	}

	unsubSettings, err := s.st.SubscribeDoc(ctx, "users/"+s.me.ID, func(doc store.Doc, exists bool) {
		s.handleSettings(gen, doc, exists)
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("settings subscription failed")
	}

	// Messages attach last so the first reconciliation already sees the
	// metadata watermarks and the read-receipt preference.
	unsubMsgs, err := s.subscribeMessages(ctx, gen, key, window)
	if err != nil {
		s.log.Warn().Err(err).Str("chat", key).Msg("message subscription failed")
	}

	s.mu.Lock()
	if s.gen == gen {
		s.unsubConv = unsubConv
		s.unsubMsgs = unsubMsgs
		s.unsubPresence = unsubPresence
		s.unsubSettings = unsubSettings
		s.mu.Unlock()
	} else {
		// Lost a race with another Open/Close; detach what we attached.
		s.mu.Unlock()
		for _, u := range []store.Unsubscribe{unsubConv, unsubMsgs, unsubPresence, unsubSettings} {
			if u != nil {
				u()
			}
		}
	}
	return nil
}

func (s *Session) subscribeMessages(ctx context.Context, gen int, key string, window int) (store.Unsubscribe, error) {
	q := store.Query{
		Collection: messagesCollection(key),
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      window,
	}
	return s.st.Subscribe(ctx, q, func(snap store.Snapshot) {
		s.reconcile(gen, snap)
	})
}

// Close detaches the session from its conversation. The session can be
// reopened; Shutdown ends it for good.
func (s *Session) Close() {
	s.teardown()
}

// Shutdown closes the session and stops its background sweep.
func (s *Session) Shutdown() {
	s.teardown()
	close(s.sweepStop)
}

// teardown synchronously detaches all subscriptions and resets derived state
// to defaults, so a stale push for the old conversation can never be applied
// to the next one.
func (s *Session) teardown() {
	s.mu.Lock()
	s.gen++
	s.open = false
	unsubs := []store.Unsubscribe{s.unsubConv, s.unsubMsgs, s.unsubPresence, s.unsubSettings}
	s.unsubConv, s.unsubMsgs, s.unsubPresence, s.unsubSettings = nil, nil, nil, nil

	s.key = ""
	s.kind = ""
	s.members = nil
	s.groupName = ""
	s.peerID = ""
	s.conv = Conversation{}
	s.lastSnap = nil
	s.msgs = nil
	s.pending = nil
	s.loaded = false
	s.peerTyping = false
	s.clearedBefore = time.Time{}
	s.disappearing = common.DisappearOff
	s.curMood = nil
	s.peerOnline = false
	s.peerLastSeen = time.Time{}
	s.mu.Unlock()

	s.typing.reset()

	for _, u := range unsubs {
		if u != nil {
			u()
		}
	}
}

func (s *Session) handleConvDoc(gen int, doc store.Doc, exists bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if !exists {
		// Degrade to safe defaults: assume not typing, policy off.
		s.peerTyping = false
		s.clearedBefore = time.Time{}
		s.disappearing = common.DisappearOff
		s.mu.Unlock()
		return
	}

	conv := conversationFromDoc(doc)
	s.conv = conv
	s.disappearing = conv.Disappearing

	if s.kind == common.ConversationGroup {
		s.members = conv.Members
		typing := false
		for id, t := range conv.Typing {
			if id != s.me.ID && t {
				typing = true
				break
			}
		}
		s.peerTyping = typing
	} else {
		s.peerTyping = conv.Typing[s.peerID]
	}

	cleared := conv.ClearedBefore[s.me.ID]
	refilter := !cleared.Equal(s.clearedBefore)
	s.clearedBefore = cleared
	snap := s.lastSnap
	s.mu.Unlock()

	// A moved cleared-before watermark changes message visibility without a
	// message push, so refilter the last snapshot.
	if refilter && snap != nil {
		s.reconcile(gen, snap)
	}
}

func (s *Session) handlePresence(gen int, doc store.Doc, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if !exists {
		s.peerOnline = false
		s.peerLastSeen = time.Time{}
		return
	}
	s.peerOnline = asBool(doc.Data["isOnline"])
	s.peerLastSeen = asTime(doc.Data["lastSeen"])
}

func (s *Session) handleSettings(gen int, doc store.Doc, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if !exists {
		s.readReceipts = true
		return
	}
	if privacy, ok := doc.Data["privacy"].(map[string]any); ok {
		if rr, ok := privacy["readReceipts"].(bool); ok {
			s.readReceipts = rr
			return
		}
	}
	s.readReceipts = true
}

// writeTyping publishes the local member's typing flag. Fire-and-forget.
func (s *Session) writeTyping(typing bool) {
	s.mu.Lock()
	key := s.key
	s.mu.Unlock()
	if key == "" {
		return
	}

	err := s.st.Update(context.Background(), conversationPath(key), map[string]any{
		"typing." + s.me.ID: typing,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("chat", key).Msg("typing write failed")
	}
}

// InputChanged reports the current text of the compose field and drives the
// typing debounce.
func (s *Session) InputChanged(text string) {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return
	}
	s.typing.keystroke(text == "")
}

// sweepLoop periodically drops locally-expired messages and stale pending
// entries; expiry is a wall-clock condition the store never pushes for.
func (s *Session) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Session) sweep() {
	s.mu.Lock()
	gen := s.gen
	open := s.open
	snap := s.lastSnap
	s.pending = dropStale(s.pending, s.clock())
	s.mu.Unlock()

	if open && snap != nil {
		s.reconcile(gen, snap)
	}
}

func (s *Session) notify(op string, err error) {
	s.log.Warn().Err(err).Str("op", op).Msg("action failed")
	if s.onNotice != nil {
		s.onNotice(Notice{Op: op, Err: err})
	}
}

// View is a point-in-time copy of everything the presentation layer renders.
type View struct {
	Key          string                  `json:"key"`
	Kind         common.ConversationKind `json:"kind"`
	GroupName    string                  `json:"group_name,omitempty"`
	Members      []string                `json:"members,omitempty"`
	Rows         []Row                   `json:"rows"`
	PeerTyping   bool                    `json:"peer_typing"`
	Unread       int64                   `json:"unread"`
	Mood         *mood.Mood              `json:"mood,omitempty"`
	Disappearing common.DisappearMode    `json:"disappearing"`
	PeerOnline   bool                    `json:"peer_online"`
	PeerLastSeen time.Time               `json:"peer_last_seen,omitzero"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]Row, 0, len(s.msgs)+len(s.pending))
	for _, m := range s.msgs {
		rows = append(rows, Row{State: RowConfirmed, Message: m})
	}
	for _, p := range s.pending {
		rows = append(rows, Row{State: RowPending, Pending: p})
	}

	var unread int64
	// The active conversation's own badge is zero by definition; the counter
	// still reflects other members racing increments in.
	if !s.open {
		unread = s.conv.UnreadCount[s.me.ID]
	}

	return View{
		Key:          s.key,
		Kind:         s.kind,
		GroupName:    s.groupName,
		Members:      append([]string(nil), s.members...),
		Rows:         rows,
		PeerTyping:   s.peerTyping,
		Unread:       unread,
		Mood:         s.curMood,
		Disappearing: s.disappearing,
		PeerOnline:   s.peerOnline,
		PeerLastSeen: s.peerLastSeen,
	}
}

// Search does a case-insensitive substring scan over the text messages in
// the current window. The store has no substring operator, so search is a
// local projection by design.
func (s *Session) Search(term string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	term = normalizeTerm(term)
	if term == "" {
		return nil
	}

	var out []Message
	for _, m := range s.msgs {
		if m.Kind != common.KindText {
			continue
		}
		if containsFold(m.Text, term) {
			out = append(out, m)
		}
	}
	return out
}
