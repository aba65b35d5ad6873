package chat

import (
	"context"
	"strings"
	"time"

	"govibe/internal/common"
	"govibe/internal/store"
)

// reconcile is the sole writer of the canonical message list. It filters the
// pushed snapshot (expiry, cleared-before watermark, per-member soft
// deletes), classifies the pass for the presentation layer, retires
// confirmed pending entries, recomputes the mood signal, and issues the
// side-effect writes (batched read-marking, best-effort expiry deletes).
func (s *Session) reconcile(gen int, snap store.Snapshot) {
	s.mu.Lock()
	if s.gen != gen || !s.open {
		s.mu.Unlock()
		return
	}

	now := s.clock()
	me := s.me.ID
	cleared := s.clearedBefore

	prevIDs := make(map[string]bool, len(s.msgs))
	for _, m := range s.msgs {
		prevIDs[m.ID] = true
	}
	prevTail := ""
	var prevTailAt time.Time
	if len(s.msgs) > 0 {
		last := s.msgs[len(s.msgs)-1]
		prevTail = last.ID
		prevTailAt = last.CreatedAt
	}

	// The subscription orders newest-first; walk backwards for display order.
	var msgs []Message
	var unreadPaths []string
	var expiredOwn []string
	for i := len(snap) - 1; i >= 0; i-- {
		doc := snap[i]
		m := messageFromDoc(doc)

		if m.Expired(now) {
			// Opportunistic cleanup: the sender deletes its own expired
			// records; best-effort, never blocks rendering.
			if m.SenderID == me {
				expiredOwn = append(expiredOwn, doc.Path)
			}
			continue
		}
		if !cleared.IsZero() && !m.CreatedAt.After(cleared) {
			continue
		}
		if m.DeletedForMember(me) {
			continue
		}

		msgs = append(msgs, m)
		if !m.Read && m.SenderID != me {
			unreadPaths = append(unreadPaths, doc.Path)
		}
	}

	// Only own messages newer than the previous tail confirm sends. A widened
	// window also introduces unseen own messages, but those are older than the
	// tail and must not retire a pending entry that is still in flight.
	confirmed := 0
	for _, m := range msgs {
		if m.SenderID == me && !prevIDs[m.ID] && (prevTail == "" || m.CreatedAt.After(prevTailAt)) {
			confirmed++
		}
	}

	s.lastSnap = snap
	s.msgs = msgs
	s.pending = dropConfirmed(s.pending, confirmed)
	s.curMood = s.classifier.Classify(lastTexts(msgs))

	arrival := Arrival{Event: EventUpdated}
	if !s.loaded {
		s.loaded = true
		arrival.Event = EventInitialLoad
	} else if tail := tailID(msgs); tail != "" && tail != prevTail {
		last := msgs[len(msgs)-1]
		arrival = Arrival{
			Event:    EventNewMessage,
			SenderID: last.SenderID,
			Local:    last.SenderID == me,
		}
	}

	// Read receipts: one atomic batch for the whole pass, never one write
	// per message, to bound write amplification under rapid rereads.
	var readOps []store.Op
	if s.readReceipts && len(unreadPaths) > 0 {
		readOps = make([]store.Op, 0, len(unreadPaths))
		for _, path := range unreadPaths {
			readOps = append(readOps, store.Op{
				Kind:   store.OpUpdate,
				Path:   path,
				Fields: map[string]any{"read": true},
			})
		}
	}
	key := s.key
	s.mu.Unlock()

	if len(readOps) > 0 {
		if err := s.st.ApplyBatch(context.Background(), readOps); err != nil {
			s.log.Warn().Err(err).Str("chat", key).Msg("batch read-mark failed")
		}
	}
	for _, path := range expiredOwn {
		if err := s.st.Delete(context.Background(), path); err != nil {
			s.log.Debug().Err(err).Str("path", path).Msg("expiry cleanup delete failed")
		}
	}

	if s.onArrival != nil {
		s.onArrival(arrival)
	}
}

func tailID(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].ID
}

// lastTexts collects the bodies of the trailing text messages, oldest first,
// for the mood classifier's sliding window.
func lastTexts(msgs []Message) []string {
	var texts []string
	for _, m := range msgs {
		if m.Kind == common.KindText && m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	if len(texts) > 5 {
		texts = texts[len(texts)-5:]
	}
	return texts
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

func containsFold(text, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(text), lowerTerm)
}
