package chat

import (
	"time"

	"govibe/internal/common"
)

// pendingTimeout is how long an unconfirmed optimistic entry survives before
// the sweep discards it as failed.
const pendingTimeout = 30 * time.Second

// Pending is a client-only optimistic placeholder for a send in flight. The
// client id (uuid) and the store's document ids never intersect, so pending
// entries are never matched by id: they are removed when a later snapshot
// confirms a send of ours, or by timeout.
type Pending struct {
	ClientID  string             `json:"client_id"`
	Kind      common.ContentKind `json:"kind"`
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"created_at"`
}

// RowState tags a display row as confirmed (canonical) or pending (overlay).
type RowState int

const (
	RowConfirmed RowState = iota
	RowPending
)

// Row is one displayable entry: a tagged union of a canonical message and a
// pending overlay entry. Pending rows render adjacent to, never merged into,
// the canonical list.
type Row struct {
	State   RowState `json:"state"`
	Message Message  `json:"message,omitzero"`
	Pending Pending  `json:"pending,omitzero"`
}

// dropConfirmed removes the n oldest pending entries after a snapshot
// confirmed n new messages authored by the local user.
func dropConfirmed(pending []Pending, n int) []Pending {
	if n <= 0 {
		return pending
	}
	if n >= len(pending) {
		return nil
	}
	return append([]Pending(nil), pending[n:]...)
}

// dropStale removes pending entries older than the timeout.
func dropStale(pending []Pending, now time.Time) []Pending {
	out := pending[:0]
	for _, p := range pending {
		if now.Sub(p.CreatedAt) < pendingTimeout {
			out = append(out, p)
		}
	}
	return out
}
