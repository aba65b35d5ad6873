package chat

import (
	"sync"
	"time"
)

// typingIndicator collapses keystroke bursts into at most one typing=true
// write and one eventual typing=false write. The false write comes from a
// reset-on-keystroke idle timer, or immediately when the input empties.
type typingIndicator struct {
	mu     sync.Mutex
	idle   time.Duration
	timer  *time.Timer
	typing bool
	write  func(bool)
}

func newTypingIndicator(idle time.Duration, write func(bool)) *typingIndicator {
	return &typingIndicator{idle: idle, write: write}
}

// keystroke reports an input change; empty is whether the field is now empty.
func (t *typingIndicator) keystroke(empty bool) {
	t.mu.Lock()

	if empty {
		wasTyping := t.typing
		t.typing = false
		t.stopTimerLocked()
		t.mu.Unlock()
		if wasTyping {
			t.write(false)
		}
		return
	}

	wasTyping := t.typing
	t.typing = true
	t.stopTimerLocked()
	t.timer = time.AfterFunc(t.idle, t.idleExpired)
	t.mu.Unlock()

	if !wasTyping {
		t.write(true)
	}
}

func (t *typingIndicator) idleExpired() {
	t.mu.Lock()
	if !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.mu.Unlock()
	t.write(false)
}

// reset clears local state without writing; a send's sibling update already
// resets the remote typer flag.
func (t *typingIndicator) reset() {
	t.mu.Lock()
	t.typing = false
	t.stopTimerLocked()
	t.mu.Unlock()
}

func (t *typingIndicator) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
