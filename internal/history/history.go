// Package history keeps the rolling conversation context of a session.
package history

import "sync"

// Role identifies the speaker of an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one message in the conversation.
type Entry struct {
	Role Role
	Text string
}

// Window is a bounded FIFO of completed exchanges. Each exchange is one
// user entry followed by one assistant entry; when the window holds more
// than its cap, the oldest exchange is evicted first.
//
// A Window is safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	maxTurn int
	entries []Entry
}

// NewWindow returns a window holding at most maxTurns exchanges.
// A cap of zero disables context entirely.
func NewWindow(maxTurns int) *Window {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &Window{maxTurn: maxTurns}
}

// Append records a completed exchange.
func (w *Window) Append(user, assistant string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxTurn == 0 {
		return
	}
	w.entries = append(w.entries,
		Entry{Role: RoleUser, Text: user},
		Entry{Role: RoleAssistant, Text: assistant},
	)
	if excess := len(w.entries) - 2*w.maxTurn; excess > 0 {
		w.entries = append(w.entries[:0:0], w.entries[excess:]...)
	}
}

// Snapshot returns a copy of the current entries, oldest first.
func (w *Window) Snapshot() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Turns returns the number of exchanges held.
func (w *Window) Turns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries) / 2
}

// Cap returns the maximum number of exchanges retained.
func (w *Window) Cap() int { return w.maxTurn }

// Reset drops all entries.
func (w *Window) Reset() {
	w.mu.Lock()
	w.entries = nil
	w.mu.Unlock()
}
