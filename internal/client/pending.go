package client

import (
	"sync"
	"time"
)

// PendingState is the lifecycle state of an optimistically rendered message.
type PendingState string

const (
	// StatePending means the message is rendered locally but not yet
	// acknowledged by the server.
	StatePending PendingState = "PENDING"
	// StateConfirmed means the server assigned a durable id.
	StateConfirmed PendingState = "CONFIRMED"
	// StateFailed means the server reported the message was not stored.
	StateFailed PendingState = "FAILED"
	// StateSuperseded means a reconnect resynced the view before the
	// message settled; its fate is unknown and it must be re-resolved
	// from server history rather than retried.
	StateSuperseded PendingState = "SUPERSEDED"
)

// PendingMessage is one optimistic echo awaiting reconciliation.
type PendingMessage struct {
	TempID  string
	ID      string
	Content string
	State   PendingState
	SentAt  time.Time
}

// settled reports whether the message reached a terminal state.
func (p PendingMessage) settled() bool {
	return p.State != StatePending
}

// PendingTable tracks optimistic messages by their tempId correlation key.
// Transitions out of a terminal state are rejected, so a late
// confirmation cannot resurrect a superseded entry. Safe for concurrent use.
type PendingTable struct {
	mu      sync.Mutex
	entries map[string]*PendingMessage
	now     func() time.Time
}

// NewPendingTable creates an empty PendingTable.
func NewPendingTable() *PendingTable {
	return &PendingTable{
		entries: make(map[string]*PendingMessage),
		now:     time.Now,
	}
}

// Add registers a freshly sent message under its tempId.
//
// Precondition: tempID must be unique among unsettled entries.
func (t *PendingTable) Add(tempID, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[tempID] = &PendingMessage{
		TempID:  tempID,
		Content: content,
		State:   StatePending,
		SentAt:  t.now(),
	}
}

// Confirm records the durable id assigned to a pending message.
//
// Postcondition: Returns false if the tempId is unknown or already settled.
func (t *PendingTable) Confirm(tempID, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[tempID]
	if !ok || entry.settled() {
		return false
	}
	entry.ID = id
	entry.State = StateConfirmed
	return true
}

// Fail marks a pending message as rejected by the server.
//
// Postcondition: Returns false if the tempId is unknown or already settled.
func (t *PendingTable) Fail(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[tempID]
	if !ok || entry.settled() {
		return false
	}
	entry.State = StateFailed
	return true
}

// SupersedeAll marks every unsettled entry as superseded. Called when a
// reconnect resyncs the view and in-flight confirmations can no longer be
// trusted to arrive.
//
// Postcondition: Returns the number of entries transitioned.
func (t *PendingTable) SupersedeAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int
	for _, entry := range t.entries {
		if entry.settled() {
			continue
		}
		entry.State = StateSuperseded
		n++
	}
	return n
}

// Get returns a copy of the entry for the given tempId.
func (t *PendingTable) Get(tempID string) (PendingMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[tempID]
	if !ok {
		return PendingMessage{}, false
	}
	return *entry, true
}

// Unsettled returns copies of every entry still awaiting reconciliation.
func (t *PendingTable) Unsettled() []PendingMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []PendingMessage
	for _, entry := range t.entries {
		if !entry.settled() {
			out = append(out, *entry)
		}
	}
	return out
}

// Drop removes a settled entry once the application has rendered its fate.
func (t *PendingTable) Drop(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, tempID)
}
