package client

import (
	"sync"

	"github.com/cory-johannsen/flowspace/internal/space"
)

// Member is one entry in the client's membership view. It extends the
// server's presence entry with the facing direction, which only movement
// deltas carry.
type Member struct {
	space.PlayerState
	Direction string
}

// Roster is the client's local membership view, reconciled from a full
// snapshot at join time plus join/leave/move/avatar deltas afterwards.
// A delta for an unknown user is treated as an implicit join so a missed
// joined event cannot desynchronize the view. Safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	members map[string]Member
}

// NewRoster creates an empty Roster.
func NewRoster() *Roster {
	return &Roster{members: make(map[string]Member)}
}

// ApplySnapshot replaces the whole view with the server's roster.
func (r *Roster) ApplySnapshot(players []space.PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members = make(map[string]Member, len(players))
	for _, p := range players {
		r.members[p.UserID] = Member{PlayerState: p}
	}
}

// ApplyJoin inserts or overwrites a member's entry.
func (r *Roster) ApplyJoin(p space.PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[p.UserID] = Member{PlayerState: p}
}

// ApplyLeave removes a member's entry. Unknown users are a no-op.
func (r *Roster) ApplyLeave(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, userID)
}

// ApplyMove updates a member's position and facing.
//
// Postcondition: An unknown user gains an entry at the given position.
func (r *Roster) ApplyMove(userID string, x, y float64, direction string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.members[userID]
	m.UserID = userID
	m.Position = space.Position{X: x, Y: y}
	m.Direction = direction
	r.members[userID] = m
}

// ApplyAvatar updates a member's avatar descriptor.
//
// Postcondition: An unknown user gains an entry with the given avatar.
func (r *Roster) ApplyAvatar(userID, avatar string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.members[userID]
	m.UserID = userID
	m.Avatar = avatar
	r.members[userID] = m
}

// Member returns a member's entry.
func (r *Roster) Member(userID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[userID]
	return m, ok
}

// Members returns a copy of every entry in the view.
func (r *Roster) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Len returns the number of members in the view.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Clear empties the view, typically when leaving a space.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]Member)
}
