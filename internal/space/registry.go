package space

import (
	"sync"
)

// DefaultSpawn is the fallback spawn position for spaces without a template.
var DefaultSpawn = Position{X: 400, Y: 300}

// JoinResult is the outcome of a Join call.
type JoinResult struct {
	// Self is the caller's membership entry.
	Self PlayerState
	// Roster is the full membership of the space after the join,
	// including the caller.
	Roster []PlayerState
	// DisplacedSpaceID is the space the user was removed from to satisfy
	// the one-space-per-user invariant, or "" if none.
	DisplacedSpaceID string
}

// Registry tracks per-space membership and the sessions joined to each space.
// All methods are safe for concurrent use.
//
// Invariant: a user appears in at most one space's membership map; a space's
// maps are deleted once empty.
type Registry struct {
	mu        sync.RWMutex
	players   map[string]map[string]*PlayerState // spaceID → userID → state
	sessions  map[string]map[string]*Session     // spaceID → connID → session
	userSpace map[string]string                  // userID → spaceID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		players:   make(map[string]map[string]*PlayerState),
		sessions:  make(map[string]map[string]*Session),
		userSpace: make(map[string]string),
	}
}

// Join places the session's user into the given space at the spawn position,
// overwriting any previous entry for that user. If the user was in a
// different space, that entry is removed first and its space id reported as
// DisplacedSpaceID so the caller can notify the old space.
//
// Precondition: sess must be non-nil; spaceID must be non-empty.
// Postcondition: The user is a member of exactly one space.
func (r *Registry) Join(sess *Session, spaceID, nickname, avatar string, spawn Position) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result JoinResult

	if prev, ok := r.userSpace[sess.UserID]; ok && prev != spaceID {
		r.removeUserLocked(prev, sess.UserID)
		result.DisplacedSpaceID = prev
	}
	// The same connection may be re-joining after a space switch.
	if prevSpace := sess.SpaceID(); prevSpace != "" && prevSpace != spaceID {
		r.removeSessionLocked(prevSpace, sess.ConnID)
	}

	if nickname == "" {
		nickname = sess.DisplayName
	}

	state := &PlayerState{
		UserID:   sess.UserID,
		Nickname: nickname,
		Avatar:   avatar,
		Position: spawn,
	}

	if r.players[spaceID] == nil {
		r.players[spaceID] = make(map[string]*PlayerState)
	}
	r.players[spaceID][sess.UserID] = state
	r.userSpace[sess.UserID] = spaceID

	if r.sessions[spaceID] == nil {
		r.sessions[spaceID] = make(map[string]*Session)
	}
	r.sessions[spaceID][sess.ConnID] = sess
	sess.setSpaceID(spaceID)

	result.Self = *state
	result.Roster = r.rosterLocked(spaceID)
	return result
}

// Leave removes the session from its current space and the user's presence
// entry. Returns the space id left and whether the session was joined at all.
//
// Postcondition: The space's maps are deleted if now empty.
func (r *Registry) Leave(sess *Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spaceID := sess.SpaceID()
	if spaceID == "" {
		return "", false
	}

	r.removeSessionLocked(spaceID, sess.ConnID)
	if r.userSpace[sess.UserID] == spaceID {
		r.removeUserLocked(spaceID, sess.UserID)
	}
	sess.setSpaceID("")
	return spaceID, true
}

// Roster returns a copy of the space's membership entries.
//
// Postcondition: Returns a slice of PlayerState copies (may be empty).
func (r *Registry) Roster(spaceID string) []PlayerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked(spaceID)
}

// Player returns a copy of the given user's presence entry in the space.
func (r *Registry) Player(spaceID, userID string) (PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.players[spaceID][userID]
	if !ok {
		return PlayerState{}, false
	}
	return *state, true
}

// SetPosition updates a member's position.
//
// Postcondition: Returns false if the user has no entry in the space.
func (r *Registry) SetPosition(spaceID, userID string, pos Position) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.players[spaceID][userID]
	if !ok {
		return false
	}
	state.Position = pos
	return true
}

// SetAvatar updates a member's avatar descriptor.
//
// Postcondition: Returns false if the user has no entry in the space.
func (r *Registry) SetAvatar(spaceID, userID, avatar string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.players[spaceID][userID]
	if !ok {
		return false
	}
	state.Avatar = avatar
	return true
}

// Sessions returns the sessions currently joined to the space.
func (r *Registry) Sessions(spaceID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.sessions[spaceID]
	out := make([]*Session, 0, len(conns))
	for _, sess := range conns {
		out = append(out, sess)
	}
	return out
}

// SessionsExcept returns the space's sessions excluding the given connection.
func (r *Registry) SessionsExcept(spaceID, connID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.sessions[spaceID]
	out := make([]*Session, 0, len(conns))
	for id, sess := range conns {
		if id == connID {
			continue
		}
		out = append(out, sess)
	}
	return out
}

// FindByName returns every session in the space whose display name matches.
// Display names are not unique, so multiple sessions may match.
func (r *Registry) FindByName(spaceID, displayName string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, sess := range r.sessions[spaceID] {
		if sess.DisplayName == displayName {
			out = append(out, sess)
		}
	}
	return out
}

// HasSession reports whether the connection is still joined to the space.
// Used to re-validate membership after asynchronous store calls.
func (r *Registry) HasSession(spaceID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[spaceID][connID]
	return ok
}

// UserSpace returns the space the user is currently in, if any.
func (r *Registry) UserSpace(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spaceID, ok := r.userSpace[userID]
	return spaceID, ok
}

// MemberCount returns the number of presence entries in the space.
func (r *Registry) MemberCount(spaceID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players[spaceID])
}

// SpaceCount returns the number of non-empty spaces.
func (r *Registry) SpaceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *Registry) rosterLocked(spaceID string) []PlayerState {
	members := r.players[spaceID]
	out := make([]PlayerState, 0, len(members))
	for _, state := range members {
		out = append(out, *state)
	}
	return out
}

func (r *Registry) removeUserLocked(spaceID, userID string) {
	if members, ok := r.players[spaceID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.players, spaceID)
		}
	}
	delete(r.userSpace, userID)
}

func (r *Registry) removeSessionLocked(spaceID, connID string) {
	if conns, ok := r.sessions[spaceID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.sessions, spaceID)
		}
	}
}
