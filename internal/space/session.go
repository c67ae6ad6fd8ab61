// Package space provides the shared coordination state for spaces: connected
// sessions, per-space membership, party sub-rooms, chat rate limiting,
// reactions, and media session state.
package space

import (
	"fmt"
	"sync"
)

// Role is a member's privilege level within a space.
type Role string

const (
	RoleOwner       Role = "OWNER"
	RoleStaff       Role = "STAFF"
	RoleParticipant Role = "PARTICIPANT"
)

// CanModerate reports whether the role may use moderation and editor commands.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleStaff
}

// Restriction is a member's chat restriction state.
type Restriction string

const (
	RestrictionNone   Restriction = "NONE"
	RestrictionMuted  Restriction = "MUTED"
	RestrictionBanned Restriction = "BANNED"
)

// Position is a 2D position inside a space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerState is a member's presence entry inside a space.
type PlayerState struct {
	UserID   string   `json:"userId"`
	Nickname string   `json:"nickname"`
	Avatar   string   `json:"avatar"`
	Position Position `json:"position"`
}

// Session tracks one authenticated connection. Identity fields are fixed at
// handshake; the remaining fields are mutated by join/leave and moderation
// and are guarded by an internal mutex because moderation commands reach
// into other users' sessions.
type Session struct {
	// ConnID uniquely identifies the underlying connection.
	ConnID string
	// UserID is the authenticated user identifier from the token.
	UserID string
	// DisplayName is the authenticated display name from the token.
	DisplayName string

	mu          sync.Mutex
	role        Role
	restriction Restriction
	spaceID     string
	partyID     string
	partyName   string

	out *Outbox
}

// NewSession creates a Session for an authenticated connection with a
// PARTICIPANT role and no restriction.
//
// Precondition: connID and userID must be non-empty; bufferSize > 0.
func NewSession(connID, userID, displayName string, bufferSize int) *Session {
	return &Session{
		ConnID:      connID,
		UserID:      userID,
		DisplayName: displayName,
		role:        RoleParticipant,
		restriction: RestrictionNone,
		out:         NewOutbox(connID, bufferSize),
	}
}

// Role returns the session's current role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// SetRole updates the session's role.
func (s *Session) SetRole(r Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = r
}

// Restriction returns the session's current restriction.
func (s *Session) Restriction() Restriction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restriction
}

// SetRestriction updates the session's restriction.
func (s *Session) SetRestriction(r Restriction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restriction = r
}

// SpaceID returns the space the session is currently joined to, or "".
func (s *Session) SpaceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spaceID
}

func (s *Session) setSpaceID(spaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaceID = spaceID
}

// PartyID returns the session's current party sub-room, or "".
func (s *Session) PartyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partyID
}

// PartyName returns the display name of the session's current party.
func (s *Session) PartyName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partyName
}

func (s *Session) setParty(partyID, partyName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partyID = partyID
	s.partyName = partyName
}

// Out returns the session's outbound event queue.
func (s *Session) Out() *Outbox {
	return s.out
}

// Outbox routes serialized events to a channel drained by the connection's
// write pump.
type Outbox struct {
	connID string
	events chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns an Outbox with an open events channel.
func NewOutbox(connID string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		connID: connID,
		events: make(chan []byte, bufferSize),
	}
}

// Push enqueues data for delivery.
//
// Postcondition: Data is enqueued, or an error if the outbox is closed or full.
func (o *Outbox) Push(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.connID)
	}
	select {
	case o.events <- data:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.connID)
	}
}

// Events returns the read-only events channel.
// The connection's write pump reads from this channel.
func (o *Outbox) Events() <-chan []byte {
	return o.events
}

// Close marks the outbox as closed and closes the events channel.
//
// Postcondition: The events channel is closed. Further Push calls return an error.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
