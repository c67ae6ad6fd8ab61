package space

import (
	"sort"
	"sync"
)

// PartyRegistry tracks party sub-room membership inside spaces. Parties have
// an implicit lifecycle: they exist only while non-empty. A session belongs
// to at most one party at a time.
type PartyRegistry struct {
	mu      sync.RWMutex
	members map[string]map[string]map[string]*Session // spaceID → partyID → connID → session
}

// NewPartyRegistry creates an empty PartyRegistry.
func NewPartyRegistry() *PartyRegistry {
	return &PartyRegistry{
		members: make(map[string]map[string]map[string]*Session),
	}
}

// Join adds the session to the given party, leaving its previous party first
// to preserve the one-party-per-session invariant. Returns the party left,
// or "" if the session was not in one.
//
// Precondition: sess must be joined to spaceID.
func (p *PartyRegistry) Join(sess *Session, spaceID, partyID, partyName string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := sess.PartyID()
	if prev != "" && prev != partyID {
		p.removeLocked(spaceID, prev, sess.ConnID)
	}

	if p.members[spaceID] == nil {
		p.members[spaceID] = make(map[string]map[string]*Session)
	}
	if p.members[spaceID][partyID] == nil {
		p.members[spaceID][partyID] = make(map[string]*Session)
	}
	p.members[spaceID][partyID][sess.ConnID] = sess
	sess.setParty(partyID, partyName)

	return prev
}

// Leave removes the session from the given party.
//
// Postcondition: The party's set is deleted if now empty; the session's
// party fields are cleared.
func (p *PartyRegistry) Leave(sess *Session, spaceID, partyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.removeLocked(spaceID, partyID, sess.ConnID)
	if sess.PartyID() == partyID {
		sess.setParty("", "")
	}
}

// LeaveCurrent removes the session from whatever party it is in.
// Returns the (spaceID, partyID) left and whether the session was in a party.
func (p *PartyRegistry) LeaveCurrent(sess *Session, spaceID string) (string, bool) {
	partyID := sess.PartyID()
	if partyID == "" {
		return "", false
	}
	p.Leave(sess, spaceID, partyID)
	return partyID, true
}

// Sessions returns the sessions currently in the party.
func (p *PartyRegistry) Sessions(spaceID, partyID string) []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := p.members[spaceID][partyID]
	out := make([]*Session, 0, len(conns))
	for _, sess := range conns {
		out = append(out, sess)
	}
	return out
}

// MemberIDs returns the sorted user ids of the party's members.
func (p *PartyRegistry) MemberIDs(spaceID, partyID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := p.members[spaceID][partyID]
	seen := make(map[string]bool, len(conns))
	out := make([]string, 0, len(conns))
	for _, sess := range conns {
		if !seen[sess.UserID] {
			seen[sess.UserID] = true
			out = append(out, sess.UserID)
		}
	}
	sort.Strings(out)
	return out
}

// MemberCount returns the number of connections in the party.
func (p *PartyRegistry) MemberCount(spaceID, partyID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members[spaceID][partyID])
}

func (p *PartyRegistry) removeLocked(spaceID, partyID, connID string) {
	parties, ok := p.members[spaceID]
	if !ok {
		return
	}
	conns, ok := parties[partyID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(parties, partyID)
		if len(parties) == 0 {
			delete(p.members, spaceID)
		}
	}
}
