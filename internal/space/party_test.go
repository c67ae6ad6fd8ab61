package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartyRegistry_Join(t *testing.T) {
	p := NewPartyRegistry()
	sess := newTestSession("c1", "u1", "Alice")

	prev := p.Join(sess, "s1", "zone-a", "Zone A")
	assert.Empty(t, prev)
	assert.Equal(t, "zone-a", sess.PartyID())
	assert.Equal(t, "Zone A", sess.PartyName())
	assert.Equal(t, []string{"u1"}, p.MemberIDs("s1", "zone-a"))
}

func TestPartyRegistry_JoinSecondPartyLeavesFirst(t *testing.T) {
	p := NewPartyRegistry()
	sess := newTestSession("c1", "u1", "Alice")

	p.Join(sess, "s1", "zone-a", "Zone A")
	prev := p.Join(sess, "s1", "zone-b", "Zone B")

	assert.Equal(t, "zone-a", prev)
	assert.Equal(t, "zone-b", sess.PartyID())
	assert.Equal(t, 0, p.MemberCount("s1", "zone-a"))
	assert.Equal(t, 1, p.MemberCount("s1", "zone-b"))
}

func TestPartyRegistry_Leave(t *testing.T) {
	p := NewPartyRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	p.Join(sess, "s1", "zone-a", "Zone A")

	p.Leave(sess, "s1", "zone-a")
	assert.Empty(t, sess.PartyID())
	assert.Equal(t, 0, p.MemberCount("s1", "zone-a"))
}

func TestPartyRegistry_LeaveCurrent(t *testing.T) {
	p := NewPartyRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	p.Join(sess, "s1", "zone-a", "Zone A")

	partyID, ok := p.LeaveCurrent(sess, "s1")
	require.True(t, ok)
	assert.Equal(t, "zone-a", partyID)

	_, ok = p.LeaveCurrent(sess, "s1")
	assert.False(t, ok)
}

func TestPartyRegistry_MemberIDsSortedAndDeduplicated(t *testing.T) {
	p := NewPartyRegistry()
	// Same user on two connections counts once.
	a1 := newTestSession("c1", "u2", "Alice")
	a2 := newTestSession("c2", "u2", "Alice")
	b := newTestSession("c3", "u1", "Bob")
	p.Join(a1, "s1", "zone-a", "Zone A")
	p.Join(a2, "s1", "zone-a", "Zone A")
	p.Join(b, "s1", "zone-a", "Zone A")

	assert.Equal(t, []string{"u1", "u2"}, p.MemberIDs("s1", "zone-a"))
}

func TestPartyRegistry_EmptyPartyIsDeleted(t *testing.T) {
	p := NewPartyRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	p.Join(sess, "s1", "zone-a", "Zone A")
	p.Leave(sess, "s1", "zone-a")

	assert.Empty(t, p.Sessions("s1", "zone-a"))
	assert.Empty(t, p.MemberIDs("s1", "zone-a"))
}
