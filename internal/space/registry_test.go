package space

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestSession(conn, user, name string) *Session {
	return NewSession(conn, user, name, 16)
}

func TestRegistry_Join(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")

	result := r.Join(sess, "s1", "Alice", "avatar-a", DefaultSpawn)
	assert.Equal(t, "u1", result.Self.UserID)
	assert.Equal(t, "Alice", result.Self.Nickname)
	assert.Equal(t, DefaultSpawn, result.Self.Position)
	assert.Len(t, result.Roster, 1)
	assert.Empty(t, result.DisplacedSpaceID)
	assert.Equal(t, "s1", sess.SpaceID())
}

func TestRegistry_Join_EmptyNicknameFallsBackToDisplayName(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")

	result := r.Join(sess, "s1", "", "avatar-a", DefaultSpawn)
	assert.Equal(t, "Alice", result.Self.Nickname)
}

func TestRegistry_Join_SecondSpaceDisplacesFirst(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")

	r.Join(sess, "s1", "Alice", "a", DefaultSpawn)
	result := r.Join(sess, "s2", "Alice", "a", DefaultSpawn)

	assert.Equal(t, "s1", result.DisplacedSpaceID)
	assert.Equal(t, 0, r.MemberCount("s1"))
	assert.Equal(t, 1, r.MemberCount("s2"))

	spaceID, ok := r.UserSpace("u1")
	require.True(t, ok)
	assert.Equal(t, "s2", spaceID)
}

func TestRegistry_Leave(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	r.Join(sess, "s1", "Alice", "a", DefaultSpawn)

	spaceID, ok := r.Leave(sess)
	require.True(t, ok)
	assert.Equal(t, "s1", spaceID)
	assert.Empty(t, sess.SpaceID())

	_, found := r.UserSpace("u1")
	assert.False(t, found)
}

func TestRegistry_Leave_NotJoined(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")

	_, ok := r.Leave(sess)
	assert.False(t, ok)
}

func TestRegistry_EmptySpaceIsDeleted(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	r.Join(sess, "s1", "Alice", "a", DefaultSpawn)

	assert.Equal(t, 1, r.SpaceCount())
	r.Leave(sess)
	assert.Equal(t, 0, r.SpaceCount())
	assert.Empty(t, r.Roster("s1"))
}

func TestRegistry_RosterIncludesAllMembers(t *testing.T) {
	r := NewRegistry()
	a := newTestSession("c1", "u1", "Alice")
	b := newTestSession("c2", "u2", "Bob")
	r.Join(a, "s1", "Alice", "a", DefaultSpawn)
	r.Join(b, "s1", "Bob", "b", DefaultSpawn)

	roster := r.Roster("s1")
	assert.Len(t, roster, 2)
}

func TestRegistry_SetPosition(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	r.Join(sess, "s1", "Alice", "a", DefaultSpawn)

	ok := r.SetPosition("s1", "u1", Position{X: 10, Y: 20})
	require.True(t, ok)

	state, found := r.Player("s1", "u1")
	require.True(t, found)
	assert.Equal(t, Position{X: 10, Y: 20}, state.Position)
}

func TestRegistry_SetPosition_UnknownUser(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.SetPosition("s1", "ghost", Position{}))
}

func TestRegistry_SetAvatar(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	r.Join(sess, "s1", "Alice", "old", DefaultSpawn)

	require.True(t, r.SetAvatar("s1", "u1", "new"))
	state, _ := r.Player("s1", "u1")
	assert.Equal(t, "new", state.Avatar)
}

func TestRegistry_SessionsExcept(t *testing.T) {
	r := NewRegistry()
	a := newTestSession("c1", "u1", "Alice")
	b := newTestSession("c2", "u2", "Bob")
	r.Join(a, "s1", "Alice", "a", DefaultSpawn)
	r.Join(b, "s1", "Bob", "b", DefaultSpawn)

	others := r.SessionsExcept("s1", "c1")
	require.Len(t, others, 1)
	assert.Equal(t, "c2", others[0].ConnID)
}

func TestRegistry_FindByName_MultiMatch(t *testing.T) {
	r := NewRegistry()
	// Display names are not unique: two connections share "Alice".
	a1 := newTestSession("c1", "u1", "Alice")
	a2 := newTestSession("c2", "u2", "Alice")
	b := newTestSession("c3", "u3", "Bob")
	r.Join(a1, "s1", "Alice", "a", DefaultSpawn)
	r.Join(a2, "s1", "Alice", "a", DefaultSpawn)
	r.Join(b, "s1", "Bob", "b", DefaultSpawn)

	matches := r.FindByName("s1", "Alice")
	assert.Len(t, matches, 2)
	assert.Empty(t, r.FindByName("s1", "Carol"))
}

func TestRegistry_HasSession(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("c1", "u1", "Alice")
	r.Join(sess, "s1", "Alice", "a", DefaultSpawn)

	assert.True(t, r.HasSession("s1", "c1"))
	r.Leave(sess)
	assert.False(t, r.HasSession("s1", "c1"))
}

func TestRegistry_ConcurrentJoins(t *testing.T) {
	r := NewRegistry()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := newTestSession(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i), fmt.Sprintf("User%d", i))
			r.Join(sess, "s1", "", "a", DefaultSpawn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, r.MemberCount("s1"))
}

func TestPropertyUserInAtMostOneSpace(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		spaces := []string{"s1", "s2", "s3"}
		numUsers := rapid.IntRange(1, 20).Draw(t, "num_users")

		sessions := make([]*Session, numUsers)
		for i := 0; i < numUsers; i++ {
			sessions[i] = newTestSession(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i), fmt.Sprintf("User%d", i))
		}

		numOps := rapid.IntRange(0, numUsers*3).Draw(t, "num_ops")
		for i := 0; i < numOps; i++ {
			userIdx := rapid.IntRange(0, numUsers-1).Draw(t, "op_user")
			if rapid.Bool().Draw(t, "is_join") {
				spaceIdx := rapid.IntRange(0, len(spaces)-1).Draw(t, "op_space")
				r.Join(sessions[userIdx], spaces[spaceIdx], "", "a", DefaultSpawn)
			} else {
				r.Leave(sessions[userIdx])
			}
		}

		// Every user is present in at most one space, and roster sums
		// equal the number of currently joined users.
		joined := 0
		for i := 0; i < numUsers; i++ {
			uid := fmt.Sprintf("u%d", i)
			count := 0
			for _, s := range spaces {
				if _, ok := r.Player(s, uid); ok {
					count++
				}
			}
			if count > 1 {
				t.Fatalf("user %s present in %d spaces", uid, count)
			}
			joined += count
		}

		total := 0
		for _, s := range spaces {
			total += len(r.Roster(s))
		}
		if total != joined {
			t.Fatalf("roster sum %d != joined users %d", total, joined)
		}
	})
}
