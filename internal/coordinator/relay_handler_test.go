package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/flowspace/internal/space"
)

func TestMove_RelaysToOthersOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "u1", "Alice", "s1")
	bob := f.join(t, "u2", "Bob", "s1")

	f.relay.Move(alice, MoveRequest{X: 120, Y: 80, Direction: "left"})

	var moved PlayerMovedPayload
	requireFrame(t, bob, EventPlayerMoved, &moved)
	assert.Equal(t, "u1", moved.UserID)
	assert.Equal(t, float64(120), moved.X)
	assert.Equal(t, float64(80), moved.Y)
	assert.Equal(t, "left", moved.Direction)

	// The sender does not receive its own movement echo.
	assert.Empty(t, drain(t, alice))

	player, ok := f.registry.Player("s1", "u1")
	require.True(t, ok)
	assert.Equal(t, space.Position{X: 120, Y: 80}, player.Position)
}

func TestMove_NotJoinedIgnored(t *testing.T) {
	f := newFixture(t)
	sess := f.connect("u1", "Alice")

	f.relay.Move(sess, MoveRequest{X: 10, Y: 10})

	assert.Empty(t, drain(t, sess))
}

func TestAvatarUpdate_RelaysAndStores(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "u1", "Alice", "s1")
	bob := f.join(t, "u2", "Bob", "s1")

	f.relay.AvatarUpdate(alice, AvatarUpdateRequest{Avatar: "fox"})

	var updated AvatarUpdatedPayload
	requireFrame(t, bob, EventPlayerAvatarUpdated, &updated)
	assert.Equal(t, "u1", updated.UserID)
	assert.Equal(t, "fox", updated.Avatar)

	player, ok := f.registry.Player("s1", "u1")
	require.True(t, ok)
	assert.Equal(t, "fox", player.Avatar)
}

func TestEditor_RelaysFlatPayloadToOthers(t *testing.T) {
	f := newFixture(t)
	staff := f.join(t, "u1", "Staff", "s1")
	bob := f.join(t, "u2", "Bob", "s1")
	staff.SetRole(space.RoleStaff)

	data := json.RawMessage(`{"x":3,"y":7,"tile":"grass"}`)
	f.relay.Editor(staff, EventEditorTileUpdate, data)

	// The user id is spread into the payload's top-level fields, not nested.
	frame, ok := findFrame(t, bob, EventEditorTileUpdated)
	require.True(t, ok)
	assert.JSONEq(t, `{"userId":"u1","x":3,"y":7,"tile":"grass"}`, string(frame.Data))

	assert.Empty(t, drain(t, staff))
}

func TestEditor_MalformedPayloadDropped(t *testing.T) {
	f := newFixture(t)
	staff := f.join(t, "u1", "Staff", "s1")
	bob := f.join(t, "u2", "Bob", "s1")
	staff.SetRole(space.RoleStaff)

	f.relay.Editor(staff, EventEditorTileUpdate, json.RawMessage(`[1,2]`))

	assert.Empty(t, drain(t, staff), "no error event for malformed payloads")
	assert.Empty(t, drain(t, bob))
}

func TestEditor_EventNamePairs(t *testing.T) {
	f := newFixture(t)
	owner := f.join(t, "u1", "Owner", "s1")
	bob := f.join(t, "u2", "Bob", "s1")
	owner.SetRole(space.RoleOwner)

	pairs := map[string]string{
		EventEditorObjectPlace:  EventEditorObjectPlaced,
		EventEditorObjectMove:   EventEditorObjectMoved,
		EventEditorObjectDelete: EventEditorObjectDeleted,
	}
	for in, out := range pairs {
		f.relay.Editor(owner, in, json.RawMessage(`{}`))
		requireFrame(t, bob, out, nil)
	}
}

func TestEditor_NonEditorSilentlyIgnored(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "u1", "Alice", "s1")
	bob := f.join(t, "u2", "Bob", "s1")

	f.relay.Editor(alice, EventEditorTileUpdate, json.RawMessage(`{}`))

	assert.Empty(t, drain(t, alice), "no error event for non-editors")
	assert.Empty(t, drain(t, bob))
}

func TestEditor_UnknownEventDropped(t *testing.T) {
	f := newFixture(t)
	staff := f.join(t, "u1", "Staff", "s1")
	bob := f.join(t, "u2", "Bob", "s1")
	staff.SetRole(space.RoleStaff)

	f.relay.Editor(staff, "editor:unknown", json.RawMessage(`{}`))

	assert.Empty(t, drain(t, bob))
}
