package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

// fakeMessageStore records Create/SoftDelete calls. Setting failCreate makes
// Create fail; a non-nil gate blocks Create until the gate closes.
type fakeMessageStore struct {
	mu         sync.Mutex
	created    []postgres.ChatMessage
	deleted    []string
	nextID     int
	failCreate bool
	gate       chan struct{}
}

func (f *fakeMessageStore) Create(_ context.Context, msg postgres.ChatMessage) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", fmt.Errorf("store unavailable")
	}
	f.nextID++
	f.created = append(f.created, msg)
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakeMessageStore) SoftDelete(_ context.Context, spaceID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, spaceID+"/"+messageID)
	return nil
}

func (f *fakeMessageStore) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeMessageStore) createdMessages() []postgres.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postgres.ChatMessage(nil), f.created...)
}

// fakeMemberStore serves membership rows keyed by "spaceID/userID".
type fakeMemberStore struct {
	mu      sync.Mutex
	members map[string]postgres.Member
	err     error
}

func (f *fakeMemberStore) GetMember(_ context.Context, spaceID, userID string) (postgres.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return postgres.Member{}, f.err
	}
	m, ok := f.members[spaceID+"/"+userID]
	if !ok {
		return postgres.Member{}, postgres.ErrMemberNotFound
	}
	return m, nil
}

func (f *fakeMemberStore) set(spaceID, userID string, role space.Role, restriction space.Restriction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members == nil {
		f.members = make(map[string]postgres.Member)
	}
	f.members[spaceID+"/"+userID] = postgres.Member{
		SpaceID: spaceID, UserID: userID, Role: role, Restriction: restriction,
	}
}

// grantFlag records one SetActive call on the fake grant store.
type grantFlag struct {
	GrantID string
	Active  bool
}

// fakeGrantStore serves spotlight grants keyed by "spaceID/userID". A
// non-nil checking channel receives one signal per FindValid entry; a
// non-nil gate blocks FindValid until the gate closes.
type fakeGrantStore struct {
	mu       sync.Mutex
	grants   map[string]postgres.SpotlightGrant
	flags    []grantFlag
	checking chan struct{}
	gate     chan struct{}
}

func (f *fakeGrantStore) FindValid(_ context.Context, spaceID, userID string) (postgres.SpotlightGrant, error) {
	if f.checking != nil {
		f.checking <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[spaceID+"/"+userID]
	if !ok || (g.ExpiresAt != nil && !g.ExpiresAt.After(time.Now())) {
		return postgres.SpotlightGrant{}, postgres.ErrGrantNotFound
	}
	return g, nil
}

func (f *fakeGrantStore) SetActive(_ context.Context, grantID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, grantFlag{GrantID: grantID, Active: active})
	for key, g := range f.grants {
		if g.ID == grantID {
			g.Active = active
			f.grants[key] = g
			return nil
		}
	}
	return postgres.ErrGrantNotFound
}

func (f *fakeGrantStore) grant(spaceID, userID string) postgres.SpotlightGrant {
	return f.grantExpiring(spaceID, userID, nil)
}

func (f *fakeGrantStore) grantExpiring(spaceID, userID string, expiresAt *time.Time) postgres.SpotlightGrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grants == nil {
		f.grants = make(map[string]postgres.SpotlightGrant)
	}
	g := postgres.SpotlightGrant{
		ID:        fmt.Sprintf("grant-%d", len(f.grants)+1),
		SpaceID:   spaceID,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	f.grants[spaceID+"/"+userID] = g
	return g
}

func (f *fakeGrantStore) flagged() []grantFlag {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]grantFlag(nil), f.flags...)
}

// fixture bundles a fully wired Coordinator and its collaborators.
type fixture struct {
	coord     *Coordinator
	registry  *space.Registry
	parties   *space.PartyRegistry
	media     *space.MediaState
	limiter   *space.RateLimiter
	reactions *space.ReactionBoard
	hub       *Hub
	messages  *fakeMessageStore
	members   *fakeMemberStore
	grants    *fakeGrantStore
	chat      *ChatHandler
	admin     *AdminHandler
	mediaH    *MediaHandler
	relay     *RelayHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		registry:  space.NewRegistry(),
		parties:   space.NewPartyRegistry(),
		media:     space.NewMediaState(),
		limiter:   space.NewRateLimiter(0),
		reactions: space.NewReactionBoard(),
		messages:  &fakeMessageStore{},
		members:   &fakeMemberStore{},
		grants:    &fakeGrantStore{},
	}
	f.hub = NewHub(f.registry, f.parties, logger)
	f.chat = NewChatHandler(f.registry, f.parties, f.limiter, f.reactions, f.hub, f.messages, 500, logger)
	f.admin = NewAdminHandler(f.registry, f.hub, 500, logger)
	f.mediaH = NewMediaHandler(f.registry, f.media, f.hub, f.grants, logger)
	f.relay = NewRelayHandler(f.registry, f.hub, logger)

	templates, err := space.LoadTemplatesFromDir("")
	require.NoError(t, err)

	f.coord = NewCoordinator(
		f.registry, f.parties, f.media, f.limiter, templates,
		f.hub, f.members, f.chat, f.admin, f.mediaH, f.relay, logger,
	)
	return f
}

var connSeq int

// connect creates an authenticated session as the server would at handshake.
func (f *fixture) connect(userID, displayName string) *space.Session {
	connSeq++
	return space.NewSession(fmt.Sprintf("conn-%d", connSeq), userID, displayName, 64)
}

// join connects and joins a space, then discards the join traffic so tests
// start from a quiet outbox.
func (f *fixture) join(t *testing.T, userID, displayName, spaceID string) *space.Session {
	t.Helper()
	sess := f.connect(userID, displayName)
	f.coord.JoinSpace(context.Background(), sess, JoinSpaceRequest{
		SpaceID:  spaceID,
		Nickname: displayName,
	})
	drainAll(f.registry.Sessions(spaceID))
	return sess
}

// drain returns every frame currently queued on the session's outbox.
func drain(t *testing.T, sess *space.Session) []Frame {
	t.Helper()
	var frames []Frame
	for {
		select {
		case raw, ok := <-sess.Out().Events():
			if !ok {
				return frames
			}
			var f Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// drainAll discards queued frames on every given session.
func drainAll(sessions []*space.Session) {
	for _, sess := range sessions {
		for {
			select {
			case _, ok := <-sess.Out().Events():
				if ok {
					continue
				}
			default:
			}
			break
		}
	}
}

// findFrame returns the first queued frame with the given event name.
func findFrame(t *testing.T, sess *space.Session, event string) (Frame, bool) {
	t.Helper()
	for _, f := range drain(t, sess) {
		if f.Event == event {
			return f, true
		}
	}
	return Frame{}, false
}

// requireFrame drains the outbox and fails unless a frame with the event
// name is present, decoding its payload into out when non-nil.
func requireFrame(t *testing.T, sess *space.Session, event string, out any) {
	t.Helper()
	f, ok := findFrame(t, sess, event)
	require.True(t, ok, "expected %s frame", event)
	if out != nil {
		require.NoError(t, json.Unmarshal(f.Data, out))
	}
}

// decodeInto unmarshals a frame's payload into out.
func decodeInto(t *testing.T, f Frame, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, out))
}

// waitForFrame polls the outbox for a frame emitted asynchronously.
func waitForFrame(t *testing.T, sess *space.Session, event string, out any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case raw, ok := <-sess.Out().Events():
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", event)
			}
			var f Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Event == event {
				if out != nil {
					require.NoError(t, json.Unmarshal(f.Data, out))
				}
				return
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("timed out waiting for %s", event)
}
