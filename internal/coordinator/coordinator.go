package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

// storeTimeout bounds every persistence-store call made by a handler.
const storeTimeout = 5 * time.Second

// Coordinator dispatches decoded wire frames to the handlers and owns the
// join/leave/disconnect lifecycle shared by all of them.
type Coordinator struct {
	registry  *space.Registry
	parties   *space.PartyRegistry
	media     *space.MediaState
	limiter   *space.RateLimiter
	templates *space.Templates
	hub       *Hub
	members   MemberStore

	chat   *ChatHandler
	admin  *AdminHandler
	mediaH *MediaHandler
	relay  *RelayHandler

	logger *zap.Logger
}

// NewCoordinator creates a Coordinator with the given dependencies.
//
// Precondition: all arguments must be non-nil.
func NewCoordinator(
	registry *space.Registry,
	parties *space.PartyRegistry,
	media *space.MediaState,
	limiter *space.RateLimiter,
	templates *space.Templates,
	hub *Hub,
	members MemberStore,
	chatHandler *ChatHandler,
	adminHandler *AdminHandler,
	mediaHandler *MediaHandler,
	relayHandler *RelayHandler,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		registry:  registry,
		parties:   parties,
		media:     media,
		limiter:   limiter,
		templates: templates,
		hub:       hub,
		members:   members,
		chat:      chatHandler,
		admin:     adminHandler,
		mediaH:    mediaHandler,
		relay:     relayHandler,
		logger:    logger,
	}
}

// HandleFrame decodes one inbound frame and routes it to the matching
// handler. Unknown or malformed frames are logged and dropped.
func (c *Coordinator) HandleFrame(ctx context.Context, sess *space.Session, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.logger.Debug("dropping malformed frame",
			zap.String("conn_id", sess.ConnID),
			zap.Error(err),
		)
		return
	}

	switch frame.Event {
	case EventJoinSpace:
		var req JoinSpaceRequest
		if decode(c.logger, sess, frame, &req) {
			c.JoinSpace(ctx, sess, req)
		}
	case EventLeaveSpace:
		c.LeaveSpace(sess)

	case EventMove:
		var req MoveRequest
		if decode(c.logger, sess, frame, &req) {
			c.relay.Move(sess, req)
		}
	case EventAvatarUpdate:
		var req AvatarUpdateRequest
		if decode(c.logger, sess, frame, &req) {
			c.relay.AvatarUpdate(sess, req)
		}
	case EventEditorTileUpdate, EventEditorObjectPlace, EventEditorObjectMove, EventEditorObjectDelete:
		c.relay.Editor(sess, frame.Event, frame.Data)

	case EventChatSend:
		var req ChatSendRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventChatError) {
			return
		}
		c.chat.Send(sess, req)
	case EventWhisperSend:
		var req WhisperSendRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventWhisperError) {
			return
		}
		c.chat.Whisper(sess, req)
	case EventPartyJoin:
		var req PartyJoinRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventPartyError) {
			return
		}
		c.chat.PartyJoin(sess, req)
	case EventPartyLeave:
		if !c.requireSpace(sess, EventPartyError) {
			return
		}
		c.chat.PartyLeave(sess)
	case EventPartyMessage:
		var req PartyMessageRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventPartyError) {
			return
		}
		c.chat.PartyMessage(sess, req)
	case EventReactionToggle:
		var req ReactionToggleRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventChatError) {
			return
		}
		c.chat.ReactionToggle(sess, req)
	case EventChatDelete:
		var req ChatDeleteRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventChatError) {
			return
		}
		c.chat.Delete(sess, req)

	case EventAdminMute:
		var req AdminTargetRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventAdminError) {
			return
		}
		c.admin.Mute(sess, req)
	case EventAdminUnmute:
		var req AdminTargetRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventAdminError) {
			return
		}
		c.admin.Unmute(sess, req)
	case EventAdminKick:
		var req AdminTargetRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventAdminError) {
			return
		}
		c.admin.Kick(sess, req, c.Disconnect)
	case EventAdminAnnounce:
		var req AnnounceRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventAdminError) {
			return
		}
		c.admin.Announce(sess, req)

	case EventRecordingStart:
		if !c.requireSpace(sess, EventMediaError) {
			return
		}
		c.mediaH.RecordingStart(sess)
	case EventRecordingStop:
		if !c.requireSpace(sess, EventMediaError) {
			return
		}
		c.mediaH.RecordingStop(sess)
	case EventSpotlightActivate:
		if !c.requireSpace(sess, EventMediaError) {
			return
		}
		c.mediaH.SpotlightActivate(ctx, sess)
	case EventSpotlightDeactivate:
		if !c.requireSpace(sess, EventMediaError) {
			return
		}
		c.mediaH.SpotlightDeactivate(ctx, sess)
	case EventProximitySet:
		var req ProximitySetRequest
		if !decode(c.logger, sess, frame, &req) {
			return
		}
		if !c.requireSpace(sess, EventMediaError) {
			return
		}
		c.mediaH.ProximitySet(sess, req)

	default:
		c.logger.Debug("dropping unknown event",
			zap.String("conn_id", sess.ConnID),
			zap.String("event", frame.Event),
		)
	}
}

// JoinSpace resolves the caller's durable role and restriction, places it in
// the space, returns the full roster to the caller, and announces the join
// to everyone else. Joining a second space leaves the first.
//
// Postcondition: The session's user is a member of exactly one space.
func (c *Coordinator) JoinSpace(ctx context.Context, sess *space.Session, req JoinSpaceRequest) {
	if req.SpaceID == "" {
		c.logger.Debug("ignoring join with empty space id", zap.String("conn_id", sess.ConnID))
		return
	}
	start := time.Now()

	role, restriction := c.resolveMembership(ctx, req.SpaceID, sess.UserID)
	sess.SetRole(role)
	sess.SetRestriction(restriction)

	// Party membership belongs to the space being left.
	c.leavePartyIfAny(sess)

	spawn := c.templates.SpawnFor(req.Template)
	result := c.registry.Join(sess, req.SpaceID, req.Nickname, req.Avatar, spawn)

	if result.DisplacedSpaceID != "" {
		c.hub.BroadcastSpace(result.DisplacedSpaceID, EventPlayerLeft, PlayerLeftPayload{UserID: sess.UserID})
		if c.registry.MemberCount(result.DisplacedSpaceID) == 0 {
			c.media.ClearSpace(result.DisplacedSpaceID)
		}
	}

	c.hub.SendTo(sess, EventPlayersList, result.Roster)
	c.hub.BroadcastSpaceExcept(req.SpaceID, sess.ConnID, EventPlayerJoined, result.Self)

	c.logger.Info("session joined space",
		zap.String("conn_id", sess.ConnID),
		zap.String("user_id", sess.UserID),
		zap.String("space_id", req.SpaceID),
		zap.String("role", string(role)),
		zap.Int("members", c.registry.MemberCount(req.SpaceID)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// LeaveSpace removes the session from its current space and party and
// announces the departure. A session that is not joined is a no-op.
func (c *Coordinator) LeaveSpace(sess *space.Session) {
	c.leavePartyIfAny(sess)

	spaceID, ok := c.registry.Leave(sess)
	if !ok {
		return
	}

	c.hub.BroadcastSpace(spaceID, EventPlayerLeft, PlayerLeftPayload{UserID: sess.UserID})
	if c.registry.MemberCount(spaceID) == 0 {
		c.media.ClearSpace(spaceID)
	}

	c.logger.Info("session left space",
		zap.String("conn_id", sess.ConnID),
		zap.String("user_id", sess.UserID),
		zap.String("space_id", spaceID),
	)
}

// Disconnect tears down a session's shared state: space and party
// membership, rate-limit bookkeeping, and the outbound queue.
//
// Postcondition: The session's outbox is closed.
func (c *Coordinator) Disconnect(sess *space.Session) {
	c.LeaveSpace(sess)
	c.limiter.Forget(sess.UserID)
	_ = sess.Out().Close()
}

// resolveMembership reads the durable role and restriction for a user in a
// space. Users without a record, and store failures, fall back to the
// defaults; failures are logged.
func (c *Coordinator) resolveMembership(ctx context.Context, spaceID, userID string) (space.Role, space.Restriction) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	m, err := c.members.GetMember(ctx, spaceID, userID)
	if err != nil {
		if !errors.Is(err, postgres.ErrMemberNotFound) {
			c.logger.Warn("resolving membership",
				zap.String("space_id", spaceID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return space.RoleParticipant, space.RestrictionNone
	}
	return m.Role, m.Restriction
}

// leavePartyIfAny removes the session from its current party and notifies
// the remaining party members.
func (c *Coordinator) leavePartyIfAny(sess *space.Session) {
	spaceID := sess.SpaceID()
	if spaceID == "" {
		return
	}
	partyID, ok := c.parties.LeaveCurrent(sess, spaceID)
	if !ok {
		return
	}
	c.hub.BroadcastParty(spaceID, partyID, EventPartyUpdated, PartyUpdatedPayload{
		PartyID:   partyID,
		MemberIDs: c.parties.MemberIDs(spaceID, partyID),
	})
}

// requireSpace checks that the session is joined to a space, emitting a
// NOT_IN_SPACE error on the given error channel otherwise.
func (c *Coordinator) requireSpace(sess *space.Session, errEvent string) bool {
	if sess.SpaceID() == "" {
		c.hub.SendError(sess, errEvent, CodeNotInSpace, "join a space first")
		return false
	}
	return true
}

func decode(logger *zap.Logger, sess *space.Session, frame Frame, out any) bool {
	if err := json.Unmarshal(frame.Data, out); err != nil {
		logger.Debug("dropping malformed payload",
			zap.String("conn_id", sess.ConnID),
			zap.String("event", frame.Event),
			zap.Error(err),
		)
		return false
	}
	return true
}
