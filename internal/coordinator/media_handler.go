package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

// MediaHandler arbitrates per-space media state: the single active
// recording, grant-gated spotlights, and the proximity mode flag.
type MediaHandler struct {
	registry *space.Registry
	media    *space.MediaState
	hub      *Hub
	grants   GrantStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewMediaHandler creates a MediaHandler with the given dependencies.
//
// Precondition: all arguments must be non-nil.
func NewMediaHandler(
	registry *space.Registry,
	media *space.MediaState,
	hub *Hub,
	grants GrantStore,
	logger *zap.Logger,
) *MediaHandler {
	return &MediaHandler{
		registry: registry,
		media:    media,
		hub:      hub,
		grants:   grants,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordingStart claims the space's exclusive recording slot for the actor
// and broadcasts the new session. STAFF/OWNER only.
//
// Precondition: sess must be joined to a space.
func (h *MediaHandler) RecordingStart(sess *space.Session) {
	if !sess.Role().CanModerate() {
		h.hub.SendError(sess, EventMediaError, CodeForbidden, "insufficient role")
		return
	}

	spaceID := sess.SpaceID()
	rec, err := h.media.StartRecording(spaceID, sess.UserID, h.nickname(sess), h.now().UnixMilli())
	if err != nil {
		h.hub.SendError(sess, EventMediaError, CodeAlreadyRecording,
			fmt.Sprintf("%s is already recording", rec.RecorderNickname))
		return
	}

	h.hub.BroadcastSpace(spaceID, EventRecordingStarted, rec)
}

// RecordingStop ends the space's recording session and broadcasts the
// stopped snapshot. Only the recorder or a STAFF/OWNER actor may stop it.
//
// Precondition: sess must be joined to a space.
func (h *MediaHandler) RecordingStop(sess *space.Session) {
	spaceID := sess.SpaceID()
	rec, err := h.media.StopRecording(spaceID, sess.UserID, sess.Role().CanModerate())
	switch {
	case errors.Is(err, space.ErrNotRecording):
		h.hub.SendError(sess, EventMediaError, CodeNotRecording, "no active recording")
		return
	case errors.Is(err, space.ErrNotRecorder):
		h.hub.SendError(sess, EventMediaError, CodeForbidden, "only the recorder or staff may stop")
		return
	}

	h.hub.BroadcastSpace(spaceID, EventRecordingStopped, rec)
}

// SpotlightActivate checks the durable grant store for a valid grant,
// marks it live, mirrors the spotlight into memory, and broadcasts the
// activation. Because the grant check blocks, the actor's membership is
// re-validated after it returns; a session that left in the meantime
// mutates nothing.
//
// Precondition: sess must be joined to a space.
func (h *MediaHandler) SpotlightActivate(ctx context.Context, sess *space.Session) {
	spaceID := sess.SpaceID()

	callCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	grant, err := h.grants.FindValid(callCtx, spaceID, sess.UserID)

	if !h.registry.HasSession(spaceID, sess.ConnID) {
		h.logger.Debug("actor left during grant check",
			zap.String("conn_id", sess.ConnID),
			zap.String("space_id", spaceID),
		)
		return
	}

	if err != nil {
		if !errors.Is(err, postgres.ErrGrantNotFound) {
			h.logger.Warn("querying spotlight grant",
				zap.String("space_id", spaceID),
				zap.String("user_id", sess.UserID),
				zap.Error(err),
			)
		}
		h.hub.SendError(sess, EventMediaError, CodeNoGrant, "no valid spotlight grant")
		return
	}

	if err := h.grants.SetActive(callCtx, grant.ID, true); err != nil {
		h.logger.Warn("marking spotlight grant active",
			zap.String("grant_id", grant.ID),
			zap.Error(err),
		)
	}

	nickname := h.nickname(sess)
	h.media.ActivateSpotlight(spaceID, sess.UserID, nickname)
	h.hub.BroadcastSpace(spaceID, EventSpotlightActivated, space.Spotlight{
		ParticipantID: sess.UserID,
		Nickname:      nickname,
	})
}

// SpotlightDeactivate clears the grant's live flag and the in-memory
// spotlight, then broadcasts the deactivation. The grant itself survives,
// so the actor may activate again later. A store failure is logged only;
// the in-memory state still clears.
//
// Precondition: sess must be joined to a space.
func (h *MediaHandler) SpotlightDeactivate(ctx context.Context, sess *space.Session) {
	spaceID := sess.SpaceID()

	callCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	grant, err := h.grants.FindValid(callCtx, spaceID, sess.UserID)
	switch {
	case err == nil:
		if err := h.grants.SetActive(callCtx, grant.ID, false); err != nil {
			h.logger.Warn("marking spotlight grant inactive",
				zap.String("grant_id", grant.ID),
				zap.Error(err),
			)
		}
	case !errors.Is(err, postgres.ErrGrantNotFound):
		h.logger.Warn("querying spotlight grant",
			zap.String("space_id", spaceID),
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
	}

	if !h.registry.HasSession(spaceID, sess.ConnID) {
		return
	}

	h.media.DeactivateSpotlight(spaceID, sess.UserID)
	h.hub.BroadcastSpace(spaceID, EventSpotlightDeactivated, SpotlightDeactivatedPayload{
		ParticipantID: sess.UserID,
	})
}

// ProximitySet toggles the space's proximity mode and announces the change
// both as a media event and as a synthesized system chat message.
// STAFF/OWNER only.
//
// Precondition: sess must be joined to a space.
func (h *MediaHandler) ProximitySet(sess *space.Session, req ProximitySetRequest) {
	if !sess.Role().CanModerate() {
		h.hub.SendError(sess, EventMediaError, CodeForbidden, "insufficient role")
		return
	}

	spaceID := sess.SpaceID()
	nickname := h.nickname(sess)
	h.media.SetProximity(spaceID, req.Enabled)

	h.hub.BroadcastSpace(spaceID, EventProximityChanged, ProximityChangedPayload{
		Enabled:   req.Enabled,
		ChangedBy: nickname,
	})

	mode := "disabled"
	if req.Enabled {
		mode = "enabled"
	}
	h.hub.BroadcastSpace(spaceID, EventChatMessage, ChatMessagePayload{
		ID:             uuid.NewString(),
		SenderNickname: "System",
		Content:        fmt.Sprintf("Proximity chat %s by %s", mode, nickname),
		Type:           postgres.MessageTypeSystem,
		Timestamp:      h.now().UnixMilli(),
	})
}

func (h *MediaHandler) nickname(sess *space.Session) string {
	if p, ok := h.registry.Player(sess.SpaceID(), sess.UserID); ok {
		return p.Nickname
	}
	return sess.DisplayName
}
