package coordinator

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/space"
)

// editorEvents maps inbound editor event names to their broadcast
// counterparts.
var editorEvents = map[string]string{
	EventEditorTileUpdate:   EventEditorTileUpdated,
	EventEditorObjectPlace:  EventEditorObjectPlaced,
	EventEditorObjectMove:   EventEditorObjectMoved,
	EventEditorObjectDelete: EventEditorObjectDeleted,
}

// RelayHandler forwards fire-and-forget traffic: movement, avatar changes,
// and map editor events. Nothing here is acknowledged, persisted, or
// rate-limited; movement throttling is the sender's responsibility.
type RelayHandler struct {
	registry *space.Registry
	hub      *Hub
	logger   *zap.Logger
}

// NewRelayHandler creates a RelayHandler with the given dependencies.
//
// Precondition: registry, hub, and logger must be non-nil.
func NewRelayHandler(registry *space.Registry, hub *Hub, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{
		registry: registry,
		hub:      hub,
		logger:   logger,
	}
}

// Move updates the sender's stored position and relays it to every other
// member of the space. A sender that is not joined is ignored.
func (h *RelayHandler) Move(sess *space.Session, req MoveRequest) {
	spaceID := sess.SpaceID()
	if spaceID == "" {
		return
	}
	if !h.registry.SetPosition(spaceID, sess.UserID, space.Position{X: req.X, Y: req.Y}) {
		return
	}

	h.hub.BroadcastSpaceExcept(spaceID, sess.ConnID, EventPlayerMoved, PlayerMovedPayload{
		UserID:    sess.UserID,
		X:         req.X,
		Y:         req.Y,
		Direction: req.Direction,
	})
}

// AvatarUpdate changes the sender's stored avatar descriptor and relays the
// change to every other member of the space.
func (h *RelayHandler) AvatarUpdate(sess *space.Session, req AvatarUpdateRequest) {
	spaceID := sess.SpaceID()
	if spaceID == "" {
		return
	}
	if !h.registry.SetAvatar(spaceID, sess.UserID, req.Avatar) {
		return
	}

	h.hub.BroadcastSpaceExcept(spaceID, sess.ConnID, EventPlayerAvatarUpdated, AvatarUpdatedPayload{
		UserID: sess.UserID,
		Avatar: req.Avatar,
	})
}

// Editor relays a map editor event to the rest of the space with the acting
// user id spread into the payload's top-level fields. Only OWNER/STAFF may
// edit; everyone else is ignored without an error. No conflict resolution is
// applied; the last writer wins.
func (h *RelayHandler) Editor(sess *space.Session, inEvent string, data json.RawMessage) {
	spaceID := sess.SpaceID()
	if spaceID == "" {
		return
	}
	if !sess.Role().CanModerate() {
		h.logger.Debug("ignoring editor event from non-editor",
			zap.String("user_id", sess.UserID),
			zap.String("event", inEvent),
		)
		return
	}

	outEvent, ok := editorEvents[inEvent]
	if !ok {
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		h.logger.Debug("dropping malformed editor event",
			zap.String("user_id", sess.UserID),
			zap.String("event", inEvent),
			zap.Error(err),
		)
		return
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	userID, _ := json.Marshal(sess.UserID)
	fields["userId"] = userID

	h.hub.BroadcastSpaceExcept(spaceID, sess.ConnID, outEvent, fields)
}
