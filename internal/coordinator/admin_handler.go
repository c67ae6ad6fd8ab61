package coordinator

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

// AdminHandler executes moderation commands. Every command requires an
// OWNER or STAFF actor and resolves its target by display name, applying
// the action to every matching connection.
type AdminHandler struct {
	registry   *space.Registry
	hub        *Hub
	maxContent int
	logger     *zap.Logger
	now        func() time.Time
}

// NewAdminHandler creates an AdminHandler with the given dependencies.
//
// Precondition: registry, hub, and logger must be non-nil; maxContent > 0.
func NewAdminHandler(registry *space.Registry, hub *Hub, maxContent int, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		registry:   registry,
		hub:        hub,
		maxContent: maxContent,
		logger:     logger,
		now:        time.Now,
	}
}

// Mute sets MUTED on every session matching the target display name and
// notifies the space. Duration is informational only; no expiry is
// scheduled.
//
// Precondition: sess must be joined to a space.
func (h *AdminHandler) Mute(sess *space.Session, req AdminTargetRequest) {
	targets, ok := h.resolveTargets(sess, req.TargetNickname)
	if !ok {
		return
	}

	for _, target := range targets {
		target.SetRestriction(space.RestrictionMuted)
	}
	h.notifyPerUser(sess, targets, EventMemberMuted, req.Duration)

	h.logger.Info("muted member",
		zap.String("space_id", sess.SpaceID()),
		zap.String("target", req.TargetNickname),
		zap.String("by", sess.UserID),
		zap.Int("connections", len(targets)),
	)
}

// Unmute clears the restriction on every session matching the target
// display name and notifies the space.
//
// Precondition: sess must be joined to a space.
func (h *AdminHandler) Unmute(sess *space.Session, req AdminTargetRequest) {
	targets, ok := h.resolveTargets(sess, req.TargetNickname)
	if !ok {
		return
	}

	for _, target := range targets {
		target.SetRestriction(space.RestrictionNone)
	}
	h.notifyPerUser(sess, targets, EventMemberUnmuted, 0)
}

// Kick notifies the space, then removes every matching session from the
// space and terminates its connection via the supplied disconnect func.
// There is no graceful drain.
//
// Precondition: sess must be joined to a space; disconnect must be non-nil.
func (h *AdminHandler) Kick(sess *space.Session, req AdminTargetRequest, disconnect func(*space.Session)) {
	targets, ok := h.resolveTargets(sess, req.TargetNickname)
	if !ok {
		return
	}

	// Notify while the targets can still receive the broadcast.
	h.notifyPerUser(sess, targets, EventMemberKicked, 0)
	for _, target := range targets {
		disconnect(target)
	}

	h.logger.Info("kicked member",
		zap.String("space_id", sess.SpaceID()),
		zap.String("target", req.TargetNickname),
		zap.String("by", sess.UserID),
		zap.Int("connections", len(targets)),
	)
}

// Announce broadcasts a sanitized announcement message to the whole space.
//
// Precondition: sess must be joined to a space.
func (h *AdminHandler) Announce(sess *space.Session, req AnnounceRequest) {
	if !sess.Role().CanModerate() {
		h.hub.SendError(sess, EventAdminError, CodeForbidden, "insufficient role")
		return
	}

	content := SanitizeContent(req.Content, h.maxContent)
	if content == "" {
		return
	}

	h.hub.BroadcastSpace(sess.SpaceID(), EventSpaceAnnouncement, ChatMessagePayload{
		ID:             uuid.NewString(),
		SenderID:       sess.UserID,
		SenderNickname: h.actorNickname(sess),
		Content:        content,
		Type:           postgres.MessageTypeAnnouncement,
		Timestamp:      h.now().UnixMilli(),
	})
}

// resolveTargets gates on the actor's role and resolves the target display
// name to sessions, reporting FORBIDDEN or TARGET_NOT_FOUND to the actor.
func (h *AdminHandler) resolveTargets(sess *space.Session, targetNickname string) ([]*space.Session, bool) {
	if !sess.Role().CanModerate() {
		h.hub.SendError(sess, EventAdminError, CodeForbidden, "insufficient role")
		return nil, false
	}

	targets := h.registry.FindByName(sess.SpaceID(), targetNickname)
	if len(targets) == 0 {
		h.hub.SendError(sess, EventAdminError, CodeTargetNotFound, "no such user in space")
		return nil, false
	}
	return targets, true
}

// notifyPerUser broadcasts one moderation notification per distinct target
// user. Multiple connections sharing a user id produce a single event.
func (h *AdminHandler) notifyPerUser(sess *space.Session, targets []*space.Session, event string, duration int64) {
	spaceID := sess.SpaceID()
	by := h.actorNickname(sess)

	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		if seen[target.UserID] {
			continue
		}
		seen[target.UserID] = true
		nickname := target.DisplayName
		if p, ok := h.registry.Player(spaceID, target.UserID); ok {
			nickname = p.Nickname
		}
		h.hub.BroadcastSpace(spaceID, event, ModerationPayload{
			UserID:   target.UserID,
			Nickname: nickname,
			By:       by,
			Duration: duration,
		})
	}
}

func (h *AdminHandler) actorNickname(sess *space.Session) string {
	if p, ok := h.registry.Player(sess.SpaceID(), sess.UserID); ok {
		return p.Nickname
	}
	return sess.DisplayName
}
