package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

// ChatHandler routes space chat, whispers, party chat, reactions, and
// message deletion. All sends share one per-user rate-limit timestamp so
// switching paths cannot evade the limit.
type ChatHandler struct {
	registry   *space.Registry
	parties    *space.PartyRegistry
	limiter    *space.RateLimiter
	reactions  *space.ReactionBoard
	hub        *Hub
	messages   MessageStore
	maxContent int
	logger     *zap.Logger
	now        func() time.Time
}

// NewChatHandler creates a ChatHandler with the given dependencies.
//
// Precondition: all pointer arguments must be non-nil; maxContent > 0.
func NewChatHandler(
	registry *space.Registry,
	parties *space.PartyRegistry,
	limiter *space.RateLimiter,
	reactions *space.ReactionBoard,
	hub *Hub,
	messages MessageStore,
	maxContent int,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		registry:   registry,
		parties:    parties,
		limiter:    limiter,
		reactions:  reactions,
		hub:        hub,
		messages:   messages,
		maxContent: maxContent,
		logger:     logger,
		now:        time.Now,
	}
}

// Send broadcasts a chat message to the sender's whole space, optimistically
// keyed by the client's tempId, then persists it in the background. The
// durable id is reconciled to the space via chat:messageIdUpdate, or the
// sender is told the send failed.
//
// Precondition: sess must be joined to a space.
func (h *ChatHandler) Send(sess *space.Session, req ChatSendRequest) {
	if sess.Restriction() == space.RestrictionMuted {
		h.hub.SendError(sess, EventChatError, CodeMuted, "you are muted")
		return
	}

	content := SanitizeContent(req.Content, h.maxContent)
	if content == "" {
		return
	}
	if !h.limiter.Allow(sess.UserID) {
		h.logger.Debug("rate limited chat send", zap.String("user_id", sess.UserID))
		return
	}

	spaceID := sess.SpaceID()
	payload := ChatMessagePayload{
		ID:             req.TempID,
		SenderID:       sess.UserID,
		SenderNickname: h.nickname(sess),
		Content:        content,
		Type:           postgres.MessageTypeMessage,
		Timestamp:      h.now().UnixMilli(),
		ReplyTo:        req.ReplyTo,
	}
	h.hub.BroadcastSpace(spaceID, EventChatMessage, payload)

	go h.persist(sess, spaceID, "", req.TempID, postgres.ChatMessage{
		SpaceID:        spaceID,
		SenderID:       sess.UserID,
		SenderNickname: payload.SenderNickname,
		Content:        content,
		Type:           postgres.MessageTypeMessage,
		ReplyToID:      replyID(req.ReplyTo),
	})
}

// Whisper delivers a private message to every connection in the space whose
// display name matches the target. Whispers are never persisted.
//
// Precondition: sess must be joined to a space.
func (h *ChatHandler) Whisper(sess *space.Session, req WhisperSendRequest) {
	if sess.Restriction() == space.RestrictionMuted {
		h.hub.SendError(sess, EventWhisperError, CodeMuted, "you are muted")
		return
	}

	content := SanitizeContent(req.Content, h.maxContent)
	if content == "" {
		return
	}
	if !h.limiter.Allow(sess.UserID) {
		h.logger.Debug("rate limited whisper", zap.String("user_id", sess.UserID))
		return
	}

	spaceID := sess.SpaceID()
	targets := h.registry.FindByName(spaceID, req.TargetNickname)
	if len(targets) == 0 {
		h.hub.SendError(sess, EventWhisperError, CodeTargetNotFound, "no such user in space")
		return
	}

	ts := h.now().UnixMilli()
	receive := WhisperReceivePayload{
		SenderID:       sess.UserID,
		SenderNickname: h.nickname(sess),
		Content:        content,
		Timestamp:      ts,
	}
	for _, target := range targets {
		h.hub.SendTo(target, EventWhisperReceive, receive)
	}
	h.hub.SendTo(sess, EventWhisperSent, WhisperSentPayload{
		TargetNickname: req.TargetNickname,
		Content:        content,
		Timestamp:      ts,
	})
}

// PartyJoin moves the session into a party sub-room, leaving its previous
// party first, and broadcasts the member lists of both affected parties.
//
// Precondition: sess must be joined to a space.
func (h *ChatHandler) PartyJoin(sess *space.Session, req PartyJoinRequest) {
	if req.PartyID == "" {
		return
	}

	spaceID := sess.SpaceID()
	prev := h.parties.Join(sess, spaceID, req.PartyID, req.PartyName)
	if prev != "" && prev != req.PartyID {
		h.hub.BroadcastParty(spaceID, prev, EventPartyUpdated, PartyUpdatedPayload{
			PartyID:   prev,
			MemberIDs: h.parties.MemberIDs(spaceID, prev),
		})
	}
	h.hub.BroadcastParty(spaceID, req.PartyID, EventPartyUpdated, PartyUpdatedPayload{
		PartyID:   req.PartyID,
		MemberIDs: h.parties.MemberIDs(spaceID, req.PartyID),
	})
}

// PartyLeave removes the session from its current party, if any, and
// broadcasts the remaining member list to that party.
func (h *ChatHandler) PartyLeave(sess *space.Session) {
	spaceID := sess.SpaceID()
	partyID, ok := h.parties.LeaveCurrent(sess, spaceID)
	if !ok {
		return
	}
	h.hub.BroadcastParty(spaceID, partyID, EventPartyUpdated, PartyUpdatedPayload{
		PartyID:   partyID,
		MemberIDs: h.parties.MemberIDs(spaceID, partyID),
	})
}

// PartyMessage broadcasts a chat message to the sender's party only. A
// sender with no current party is dropped silently, matching the precondition
// check on the party routing path.
//
// Precondition: sess must be joined to a space.
func (h *ChatHandler) PartyMessage(sess *space.Session, req PartyMessageRequest) {
	partyID := sess.PartyID()
	if partyID == "" {
		h.logger.Debug("party message without party", zap.String("user_id", sess.UserID))
		return
	}
	if sess.Restriction() == space.RestrictionMuted {
		h.hub.SendError(sess, EventPartyError, CodeMuted, "you are muted")
		return
	}

	content := SanitizeContent(req.Content, h.maxContent)
	if content == "" {
		return
	}
	if !h.limiter.Allow(sess.UserID) {
		h.logger.Debug("rate limited party message", zap.String("user_id", sess.UserID))
		return
	}

	spaceID := sess.SpaceID()
	payload := ChatMessagePayload{
		ID:             req.TempID,
		SenderID:       sess.UserID,
		SenderNickname: h.nickname(sess),
		Content:        content,
		Type:           postgres.MessageTypeParty,
		Timestamp:      h.now().UnixMilli(),
		PartyID:        partyID,
		PartyName:      sess.PartyName(),
	}
	h.hub.BroadcastParty(spaceID, partyID, EventPartyMessage, payload)

	go h.persist(sess, spaceID, partyID, req.TempID, postgres.ChatMessage{
		SpaceID:        spaceID,
		SenderID:       sess.UserID,
		SenderNickname: payload.SenderNickname,
		Content:        content,
		Type:           postgres.MessageTypeParty,
		PartyID:        partyID,
	})
}

// ReactionToggle flips the sender's reaction on a message and rebroadcasts
// the message's full reaction list to the space.
//
// Precondition: sess must be joined to a space.
func (h *ChatHandler) ReactionToggle(sess *space.Session, req ReactionToggleRequest) {
	if req.MessageID == "" || req.Type == "" {
		return
	}

	list := h.reactions.Toggle(req.MessageID, space.Reaction{
		Type:         req.Type,
		UserID:       sess.UserID,
		UserNickname: h.nickname(sess),
	})
	h.hub.BroadcastSpace(sess.SpaceID(), EventReactionUpdated, ReactionUpdatedPayload{
		MessageID: req.MessageID,
		Reactions: list,
	})
}

// Delete broadcasts a deletion marker for a message and requests a durable
// soft delete in the background. The store call is fire and forget; a
// failure is logged but never surfaced.
//
// Precondition: sess must be joined to a space.
func (h *ChatHandler) Delete(sess *space.Session, req ChatDeleteRequest) {
	if !sess.Role().CanModerate() {
		h.hub.SendError(sess, EventChatError, CodeForbidden, "insufficient role")
		return
	}
	if req.MessageID == "" {
		return
	}

	spaceID := sess.SpaceID()
	h.hub.BroadcastSpace(spaceID, EventChatMessageDeleted, ChatDeletedPayload{
		MessageID: req.MessageID,
		DeletedBy: h.nickname(sess),
	})
	h.reactions.Drop(req.MessageID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := h.messages.SoftDelete(ctx, spaceID, req.MessageID); err != nil {
			h.logger.Warn("soft deleting message",
				zap.String("space_id", spaceID),
				zap.String("message_id", req.MessageID),
				zap.Error(err),
			)
		}
	}()
}

// persist stores a broadcast message and reconciles the client's tempId to
// the durable id, or reports the failure to the sender. Either outcome is
// delivered only if the sender is still joined to the space when the store
// call returns.
func (h *ChatHandler) persist(sess *space.Session, spaceID, partyID, tempID string, msg postgres.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	id, err := h.messages.Create(ctx, msg)
	if !h.registry.HasSession(spaceID, sess.ConnID) {
		h.logger.Debug("sender left before persistence settled",
			zap.String("conn_id", sess.ConnID),
			zap.String("temp_id", tempID),
		)
		return
	}

	if err != nil {
		h.logger.Warn("persisting chat message",
			zap.String("space_id", spaceID),
			zap.String("temp_id", tempID),
			zap.Error(err),
		)
		h.hub.SendTo(sess, EventChatMessageFailed, ChatFailedPayload{TempID: tempID})
		return
	}

	update := ChatIDUpdatePayload{TempID: tempID, ID: id}
	if partyID != "" {
		h.hub.BroadcastParty(spaceID, partyID, EventChatMessageIDUpdate, update)
	} else {
		h.hub.BroadcastSpace(spaceID, EventChatMessageIDUpdate, update)
	}
}

// nickname resolves the sender's space nickname, falling back to the
// authenticated display name when no presence entry exists.
func (h *ChatHandler) nickname(sess *space.Session) string {
	if p, ok := h.registry.Player(sess.SpaceID(), sess.UserID); ok {
		return p.Nickname
	}
	return sess.DisplayName
}

func replyID(r *ReplyRef) string {
	if r == nil {
		return ""
	}
	return r.ID
}
