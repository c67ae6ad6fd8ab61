// Package coordinator implements the realtime space coordination protocol:
// the websocket server, the event frame codec, and the handlers that route
// presence, chat, moderation, media, and editor traffic between sessions.
package coordinator

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/flowspace/internal/space"
)

// Client → coordinator event names.
const (
	EventJoinSpace  = "join:space"
	EventLeaveSpace = "leave:space"

	EventMove         = "move"
	EventAvatarUpdate = "avatar:update"

	EventChatSend       = "chat:send"
	EventWhisperSend    = "whisper:send"
	EventPartyJoin      = "party:join"
	EventPartyLeave     = "party:leave"
	EventPartyMessage   = "party:message"
	EventReactionToggle = "reaction:toggle"
	EventChatDelete     = "chat:delete"

	EventAdminMute     = "admin:mute"
	EventAdminUnmute   = "admin:unmute"
	EventAdminKick     = "admin:kick"
	EventAdminAnnounce = "admin:announce"

	EventEditorTileUpdate   = "editor:tile-update"
	EventEditorObjectPlace  = "editor:object-place"
	EventEditorObjectMove   = "editor:object-move"
	EventEditorObjectDelete = "editor:object-delete"

	EventRecordingStart      = "recording:start"
	EventRecordingStop       = "recording:stop"
	EventSpotlightActivate   = "spotlight:activate"
	EventSpotlightDeactivate = "spotlight:deactivate"
	EventProximitySet        = "proximity:set"
)

// Coordinator → client event names.
const (
	EventPlayersList         = "players:list"
	EventPlayerJoined        = "player:joined"
	EventPlayerLeft          = "player:left"
	EventPlayerMoved         = "player:moved"
	EventPlayerAvatarUpdated = "player:avatar-updated"

	EventChatMessage         = "chat:message"
	EventChatMessageIDUpdate = "chat:messageIdUpdate"
	EventChatMessageFailed   = "chat:messageFailed"
	EventChatMessageDeleted  = "chat:messageDeleted"
	EventWhisperReceive      = "whisper:receive"
	EventWhisperSent         = "whisper:sent"
	EventPartyUpdated        = "party:updated"
	EventReactionUpdated     = "reaction:updated"

	EventMemberMuted       = "member:muted"
	EventMemberUnmuted     = "member:unmuted"
	EventMemberKicked      = "member:kicked"
	EventSpaceAnnouncement = "space:announcement"

	EventEditorTileUpdated   = "editor:tile-updated"
	EventEditorObjectPlaced  = "editor:object-placed"
	EventEditorObjectMoved   = "editor:object-moved"
	EventEditorObjectDeleted = "editor:object-deleted"

	EventRecordingStarted     = "recording:started"
	EventRecordingStopped     = "recording:stopped"
	EventSpotlightActivated   = "spotlight:activated"
	EventSpotlightDeactivated = "spotlight:deactivated"
	EventProximityChanged     = "proximity:changed"

	EventChatError    = "chat:error"
	EventWhisperError = "whisper:error"
	EventPartyError   = "party:error"
	EventAdminError   = "admin:error"
	EventMediaError   = "media:error"
)

// Error codes carried by the scoped error events.
const (
	CodeAuthFailure      = "AUTH_FAILURE"
	CodeNotInSpace       = "NOT_IN_SPACE"
	CodeForbidden        = "FORBIDDEN"
	CodeMuted            = "MUTED"
	CodeAlreadyRecording = "ALREADY_RECORDING"
	CodeNotRecording     = "NOT_RECORDING"
	CodeNoGrant          = "NO_GRANT"
	CodeTargetNotFound   = "TARGET_NOT_FOUND"
)

// Frame is one wire message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals an event and its payload into a wire frame.
//
// Postcondition: Returns the serialized frame or a non-nil error.
func EncodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", event, err)
	}
	buf, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s frame: %w", event, err)
	}
	return buf, nil
}

// JoinSpaceRequest asks to join a space. Template selects the spawn point
// when the space was created from a known template.
type JoinSpaceRequest struct {
	SpaceID  string `json:"spaceId"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Template string `json:"template,omitempty"`
}

// MoveRequest reports the sender's new position.
type MoveRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
}

// AvatarUpdateRequest changes the sender's avatar descriptor.
type AvatarUpdateRequest struct {
	Avatar string `json:"avatar"`
}

// ReplyRef references the message a chat message replies to.
type ReplyRef struct {
	ID             string `json:"id"`
	SenderNickname string `json:"senderNickname"`
	Content        string `json:"content"`
}

// ChatSendRequest sends a space-wide chat message. TempID is the client's
// correlation id for optimistic echo reconciliation.
type ChatSendRequest struct {
	TempID  string    `json:"tempId"`
	Content string    `json:"content"`
	ReplyTo *ReplyRef `json:"replyTo,omitempty"`
}

// WhisperSendRequest sends a private message to every connection in the
// space whose display name matches TargetNickname.
type WhisperSendRequest struct {
	TargetNickname string `json:"targetNickname"`
	Content        string `json:"content"`
}

// PartyJoinRequest joins a party sub-room in the sender's current space.
type PartyJoinRequest struct {
	PartyID   string `json:"partyId"`
	PartyName string `json:"partyName"`
}

// PartyMessageRequest sends a chat message scoped to the sender's party.
type PartyMessageRequest struct {
	TempID  string `json:"tempId"`
	Content string `json:"content"`
}

// ReactionToggleRequest toggles the sender's reaction on a message.
type ReactionToggleRequest struct {
	MessageID string `json:"messageId"`
	Type      string `json:"type"`
}

// ChatDeleteRequest soft-deletes a message. OWNER/STAFF only.
type ChatDeleteRequest struct {
	MessageID string `json:"messageId"`
}

// AdminTargetRequest names the target of a moderation command by display
// name. Duration is informational for mutes; no expiry is scheduled.
type AdminTargetRequest struct {
	TargetNickname string `json:"targetNickname"`
	Duration       int64  `json:"duration,omitempty"`
}

// AnnounceRequest broadcasts an announcement to the sender's space.
type AnnounceRequest struct {
	Content string `json:"content"`
}

// ProximitySetRequest toggles the space's proximity audio mode.
type ProximitySetRequest struct {
	Enabled bool `json:"enabled"`
}

// PlayerLeftPayload notifies that a member left the space.
type PlayerLeftPayload struct {
	UserID string `json:"userId"`
}

// PlayerMovedPayload relays a member's movement to the rest of the space.
type PlayerMovedPayload struct {
	UserID    string  `json:"userId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
}

// AvatarUpdatedPayload notifies that a member changed avatars.
type AvatarUpdatedPayload struct {
	UserID string `json:"userId"`
	Avatar string `json:"avatar"`
}

// ChatMessagePayload is a chat message as delivered to clients. ID starts as
// the sender's tempId and is rewritten by a chat:messageIdUpdate once the
// store assigns a durable id.
type ChatMessagePayload struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"senderId"`
	SenderNickname string    `json:"senderNickname"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Timestamp      int64     `json:"timestamp"`
	ReplyTo        *ReplyRef `json:"replyTo,omitempty"`
	PartyID        string    `json:"partyId,omitempty"`
	PartyName      string    `json:"partyName,omitempty"`
}

// ChatIDUpdatePayload reconciles an optimistic tempId with the durable id.
type ChatIDUpdatePayload struct {
	TempID string `json:"tempId"`
	ID     string `json:"id"`
}

// ChatFailedPayload tells the sender its optimistic message was not stored.
type ChatFailedPayload struct {
	TempID string `json:"tempId"`
}

// ChatDeletedPayload marks a message as deleted for all members.
type ChatDeletedPayload struct {
	MessageID string `json:"messageId"`
	DeletedBy string `json:"deletedBy"`
}

// WhisperReceivePayload delivers a whisper to the matched target connections.
type WhisperReceivePayload struct {
	SenderID       string `json:"senderId"`
	SenderNickname string `json:"senderNickname"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

// WhisperSentPayload confirms a whisper back to its sender.
type WhisperSentPayload struct {
	TargetNickname string `json:"targetNickname"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

// PartyUpdatedPayload carries a party's full member-id list after a change.
type PartyUpdatedPayload struct {
	PartyID   string   `json:"partyId"`
	MemberIDs []string `json:"memberIds"`
}

// ReactionUpdatedPayload carries a message's full reaction list after a toggle.
type ReactionUpdatedPayload struct {
	MessageID string           `json:"messageId"`
	Reactions []space.Reaction `json:"reactions"`
}

// ModerationPayload notifies the space of a mute, unmute, or kick.
type ModerationPayload struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	By       string `json:"by"`
	Duration int64  `json:"duration,omitempty"`
}

// SpotlightDeactivatedPayload notifies that a spotlight ended.
type SpotlightDeactivatedPayload struct {
	ParticipantID string `json:"participantId"`
}

// ProximityChangedPayload notifies the space of a proximity mode change.
type ProximityChangedPayload struct {
	Enabled   bool   `json:"enabled"`
	ChangedBy string `json:"changedBy"`
}

// ErrorPayload is the body of every scoped error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
