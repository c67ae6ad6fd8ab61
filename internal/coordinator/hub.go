package coordinator

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/space"
)

// Hub fans events out to session outboxes scoped to a space, a party, or a
// single connection. Frames are encoded once per broadcast. A session whose
// outbox cannot accept the frame is disconnected by closing the outbox; the
// write pump notices and tears the connection down.
type Hub struct {
	registry *space.Registry
	parties  *space.PartyRegistry
	logger   *zap.Logger
}

// NewHub creates a Hub over the given registries.
//
// Precondition: registry, parties, and logger must be non-nil.
func NewHub(registry *space.Registry, parties *space.PartyRegistry, logger *zap.Logger) *Hub {
	return &Hub{
		registry: registry,
		parties:  parties,
		logger:   logger,
	}
}

// BroadcastSpace sends the event to every session joined to the space.
func (h *Hub) BroadcastSpace(spaceID, event string, data any) {
	h.fanOut(h.registry.Sessions(spaceID), event, data)
}

// BroadcastSpaceExcept sends the event to every session joined to the space
// except the given connection.
func (h *Hub) BroadcastSpaceExcept(spaceID, exceptConnID, event string, data any) {
	h.fanOut(h.registry.SessionsExcept(spaceID, exceptConnID), event, data)
}

// BroadcastParty sends the event to every session in the party.
func (h *Hub) BroadcastParty(spaceID, partyID, event string, data any) {
	h.fanOut(h.parties.Sessions(spaceID, partyID), event, data)
}

// SendTo sends the event to a single session.
func (h *Hub) SendTo(sess *space.Session, event string, data any) {
	h.fanOut([]*space.Session{sess}, event, data)
}

// SendError sends a scoped error event to the acting session only.
func (h *Hub) SendError(sess *space.Session, errEvent, code, message string) {
	h.SendTo(sess, errEvent, ErrorPayload{Code: code, Message: message})
}

func (h *Hub) fanOut(sessions []*space.Session, event string, data any) {
	if len(sessions) == 0 {
		return
	}

	frame, err := EncodeFrame(event, data)
	if err != nil {
		h.logger.Error("encoding broadcast frame",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	for _, sess := range sessions {
		if err := sess.Out().Push(frame); err != nil {
			h.logger.Warn("dropping slow connection",
				zap.String("conn_id", sess.ConnID),
				zap.String("event", event),
				zap.Error(err),
			)
			_ = sess.Out().Close()
		}
	}
}
