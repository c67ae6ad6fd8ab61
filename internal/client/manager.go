package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/coordinator"
	"github.com/cory-johannsen/flowspace/internal/space"
)

// moveThrottle is the minimum interval between outbound movement frames.
// The relay trusts senders to throttle, so the manager enforces it here.
const moveThrottle = 100 * time.Millisecond

// ErrNotConnected is returned when an operation needs a live connection.
var ErrNotConnected = errors.New("not connected")

// Conn is the transport the manager reads frames from and writes frames to.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc establishes a connection to the coordinator.
type DialFunc func(ctx context.Context) (Conn, error)

// FrameHook observes every inbound frame after the manager has applied it.
type FrameHook func(frame coordinator.Frame)

// Manager is the consuming side of the coordinator protocol. It keeps a
// local membership view in sync, reconnects with bounded backoff, re-joins
// the last space after every reconnect, and reconciles optimistic chat
// echoes by their tempId.
type Manager struct {
	selfID  string
	dial    DialFunc
	backoff *Backoff
	roster  *Roster
	pending *PendingTable
	logger  *zap.Logger

	mu       sync.Mutex
	conn     Conn
	lastJoin *coordinator.JoinSpaceRequest
	lastMove time.Time
	onFrame  FrameHook

	newTempID func() string
	now       func() time.Time
}

// NewManager creates a Manager for the given identity and transport.
//
// Precondition: dial, backoff, and logger must be non-nil.
func NewManager(selfID string, dial DialFunc, backoff *Backoff, logger *zap.Logger) *Manager {
	return &Manager{
		selfID:    selfID,
		dial:      dial,
		backoff:   backoff,
		roster:    NewRoster(),
		pending:   NewPendingTable(),
		logger:    logger,
		newTempID: uuid.NewString,
		now:       time.Now,
	}
}

// SelfID returns the identity the manager connects as.
func (m *Manager) SelfID() string {
	return m.selfID
}

// Roster returns the manager's membership view.
func (m *Manager) Roster() *Roster {
	return m.roster
}

// Pending returns the manager's optimistic message table.
func (m *Manager) Pending() *PendingTable {
	return m.pending
}

// SetFrameHook installs a hook observing every applied inbound frame.
// Must be called before Run.
func (m *Manager) SetFrameHook(hook FrameHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = hook
}

// Run connects and serves the session until the context is canceled or the
// reconnection policy is exhausted.
//
// Postcondition: Returns nil on context cancellation, or an error wrapping
// ErrRetriesExhausted once the attempt ceiling is hit. The manager never
// retries past that ceiling on its own.
func (m *Manager) Run(ctx context.Context) error {
	for {
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay, berr := m.backoff.Next()
			if berr != nil {
				return fmt.Errorf("connecting to coordinator: %w", berr)
			}
			m.logger.Warn("connection failed, retrying",
				zap.Duration("delay", delay),
				zap.Int("attempt", m.backoff.Attempts()),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		m.backoff.Reset()
		m.onConnected(conn)

		// Reads only unblock when the connection closes, so close it on
		// cancellation.
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-stop:
			}
		}()

		err = m.readLoop(ctx, conn)
		close(stop)
		m.onDisconnected(conn)
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Warn("connection lost", zap.Error(err))
	}
}

// Join enters a space, remembering the request so it is re-issued after
// every reconnect.
func (m *Manager) Join(spaceID, nickname, avatar string) error {
	req := coordinator.JoinSpaceRequest{SpaceID: spaceID, Nickname: nickname, Avatar: avatar}

	m.mu.Lock()
	m.lastJoin = &req
	m.mu.Unlock()

	m.roster.Clear()
	return m.send(coordinator.EventJoinSpace, req)
}

// SendChat sends a space-wide chat message, registering it in the pending
// table first so the caller can render the optimistic echo immediately.
//
// Postcondition: Returns the tempId keying the echo, even when the send
// fails; a failed send leaves the entry pending for the next resync.
func (m *Manager) SendChat(content string) (string, error) {
	tempID := m.newTempID()
	m.pending.Add(tempID, content)
	err := m.send(coordinator.EventChatSend, coordinator.ChatSendRequest{
		TempID:  tempID,
		Content: content,
	})
	return tempID, err
}

// Move sends a movement update, dropping it when inside the throttle window.
func (m *Manager) Move(x, y float64, direction string) error {
	m.mu.Lock()
	if m.now().Sub(m.lastMove) < moveThrottle {
		m.mu.Unlock()
		return nil
	}
	m.lastMove = m.now()
	m.mu.Unlock()

	return m.send(coordinator.EventMove, coordinator.MoveRequest{X: x, Y: y, Direction: direction})
}

// Send writes an arbitrary event frame, for operations without dedicated
// local bookkeeping.
func (m *Manager) Send(event string, data any) error {
	return m.send(event, data)
}

func (m *Manager) send(event string, data any) error {
	raw, err := coordinator.EncodeFrame(event, data)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// onConnected installs the connection, invalidates in-flight optimistic
// state, and re-joins the last space.
func (m *Manager) onConnected(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	lastJoin := m.lastJoin
	m.mu.Unlock()

	if n := m.pending.SupersedeAll(); n > 0 {
		m.logger.Info("superseded in-flight messages on reconnect", zap.Int("count", n))
	}

	if lastJoin != nil {
		m.roster.Clear()
		if err := m.send(coordinator.EventJoinSpace, *lastJoin); err != nil {
			m.logger.Warn("re-joining space", zap.String("space_id", lastJoin.SpaceID), zap.Error(err))
		}
	}
}

func (m *Manager) onDisconnected(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	conn.Close()
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.handleFrame(raw)
	}
}

// handleFrame applies one inbound frame to the local view, then passes it
// to the hook. Unknown events are forwarded untouched.
func (m *Manager) handleFrame(raw []byte) {
	var frame coordinator.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		m.logger.Debug("dropping malformed frame", zap.Error(err))
		return
	}

	switch frame.Event {
	case coordinator.EventPlayersList:
		var roster []space.PlayerState
		if m.decode(frame, &roster) {
			m.roster.ApplySnapshot(roster)
		}
	case coordinator.EventPlayerJoined:
		var p space.PlayerState
		if m.decode(frame, &p) {
			m.roster.ApplyJoin(p)
		}
	case coordinator.EventPlayerLeft:
		var left coordinator.PlayerLeftPayload
		if m.decode(frame, &left) {
			m.roster.ApplyLeave(left.UserID)
		}
	case coordinator.EventPlayerMoved:
		var moved coordinator.PlayerMovedPayload
		if m.decode(frame, &moved) {
			m.roster.ApplyMove(moved.UserID, moved.X, moved.Y, moved.Direction)
		}
	case coordinator.EventPlayerAvatarUpdated:
		var updated coordinator.AvatarUpdatedPayload
		if m.decode(frame, &updated) {
			m.roster.ApplyAvatar(updated.UserID, updated.Avatar)
		}
	case coordinator.EventChatMessageIDUpdate:
		var update coordinator.ChatIDUpdatePayload
		if m.decode(frame, &update) {
			m.pending.Confirm(update.TempID, update.ID)
		}
	case coordinator.EventChatMessageFailed:
		var failed coordinator.ChatFailedPayload
		if m.decode(frame, &failed) {
			m.pending.Fail(failed.TempID)
		}
	}

	m.mu.Lock()
	hook := m.onFrame
	m.mu.Unlock()
	if hook != nil {
		hook(frame)
	}
}

func (m *Manager) decode(frame coordinator.Frame, out any) bool {
	if err := json.Unmarshal(frame.Data, out); err != nil {
		m.logger.Debug("dropping undecodable payload",
			zap.String("event", frame.Event),
			zap.Error(err),
		)
		return false
	}
	return true
}
