package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message type constants for persisted chat messages. Whispers are never
// persisted and have no type here.
const (
	MessageTypeMessage      = "message"
	MessageTypeParty        = "party"
	MessageTypeSystem       = "system"
	MessageTypeAnnouncement = "announcement"
)

// ValidMessageType reports whether t is a recognised message type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeMessage, MessageTypeParty, MessageTypeSystem, MessageTypeAnnouncement:
		return true
	}
	return false
}

// ErrMessageNotFound is returned when a message lookup yields no results.
var ErrMessageNotFound = errors.New("message not found")

// ErrInvalidMessageType is returned when an unrecognised message type is supplied.
var ErrInvalidMessageType = errors.New("invalid message type")

// ChatMessage represents a persisted chat message in a space.
type ChatMessage struct {
	ID             string
	SpaceID        string
	SenderID       string
	SenderNickname string
	Content        string
	Type           string
	PartyID        string
	ReplyToID      string
	Deleted        bool
	CreatedAt      time.Time
}

// MessageRepository provides chat message persistence operations.
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a MessageRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a chat message and returns its assigned id.
//
// Precondition: msg.SpaceID, msg.SenderID and msg.Content must be non-empty;
// msg.Type must be valid (use ValidMessageType to check).
// Postcondition: Returns the stored message id, or ErrInvalidMessageType.
func (r *MessageRepository) Create(ctx context.Context, msg ChatMessage) (string, error) {
	if !ValidMessageType(msg.Type) {
		return "", ErrInvalidMessageType
	}

	id := uuid.NewString()
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_messages
		   (id, space_id, sender_id, sender_nickname, content, type, party_id, reply_to_id)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))`,
		id, msg.SpaceID, msg.SenderID, msg.SenderNickname, msg.Content, msg.Type,
		msg.PartyID, msg.ReplyToID,
	)
	if err != nil {
		return "", fmt.Errorf("inserting chat message: %w", err)
	}
	return id, nil
}

// Get retrieves a message by id within a space.
//
// Postcondition: Returns the ChatMessage or ErrMessageNotFound.
func (r *MessageRepository) Get(ctx context.Context, spaceID, messageID string) (ChatMessage, error) {
	var m ChatMessage
	var partyID, replyToID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, space_id, sender_id, sender_nickname, content, type,
		        party_id, reply_to_id, deleted, created_at
		 FROM chat_messages WHERE space_id = $1 AND id = $2`,
		spaceID, messageID,
	).Scan(&m.ID, &m.SpaceID, &m.SenderID, &m.SenderNickname, &m.Content, &m.Type,
		&partyID, &replyToID, &m.Deleted, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatMessage{}, ErrMessageNotFound
		}
		return ChatMessage{}, fmt.Errorf("querying chat message: %w", err)
	}
	if partyID != nil {
		m.PartyID = *partyID
	}
	if replyToID != nil {
		m.ReplyToID = *replyToID
	}
	return m, nil
}

// SoftDelete marks a message as deleted without removing the row.
//
// Postcondition: The message is flagged deleted, or ErrMessageNotFound is
// returned if no such message exists in the space.
func (r *MessageRepository) SoftDelete(ctx context.Context, spaceID, messageID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE chat_messages SET deleted = TRUE
		 WHERE space_id = $1 AND id = $2 AND deleted = FALSE`,
		spaceID, messageID,
	)
	if err != nil {
		return fmt.Errorf("deleting chat message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListRecent retrieves the most recent non-deleted space-wide messages in
// chronological order.
//
// Precondition: limit must be positive.
// Postcondition: Returns at most limit messages, oldest first.
func (r *MessageRepository) ListRecent(ctx context.Context, spaceID string, limit int) ([]ChatMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, space_id, sender_id, sender_nickname, content, type,
		        party_id, reply_to_id, deleted, created_at
		 FROM (
		   SELECT * FROM chat_messages
		   WHERE space_id = $1 AND deleted = FALSE AND party_id IS NULL
		   ORDER BY created_at DESC
		   LIMIT $2
		 ) recent
		 ORDER BY created_at ASC`,
		spaceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chat messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var partyID, replyToID *string
		if err := rows.Scan(&m.ID, &m.SpaceID, &m.SenderID, &m.SenderNickname, &m.Content,
			&m.Type, &partyID, &replyToID, &m.Deleted, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		if partyID != nil {
			m.PartyID = *partyID
		}
		if replyToID != nil {
			m.ReplyToID = *replyToID
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat messages: %w", err)
	}
	return messages, nil
}
