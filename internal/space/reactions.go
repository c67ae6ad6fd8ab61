package space

import "sync"

// Reaction is one user's reaction to a message.
type Reaction struct {
	Type         string `json:"type"`
	UserID       string `json:"userId"`
	UserNickname string `json:"userNickname"`
}

// ReactionBoard holds ephemeral per-message reaction lists. Reactions are
// never persisted; the board is the only source of truth while the process
// lives.
type ReactionBoard struct {
	mu        sync.Mutex
	byMessage map[string][]Reaction
}

// NewReactionBoard creates an empty ReactionBoard.
func NewReactionBoard() *ReactionBoard {
	return &ReactionBoard{
		byMessage: make(map[string][]Reaction),
	}
}

// Toggle adds the reaction if the (userId, type) pair is absent, removes it
// if present, and returns a copy of the resulting list.
//
// Postcondition: Toggle is its own inverse for a fixed (messageID, userID, type).
func (b *ReactionBoard) Toggle(messageID string, r Reaction) []Reaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.byMessage[messageID]
	for i, existing := range list {
		if existing.UserID == r.UserID && existing.Type == r.Type {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(b.byMessage, messageID)
			} else {
				b.byMessage[messageID] = list
			}
			return copyReactions(list)
		}
	}

	list = append(list, r)
	b.byMessage[messageID] = list
	return copyReactions(list)
}

// Reactions returns a copy of the message's reaction list.
func (b *ReactionBoard) Reactions(messageID string) []Reaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyReactions(b.byMessage[messageID])
}

// Drop discards all reactions for the message, typically after deletion.
func (b *ReactionBoard) Drop(messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byMessage, messageID)
}

func copyReactions(list []Reaction) []Reaction {
	out := make([]Reaction, len(list))
	copy(out, list)
	return out
}
