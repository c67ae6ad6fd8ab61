package coordinator

import (
	"context"

	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

// MessageStore persists chat messages. Calls run asynchronously relative to
// the optimistic broadcast; callers must re-validate session membership
// before acting on the result.
type MessageStore interface {
	Create(ctx context.Context, msg postgres.ChatMessage) (string, error)
	SoftDelete(ctx context.Context, spaceID, messageID string) error
}

// MemberStore resolves a user's durable role and restriction for a space.
// A postgres.ErrMemberNotFound result means the user has no record and
// receives the defaults.
type MemberStore interface {
	GetMember(ctx context.Context, spaceID, userID string) (postgres.Member, error)
}

// GrantStore answers spotlight grant queries. FindValid returning
// postgres.ErrGrantNotFound means the user holds no unexpired grant.
// SetActive records whether the grant's spotlight is currently live
// without touching the grant itself.
type GrantStore interface {
	FindValid(ctx context.Context, spaceID, userID string) (postgres.SpotlightGrant, error)
	SetActive(ctx context.Context, grantID string, active bool) error
}
