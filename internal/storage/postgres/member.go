package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/flowspace/internal/space"
)

// ErrMemberNotFound is returned when a membership lookup yields no results.
var ErrMemberNotFound = errors.New("member not found")

// ErrInvalidRole is returned when an unrecognised role string is supplied.
var ErrInvalidRole = errors.New("invalid role")

// ValidRole reports whether role is a recognised privilege level.
func ValidRole(role space.Role) bool {
	switch role {
	case space.RoleOwner, space.RoleStaff, space.RoleParticipant:
		return true
	}
	return false
}

// Member is a persisted space membership record. A missing record means the
// user has never been assigned a role or restriction in the space.
type Member struct {
	SpaceID     string
	UserID      string
	Role        space.Role
	Restriction space.Restriction
	UpdatedAt   time.Time
}

// MemberRepository provides space membership persistence operations.
type MemberRepository struct {
	db *pgxpool.Pool
}

// NewMemberRepository creates a MemberRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMemberRepository(db *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{db: db}
}

// GetMember retrieves the membership record for a user in a space.
//
// Precondition: spaceID and userID must be non-empty.
// Postcondition: Returns the Member or ErrMemberNotFound.
func (r *MemberRepository) GetMember(ctx context.Context, spaceID, userID string) (Member, error) {
	var m Member
	err := r.db.QueryRow(ctx,
		`SELECT space_id, user_id, role, restriction, updated_at
		 FROM space_members WHERE space_id = $1 AND user_id = $2`,
		spaceID, userID,
	).Scan(&m.SpaceID, &m.UserID, &m.Role, &m.Restriction, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, fmt.Errorf("querying member: %w", err)
	}
	return m, nil
}

// SetRole upserts the role for a user in a space, preserving any existing
// restriction.
//
// Precondition: role must be a valid role (use ValidRole to check).
// Postcondition: The membership row exists with the given role, or
// ErrInvalidRole is returned.
func (r *MemberRepository) SetRole(ctx context.Context, spaceID, userID string, role space.Role) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO space_members (space_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (space_id, user_id)
		 DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`,
		spaceID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("upserting member role: %w", err)
	}
	return nil
}

// SetRestriction upserts the restriction for a user in a space, preserving
// any existing role.
//
// Postcondition: The membership row exists with the given restriction.
func (r *MemberRepository) SetRestriction(ctx context.Context, spaceID, userID string, restriction space.Restriction) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO space_members (space_id, user_id, restriction)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (space_id, user_id)
		 DO UPDATE SET restriction = EXCLUDED.restriction, updated_at = NOW()`,
		spaceID, userID, restriction,
	)
	if err != nil {
		return fmt.Errorf("upserting member restriction: %w", err)
	}
	return nil
}

// ListBySpace retrieves all membership records for a space, ordered by user id.
//
// Postcondition: Returns the members, possibly empty.
func (r *MemberRepository) ListBySpace(ctx context.Context, spaceID string) ([]Member, error) {
	rows, err := r.db.Query(ctx,
		`SELECT space_id, user_id, role, restriction, updated_at
		 FROM space_members WHERE space_id = $1 ORDER BY user_id`,
		spaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.SpaceID, &m.UserID, &m.Role, &m.Restriction, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}
	return members, nil
}
