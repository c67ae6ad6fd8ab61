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

// ErrGrantNotFound is returned when no valid spotlight grant exists.
var ErrGrantNotFound = errors.New("spotlight grant not found")

// ErrGrantExists is returned when a user already holds a grant in the
// space.
var ErrGrantExists = errors.New("spotlight grant already exists")

// SpotlightGrant is a staff-issued permission allowing a participant to
// activate spotlight mode in a space. The grant row is the durable
// authorization; Active tracks whether the spotlight is currently live,
// and flips with each activation and deactivation.
type SpotlightGrant struct {
	ID        string
	SpaceID   string
	UserID    string
	GrantedBy string
	Active    bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// GrantRepository provides spotlight grant persistence operations.
type GrantRepository struct {
	db *pgxpool.Pool
}

// NewGrantRepository creates a GrantRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGrantRepository(db *pgxpool.Pool) *GrantRepository {
	return &GrantRepository{db: db}
}

// FindValid retrieves the unexpired spotlight grant for a user in a space.
// The live Active flag is not consulted; a deactivated spotlight leaves the
// grant usable again.
//
// Postcondition: Returns the SpotlightGrant or ErrGrantNotFound.
func (r *GrantRepository) FindValid(ctx context.Context, spaceID, userID string) (SpotlightGrant, error) {
	var g SpotlightGrant
	err := r.db.QueryRow(ctx,
		`SELECT id, space_id, user_id, granted_by, active, expires_at, created_at
		 FROM spotlight_grants
		 WHERE space_id = $1 AND user_id = $2
		   AND (expires_at IS NULL OR expires_at > NOW())`,
		spaceID, userID,
	).Scan(&g.ID, &g.SpaceID, &g.UserID, &g.GrantedBy, &g.Active, &g.ExpiresAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SpotlightGrant{}, ErrGrantNotFound
		}
		return SpotlightGrant{}, fmt.Errorf("querying spotlight grant: %w", err)
	}
	return g, nil
}

// Create issues a spotlight grant for a user in a space. A nil expiresAt
// makes the grant open-ended. The grant starts inactive; activation flips
// the flag via SetActive.
//
// Precondition: spaceID, userID and grantedBy must be non-empty.
// Postcondition: Returns the created grant, or ErrGrantExists if the user
// already holds a grant in the space.
func (r *GrantRepository) Create(ctx context.Context, spaceID, userID, grantedBy string, expiresAt *time.Time) (SpotlightGrant, error) {
	g := SpotlightGrant{
		ID:        uuid.NewString(),
		SpaceID:   spaceID,
		UserID:    userID,
		GrantedBy: grantedBy,
		ExpiresAt: expiresAt,
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO spotlight_grants (id, space_id, user_id, granted_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		g.ID, g.SpaceID, g.UserID, g.GrantedBy, g.ExpiresAt,
	).Scan(&g.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return SpotlightGrant{}, ErrGrantExists
		}
		return SpotlightGrant{}, fmt.Errorf("inserting spotlight grant: %w", err)
	}
	return g, nil
}

// SetActive records whether the grant's spotlight is currently live. The
// grant row itself is untouched, so a deactivated grant can activate again.
//
// Postcondition: The flag is updated, or ErrGrantNotFound is returned if
// no grant with the given id exists.
func (r *GrantRepository) SetActive(ctx context.Context, grantID string, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE spotlight_grants SET active = $2 WHERE id = $1`,
		grantID, active,
	)
	if err != nil {
		return fmt.Errorf("updating spotlight grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}
