package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
	"github.com/cory-johannsen/flowspace/internal/testutil"
)

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestMemberRepository_SetRoleAndGet(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMemberRepository(pool)
	ctx := context.Background()

	spaceID, userID := uniqueID("space"), uniqueID("user")
	require.NoError(t, repo.SetRole(ctx, spaceID, userID, space.RoleStaff))

	m, err := repo.GetMember(ctx, spaceID, userID)
	require.NoError(t, err)
	assert.Equal(t, spaceID, m.SpaceID)
	assert.Equal(t, userID, m.UserID)
	assert.Equal(t, space.RoleStaff, m.Role)
	assert.Equal(t, space.RestrictionNone, m.Restriction)
	assert.False(t, m.UpdatedAt.IsZero())
}

func TestMemberRepository_GetMember_NotFound(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMemberRepository(pool)

	_, err := repo.GetMember(context.Background(), uniqueID("space"), uniqueID("user"))
	assert.ErrorIs(t, err, postgres.ErrMemberNotFound)
}

func TestMemberRepository_SetRole_Invalid(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMemberRepository(pool)

	err := repo.SetRole(context.Background(), uniqueID("space"), uniqueID("user"), space.Role("SUPERUSER"))
	assert.ErrorIs(t, err, postgres.ErrInvalidRole)
}

func TestMemberRepository_SetRestriction_PreservesRole(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMemberRepository(pool)
	ctx := context.Background()

	spaceID, userID := uniqueID("space"), uniqueID("user")
	require.NoError(t, repo.SetRole(ctx, spaceID, userID, space.RoleOwner))
	require.NoError(t, repo.SetRestriction(ctx, spaceID, userID, space.RestrictionMuted))

	m, err := repo.GetMember(ctx, spaceID, userID)
	require.NoError(t, err)
	assert.Equal(t, space.RoleOwner, m.Role)
	assert.Equal(t, space.RestrictionMuted, m.Restriction)

	require.NoError(t, repo.SetRestriction(ctx, spaceID, userID, space.RestrictionNone))
	m, err = repo.GetMember(ctx, spaceID, userID)
	require.NoError(t, err)
	assert.Equal(t, space.RoleOwner, m.Role)
	assert.Equal(t, space.RestrictionNone, m.Restriction)
}

func TestMemberRepository_SetRestriction_NewRowDefaultsToParticipant(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMemberRepository(pool)
	ctx := context.Background()

	spaceID, userID := uniqueID("space"), uniqueID("user")
	require.NoError(t, repo.SetRestriction(ctx, spaceID, userID, space.RestrictionMuted))

	m, err := repo.GetMember(ctx, spaceID, userID)
	require.NoError(t, err)
	assert.Equal(t, space.RoleParticipant, m.Role)
	assert.Equal(t, space.RestrictionMuted, m.Restriction)
}

func TestMemberRepository_ListBySpace(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMemberRepository(pool)
	ctx := context.Background()

	spaceID := uniqueID("space")
	require.NoError(t, repo.SetRole(ctx, spaceID, "user-b", space.RoleParticipant))
	require.NoError(t, repo.SetRole(ctx, spaceID, "user-a", space.RoleStaff))

	members, err := repo.ListBySpace(ctx, spaceID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "user-a", members[0].UserID)
	assert.Equal(t, "user-b", members[1].UserID)

	members, err = repo.ListBySpace(ctx, uniqueID("empty"))
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestValidRole(t *testing.T) {
	assert.True(t, postgres.ValidRole(space.RoleOwner))
	assert.True(t, postgres.ValidRole(space.RoleStaff))
	assert.True(t, postgres.ValidRole(space.RoleParticipant))
	assert.False(t, postgres.ValidRole(""))
	assert.False(t, postgres.ValidRole("admin"))
}
