package postgres_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
	"github.com/cory-johannsen/flowspace/internal/testutil"
)

func TestMessageRepository_CreateAndGet(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMessageRepository(pool)
	ctx := context.Background()

	spaceID := uniqueID("space")
	id, err := repo.Create(ctx, postgres.ChatMessage{
		SpaceID:        spaceID,
		SenderID:       "user-1",
		SenderNickname: "Ada",
		Content:        "hello everyone",
		Type:           postgres.MessageTypeMessage,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	m, err := repo.Get(ctx, spaceID, id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", m.SenderID)
	assert.Equal(t, "Ada", m.SenderNickname)
	assert.Equal(t, "hello everyone", m.Content)
	assert.Equal(t, postgres.MessageTypeMessage, m.Type)
	assert.Empty(t, m.PartyID)
	assert.Empty(t, m.ReplyToID)
	assert.False(t, m.Deleted)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestMessageRepository_Create_InvalidType(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMessageRepository(pool)

	_, err := repo.Create(context.Background(), postgres.ChatMessage{
		SpaceID:  uniqueID("space"),
		SenderID: "user-1",
		Content:  "hi",
		Type:     "shout",
	})
	assert.ErrorIs(t, err, postgres.ErrInvalidMessageType)
}

func TestMessageRepository_Create_WithPartyAndReply(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMessageRepository(pool)
	ctx := context.Background()

	spaceID := uniqueID("space")
	first, err := repo.Create(ctx, postgres.ChatMessage{
		SpaceID:        spaceID,
		SenderID:       "user-1",
		SenderNickname: "Ada",
		Content:        "party here",
		Type:           postgres.MessageTypeParty,
		PartyID:        "raid-group",
	})
	require.NoError(t, err)

	second, err := repo.Create(ctx, postgres.ChatMessage{
		SpaceID:        spaceID,
		SenderID:       "user-2",
		SenderNickname: "Bo",
		Content:        "on my way",
		Type:           postgres.MessageTypeParty,
		PartyID:        "raid-group",
		ReplyToID:      first,
	})
	require.NoError(t, err)

	m, err := repo.Get(ctx, spaceID, second)
	require.NoError(t, err)
	assert.Equal(t, "raid-group", m.PartyID)
	assert.Equal(t, first, m.ReplyToID)
}

func TestMessageRepository_SoftDelete(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMessageRepository(pool)
	ctx := context.Background()

	spaceID := uniqueID("space")
	id, err := repo.Create(ctx, postgres.ChatMessage{
		SpaceID:        spaceID,
		SenderID:       "user-1",
		SenderNickname: "Ada",
		Content:        "delete me",
		Type:           postgres.MessageTypeMessage,
	})
	require.NoError(t, err)

	require.NoError(t, repo.SoftDelete(ctx, spaceID, id))

	m, err := repo.Get(ctx, spaceID, id)
	require.NoError(t, err)
	assert.True(t, m.Deleted)

	// second delete is a no-op on an already deleted row
	assert.ErrorIs(t, repo.SoftDelete(ctx, spaceID, id), postgres.ErrMessageNotFound)
}

func TestMessageRepository_SoftDelete_NotFound(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMessageRepository(pool)

	err := repo.SoftDelete(context.Background(), uniqueID("space"), uuid.NewString())
	assert.ErrorIs(t, err, postgres.ErrMessageNotFound)
}

func TestMessageRepository_ListRecent(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewMessageRepository(pool)
	ctx := context.Background()

	spaceID := uniqueID("space")
	var deleted string
	for i, content := range []string{"first", "second", "third"} {
		id, err := repo.Create(ctx, postgres.ChatMessage{
			SpaceID:        spaceID,
			SenderID:       "user-1",
			SenderNickname: "Ada",
			Content:        content,
			Type:           postgres.MessageTypeMessage,
		})
		require.NoError(t, err)
		if i == 1 {
			deleted = id
		}
	}
	// party messages and deleted messages stay out of the space history
	_, err := repo.Create(ctx, postgres.ChatMessage{
		SpaceID:        spaceID,
		SenderID:       "user-2",
		SenderNickname: "Bo",
		Content:        "party only",
		Type:           postgres.MessageTypeParty,
		PartyID:        "raid-group",
	})
	require.NoError(t, err)
	require.NoError(t, repo.SoftDelete(ctx, spaceID, deleted))

	messages, err := repo.ListRecent(ctx, spaceID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "third", messages[1].Content)
}

func TestValidMessageType(t *testing.T) {
	assert.True(t, postgres.ValidMessageType(postgres.MessageTypeMessage))
	assert.True(t, postgres.ValidMessageType(postgres.MessageTypeParty))
	assert.True(t, postgres.ValidMessageType(postgres.MessageTypeSystem))
	assert.True(t, postgres.ValidMessageType(postgres.MessageTypeAnnouncement))
	assert.False(t, postgres.ValidMessageType(""))
	assert.False(t, postgres.ValidMessageType("whisper"))
}
