package repository

import (
	"context"
	"testing"

	"github.com/rookgm/chatpesa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepository_SaveAndList(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	in := &models.Message{Phone: "254722000111", Direction: models.MessageDirectionInbound, Body: "hi"}
	require.NoError(t, repo.SaveMessage(ctx, in))
	assert.NotZero(t, in.ID)
	assert.False(t, in.CreatedAt.IsZero())

	out := &models.Message{Phone: "254722000111", Direction: models.MessageDirectionOutbound, Body: "Welcome"}
	require.NoError(t, repo.SaveMessage(ctx, out))
	require.NoError(t, repo.SaveMessage(ctx, &models.Message{
		Phone: "254722000222", Direction: models.MessageDirectionInbound, Body: "other",
	}))

	messages, err := repo.ListMessagesByPhone(ctx, "254722000111")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Body)
	assert.Equal(t, models.MessageDirectionOutbound, messages[1].Direction)

	err = repo.SaveMessage(ctx, &models.Message{Phone: "254722000111", Direction: "sideways"})
	assert.Error(t, err)
}
