package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/models"
	"github.com/soumyapothuganti123-del/image-insight-ai/internal/services"
)

func TestMemoryAddAndList(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemory()

	userID, err := store.AddMessage(ctx, models.Message{ID: "u", Role: models.RoleUser, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1-u", userID)

	aiID, err := store.AddMessage(ctx, models.Message{ID: "a", Role: models.RoleAssistant})
	require.NoError(t, err)
	assert.Equal(t, "2-a", aiID)

	messages, err := store.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)

	// The returned slice is a snapshot, not a window into the store.
	messages[1].Content = "tampered"
	fresh, err := store.Messages(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", fresh[1].Content)
}

func TestMemorySetMessageContent(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemory()

	userID, _ := store.AddMessage(ctx, models.Message{ID: "u", Role: models.RoleUser, Content: "hi"})
	aiID, _ := store.AddMessage(ctx, models.Message{ID: "a", Role: models.RoleAssistant})

	require.NoError(t, store.SetMessageContent(ctx, aiID, "The image"))
	require.NoError(t, store.SetMessageContent(ctx, aiID, "The image shows a cat."))

	messages, _ := store.Messages(ctx)
	assert.Equal(t, "The image shows a cat.", messages[1].Content)

	// Streaming updates may only target the last transcript entry.
	assert.Error(t, store.SetMessageContent(ctx, userID, "nope"))

	// And only while that entry is an assistant message.
	lastUserID, _ := store.AddMessage(ctx, models.Message{ID: "u2", Role: models.RoleUser})
	assert.Error(t, store.SetMessageContent(ctx, lastUserID, "nope"))
}

func TestMemorySetMessageContentEmptyTranscript(t *testing.T) {
	store := services.NewMemory()

	assert.Error(t, store.SetMessageContent(context.Background(), "1-x", "nope"))
}

func TestMemoryRemoveMessage(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemory()

	userID, _ := store.AddMessage(ctx, models.Message{ID: "u", Role: models.RoleUser, Content: "hi"})
	aiID, _ := store.AddMessage(ctx, models.Message{ID: "a", Role: models.RoleAssistant})

	// Only the trailing entry (a failed stream's placeholder) may be removed.
	assert.Error(t, store.RemoveMessage(ctx, userID))

	require.NoError(t, store.RemoveMessage(ctx, aiID))

	messages, _ := store.Messages(ctx)
	require.Len(t, messages, 1)
	assert.Equal(t, userID, messages[0].ID)

	assert.Error(t, store.RemoveMessage(ctx, aiID))
}
