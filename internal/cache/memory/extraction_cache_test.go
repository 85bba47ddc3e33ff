package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotext/internal/domain"
)

func TestExtractionCache_SetGet(t *testing.T) {
	c := NewExtractionCache()
	ctx := context.Background()
	ents := []domain.PositionedEntity{{Text: "Karbala", EntityType: "LOCATION", Start: 19, End: 26}}

	require.NoError(t, c.Set(ctx, "k", ents, time.Hour))
	got, ok, err := c.Get(ctx, "k")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ents, got)

	// mutations of the returned slice must not leak into the cache
	got[0].Text = "changed"
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "Karbala", again[0].Text)
}

func TestExtractionCache_Expires(t *testing.T) {
	c := NewExtractionCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", nil, time.Minute))
	now = now.Add(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestExtractionCache_Miss(t *testing.T) {
	_, ok, err := NewExtractionCache().Get(context.Background(), "absent")

	require.NoError(t, err)
	assert.False(t, ok)
}
