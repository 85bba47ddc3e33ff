package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotext/internal/config"
	"annotext/internal/domain"
	"annotext/internal/port"
)

func newTestCache(t *testing.T) (port.ExtractionCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := NewClient(context.Background(), &config.RedisConfig{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewExtractionCache(client), srv
}

func TestExtractionCache_SetGet(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()
	ents := []domain.PositionedEntity{{
		Text: "Karbala", EntityType: "LOCATION", Start: 19, End: 26, LineNumber: 1, Confidence: 0.9,
		ContextBefore: "reached ",
		Meta:          domain.EntityMeta{Model: "gpt-4o", PromptType: domain.PromptType("urdu"), Chunk: 1},
	}}

	require.NoError(t, c.Set(ctx, "extract:abc", ents, time.Hour))
	assert.Equal(t, time.Hour, srv.TTL("extract:abc"))

	got, ok, err := c.Get(ctx, "extract:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ents, got)
}

func TestExtractionCache_MissingKeyIsMiss(t *testing.T) {
	c, _ := newTestCache(t)

	got, ok, err := c.Get(context.Background(), "extract:none")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestExtractionCache_Expiry(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []domain.PositionedEntity{{Text: "Ali", Start: 0, End: 3}}, time.Minute))
	srv.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractionCache_CorruptEntryIsMiss(t *testing.T) {
	c, srv := newTestCache(t)
	require.NoError(t, srv.Set("k", "{not json"))

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractionCache_ServerDownReturnsError(t *testing.T) {
	c, srv := newTestCache(t)
	srv.Close()

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), "k", nil, time.Minute))
}

func TestNewClient_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewClient(context.Background(), &config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
