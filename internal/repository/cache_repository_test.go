package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

func TestCacheRepositoryRoundTrip(t *testing.T) {
	_, client := newRedis(t)
	repo := NewCacheRepository(client)
	ctx := context.Background()

	var out map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "dash:summary", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "dash:summary", map[string]int{"registered": 3}, time.Minute))
	require.NoError(t, repo.Get(ctx, "dash:summary", &out))
	assert.Equal(t, 3, out["registered"])
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	srv, client := newRedis(t)
	repo := NewCacheRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "dash:summary", 1, time.Minute))
	require.NoError(t, repo.Set(ctx, "dash:church", 2, time.Minute))
	require.NoError(t, repo.Set(ctx, "other", 3, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "dash:*"))
	assert.False(t, srv.Exists("dash:summary"))
	assert.False(t, srv.Exists("dash:church"))
	assert.True(t, srv.Exists("other"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	var out int
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "k*"))
}
