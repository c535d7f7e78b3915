package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]int
	err := repo.Get(ctx, "iotd:config", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "iotd:config", map[string]int{"IOTD_MAX_DISMISSALS": 5}, time.Minute))
	require.NoError(t, repo.Delete(ctx, "iotd:config"))
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}
