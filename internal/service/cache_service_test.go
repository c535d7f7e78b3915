package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
)

type memoryCacheRepo struct {
	data   map[string][]byte
	getErr error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemoryCacheRepo(), metrics, 0, nil, true)

	var out map[string]int
	hit, err := svc.Get(context.Background(), "iotd:config", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "iotd:config", map[string]int{"a": 1}, 0))
	hit, err = svc.Get(context.Background(), "iotd:config", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, out["a"])
	assert.InDelta(t, 0.5, metrics.Snapshot().CacheHitRatio, 0.0001)

	require.NoError(t, svc.Delete(context.Background(), "iotd:config"))
	hit, _ = svc.Get(context.Background(), "iotd:config", &out)
	assert.False(t, hit)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.data)

	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", new(int))
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	hit, err := svc.Get(context.Background(), "k", new(int))
	assert.Error(t, err)
	assert.False(t, hit)
}
