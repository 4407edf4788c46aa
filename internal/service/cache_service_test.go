package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/formation-api/pkg/errors"
)

type mockCacheRepo struct {
	entries  map[string]interface{}
	getErr   error
	setErr   error
	patterns []string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{entries: make(map[string]interface{})}
}

func (m *mockCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	value, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if ptr, ok := dest.(*string); ok {
		*ptr = value.(string)
	}
	return nil
}

func (m *mockCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = value
	return nil
}

func (m *mockCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var dest string
	hit, err := svc.Get(context.Background(), "formations:detail:f1", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	svc.Set(context.Background(), "formations:detail:f1", "payload")
	hit, err = svc.Get(context.Background(), "formations:detail:f1", &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "payload", dest)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	svc.Set(context.Background(), "key", "value")
	assert.Empty(t, repo.entries)

	var dest string
	hit, err := svc.Get(context.Background(), "key", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceNilReceiver(t *testing.T) {
	var svc *CacheService

	assert.False(t, svc.Enabled())
	hit, err := svc.Get(context.Background(), "key", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	svc.Set(context.Background(), "key", "value")
	svc.Invalidate(context.Background(), "formations:*")
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMockCacheRepo()
	repo.getErr = errors.New("connection reset")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var dest string
	hit, err := svc.Get(context.Background(), "key", &dest)
	require.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	svc.Invalidate(context.Background(), "formations:*")
	assert.Equal(t, []string{"formations:*"}, repo.patterns)
}
