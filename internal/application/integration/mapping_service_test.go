package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/cache"
)

func newMappingFixture(t *testing.T, broadcaster integration.MappingInvalidationBroadcaster) (*MappingService, *MappingResolver, *cache.InMemoryMappingCache) {
	t.Helper()
	e := newTestEngine(t)
	c := cache.NewInMemoryMappingCache(cache.WithTTL(time.Hour))
	t.Cleanup(func() { _ = c.Close() })
	resolver := NewMappingResolver(e.mappings, c, zap.NewNop())
	return NewMappingService(e.mappings, resolver, broadcaster, zap.NewNop()), resolver, c
}

func save(t *testing.T, s *MappingService, source, target string) *integration.Mapping {
	t.Helper()
	m, err := s.SaveMapping(context.Background(), SaveMappingRequest{
		MappingType: string(integration.MappingTypeCustomer),
		SourceValue: source,
		TargetValue: target,
	})
	require.NoError(t, err)
	return m
}

func TestMappingResolver_ReadThrough(t *testing.T) {
	s, resolver, c := newMappingFixture(t, nil)
	ctx := context.Background()
	save(t, s, "C-1", "ACME-01")

	for range 3 {
		target, found, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "ACME-01", target)
	}
	hits, misses := c.GetStats()
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 1, misses)
}

func TestMappingResolver_MissIsNotCached(t *testing.T) {
	s, resolver, c := newMappingFixture(t, nil)
	ctx := context.Background()

	_, found, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, c.Count())

	save(t, s, "C-1", "ACME-01")
	target, found, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ACME-01", target)
}

func TestMappingService_UpdateIsVisibleImmediately(t *testing.T) {
	s, resolver, _ := newMappingFixture(t, nil)
	ctx := context.Background()
	first := save(t, s, "C-1", "ACME-01")

	_, _, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)

	second := save(t, s, "C-1", "ACME-02")
	assert.Equal(t, first.ID, second.ID, "saving an existing key updates it")

	target, found, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ACME-02", target)
}

// pausingMappingRepository holds the first active lookup after it has read
// the store, until release is closed
type pausingMappingRepository struct {
	integration.MappingRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (r *pausingMappingRepository) FindActiveBySource(ctx context.Context, key integration.MappingKey) (*integration.Mapping, error) {
	m, err := r.MappingRepository.FindActiveBySource(ctx, key)
	r.once.Do(func() {
		close(r.read)
		<-r.release
	})
	return m, err
}

func TestMappingResolver_UpdateDuringLookupIsNotOverwritten(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	c := cache.NewInMemoryMappingCache(cache.WithTTL(time.Hour))
	t.Cleanup(func() { _ = c.Close() })

	repo := &pausingMappingRepository{
		MappingRepository: e.mappings,
		read:              make(chan struct{}),
		release:           make(chan struct{}),
	}
	resolver := NewMappingResolver(repo, c, zap.NewNop())
	s := NewMappingService(e.mappings, resolver, nil, zap.NewNop())
	save(t, s, "C-1", "ACME-OLD")

	done := make(chan string, 1)
	go func() {
		target, _, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
		assert.NoError(t, err)
		done <- target
	}()

	<-repo.read
	save(t, s, "C-1", "ACME-NEW")
	close(repo.release)
	assert.Equal(t, "ACME-OLD", <-done, "the lookup read the store before the update")

	target, found, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ACME-NEW", target)
}

func TestMappingService_DeactivateAndReactivate(t *testing.T) {
	s, resolver, _ := newMappingFixture(t, nil)
	ctx := context.Background()
	save(t, s, "C-1", "ACME-01")
	_, _, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)

	deactivated, err := s.DeactivateMapping(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, found, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = resolver.ResolveAll(ctx, []integration.MappingKey{
		integration.NewMappingKey(integration.MappingTypeCustomer, "C-1"),
	})
	require.Error(t, err)
	assert.Equal(t, integration.KindMappingNotFound, integration.Classify(err).Kind)

	reactivated := save(t, s, "C-1", "ACME-03")
	assert.True(t, reactivated.IsActive)
	target, found, err := resolver.Resolve(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ACME-03", target)

	_, err = s.DeactivateMapping(ctx, integration.MappingTypeCustomer, "missing")
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)
}

func TestMappingService_SaveRejectsInvalidInput(t *testing.T) {
	s, _, _ := newMappingFixture(t, nil)
	ctx := context.Background()

	_, err := s.SaveMapping(ctx, SaveMappingRequest{MappingType: "COLOR", SourceValue: "a", TargetValue: "b"})
	assert.ErrorIs(t, err, integration.ErrInvalidMappingType)

	_, err = s.SaveMapping(ctx, SaveMappingRequest{MappingType: string(integration.MappingTypeUOM), SourceValue: "a", TargetValue: " "})
	assert.ErrorIs(t, err, integration.ErrInvalidMapping)
}

func TestMappingService_BroadcastsInvalidation(t *testing.T) {
	broadcaster := new(MockBroadcaster)
	s, _, _ := newMappingFixture(t, broadcaster)
	ctx := context.Background()
	key := integration.NewMappingKey(integration.MappingTypeCustomer, "C-1")

	broadcaster.On("Publish", mock.Anything, key).Return(nil).Once()
	broadcaster.On("Publish", mock.Anything, key).Return(errors.New("redis down")).Once()

	save(t, s, "C-1", "ACME-01")
	// a failed broadcast does not fail the change
	_, err := s.DeactivateMapping(ctx, integration.MappingTypeCustomer, "C-1")
	require.NoError(t, err)

	broadcaster.AssertExpectations(t)
}

func TestMappingService_ListMappings(t *testing.T) {
	s, _, _ := newMappingFixture(t, nil)
	ctx := context.Background()
	save(t, s, "C-1", "ACME-01")
	save(t, s, "C-2", "ACME-02")
	_, err := s.SaveMapping(ctx, SaveMappingRequest{
		MappingType: string(integration.MappingTypeUOM),
		SourceValue: "pcs",
		TargetValue: "EA",
	})
	require.NoError(t, err)

	customer := integration.MappingTypeCustomer
	mappings, total, err := s.ListMappings(ctx, integration.MappingFilter{MappingType: &customer})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, mappings, 2)
	assert.Equal(t, "C-1", mappings[0].SourceValue)
}
