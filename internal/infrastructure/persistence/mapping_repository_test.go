package persistence

import (
	"context"
	"testing"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormMappingRepository_SaveAndFind(t *testing.T) {
	repo := NewGormMappingRepository(setupSyncTestDB(t))
	ctx := context.Background()

	m, err := integration.NewMapping(integration.MappingTypeSKUAccount, " sku-1 ", "4000", "widgets")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, m))
	require.NotZero(t, m.ID)

	key := integration.NewMappingKey(integration.MappingTypeSKUAccount, "sku-1")
	found, err := repo.FindActiveBySource(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "4000", found.TargetValue)
	assert.Equal(t, "SKU-1", found.SourceValue)

	t.Run("save upserts on type and source value", func(t *testing.T) {
		again, err := integration.NewMapping(integration.MappingTypeSKUAccount, "SKU-1", "4100", "")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, again))
		assert.Equal(t, m.ID, again.ID)

		found, err := repo.FindActiveBySource(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "4100", found.TargetValue)
	})

	t.Run("inactive mappings do not resolve but remain stored", func(t *testing.T) {
		stored, err := repo.FindBySource(ctx, key)
		require.NoError(t, err)
		stored.Deactivate()
		require.NoError(t, repo.Save(ctx, stored))

		_, err = repo.FindActiveBySource(ctx, key)
		assert.ErrorIs(t, err, integration.ErrMappingNotFound)

		kept, err := repo.FindBySource(ctx, key)
		require.NoError(t, err)
		assert.False(t, kept.IsActive)
	})

	t.Run("same source value under another type is distinct", func(t *testing.T) {
		_, err := repo.FindActiveBySource(ctx, integration.NewMappingKey(integration.MappingTypeUOM, "SKU-1"))
		assert.ErrorIs(t, err, integration.ErrMappingNotFound)
	})
}

func TestGormMappingRepository_FindAll(t *testing.T) {
	repo := NewGormMappingRepository(setupSyncTestDB(t))
	ctx := context.Background()

	seed := []struct {
		typ            integration.MappingType
		source, target string
	}{
		{integration.MappingTypeTaxRate, "VAT20", "T1"},
		{integration.MappingTypeSKUAccount, "B-200", "4200"},
		{integration.MappingTypeSKUAccount, "A-100", "4100"},
	}
	for _, s := range seed {
		m, err := integration.NewMapping(s.typ, s.source, s.target, "")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, m))
	}

	typ := integration.MappingTypeSKUAccount
	list, total, err := repo.FindAll(ctx, integration.MappingFilter{MappingType: &typ})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, "A-100", list[0].SourceValue)

	list, total, err = repo.FindAll(ctx, integration.MappingFilter{Search: "vat"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "T1", list[0].TargetValue)
}
