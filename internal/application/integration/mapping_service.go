package integration

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
)

// MappingResolver translates source identifiers into target identifiers.
// Hits are served from the cache; misses read the store and populate it.
// A missing mapping is not cached so that a mapping created afterwards is
// picked up on the next lookup.
type MappingResolver struct {
	repo   integration.MappingRepository
	cache  integration.MappingCache
	logger *zap.Logger
}

// NewMappingResolver creates a resolver. cache may be nil.
func NewMappingResolver(repo integration.MappingRepository, cache integration.MappingCache, logger *zap.Logger) *MappingResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingResolver{repo: repo, cache: cache, logger: logger}
}

// Resolve returns the active target value for a source value.
// found is false with a nil error when no active mapping exists.
func (r *MappingResolver) Resolve(ctx context.Context, mappingType integration.MappingType, sourceValue string) (string, bool, error) {
	return r.resolveKey(ctx, integration.NewMappingKey(mappingType, sourceValue))
}

func (r *MappingResolver) resolveKey(ctx context.Context, key integration.MappingKey) (string, bool, error) {
	var gen uint64
	if r.cache != nil {
		if target, ok := r.cache.Get(key); ok {
			return target, true, nil
		}
		gen = r.cache.Generation(key)
	}

	mapping, err := r.repo.FindActiveBySource(ctx, key)
	if err != nil {
		if errors.Is(err, integration.ErrMappingNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	// a save that committed while we were reading has already invalidated key
	if r.cache != nil && !r.cache.SetIfGeneration(key, mapping.TargetValue, gen) {
		r.logger.Debug("Skipped stale mapping cache fill", zap.String("key", key.String()))
	}
	return mapping.TargetValue, true, nil
}

// ResolveAll resolves every key of a record. The first key without an active
// mapping is returned as a MappingNotFound SyncError.
func (r *MappingResolver) ResolveAll(ctx context.Context, keys []integration.MappingKey) (map[integration.MappingKey]string, error) {
	targets := make(map[integration.MappingKey]string, len(keys))
	for _, key := range keys {
		target, found, err := r.resolveKey(ctx, key)
		if err != nil {
			return nil, integration.NewTransientError("resolve mapping "+key.String(), err)
		}
		if !found {
			return nil, integration.NewMappingNotFoundError(key)
		}
		targets[key] = target
	}
	return targets, nil
}

// Invalidate drops one key from the local cache
func (r *MappingResolver) Invalidate(key integration.MappingKey) {
	if r.cache != nil {
		r.cache.Invalidate(key)
	}
}

// MappingService manages the mapping table
type MappingService struct {
	repo        integration.MappingRepository
	resolver    *MappingResolver
	broadcaster integration.MappingInvalidationBroadcaster
	logger      *zap.Logger
}

// NewMappingService creates a mapping service. broadcaster may be nil when
// the service runs as a single instance.
func NewMappingService(
	repo integration.MappingRepository,
	resolver *MappingResolver,
	broadcaster integration.MappingInvalidationBroadcaster,
	logger *zap.Logger,
) *MappingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingService{
		repo:        repo,
		resolver:    resolver,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// ListMappings lists mappings with filtering
func (s *MappingService) ListMappings(ctx context.Context, filter integration.MappingFilter) ([]integration.Mapping, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	return s.repo.FindAll(ctx, filter)
}

// SaveMapping creates the mapping for (type, source) or updates its target.
// An inactive mapping is reactivated.
func (s *MappingService) SaveMapping(ctx context.Context, req SaveMappingRequest) (*integration.Mapping, error) {
	mappingType, err := integration.ParseMappingType(req.MappingType)
	if err != nil {
		return nil, err
	}
	key := integration.NewMappingKey(mappingType, req.SourceValue)

	mapping, err := s.repo.FindBySource(ctx, key)
	switch {
	case errors.Is(err, integration.ErrMappingNotFound):
		mapping, err = integration.NewMapping(mappingType, req.SourceValue, req.TargetValue, req.Description)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := mapping.Update(req.TargetValue, req.Description); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, mapping); err != nil {
		return nil, err
	}
	s.invalidate(ctx, mapping.Key())

	s.logger.Info("Mapping saved",
		zap.String("mapping_type", string(mapping.MappingType)),
		zap.String("source_value", mapping.SourceValue),
		zap.String("target_value", mapping.TargetValue))
	return mapping, nil
}

// DeactivateMapping marks a mapping inactive. Records referencing it fail
// with MAPPING_NOT_FOUND from then on.
func (s *MappingService) DeactivateMapping(ctx context.Context, mappingType integration.MappingType, sourceValue string) (*integration.Mapping, error) {
	key := integration.NewMappingKey(mappingType, sourceValue)
	mapping, err := s.repo.FindBySource(ctx, key)
	if err != nil {
		return nil, err
	}
	if !mapping.IsActive {
		return mapping, nil
	}

	mapping.Deactivate()
	if err := s.repo.Save(ctx, mapping); err != nil {
		return nil, err
	}
	s.invalidate(ctx, key)

	s.logger.Info("Mapping deactivated",
		zap.String("mapping_type", string(mappingType)),
		zap.String("source_value", key.SourceValue))
	return mapping, nil
}

// invalidate drops the key locally, then tells the other instances.
// A failed broadcast only delays other caches until their TTL expires.
func (s *MappingService) invalidate(ctx context.Context, key integration.MappingKey) {
	if s.resolver != nil {
		s.resolver.Invalidate(key)
	}
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, key); err != nil {
		s.logger.Warn("Failed to broadcast mapping invalidation",
			zap.String("key", key.String()),
			zap.Error(err))
	}
}
