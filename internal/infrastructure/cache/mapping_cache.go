package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"go.uber.org/zap"
)

// Constants for in-memory cache configuration
const (
	defaultMappingTTL      = 10 * time.Minute
	defaultCleanupInterval = 30 * time.Second
)

// InMemoryMappingCache implements integration.MappingCache with a TTL per entry.
// It is shared read-mostly by every sync run in the process.
type InMemoryMappingCache struct {
	entries         sync.Map // map[integration.MappingKey]*cacheEntry
	ttl             time.Duration
	cleanupInterval time.Duration
	logger          *zap.Logger
	now             func() time.Time
	stopCh          chan struct{}
	stopped         int32

	// writes are serialized so a fill cannot land between an invalidation's
	// generation bump and its delete
	mu          sync.Mutex
	generations map[integration.MappingKey]uint64
	epoch       uint64

	// Stats for monitoring
	hits   int64
	misses int64
}

// cacheEntry wraps a cached target value with its expiration time
type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// InMemoryMappingCacheOption is a functional option for configuring the cache
type InMemoryMappingCacheOption func(*InMemoryMappingCache)

// WithTTL sets how long a resolved mapping stays cached
func WithTTL(ttl time.Duration) InMemoryMappingCacheOption {
	return func(c *InMemoryMappingCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCleanupInterval sets how often expired entries are swept
func WithCleanupInterval(interval time.Duration) InMemoryMappingCacheOption {
	return func(c *InMemoryMappingCache) {
		if interval > 0 {
			c.cleanupInterval = interval
		}
	}
}

// WithLogger sets the logger for the cache
func WithLogger(logger *zap.Logger) InMemoryMappingCacheOption {
	return func(c *InMemoryMappingCache) {
		c.logger = logger
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) InMemoryMappingCacheOption {
	return func(c *InMemoryMappingCache) {
		c.now = now
	}
}

// NewInMemoryMappingCache creates a mapping cache and starts its cleanup goroutine.
// Call Close to stop it.
func NewInMemoryMappingCache(opts ...InMemoryMappingCacheOption) *InMemoryMappingCache {
	c := &InMemoryMappingCache{
		ttl:             defaultMappingTTL,
		cleanupInterval: defaultCleanupInterval,
		logger:          zap.NewNop(),
		now:             time.Now,
		stopCh:          make(chan struct{}),
		generations:     make(map[integration.MappingKey]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()

	return c
}

// Get returns the cached target value for key
func (c *InMemoryMappingCache) Get(key integration.MappingKey) (string, bool) {
	key = normalize(key)
	if value, ok := c.entries.Load(key); ok {
		entry := value.(*cacheEntry)
		if c.now().Before(entry.expiresAt) {
			atomic.AddInt64(&c.hits, 1)
			return entry.value, true
		}
		c.entries.CompareAndDelete(key, value)
	}
	atomic.AddInt64(&c.misses, 1)
	return "", false
}

// Set caches the target value for key
func (c *InMemoryMappingCache) Set(key integration.MappingKey, targetValue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(normalize(key), targetValue)
}

// Generation returns a counter that changes whenever key is invalidated or
// the cache is cleared
func (c *InMemoryMappingCache) Generation(key integration.MappingKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(normalize(key))
}

// SetIfGeneration caches the value only if key has not been invalidated
// since gen was read. It reports whether the value was stored.
func (c *InMemoryMappingCache) SetIfGeneration(key integration.MappingKey, targetValue string, gen uint64) bool {
	key = normalize(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(key) != gen {
		return false
	}
	c.store(key, targetValue)
	return true
}

// Invalidate drops exactly one key
func (c *InMemoryMappingCache) Invalidate(key integration.MappingKey) {
	key = normalize(key)
	c.mu.Lock()
	c.generations[key]++
	c.entries.Delete(key)
	c.mu.Unlock()
	c.logger.Debug("Invalidated mapping cache entry", zap.String("key", key.String()))
}

// Clear drops every key
func (c *InMemoryMappingCache) Clear() {
	c.mu.Lock()
	c.epoch++
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	c.mu.Unlock()
	c.logger.Info("Cleared mapping cache")
}

// generation must be called with mu held
func (c *InMemoryMappingCache) generation(key integration.MappingKey) uint64 {
	return c.epoch + c.generations[key]
}

func (c *InMemoryMappingCache) store(key integration.MappingKey, targetValue string) {
	c.entries.Store(key, &cacheEntry{
		value:     targetValue,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Close stops the cleanup goroutine
func (c *InMemoryMappingCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns cache hit and miss counts
func (c *InMemoryMappingCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Count returns the number of entries, expired ones included until swept
func (c *InMemoryMappingCache) Count() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *InMemoryMappingCache) cleanupExpired() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.doCleanup()
		}
	}
}

func (c *InMemoryMappingCache) doCleanup() {
	now := c.now()
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if !now.Before(value.(*cacheEntry).expiresAt) {
			c.entries.CompareAndDelete(key, value)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Cleaned up expired mapping cache entries", zap.Int("removed", removed))
	}
}

func normalize(key integration.MappingKey) integration.MappingKey {
	return integration.NewMappingKey(key.Type, key.SourceValue)
}

var _ integration.MappingCache = (*InMemoryMappingCache)(nil)
