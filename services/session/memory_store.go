package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// MemoryStore keeps handshakes in a size-bounded LRU whose entries also
// expire after ttl. It is only suitable for a single gateway instance.
//
// A full store evicts the oldest pending handshake and that sign-in fails at
// its callback. Size it above the number of sign-ins started within one ttl
// at peak.
type MemoryStore struct {
	mu        sync.Mutex
	cache     *expirable.LRU[string, *models.Handshake]
	size      int
	saving    atomic.Bool
	evictions atomic.Int64
	now       func() time.Time
	logger    *zap.Logger
}

// NewMemoryStore creates an in-process handshake store
func NewMemoryStore(size int, ttl time.Duration, logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{
		size:   size,
		now:    time.Now,
		logger: logger,
	}
	s.cache = expirable.NewLRU[string, *models.Handshake](size, s.onEvict, ttl)
	return s
}

// onEvict runs for every removal, including Consume and expiry. Only live
// handshakes pushed out by Save are reported.
func (s *MemoryStore) onEvict(_ string, handshake *models.Handshake) {
	if !s.saving.Load() || handshake.IsExpired(s.now()) {
		return
	}
	s.evictions.Add(1)
	s.logger.Warn("handshake store full, evicted pending handshake",
		zap.String("provider", handshake.Provider),
		zap.Time("created_at", handshake.CreatedAt),
		zap.Int("store_size", s.size))
}

// Save stores a handshake
func (s *MemoryStore) Save(_ context.Context, handshake *models.Handshake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saving.Store(true)
	s.cache.Add(handshake.Key, handshake)
	s.saving.Store(false)
	return nil
}

// Consume removes and returns a handshake
func (s *MemoryStore) Consume(_ context.Context, key string) (*models.Handshake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handshake, ok := s.cache.Peek(key)
	if !ok {
		return nil, services.ErrUnknownSession
	}
	// Remove reports false to every caller but the first
	if !s.cache.Remove(key) {
		return nil, services.ErrUnknownSession
	}
	return handshake, nil
}

// DeleteExpired drops handshakes past their deadline at now
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, key := range s.cache.Keys() {
		handshake, ok := s.cache.Peek(key)
		if ok && handshake.IsExpired(now) && s.cache.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored handshakes
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Evictions returns how many live handshakes were dropped because the store
// was full
func (s *MemoryStore) Evictions() int64 {
	return s.evictions.Load()
}
