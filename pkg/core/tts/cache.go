package tts

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores synthesized audio keyed by the full synthesis request.
// Greetings and apology lines repeat across calls, so a hit skips the
// provider round trip entirely.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, audio []byte)
}

// CacheKey derives a stable key from everything that changes the audio:
// provider, model, voice, text, and the remaining settings.
func CacheKey(provider, text string, opts SynthesizeOptions) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(text))
	for _, f := range opts.cacheKeyFields() {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return "tts:" + hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is an in-process LRU cache, the default backend.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	order   *list.List
}

type memoryEntry struct {
	key   string
	audio []byte
}

// NewMemoryCache creates an LRU cache holding up to maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &MemoryCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached audio for key, if present.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	m.order.MoveToFront(el)
	return el.Value.(*memoryEntry).audio, true
}

// Put stores audio under key, evicting the least recently used entry
// when the cache is full.
func (m *MemoryCache) Put(_ context.Context, key string, audio []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		el.Value.(*memoryEntry).audio = audio
		m.order.MoveToFront(el)
		return
	}
	el := m.order.PushFront(&memoryEntry{key: key, audio: audio})
	m.entries[key] = el
	for m.order.Len() > m.maxSize {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}
}

// Len returns the number of cached entries.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// RedisCache stores synthesized audio in Redis so multiple gateway
// instances share one cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. A zero ttl means entries
// never expire.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached audio for key, if present. Redis errors are
// treated as misses so the chain still synthesizes.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	audio, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return audio, true
}

// Put stores audio under key. Write failures are ignored; the cache is
// an optimization, never a dependency.
func (r *RedisCache) Put(ctx context.Context, key string, audio []byte) {
	r.client.Set(ctx, key, audio, r.ttl)
}

// NewCacheFromURL builds a Redis cache when redisURL is set, falling
// back to the in-process LRU otherwise.
func NewCacheFromURL(redisURL string, ttl time.Duration) (Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewMemoryCache(0), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisCache(redis.NewClient(opts), ttl), nil
}
