package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xxz807/fieldledger/internal/tax/domain"
)

type memoryEntry struct {
	authorities []domain.TaxAuthority
	expiresAt   time.Time
}

// MemoryZoneCache 进程内缓存，单实例部署或测试使用
type MemoryZoneCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryZoneCache(ttl time.Duration) *MemoryZoneCache {
	return &MemoryZoneCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryZoneCache) Get(_ context.Context, key string) ([]domain.TaxAuthority, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	// 返回副本，调用方不能改动缓存内容
	out := make([]domain.TaxAuthority, len(e.authorities))
	copy(out, e.authorities)
	return out, true, nil
}

func (c *MemoryZoneCache) Set(_ context.Context, key string, authorities []domain.TaxAuthority) error {
	stored := make([]domain.TaxAuthority, len(authorities))
	copy(stored, authorities)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{authorities: stored, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryZoneCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
