// Package cache holds small in-process TTL caches for hot lookups.
package cache

import (
	"sync"
	"time"

	"BarPull/internal/domain/models"
)

type entry struct {
	d   models.InstrumentDescriptor
	exp time.Time
}

// DescriptorCache keeps recently loaded instrument descriptors so repeated
// FetchOrLoad calls do not re-read the descriptor file per request.
type DescriptorCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
}

func NewDescriptorCache(ttl time.Duration) *DescriptorCache {
	return &DescriptorCache{ttl: ttl, m: make(map[string]entry)}
}

func (c *DescriptorCache) Get(instrumentID string) (models.InstrumentDescriptor, bool) {
	c.mu.RLock()
	e, ok := c.m[instrumentID]
	c.mu.RUnlock()
	if !ok {
		return models.InstrumentDescriptor{}, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, instrumentID)
		c.mu.Unlock()
		return models.InstrumentDescriptor{}, false
	}
	return e.d, true
}

func (c *DescriptorCache) Set(d models.InstrumentDescriptor) {
	var exp time.Time
	if c.ttl > 0 {
		exp = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.m[d.InstrumentID] = entry{d: d, exp: exp}
	c.mu.Unlock()
}
