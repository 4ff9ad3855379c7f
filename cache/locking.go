package cache

import "sync"

// Locking serializes access to LRU, so it can be shared between connections.
// Get never modifies LRU, so it is done under read lock.
type Locking struct {
	mu  sync.RWMutex
	lru *LRU
}

var _ Cache = (*Locking)(nil)
var _ Stats = (*Locking)(nil)

func NewLocking(conf Config) *Locking {
	return &Locking{lru: NewLRU(conf)}
}

func (c *Locking) Put(key, value []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Put(key, value)
}

func (c *Locking) PutIfAbsent(key, value []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.PutIfAbsent(key, value)
}

func (c *Locking) Set(key, value []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Set(key, value)
}

func (c *Locking) Delete(key []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Delete(key)
}

func (c *Locking) Get(key []byte) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Get(key)
}

func (c *Locking) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

func (c *Locking) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Size()
}
