package cache

import (
	"sync"

	"github.com/skipor/kvcache/internal/util"
)

// Sharded splits keys between independent Locking caches, to reduce lock contention.
// Shard is chosen by key hash, and every shard has equal part of size budget,
// so eviction order is LRU only within shard.
// Sharded with one shard behaves exactly like Locking.
type Sharded struct {
	shards []*Locking
	mask   uint64
}

var _ Cache = (*Sharded)(nil)
var _ Stats = (*Sharded)(nil)

// NewSharded creates cache with n shards rounded up to power of two.
func NewSharded(n int, conf Config) *Sharded {
	conf = conf.withDefaults()
	if n < 1 {
		n = 1
	}
	n = int(util.NextPow2(uint64(n)))
	total := &shardedMetrics{
		Metrics: conf.Metrics,
		entries: make([]int, n),
		bytes:   make([]int64, n),
	}
	shardConf := conf
	// Sum of shard budgets does not exceed configured size, unless it is less than shard count.
	shardConf.Size = conf.Size / int64(n)
	if shardConf.Size < 1 {
		shardConf.Size = 1
	}
	c := &Sharded{
		shards: make([]*Locking, n),
		mask:   uint64(n - 1),
	}
	for i := range c.shards {
		shardConf.Metrics = shardMetrics{total, i}
		c.shards[i] = NewLocking(shardConf)
	}
	return c
}

func (c *Sharded) Put(key, value []byte) bool         { return c.shard(key).Put(key, value) }
func (c *Sharded) PutIfAbsent(key, value []byte) bool { return c.shard(key).PutIfAbsent(key, value) }
func (c *Sharded) Set(key, value []byte) bool         { return c.shard(key).Set(key, value) }
func (c *Sharded) Delete(key []byte) bool             { return c.shard(key).Delete(key) }
func (c *Sharded) Get(key []byte) ([]byte, bool)      { return c.shard(key).Get(key) }

func (c *Sharded) Len() (n int) {
	for _, s := range c.shards {
		n += s.Len()
	}
	return
}

func (c *Sharded) Size() (size int64) {
	for _, s := range c.shards {
		size += s.Size()
	}
	return
}

func (c *Sharded) shard(key []byte) *Locking {
	return c.shards[util.Fnv64a(key)&c.mask]
}

// shardedMetrics sums shard sizes before reporting them.
type shardedMetrics struct {
	Metrics
	mu      sync.Mutex // Guards fields below and orders Size reports.
	entries []int
	bytes   []int64
}

type shardMetrics struct {
	total *shardedMetrics
	i     int
}

func (m shardMetrics) Hit()   { m.total.Hit() }
func (m shardMetrics) Miss()  { m.total.Miss() }
func (m shardMetrics) Evict() { m.total.Evict() }

func (m shardMetrics) Size(entries int, bytes int64) {
	t := m.total
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[m.i] = entries
	t.bytes[m.i] = bytes
	var totalEntries int
	var totalBytes int64
	for i := range t.entries {
		totalEntries += t.entries[i]
		totalBytes += t.bytes[i]
	}
	t.Metrics.Size(totalEntries, totalBytes)
}
