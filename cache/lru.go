package cache

// LRU is byte budgeted cache, that evicts least recently written entries.
// Entry size is len(key) + len(value).
// Pre and post conditions (Invariants) for all public methods:
// * index and chain contain same keys. Index refs to node with same key.
// * size is equal to sum of chain nodes size.
// * size <= maxSize.
//
// LRU is not safe for concurrent use.
type LRU struct {
	maxSize int64
	size    int64
	index   map[string]handle
	chain   chain
	metrics Metrics
}

var _ Cache = (*LRU)(nil)
var _ Stats = (*LRU)(nil)

func NewLRU(conf Config) *LRU {
	conf = conf.withDefaults()
	return &LRU{
		maxSize: conf.Size,
		index:   make(map[string]handle),
		chain:   newChain(),
		metrics: conf.Metrics,
	}
}

func (c *LRU) Put(key, value []byte) bool {
	defer c.checkInvariants()
	if !c.fits(key, value) {
		return false
	}
	if h, ok := c.index[string(key)]; ok { // No allocation.
		c.remove(h)
	}
	c.insert(key, value)
	return true
}

func (c *LRU) PutIfAbsent(key, value []byte) bool {
	defer c.checkInvariants()
	if _, ok := c.index[string(key)]; ok {
		return false
	}
	if !c.fits(key, value) {
		return false
	}
	c.insert(key, value)
	return true
}

func (c *LRU) Set(key, value []byte) bool {
	defer c.checkInvariants()
	h, ok := c.index[string(key)]
	if !ok {
		return false
	}
	if !c.fits(key, value) {
		return false
	}
	c.remove(h)
	c.insert(key, value)
	return true
}

func (c *LRU) Delete(key []byte) bool {
	defer c.checkInvariants()
	h, ok := c.index[string(key)]
	if !ok {
		return false
	}
	c.remove(h)
	c.metrics.Size(c.Len(), c.size)
	return true
}

func (c *LRU) Get(key []byte) (value []byte, ok bool) {
	defer c.checkInvariants()
	h, ok := c.index[string(key)]
	if !ok {
		c.metrics.Miss()
		return nil, false
	}
	c.metrics.Hit()
	return c.chain.node(h).value, true
}

func (c *LRU) Len() int       { return c.chain.len }
func (c *LRU) Size() int64    { return c.size }
func (c *LRU) MaxSize() int64 { return c.maxSize }

// Keys returns keys from most to least recently written.
func (c *LRU) Keys() []string {
	keys := make([]string, 0, c.chain.len)
	for h := c.chain.head(); !c.chain.end(h); h = c.chain.next(h) {
		keys = append(keys, c.chain.node(h).key)
	}
	return keys
}

// fits returns true if entry can be placed into empty cache.
// Entries that don't fit are rejected before any modification,
// so eviction never runs on empty chain.
func (c *LRU) fits(key, value []byte) bool {
	return int64(len(key)+len(value)) <= c.maxSize
}

// insert pushes copy of entry to chain head, and evicts from tail until cache fits maxSize.
// Key should be absent in index, and entry should fit.
func (c *LRU) insert(key, value []byte) {
	k := string(key)
	v := make([]byte, len(value))
	copy(v, value)
	h := c.chain.pushFront(k, v)
	c.index[k] = h
	c.size += c.chain.node(h).size()
	c.evict()
	c.metrics.Size(c.Len(), c.size)
}

func (c *LRU) evict() {
	for c.size > c.maxSize {
		tail := c.chain.tail()
		if tail == c.chain.head() {
			panic("only head left, but cache still overflowed: too large entry inserted")
		}
		c.remove(tail)
		c.metrics.Evict()
	}
}

func (c *LRU) remove(h handle) {
	n := c.chain.remove(h)
	delete(c.index, n.key)
	c.size -= n.size()
}
