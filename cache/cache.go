package cache

//go:generate mockery -name=Cache -output=cachemocks -outpkg=cachemocks

// Cache is storage contract used by server connections.
// Implementation must not retain key and value slices passed to it.
// Value returned by Get must not be modified.
type Cache interface {
	// Put inserts or overwrites value. Returns false only if entry can't fit in cache even when it is empty.
	Put(key, value []byte) (stored bool)
	// PutIfAbsent inserts value only if key is not present.
	PutIfAbsent(key, value []byte) (stored bool)
	// Set overwrites value only if key is present.
	Set(key, value []byte) (stored bool)
	Delete(key []byte) (deleted bool)
	// Get returns value for key. Get does not affect eviction order.
	Get(key []byte) (value []byte, ok bool)
}

// Stats is implemented by all caches in this package.
type Stats interface {
	// Len returns number of entries.
	Len() int
	// Size returns sum of key and value lengths of all entries.
	Size() int64
}

const DefaultSize = 1024

type Config struct {
	// Size is max sum of key and value lengths of all entries.
	// DefaultSize used, if zero or negative.
	Size int64
	// Metrics is notified about cache events. Should be safe for concurrent use,
	// because Get of wrappers is called under read lock.
	Metrics Metrics
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = DefaultSize
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	return c
}

// Metrics exposes cache events for observability.
type Metrics interface {
	Hit()
	Miss()
	Evict()
	// Size called after every modification.
	Size(entries int, bytes int64)
}

type NoopMetrics struct{}

func (NoopMetrics) Hit()                          {}
func (NoopMetrics) Miss()                         {}
func (NoopMetrics) Evict()                        {}
func (NoopMetrics) Size(entries int, bytes int64) {}

var _ Metrics = NoopMetrics{}
