// Package cache provides byte budgeted LRU storage for the kvcache server.
//
// LRU is the eviction engine. It keeps entries in a recency chain: head is the
// most recently put (or set) entry, tail is the next candidate for eviction.
// Key plus value length of all entries never exceeds the configured size.
// Get does not change recency order: only writes promote.
//
// LRU is not safe for concurrent use. Locking and Sharded wrap it for that.
package cache
