package cache

import "fmt"

// handle addresses node in chain arena. Handles are stable while node is in chain,
// and reused after node release.
type handle int32

// Fake node. Real nodes are linked in ring through it:
// sentinel <-> head <-> ... <-> tail <-> sentinel
// Such structure prevent special cases for empty chain, and head or tail removal.
const sentinel handle = 0

type node struct {
	key   string
	value []byte
	prev  handle
	next  handle
}

func (n *node) size() int64 { return int64(len(n.key) + len(n.value)) }

// Invariants:
// * {sentinel, all live nodes} are correct doubly linked ring.
// * live nodes and free handles together are all arena handles except sentinel.
// * len is number of live nodes.
type chain struct {
	nodes []node
	free  []handle
	len   int
}

func newChain() chain {
	// Sentinel links to itself, so chain is empty.
	return chain{nodes: make([]node, 1)}
}

// head is most recently pushed node. Equal to sentinel if chain is empty.
func (c *chain) head() handle { return c.nodes[sentinel].next }

// tail is least recently pushed node. Equal to sentinel if chain is empty.
func (c *chain) tail() handle { return c.nodes[sentinel].prev }

func (c *chain) end(h handle) bool    { return h == sentinel }
func (c *chain) empty() bool          { return c.len == 0 }
func (c *chain) node(h handle) *node  { return &c.nodes[h] }
func (c *chain) next(h handle) handle { return c.nodes[h].next }

// pushFront creates new head node.
func (c *chain) pushFront(key string, value []byte) handle {
	h := c.alloc()
	n := &c.nodes[h]
	n.key, n.value = key, value
	c.link(h, c.head())
	c.link(sentinel, h)
	c.len++
	return h
}

// remove unlinks node and releases its handle. Returned node is a copy,
// because arena slot can be reused right after remove.
func (c *chain) remove(h handle) node {
	c.assertNotSentinel(h)
	n := c.nodes[h]
	c.link(n.prev, n.next)
	c.nodes[h] = node{}
	c.free = append(c.free, h)
	c.len--
	return n
}

func (c *chain) alloc() handle {
	if last := len(c.free) - 1; last >= 0 {
		h := c.free[last]
		c.free = c.free[:last]
		return h
	}
	c.nodes = append(c.nodes, node{})
	return handle(len(c.nodes) - 1)
}

func (c *chain) link(a, b handle) { c.nodes[a].next, c.nodes[b].prev = b, a }

func (c *chain) assertNotSentinel(h handle) {
	if h == sentinel {
		panic("sentinel node removal")
	}
}

func (c *chain) GoString() string {
	keys := make([]string, 0, c.len)
	for h := c.head(); !c.end(h); h = c.next(h) {
		keys = append(keys, c.node(h).key)
	}
	return fmt.Sprintf("chain{len:%v, arena:%v, free:%v, keys:%q}", c.len, len(c.nodes), len(c.free), keys)
}

var _ fmt.GoStringer = (*chain)(nil)
