//go:build debug
// +build debug

// Gomega should not be dependency in non-debug build.

package cache

import (
	"errors"
	"log"

	"github.com/facebookgo/stackerr"
	. "github.com/onsi/gomega"
)

var debugGomega = NewGomega(func(message string, callerSkip ...int) {
	skip := 1
	if len(callerSkip) > 0 {
		skip += callerSkip[0]
	}
	log.Fatal("FATAL: invariants are broken:", stackerr.WrapSkip(errors.New(message), skip))
})

func (c *chain) checkInvariants() {
	g := debugGomega
	g.Expect(c.nodes).NotTo(BeEmpty(), "no sentinel")
	var live int
	for h := c.head(); !c.end(h); h = c.next(h) {
		live++
		g.Expect(live).To(BeNumerically("<=", c.len), "ring is broken or len is wrong")
		n := c.node(h)
		g.Expect(c.node(n.prev).next).To(Equal(h))
		g.Expect(c.node(n.next).prev).To(Equal(h))
	}
	g.Expect(live).To(Equal(c.len))
	g.Expect(live + len(c.free) + 1).To(Equal(len(c.nodes)), "handles leaked")
}

func (c *LRU) checkInvariants() {
	g := debugGomega
	c.chain.checkInvariants()
	var size int64
	for h := c.chain.head(); !c.chain.end(h); h = c.chain.next(h) {
		n := c.chain.node(h)
		size += n.size()
		ih, ok := c.index[n.key]
		g.Expect(ok).To(BeTrue(), "no index ref to node %q", n.key)
		g.Expect(ih).To(Equal(h), "index refs to another node")
	}
	g.Expect(c.chain.len).To(Equal(len(c.index)), "too many keys in index")
	g.Expect(size).To(Equal(c.size), "size drift")
	g.Expect(c.size).To(BeNumerically("<=", c.maxSize), "overflow")
}
