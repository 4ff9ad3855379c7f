package prom

import (
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skipor/kvcache/cache"
)

var _ = Describe("Adapter", func() {
	var (
		reg *prometheus.Registry
		a   *Adapter
	)
	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		a = New(reg, "kvcache")
	})

	It("counts cache events", func() {
		c := cache.NewLRU(cache.Config{Size: 4, Metrics: a})
		c.Put([]byte("ab"), []byte("cd"))
		c.Get([]byte("ab"))
		c.Get([]byte("xy"))
		c.Put([]byte("ef"), []byte("gh"))

		Expect(testutil.ToFloat64(a.hits)).To(BeEquivalentTo(1))
		Expect(testutil.ToFloat64(a.misses)).To(BeEquivalentTo(1))
		Expect(testutil.ToFloat64(a.evictions)).To(BeEquivalentTo(1))
		Expect(testutil.ToFloat64(a.entries)).To(BeEquivalentTo(1))
		Expect(testutil.ToFloat64(a.bytes)).To(BeEquivalentTo(4))
	})

	It("counts connections", func() {
		a.ConnAccepted()
		a.ConnAccepted()
		a.ConnRejected()
		a.ActiveConns(2)
		a.ActiveConns(1)
		expected := `
# HELP kvcache_server_active_connections Connections being served.
# TYPE kvcache_server_active_connections gauge
kvcache_server_active_connections 1
# HELP kvcache_server_rejected_connections_total Connections closed because of worker limit.
# TYPE kvcache_server_rejected_connections_total counter
kvcache_server_rejected_connections_total 1
`
		err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
			"kvcache_server_active_connections", "kvcache_server_rejected_connections_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(testutil.ToFloat64(a.accepted)).To(BeEquivalentTo(2))
	})

	It("registration conflict panics", func() {
		Expect(func() { New(reg, "kvcache") }).To(Panic())
	})
})
