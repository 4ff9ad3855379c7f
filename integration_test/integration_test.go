package integration

import (
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gexec"

	"github.com/skipor/kvcache"
	"github.com/skipor/kvcache/cmd/kvcached/config"
	"github.com/skipor/kvcache/internal/tag"
	"github.com/skipor/kvcache/internal/util"
	"github.com/skipor/kvcache/testutil"
)

var _ = Describe("Integration", func() {
	BeforeEach(func() {
		if tag.Race {
			Skip("Integration is not running under race detector.")
		}
	})
	const SessionWaitTime = 3 * time.Second
	var (
		confFile   string
		inConf     config.Config  // App config to run.
		serverConf kvcache.Config // Parsed config. Read only.

		session *Session
	)
	BeforeEach(func() {
		ResetTestKeys()
		confFile = testutil.TmpFileName()
		inConf = *config.Default() // Sometimes we want to know defaults.
		inConf.Host = "127.0.0.1"
		inConf.Port = FreePort()
		inConf.LogLevel = "debug"
		inConf.CacheSize = "64m"
		inConf.MaxThreads = 16
		serverConf = kvcache.Config{} // Will be filled in JBE.
	})
	AfterEach(func() {
		os.Remove(confFile)
	})

	StartKVCache := func() {
		var err error
		command := exec.Command(KVCacheCLI, "-config", confFile)
		session, err = Start(command, GinkgoWriter, GinkgoWriter)
		Expect(err).ToNot(HaveOccurred(), "%v", err)
		Eventually(func() error {
			c, err := net.Dial("tcp", serverConf.Addr)
			if err == nil {
				c.Close()
			}
			return err
		}, SessionWaitTime).Should(Succeed())
	}
	JustBeforeEach(func() {
		if !util.IsZero(serverConf) {
			Fail("Test should configure inConf, not serverConfig.")
		}
		var err error
		serverConf, err = config.Parse(inConf)
		Expect(err).NotTo(HaveOccurred())
		err = os.WriteFile(confFile, config.Marshal(&inConf), 0600)
		Expect(err).NotTo(HaveOccurred())
		StartKVCache()
	})
	AfterEach(func() {
		session.Terminate().Wait(SessionWaitTime)
	})

	Context("simple requests", func() {
		var (
			c   *memcache.Client
			err error
		)
		JustBeforeEach(func() {
			c = memcache.New(serverConf.Addr)
		})
		It("get what set", func() {
			set := RandSizeItem()
			err = c.Set(set)
			Expect(err).To(BeNil())
			get, err := c.Get(set.Key)
			Expect(err).To(BeNil())
			ExpectItemsEqual(get, set)
			Expect(get.Flags).To(BeZero())
		})

		It("overwrite", func() {
			set := RandSizeItem()
			overwrite := RandSizeItem()
			overwrite.Key = set.Key
			err = c.Set(set)
			Expect(err).To(BeNil())
			err = c.Set(overwrite)
			Expect(err).To(BeNil())

			get, err := c.Get(set.Key)
			Expect(err).To(BeNil())
			ExpectItemsEqual(get, overwrite)
		})

		It("add and replace", func() {
			it := RandSizeItem()
			Expect(c.Replace(it)).To(Equal(memcache.ErrNotStored))
			Expect(c.Add(it)).To(Succeed())
			Expect(c.Add(it)).To(Equal(memcache.ErrNotStored))
			replace := RandSizeItem()
			replace.Key = it.Key
			Expect(c.Replace(replace)).To(Succeed())
			get, err := c.Get(it.Key)
			Expect(err).To(BeNil())
			ExpectItemsEqual(get, replace)
		})

		It("delete", func() {
			set := RandSizeItem()
			err = c.Set(set)
			Expect(err).To(BeNil())

			err = c.Delete(set.Key)
			Expect(err).To(BeNil())
			_, err = c.Get(set.Key)
			Expect(err).To(Equal(memcache.ErrCacheMiss))
			err = c.Delete(set.Key)
			Expect(err).To(Equal(memcache.ErrCacheMiss))
		})

		It("multi get", func() {
			var keys []string
			items := map[string]*memcache.Item{}
			for i := 0; i < 10; i++ {
				i := RandSizeItem()
				keys = append(keys, i.Key)
				items[i.Key] = i
				err = c.Set(i)
				Expect(err).To(BeNil())
			}
			gotItems, err := c.GetMulti(keys)
			Expect(err).To(BeNil())
			Expect(len(gotItems)).To(Equal(len(items)))
			for k, v := range gotItems {
				ExpectItemsEqual(v, items[k])
			}
		})
	})

	Context("small cache", func() {
		var c *memcache.Client
		BeforeEach(func() {
			inConf.CacheSize = "1k"
		})
		JustBeforeEach(func() {
			c = memcache.New(serverConf.Addr)
		})
		It("least recently set evicted", func() {
			first, second, third := NewItem(400), NewItem(400), NewItem(400)
			Expect(c.Set(first)).To(Succeed())
			Expect(c.Set(second)).To(Succeed())
			_, err := c.Get(first.Key) // Get does not protect from eviction.
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Set(third)).To(Succeed())

			_, err = c.Get(first.Key)
			Expect(err).To(Equal(memcache.ErrCacheMiss))
			for _, it := range []*memcache.Item{second, third} {
				get, err := c.Get(it.Key)
				Expect(err).NotTo(HaveOccurred())
				ExpectItemsEqual(get, it)
			}
		})
		It("too large for cache item rejected", func() {
			set := RandSizeItem()
			Expect(c.Set(set)).To(Succeed())
			Expect(c.Set(NewItem(1 << 10))).NotTo(Succeed())
			get, err := c.Get(set.Key)
			Expect(err).NotTo(HaveOccurred())
			ExpectItemsEqual(get, set)
		})
	})

	Context("one thread", func() {
		BeforeEach(func() {
			inConf.MaxThreads = 1
		})
		It("second connection rejected", func() {
			buf := make([]byte, len(kvcache.EndResponse+kvcache.Separator))
			var first net.Conn
			// Start probe connection may be still served.
			Eventually(func() error {
				c, err := net.Dial("tcp", serverConf.Addr)
				if err != nil {
					return err
				}
				c.SetDeadline(time.Now().Add(time.Second))
				_, err = io.WriteString(c, "get x\r\n")
				if err == nil {
					_, err = io.ReadFull(c, buf)
				}
				if err != nil {
					c.Close()
					return err
				}
				first = c
				return nil
			}, SessionWaitTime).Should(Succeed())
			defer first.Close()

			second, err := net.Dial("tcp", serverConf.Addr)
			Expect(err).NotTo(HaveOccurred())
			defer second.Close()
			second.SetReadDeadline(time.Now().Add(time.Second))
			_, err = second.Read(buf)
			Expect(err).To(HaveOccurred())
			ne, ok := err.(net.Error)
			Expect(ok && ne.Timeout()).To(BeFalse(), "connection was not closed by server")
		})
	})

	Context("metrics", func() {
		var metricsAddr string
		BeforeEach(func() {
			metricsAddr = net.JoinHostPort("127.0.0.1", strconv.Itoa(FreePort()))
			inConf.MetricsAddr = metricsAddr
		})
		It("exported", func() {
			c := memcache.New(serverConf.Addr)
			_, err := c.Get("no_such_key")
			Expect(err).To(Equal(memcache.ErrCacheMiss))
			var body []byte
			Eventually(func() error {
				resp, err := http.Get("http://" + metricsAddr + "/metrics")
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				body, err = io.ReadAll(resp.Body)
				return err
			}).Should(Succeed())
			Expect(string(body)).To(ContainSubstring("kvcache_cache_misses_total 1"))
			Expect(string(body)).To(ContainSubstring("kvcache_server_accepted_connections_total"))
		})
	})

	Context("load", func() {
		BeforeEach(func() {
			inConf.LogLevel = "info" // Too large debug output.
			inConf.MaxThreads = 64
			inConf.Shards = 8
		})
		It("", func() {
			LoadTest(serverConf.Addr)
		})
	})

	It("handle terminate", func() {
		session.Terminate().Wait(SessionWaitTime)
		Expect(session).To(Exit(0))
	})

	It("handle interrupt", func() {
		session.Interrupt().Wait(SessionWaitTime)
		Expect(session).To(Exit(0))
	})

	It("stops with connected idle client", func() {
		c, err := net.Dial("tcp", serverConf.Addr)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()
		session.Interrupt().Wait(SessionWaitTime)
		Expect(session).To(Exit(0))
	})

	Context("invalid config", func() {
		It("fails on start", func() {
			session.Terminate().Wait(SessionWaitTime)
			command := exec.Command(KVCacheCLI, "-config", confFile, "-cache-size", "xxx")
			session, err := Start(command, GinkgoWriter, GinkgoWriter)
			Expect(err).NotTo(HaveOccurred())
			session.Wait(SessionWaitTime)
			Expect(session).To(Exit(1))
			Expect(session.Err.Contents()).To(ContainSubstring("FATAL"))
		})
	})
})
