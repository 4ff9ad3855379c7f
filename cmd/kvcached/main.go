package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skipor/kvcache"
	"github.com/skipor/kvcache/cache"
	"github.com/skipor/kvcache/cmd/kvcached/config"
	"github.com/skipor/kvcache/internal/tag"
	"github.com/skipor/kvcache/log"
	"github.com/skipor/kvcache/metrics/prom"
)

const usage = `
Config values merge rules:
1) config file value overrides default
2) command line value overrides any
Options:
`

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s", usage)
		flag.PrintDefaults()
	}
}

func main() {
	conf := parseConfig()
	l := log.NewLogger(conf.LogLevel, conf.LogDestination)
	l.Debugf("Config: %#v", conf)
	if tag.Debug {
		l.Warn("Using debug build. It has more runtime checks and large performance overhead.")
	}

	var cacheMetrics cache.Metrics = cache.NoopMetrics{}
	var serverMetrics kvcache.Metrics = kvcache.NoopMetrics{}
	if conf.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m := prom.New(reg, "kvcache")
		cacheMetrics, serverMetrics = m, m
		go serveMetrics(l, conf.MetricsAddr, reg)
	}

	s := &kvcache.Server{
		ConnMeta: kvcache.ConnMeta{
			Cache:         newCache(conf, cacheMetrics),
			MaxItemSize:   conf.MaxItemSize,
			Timeout:       conf.Timeout,
			InBufferSize:  conf.InBufferSize,
			OutBufferSize: conf.OutBufferSize,
		},
		Log:        l,
		Metrics:    serverMetrics,
		MaxThreads: conf.MaxThreads,
	}
	err := s.Start(conf.Addr)
	if err != nil {
		l.Fatal("Start error: ", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		l.Infof("Got %s. Shutting down.", sig)
		s.Stop()
	}()

	err = s.Join()
	if err != nil {
		l.Fatal("Shutdown error: ", err)
	}
}

func newCache(conf kvcache.Config, m cache.Metrics) cache.Cache {
	cconf := cache.Config{Size: conf.CacheSize, Metrics: m}
	if conf.Shards > 1 {
		return cache.NewSharded(conf.Shards, cconf)
	}
	return cache.NewLocking(cconf)
}

func serveMetrics(l log.Logger, addr string, g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	l.Infof("Serving metrics on %s.", addr)
	err := http.ListenAndServe(addr, mux)
	l.Error("Metrics server error: ", err)
}

// parseConfig parses command flags, reads config file if any, returns merged config.
func parseConfig() kvcache.Config {
	l := log.NewLogger(log.DebugLevel, os.Stderr)
	flg := parseFlags()
	conf := config.Default()
	if flg.ConfigPath != "" {
		data, err := os.ReadFile(flg.ConfigPath)
		if err != nil {
			l.Fatal("Config file read error: ", err)
		}
		fileConf := &config.Config{}
		err = config.Unmarshal(data, fileConf)
		if err != nil {
			l.Fatal("Config parse error: ", err)
		}
		config.Merge(conf, fileConf)
	}
	config.Merge(conf, &flg.Config)
	parsed, err := config.Parse(*conf)
	if err != nil {
		l.Fatal("Invalid config: ", err)
	}
	return parsed
}

type Flags struct {
	ConfigPath string
	config.Config
}

func parseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "", "path to json config")

	def := config.Default()
	usage := func(usage string, defVal interface{}) string {
		if _, ok := defVal.(string); ok {
			usage += fmt.Sprintf(" (default %q)", defVal)
		} else {
			usage += fmt.Sprintf(" (default %v)", defVal)
		}
		return usage
	}
	flag.StringVar(&f.Host, "host", "", usage("host address to bind", def.Host))
	flag.IntVar(&f.Port, "port", 0, usage("port num", def.Port))
	flag.StringVar(&f.LogDestination, "log-destination", "", usage("log destination: stderr, stdout or file path", def.LogDestination))
	flag.StringVar(&f.LogLevel, "log-level", "", usage("log level: debug, info, warn, error, fatal", def.LogLevel))
	flag.StringVar(&f.CacheSize, "cache-size", "", usage("cache size in bytes of keys and values: 2g, 64m", def.CacheSize))
	flag.StringVar(&f.MaxItemSize, "max-item-size", "", usage("max item size: 10m, 1024k", def.MaxItemSize))
	flag.StringVar(&f.InBufferSize, "in-buffer-size", "", "connection input buffer size: 16k")
	flag.StringVar(&f.OutBufferSize, "out-buffer-size", "", "connection output buffer size: 16k")
	flag.IntVar(&f.MaxThreads, "max-threads", 0, "max simultaneously served connections (default number of CPU)")
	flag.StringVar(&f.Timeout, "timeout", "", usage("connection idle timeout and shutdown wait limit", def.Timeout))
	flag.IntVar(&f.Shards, "shards", 0, usage("number of independently locked cache parts", def.Shards))
	flag.StringVar(&f.MetricsAddr, "metrics-addr", "", "address to serve prometheus /metrics on; disabled if empty")
	flag.Parse()
	return f
}
