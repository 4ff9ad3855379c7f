package kvcache

import (
	"io"
	"time"

	"github.com/skipor/kvcache/log"
)

// Config is parsed and validated kvcached configuration.
type Config struct {
	Addr           string
	LogDestination io.Writer
	LogLevel       log.Level
	CacheSize      int64
	// Shards is number of independently locked cache parts. One means single global LRU.
	Shards        int
	MaxItemSize   int
	MaxThreads    int
	Timeout       time.Duration
	InBufferSize  int
	OutBufferSize int
	// MetricsAddr is address of prometheus HTTP endpoint. Empty disables it.
	MetricsAddr string
}
