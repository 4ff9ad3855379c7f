// Package config is kvcached input configuration: JSON file and command line flags.
package config

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"

	"github.com/skipor/kvcache"
	"github.com/skipor/kvcache/internal/util"
	"github.com/skipor/kvcache/log"
)

// Parse validates input config and converts it to server config.
func Parse(conf Config) (kconf kvcache.Config, err error) {
	kconf.LogDestination, err = logDestination(conf.LogDestination)
	if err != nil {
		err = stackerr.Newf("Log destination open error: %v", err)
		return
	}
	kconf.LogLevel, err = log.LevelFromString(conf.LogLevel)
	if err != nil {
		err = stackerr.Newf("Log level parse error: %v", err)
		return
	}
	kconf.CacheSize, err = parseSize(conf.CacheSize)
	if err != nil {
		err = stackerr.Newf("Cache size parse error: %v", err)
		return
	}
	var size int64
	size, err = parseSize(conf.MaxItemSize)
	if err != nil {
		err = stackerr.Newf("Max item size parse error: %v", err)
		return
	}
	if size > kvcache.MaxItemSize {
		err = stackerr.Newf("Too large max item size.")
		return
	}
	kconf.MaxItemSize = int(size)
	if conf.InBufferSize != "" {
		size, err = parseSize(conf.InBufferSize)
		if err != nil {
			err = stackerr.Newf("Input buffer size parse error: %v", err)
			return
		}
		if size < kvcache.MaxCommandSize {
			err = stackerr.Newf("Input buffer size should be at least %v.", kvcache.MaxCommandSize)
			return
		}
		kconf.InBufferSize = int(size)
	}
	if conf.OutBufferSize != "" {
		size, err = parseSize(conf.OutBufferSize)
		if err != nil {
			err = stackerr.Newf("Output buffer size parse error: %v", err)
			return
		}
		kconf.OutBufferSize = int(size)
	}
	kconf.Timeout, err = time.ParseDuration(conf.Timeout)
	if err != nil {
		err = stackerr.Newf("Timeout parse error: %v", err)
		return
	}
	if kconf.Timeout <= 0 {
		err = stackerr.Newf("Timeout should be positive.")
		return
	}
	if conf.MaxThreads < 0 {
		err = stackerr.Newf("Max threads should not be negative.")
		return
	}
	kconf.MaxThreads = conf.MaxThreads
	if conf.Shards < 0 {
		err = stackerr.Newf("Shards should not be negative.")
		return
	}
	kconf.Shards = conf.Shards
	kconf.MetricsAddr = conf.MetricsAddr
	kconf.Addr = net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	return
}

func Default() *Config {
	return &Config{
		Port:           11211,
		Host:           "",
		LogDestination: "stderr",
		LogLevel:       "info",
		CacheSize:      "1k",
		MaxItemSize:    "1m",
		Timeout:        "5s",
		Shards:         1,
	}
}

type Config struct {
	Port           int    `json:"port,omitempty"`
	Host           string `json:"host,omitempty"`
	LogDestination string `json:"log-destination,omitempty"` // Stdout, stderr, or filepath.
	LogLevel       string `json:"log-level,omitempty"`
	// Size values 10g, 128m, 1024k, 1000000b
	CacheSize     string `json:"cache-size,omitempty"`
	MaxItemSize   string `json:"max-item-size,omitempty"`
	InBufferSize  string `json:"in-buffer-size,omitempty"`
	OutBufferSize string `json:"out-buffer-size,omitempty"`
	// MaxThreads is max number of simultaneously served connections. Zero means number of CPU.
	MaxThreads int `json:"max-threads,omitempty"`
	// Duration values 500ms, 5s, 1m
	Timeout     string `json:"timeout,omitempty"`
	Shards      int    `json:"shards,omitempty"`
	MetricsAddr string `json:"metrics-addr,omitempty"`
}

// Merge overwrites def values with non zero override values.
func Merge(def, override *Config) {
	defVal := reflect.ValueOf(def).Elem()
	overrideVal := reflect.ValueOf(override).Elem()
	for i, end := 0, defVal.NumField(); i < end; i++ {
		overrideVal := overrideVal.Field(i)
		if !util.IsZeroVal(overrideVal) {
			defVal.Field(i).Set(overrideVal)
		}
	}
}

func Marshal(conf *Config) []byte {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}

func Unmarshal(data []byte, conf *Config) error {
	return stackerr.Wrap(json.Unmarshal(data, conf))
}

func parseSize(s string) (size int64, err error) {
	if len(s) < 2 {
		err = errors.New("invalid size format")
		return
	}
	sep := len(s) - 1
	sizeStr := s[:sep]
	exponentStr := s[sep:]
	var exponent uint32
	switch strings.ToLower(exponentStr) {
	case "b":
		exponent = 0
	case "k":
		exponent = 10
	case "m":
		exponent = 20
	case "g":
		exponent = 30
	default:
		err = errors.New("invalid exponent: only 'b', 'k', 'm', 'g' allowed")
		return
	}
	size, err = strconv.ParseInt(sizeStr, 10, 31)
	if err != nil {
		err = errors.Wrap(err, "size parse error")
		return
	}
	if size < 0 {
		err = errors.New("negative size")
		return
	}
	size <<= exponent
	return
}

func logDestination(dest string) (w io.Writer, err error) {
	switch strings.ToLower(dest) {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		w, err = os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
	return
}
