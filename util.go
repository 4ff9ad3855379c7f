package kvcache

import (
	"net"

	"github.com/skipor/kvcache/internal/util"
)

func unwrap(err error) error {
	return util.Unwrap(err)
}

func isTimeout(err error) bool {
	ne, ok := unwrap(err).(net.Error)
	return ok && ne.Timeout()
}
