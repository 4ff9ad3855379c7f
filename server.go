// Package kvcache is memcached text protocol server over in-memory LRU cache.
package kvcache

import (
	"context"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/skipor/kvcache/cache"
	"github.com/skipor/kvcache/log"
)

const (
	DefaultAddr    = ":11211"
	DefaultTimeout = 5 * time.Second
)

var (
	ErrServerStarted = errors.New("server is already started")
	ErrJoinTimeout   = errors.New("join timeout")
)

const (
	stateStopped int32 = iota
	stateRunning
	stateStopping
)

// Server accepts connections and serves each of them in separate goroutine.
// At most MaxThreads connections are served simultaneously, connections above
// the limit are closed right after accept.
//
// Exported fields should be set before Start and not modified after.
type Server struct {
	ConnMeta
	Log     log.Logger
	Metrics Metrics
	// MaxThreads limits number of simultaneously served connections.
	// Zero means runtime.NumCPU().
	MaxThreads int

	state       int32 // Atomic.
	connCounter int64 // Atomic.

	lifeMu       sync.Mutex // Guards fields below.
	listener     net.Listener
	cancel       context.CancelFunc
	workers      *errgroup.Group
	acceptorDone chan struct{}
	acceptErr    error

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// ConnMeta is data shared between connections.
type ConnMeta struct {
	Cache       cache.Cache
	MaxItemSize int
	// Timeout is connection idle read timeout. Join waits for workers no longer than Timeout.
	Timeout       time.Duration
	InBufferSize  int
	OutBufferSize int
}

// Start listens addr and starts serving it in background.
// Listen error is returned synchronously.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	if atomic.LoadInt32(&s.state) != stateStopped {
		return stackerr.Wrap(ErrServerStarted)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return stackerr.Wrap(err)
	}
	err = s.Serve(ln)
	if err != nil {
		ln.Close()
	}
	return err
}

// Serve starts serving passed listener in background.
// Listener is closed on Stop.
func (s *Server) Serve(l net.Listener) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if !atomic.CompareAndSwapInt32(&s.state, stateStopped, stateRunning) {
		return stackerr.Wrap(ErrServerStarted)
	}
	s.init()
	ctx, cancel := context.WithCancel(context.Background())
	workers := &errgroup.Group{}
	workers.SetLimit(s.MaxThreads)
	done := make(chan struct{})

	s.listener = l
	s.cancel = cancel
	s.workers = workers
	s.acceptorDone = done
	s.acceptErr = nil
	s.connsMu.Lock()
	s.conns = make(map[net.Conn]struct{})
	s.connsMu.Unlock()

	s.Log.Infof("Serving %s.", l.Addr())
	go s.accept(ctx, l, workers, done)
	return nil
}

// Addr returns address server listens, or nil if server never started.
func (s *Server) Addr() net.Addr {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConns returns number of connections being served now.
func (s *Server) ActiveConns() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Stop initiates shutdown: no new connections are accepted and served connections are
// interrupted on next read. Stop does not wait, use Join for that.
func (s *Server) Stop() {
	if !atomic.CompareAndSwapInt32(&s.state, stateRunning, stateStopping) {
		return
	}
	s.lifeMu.Lock()
	cancel, l := s.cancel, s.listener
	s.lifeMu.Unlock()
	s.Log.Info("Stopping.")

	cancel()
	err := l.Close()
	if err != nil {
		s.Log.Warn("Listener close error: ", err)
	}
	now := time.Now()
	s.connsMu.Lock()
	for c := range s.conns {
		if dc, ok := c.(deadliner); ok {
			dc.SetReadDeadline(now)
		}
	}
	s.connsMu.Unlock()
}

// Join waits acceptor exit, and then at most Timeout for served connections close.
// If connections were not closed in time, returned error cause is ErrJoinTimeout.
// Join returns accept error, if it was the reason of stop.
func (s *Server) Join() error {
	s.lifeMu.Lock()
	done, workers := s.acceptorDone, s.workers
	s.lifeMu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	workersDone := make(chan struct{})
	go func() {
		workers.Wait()
		close(workersDone)
	}()
	timer := time.NewTimer(s.Timeout)
	defer timer.Stop()
	select {
	case <-workersDone:
	case <-timer.C:
		active := s.ActiveConns()
		s.Log.Errorf("Join timeout: %v connections still active.", active)
		return stackerr.Wrap(errors.Wrapf(ErrJoinTimeout, "%v connections still active", active))
	}
	atomic.CompareAndSwapInt32(&s.state, stateStopping, stateStopped)
	s.Log.Info("Stopped.")

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.acceptErr
}

func (s *Server) accept(ctx context.Context, l net.Listener, workers *errgroup.Group, done chan struct{}) {
	defer close(done)
	var tempDelay time.Duration // How long to sleep on accept failure.
	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.Log.Debug("Acceptor stopped.")
				return
			}
			if isFatalAcceptErr(err) {
				s.Log.Error("Accept failed: ", err)
				s.lifeMu.Lock()
				s.acceptErr = stackerr.Wrap(err)
				s.lifeMu.Unlock()
				s.Stop()
				return
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := 1 * time.Second; tempDelay > max {
				tempDelay = max
			}
			s.Log.Errorf("Accept error: %v; retrying in %v", err, tempDelay)
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
			}
			continue
		}
		tempDelay = 0
		if !workers.TryGo(func() error {
			s.serveConn(ctx, c)
			return nil
		}) {
			s.Log.Debugf("Too many connections. Connection from %s rejected.", c.RemoteAddr())
			c.Close()
			s.Metrics.ConnRejected()
			continue
		}
		s.Metrics.ConnAccepted()
	}
}

// isFatalAcceptErr reports whether listener can't accept anymore.
// Other net errors, like fd limit reach, are retried with backoff.
func isFatalAcceptErr(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	_, ok := err.(net.Error)
	return !ok
}

func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	id := atomic.AddInt64(&s.connCounter, 1)
	l := s.Log.WithFields(log.Fields{"conn": id, "remote": c.RemoteAddr().String()})
	s.register(c)
	defer s.unregister(c)
	newConn(ctx, l, &s.ConnMeta, c).serve()
}

func (s *Server) register(c net.Conn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	n := len(s.conns)
	s.connsMu.Unlock()
	s.Metrics.ActiveConns(n)
}

func (s *Server) unregister(c net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	n := len(s.conns)
	s.connsMu.Unlock()
	s.Metrics.ActiveConns(n)
}

func (s *Server) init() {
	if s.Log == nil {
		s.Log = log.NewLogger(log.ErrorLevel, os.Stderr)
	}
	if s.Metrics == nil {
		s.Metrics = NoopMetrics{}
	}
	if s.MaxThreads <= 0 {
		s.MaxThreads = runtime.NumCPU()
	}
	s.ConnMeta.init()
}

func (m *ConnMeta) init() {
	if m.Cache == nil {
		m.Cache = cache.NewLocking(cache.Config{})
	}
	if m.MaxItemSize <= 0 {
		m.MaxItemSize = DefaultMaxItemSize
	}
	if m.MaxItemSize > MaxItemSize {
		m.MaxItemSize = MaxItemSize
	}
	if m.Timeout <= 0 {
		m.Timeout = DefaultTimeout
	}
	if m.InBufferSize < MaxCommandSize {
		m.InBufferSize = InBufferSize
	}
	if m.OutBufferSize <= 0 {
		m.OutBufferSize = OutBufferSize
	}
}
