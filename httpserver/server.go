package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"golang.org/x/sys/unix"

	"lan-share-server/utils"
)

// Lifecycle states.
const (
	stateStopped int32 = iota
	stateStarting
	stateRunning
	stateStopping
)

var (
	// ErrInvalidRoot is returned by Start when the configured root path is
	// missing or not a directory.
	ErrInvalidRoot = errors.New("root path does not exist or is not a directory")
)

// Config holds the immutable settings of one server instance. Zero values
// are replaced with defaults by New.
type Config struct {
	// RootPath is the directory to serve. A "file://" prefix and a trailing
	// slash are stripped.
	RootPath string
	// Port to listen on. 0 picks a free port.
	Port int
	// LocalOnly binds to 127.0.0.1 instead of all interfaces.
	LocalOnly bool
	// PingMessage is the payload returned by GET /ping.
	PingMessage string
	// MaxConnections bounds the number of concurrently handled connections.
	MaxConnections int
	// ChunkSize is the file streaming chunk size in bytes.
	ChunkSize int
	// MaxRequestsPerConn forces Connection: close after this many requests
	// on one keep-alive connection.
	MaxRequestsPerConn int
	// FirstReadTimeout applies to the first request on a connection,
	// IdleTimeout to every request after it.
	FirstReadTimeout time.Duration
	IdleTimeout      time.Duration
	// WriteTimeout is armed before every chunk write so a stalled peer
	// surfaces as a timeout instead of pinning the worker forever.
	WriteTimeout time.Duration
	// AdmitTimeout is how long an accepted connection may wait for a
	// handler permit before it is refused with a 503.
	AdmitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingMessage == "" {
		c.PingMessage = "pong"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 64
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 256 * 1024
	}
	if c.MaxRequestsPerConn <= 0 {
		c.MaxRequestsPerConn = 100
	}
	if c.FirstReadTimeout <= 0 {
		c.FirstReadTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.AdmitTimeout <= 0 {
		c.AdmitTimeout = 5 * time.Second
	}
	return c
}

// Server serves a filesystem subtree over plain HTTP/1.1 with keep-alive,
// chunked file streaming, JSON listing endpoints and a forced-download
// endpoint. All methods are safe to call from the embedding host; Start,
// Stop and ForceCleanup serialize on an internal mutex.
type Server struct {
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex // serializes lifecycle transitions
	state      atomic.Int32
	url        atomic.Value // string
	ln         net.Listener
	fs         billy.Filesystem
	root       string
	sem        chan struct{}
	stopCh     chan struct{}
	acceptDone chan struct{} // closed when the accept loop exits

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	wg sync.WaitGroup
}

// New creates a stopped server. The logger must not be nil.
func New(cfg Config, logger *log.Logger) *Server {
	s := &Server{cfg: cfg.withDefaults(), logger: logger}
	s.url.Store("")
	return s
}

// URL returns the server URL, or "" when stopped.
func (s *Server) URL() string {
	return s.url.Load().(string)
}

// Start binds the listening socket and starts the accept loop. It is
// idempotent: starting an already running server with a healthy listener
// returns the existing URL without rebinding; a half-dead instance is force
// cleaned first so the rebind starts from a known state.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Load() == stateRunning {
		if s.acceptAlive() {
			return s.URL(), nil
		}
		s.forceCleanupLocked()
	} else if s.state.Load() != stateStopped {
		s.forceCleanupLocked()
	}

	root := normalizeRoot(s.cfg.RootPath)
	fi, err := os.Stat(root)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoot, root)
	}

	s.state.Store(stateStarting)
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	if s.cfg.LocalOnly {
		addr = fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	}
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		s.state.Store(stateStopped)
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}

	s.ln = ln
	s.root = root
	s.fs = osfs.New(root)
	s.sem = make(chan struct{}, s.cfg.MaxConnections)
	s.acceptDone = make(chan struct{})
	s.connMu.Lock()
	s.stopCh = make(chan struct{})
	s.conns = make(map[net.Conn]struct{})
	s.connMu.Unlock()

	host := "127.0.0.1"
	if !s.cfg.LocalOnly {
		host = utils.AdvertisedIPv4()
	}
	port := ln.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://%s:%d", host, port)
	s.url.Store(url)
	s.state.Store(stateRunning)

	go s.acceptLoop(ln, s.acceptDone)
	s.logger.Printf("listening on %s, root=%q", url, root)
	return url, nil
}

// Stop closes the listening socket first (unblocking the accept loop and
// freeing the port), then closes in-flight connections and waits for their
// workers. Safe to call when already stopped.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Load() == stateStopped {
		return nil
	}
	s.state.Store(stateStopping)
	s.forceCleanupLocked()
	s.logger.Printf("stopped")
	return nil
}

// IsRunning reports whether the server is serving. It does not trust the
// state flag alone: a dead accept loop marks the instance unhealthy and is
// force cleaned so a later Start gets a fresh bind.
func (s *Server) IsRunning() bool {
	if s.state.Load() != stateRunning {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Load() != stateRunning {
		return false
	}
	if s.acceptAlive() {
		return true
	}
	s.forceCleanupLocked()
	return false
}

// ForceCleanup tears down any listener, connections and workers regardless
// of the current state and resets the server to Stopped.
func (s *Server) ForceCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceCleanupLocked()
}

// acceptAlive reports whether the accept loop is still running. Callers
// hold s.mu.
func (s *Server) acceptAlive() bool {
	if s.ln == nil || s.acceptDone == nil {
		return false
	}
	select {
	case <-s.acceptDone:
		return false
	default:
		return true
	}
}

func (s *Server) forceCleanupLocked() {
	if s.ln != nil {
		s.ln.Close()
	}
	s.connMu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	for c := range s.conns {
		c.Close()
	}
	s.conns = nil // track refuses new connections from here on
	s.connMu.Unlock()
	if s.acceptDone != nil {
		<-s.acceptDone
		s.acceptDone = nil
	}
	s.wg.Wait()
	s.ln = nil
	s.fs = nil
	s.sem = nil
	s.url.Store("")
	s.state.Store(stateStopped)
}

// acceptLoop accepts until the listener is closed. A failed accept ends
// that iteration only; the closed listener is the designed shutdown path.
func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("accept error: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.admit(conn)
	}
}

// admit gates an accepted connection on the handler semaphore. Acceptance
// itself is never gated; a connection that cannot get a permit within the
// admit timeout is refused with a minimal 503 and never reaches the
// request loop. The permit is held for the connection's whole keep-alive
// lifetime and released exactly once.
func (s *Server) admit(conn net.Conn) {
	defer s.wg.Done()
	timer := time.NewTimer(s.cfg.AdmitTimeout)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
	case <-timer.C:
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		writeFull(conn, []byte("HTTP/1.1 503 Service Unavailable\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
		conn.Close()
		return
	case <-s.stopChan():
		conn.Close()
		return
	}
	defer func() { <-s.sem }()
	if !s.trackConn(conn) {
		conn.Close()
		return
	}
	defer s.untrackConn(conn)
	s.handleConn(conn)
}

func (s *Server) stopChan() <-chan struct{} {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.stopCh == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.stopCh
}

// trackConn registers a connection for forced close on shutdown. It fails
// once cleanup has started so no handler outlives forceCleanupLocked.
func (s *Server) trackConn(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
}

// running is the cheap per-request check used by connection workers.
func (s *Server) running() bool {
	return s.state.Load() == stateRunning
}

func normalizeRoot(root string) string {
	root = strings.TrimPrefix(root, "file://")
	for len(root) > 1 && strings.HasSuffix(root, "/") {
		root = root[:len(root)-1]
	}
	return root
}

// reuseAddr sets SO_REUSEADDR on the listening socket so a stop/start
// cycle can rebind the same port immediately.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}
