// Package serveconn owns the lifecycle of the checkpoint gRPC server: the
// listener, the grpc.Server and the goroutine serving it.
package serveconn

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/DataExMachina-dev/checkpoint-go/internal/server"
)

// This serves as an approximate start time for the process. It is used as part
// of the process fingerprint.
var startTime = time.Now()

// Conn serves the checkpoint service on a listener.
type Conn struct {
	ErrorLogger func(err error)

	processFingerprint string

	// Fields that change in Serve/Close.
	mu struct {
		sync.Mutex
		listener   net.Listener
		grpcServer *grpc.Server
	}

	wg *sync.WaitGroup
}

func New(errorLogger func(err error)) *Conn {
	if errorLogger == nil {
		errorLogger = func(err error) {}
	}
	return &Conn{ErrorLogger: errorLogger}
}

// ProcessFingerprint identifies this process among the ones serving the
// checkpoint service. It is set by Serve.
func (c *Conn) ProcessFingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processFingerprint
}

// Listen listens on addr and serves srv on it. See Serve.
func (c *Conn) Listen(addr string, srv server.CheckpointServiceServer, opts ...grpc.ServerOption) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return c.Serve(l, srv, opts...)
}

// Serve serves srv on l. A goroutine is started to handle incoming RPCs;
// c.Close() should be called to stop it. Serving again closes the previous
// server first.
func (c *Conn) Serve(l net.Listener, srv server.CheckpointServiceServer, opts ...grpc.ServerOption) error {
	c.Close()

	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("failed to generate fingerprint: %w", err)
	}
	s := grpc.NewServer(opts...)
	server.Register(s, srv)

	c.mu.Lock()
	c.processFingerprint = fmt.Sprintf("%s:%d:%d", id, os.Getpid(), startTime.UnixNano())
	c.mu.listener = l
	c.mu.grpcServer = s
	c.mu.Unlock()
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.wg = wg

	go func() {
		defer wg.Done() // unblock Close()
		defer c.closeInner()
		if err := s.Serve(l); err != nil {
			c.ErrorLogger(fmt.Errorf("failed to serve: %w", err))
		}
	}()
	return nil
}

// Addr returns the listening address, or nil when not serving.
func (c *Conn) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mu.listener == nil {
		return nil
	}
	return c.mu.listener.Addr()
}

// Serving reports whether the server goroutine is running.
func (c *Conn) Serving() bool {
	return c.Addr() != nil
}

// Close stops the server. It's a no-op if nothing is being served. Serve() can
// be called again after Close().
func (c *Conn) Close() {
	if !c.Serving() {
		return
	}
	c.closeInner()

	// Synchronize with the goroutine handling RPCs.
	c.wg.Wait()
}

// closeInner stops the server. Unlike Close(), it doesn't wait for the server
// goroutine to terminate.
//
// closeInner might be called concurrently with Close().
func (c *Conn) closeInner() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mu.listener == nil {
		// Already closed.
		return
	}
	c.mu.grpcServer.Stop()
	c.mu.grpcServer = nil
	c.mu.listener = nil
}
