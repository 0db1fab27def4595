package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const shutdownGrace = 5 * time.Second

// PathMapper rewrites submitter-side paths into worker-local paths.
type PathMapper interface {
	MapPath(path string) string
}

// identityMapper is used when no path mapping rules are configured.
type identityMapper struct{}

func (identityMapper) MapPath(path string) string { return path }

// Server serves the action queue to the worker process over HTTP on a unix
// socket. The worker polls GET /action; each hit dequeues exactly one action.
type Server struct {
	queue  *Queue
	mapper PathMapper

	mu    sync.Mutex
	bound string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPathMapper sets the path mapping rules served to the worker.
func WithPathMapper(m PathMapper) ServerOption {
	return func(s *Server) { s.mapper = m }
}

func NewServer(q *Queue, opts ...ServerOption) *Server {
	s := &Server{queue: q, mapper: identityMapper{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BoundPath returns the socket path once the server is listening, or "" before.
// The supervisor polls this before exporting the path to the worker's
// environment.
func (s *Server) BoundPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *Server) setBound(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = path
}

// Serve listens on socketPath and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	defer s.setBound("")
	return serveUnix(ctx, socketPath, s.routes(), func() { s.setBound(socketPath) })
}

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.GET("/action", func(c *gin.Context) {
		a, ok := s.queue.Dequeue()
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		slog.Debug("Serving action to worker.", "action", a.Name)
		c.JSON(http.StatusOK, a)
	})

	router.GET("/path_mapping", func(c *gin.Context) {
		path := c.Query("path")
		if path == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing path parameter"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": s.mapper.MapPath(path)})
	})

	return router
}

// serveUnix runs an HTTP server on a unix socket until ctx is cancelled.
// A stale socket file from a previous run is removed before binding; the
// socket file is removed again on the way out. onBound, if set, runs once
// the listener is accepting connections.
func serveUnix(ctx context.Context, socketPath string, handler http.Handler, onBound func()) error {
	_ = os.Remove(socketPath)
	defer func() { _ = os.Remove(socketPath) }()

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", socketPath, err)
	}

	// The socket controls this user's render session only; keep it private.
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket %s: %w", socketPath, err)
	}

	srv := &http.Server{Handler: handler}
	if onBound != nil {
		onBound()
	}

	// Shut down when ctx is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Socket server shutdown failed.", "error", err)
			_ = srv.Close()
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
