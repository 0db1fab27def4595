package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
)

// SessionStatus is the control-plane snapshot of a background session.
type SessionStatus struct {
	Phase     string    `json:"phase"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// SessionController is what the control server drives on the daemon side.
type SessionController interface {
	// Render runs one render to completion. Blocks for the duration.
	Render(ctx context.Context, runData map[string]any) error
	// RequestShutdown asks the session to clean up and exit. Must not block.
	RequestShutdown()
	// Status reports the current session snapshot.
	Status() SessionStatus
}

// ControlServer exposes a warm background session to the CLI over a second
// unix socket: health, status, render, shutdown.
type ControlServer struct {
	ctrl SessionController
}

func NewControlServer(ctrl SessionController) *ControlServer {
	return &ControlServer{ctrl: ctrl}
}

// Serve listens on socketPath and blocks until ctx is cancelled.
func (s *ControlServer) Serve(ctx context.Context, socketPath string) error {
	return serveUnix(ctx, socketPath, s.routes(), nil)
}

func (s *ControlServer) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ctrl.Status())
	})

	router.POST("/render", func(c *gin.Context) {
		var body struct {
			RunData map[string]any `json:"run_data"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("decode run data: %v", err)})
			return
		}
		if err := s.ctrl.Render(c.Request.Context(), body.RunData); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.ctrl.Status())
	})

	router.POST("/shutdown", func(c *gin.Context) {
		s.ctrl.RequestShutdown()
		c.Status(http.StatusAccepted)
	})

	return router
}

// ControlClient drives a background session from the CLI.
type ControlClient struct {
	httpClient *http.Client
}

func NewControlClient(socketPath string) *ControlClient {
	return &ControlClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					d := net.Dialer{Timeout: connectTimeout}
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Health probes the control socket once.
func (c *ControlClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: unexpected status %s", resp.Status)
	}
	return nil
}

// Status fetches the session snapshot.
func (c *ControlClient) Status(ctx context.Context) (SessionStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SessionStatus{}, fmt.Errorf("fetch status: unexpected status %s", resp.Status)
	}
	var st SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return SessionStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// Render submits run data and blocks until the render completes.
func (c *ControlClient) Render(ctx context.Context, runData map[string]any) error {
	payload, err := json.Marshal(map[string]any{"run_data": runData})
	if err != nil {
		return fmt.Errorf("encode run data: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/render", payload)
	if err != nil {
		return fmt.Errorf("submit render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("render failed: %s", readControlError(resp))
	}
	return nil
}

// Shutdown asks the daemon to clean up and exit.
func (c *ControlClient) Shutdown(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/shutdown", nil)
	if err != nil {
		return fmt.Errorf("request shutdown: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("request shutdown: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *ControlClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	u := url.URL{Scheme: "http", Host: "farmhand", Path: path}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func readControlError(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return resp.Status
}

// WaitHealthy blocks until the control socket answers health checks, with
// exponential backoff bounded by maxElapsed.
func WaitHealthy(ctx context.Context, socketPath string, maxElapsed time.Duration) error {
	client := NewControlClient(socketPath)

	check := func() error {
		return client.Health(ctx)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(1*time.Second),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	if err := backoff.Retry(check, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("wait healthy: session not responding after %s: %w", maxElapsed, err)
	}
	return nil
}
