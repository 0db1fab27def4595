package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"farmhand"
)

const (
	// connectTimeout is the maximum time to wait for one socket connection.
	connectTimeout = 3 * time.Second
	// requestMaxRetryTime is the maximum time to retry a request on
	// transient socket errors before giving up.
	requestMaxRetryTime = 10 * time.Second
)

// Client talks to the adaptor's action server from inside the worker
// process. The socket path comes from the environment the adaptor set up.
type Client struct {
	socketPath string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates an action client for the unix socket at socketPath.
// Requests are retried with exponential backoff on transient socket errors.
func NewClient(socketPath string, opts ...ClientOption) *Client {
	c := &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &retryRoundTripper{
				base: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						d := net.Dialer{Timeout: connectTimeout}
						return d.DialContext(ctx, "unix", socketPath)
					},
				},
				newBackoff: func() backoff.BackOff {
					return backoff.NewExponentialBackOff(
						backoff.WithInitialInterval(100*time.Millisecond),
						backoff.WithMaxInterval(1*time.Second),
						backoff.WithMaxElapsedTime(requestMaxRetryTime),
					)
				},
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NextAction polls the server for the next pending action. ok is false when
// the queue is currently empty.
func (c *Client) NextAction(ctx context.Context) (a farmhand.Action, ok bool, err error) {
	resp, err := c.get(ctx, "/action", nil)
	if err != nil {
		return farmhand.Action{}, false, fmt.Errorf("fetch action: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return farmhand.Action{}, false, nil
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			return farmhand.Action{}, false, fmt.Errorf("decode action: %w", err)
		}
		return a, true, nil
	default:
		return farmhand.Action{}, false, fmt.Errorf("fetch action: unexpected status %s", resp.Status)
	}
}

// MapPath asks the adaptor to rewrite a submitter-side path for this worker.
func (c *Client) MapPath(ctx context.Context, path string) (string, error) {
	resp, err := c.get(ctx, "/path_mapping", url.Values{"path": {path}})
	if err != nil {
		return "", fmt.Errorf("map path: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("map path: unexpected status %s", resp.Status)
	}
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode mapped path: %w", err)
	}
	return body.Path, nil
}

// Health probes the server. A nil error means the server is up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/healthz", nil)
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

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	// The host is ignored; the transport always dials the unix socket.
	u := url.URL{Scheme: "http", Host: "farmhand", Path: path, RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.httpClient.Do(req)
}

// retryRoundTripper retries requests on transient socket errors. Anything
// that is not a net.OpError fails immediately.
type retryRoundTripper struct {
	base       http.RoundTripper
	newBackoff func() backoff.BackOff
}

func (rt *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	attempt := func() (*http.Response, error) {
		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				slog.Debug("Retrying action server request due to socket error.", "error", err)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}
	boff := backoff.WithContext(rt.newBackoff(), req.Context())
	return backoff.RetryWithData(attempt, boff)
}
