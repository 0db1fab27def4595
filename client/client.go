// Package client implements the worker side of the action protocol: it
// polls the adaptor's action server, dispatches each action to the render
// engine, and exits on the close action. The production worker runs the
// compositor's own scripting client; this package is the reference
// implementation used by the hidden client command and by tests.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"farmhand"
	"farmhand/ipc"
)

// emptyQueuePoll is how long the client sleeps when the adaptor has no
// pending action.
const emptyQueuePoll = 100 * time.Millisecond

// Client polls the adaptor for actions and runs them against an engine.
type Client struct {
	ipc     *ipc.Client
	handler *Handler
}

// New builds a client for the action server at socketPath.
func New(socketPath string, engine Engine) *Client {
	return &Client{
		ipc:     ipc.NewClient(socketPath),
		handler: NewHandler(engine, os.Stdout, os.Stderr),
	}
}

// SocketPathFromEnv reads the action-server socket path the adaptor
// exported into this process's environment.
func SocketPathFromEnv() (string, error) {
	path := os.Getenv(farmhand.EnvServerPath)
	if path == "" {
		return "", fmt.Errorf("cannot connect to the adaptor: environment variable %s is not set", farmhand.EnvServerPath)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot connect to the adaptor: socket %s from %s does not exist: %w",
			path, farmhand.EnvServerPath, err)
	}
	return path, nil
}

// Poll fetches and runs actions until the close action arrives or an
// action fails. Actions run strictly in delivery order.
func (c *Client) Poll(ctx context.Context) error {
	for {
		a, ok, err := c.ipc.NextAction(ctx)
		if err != nil {
			return fmt.Errorf("poll actions: %w", err)
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(emptyQueuePoll):
			}
			continue
		}

		slog.Debug("Running action.", "action", a.Name)
		if a.Name == farmhand.ActionClose {
			if err := c.handler.Close(); err != nil {
				slog.Error("Close failed.", "error", err)
			}
			return nil
		}
		if err := c.handler.Dispatch(a); err != nil {
			fmt.Fprintf(os.Stderr, "NukeClient: Error: %v\n", err)
			return err
		}
	}
}
