package client

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"farmhand"
	"farmhand/ipc"
)

func TestPollRunsActionsUntilClose(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "farmhand.sock")

	queue := ipc.NewQueue()
	server := ipc.NewServer(queue)
	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Serve(serverCtx, socketPath) }()

	deadline := time.Now().Add(5 * time.Second)
	for server.BoundPath() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(10 * time.Millisecond)
	}

	scene := filepath.Join(dir, "shot.nk")
	if err := os.WriteFile(scene, []byte("Root {}\n"), 0o644); err != nil {
		t.Fatalf("write scene: %v", err)
	}

	queue.Enqueue(farmhand.Action{
		Name: farmhand.ActionScriptFile,
		Args: map[string]any{"script_file": scene},
	})
	queue.Enqueue(farmhand.Action{
		Name: farmhand.ActionProxy,
		Args: map[string]any{"proxy": true},
	})
	queue.Enqueue(farmhand.Action{
		Name: farmhand.ActionStartRender,
		Args: map[string]any{"frame_range": "1-2"},
	})
	queue.Enqueue(farmhand.Action{Name: farmhand.ActionClose})

	var out bytes.Buffer
	engine := &SimEngine{
		Scene: SimScene{
			Views:      []string{"main"},
			WriteNodes: []WriteNode{{Name: "Write1", Views: []string{"main"}}},
		},
		Out: &out,
	}
	c := &Client{ipc: ipc.NewClient(socketPath), handler: NewHandler(engine, &out, &out)}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if got := queue.Len(); got != 0 {
		t.Errorf("queue not drained: %d actions left", got)
	}
	if text := out.String(); !bytes.Contains(out.Bytes(), []byte("Finished Rendering Frames 1-2")) {
		t.Errorf("render did not run:\n%s", text)
	}
}
