// Package daemon implements the warm-session commands: a background
// supervisor process holding a started worker, driven over a control socket
// by start/render/stop/status.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"farmhand/adaptor"
	"farmhand/cmd/farmhand/cmdutil"
	"farmhand/cmd/farmhand/ui"
	"farmhand/internal/journal"
	"farmhand/internal/telemetry"
	"farmhand/ipc"
)

type options struct {
	configPath     string
	connectionFile string
	initData       string
	runData        string
	timeout        time.Duration
}

func Cmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage a warm background render session",
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default the user config)")
	cmd.PersistentFlags().StringVar(&opts.connectionFile, "connection-file", "", "Session connection file")

	cmd.AddCommand(runCmd(opts))
	cmd.AddCommand(startCmd(opts))
	cmd.AddCommand(renderCmd(opts))
	cmd.AddCommand(stopCmd(opts))
	cmd.AddCommand(statusCmd(opts))
	return cmd
}

func requireConnectionFile(opts *options) error {
	if opts.connectionFile == "" {
		return fmt.Errorf("the --connection-file flag is required")
	}
	return nil
}

// sessionController adapts the supervisor to the control server, serializing
// renders and counting them in the journal.
type sessionController struct {
	sup       *adaptor.Supervisor
	journal   *journal.Journal
	sessionID string
	shutdown  context.CancelFunc

	mu sync.Mutex
}

func (c *sessionController) Render(ctx context.Context, runData map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := telemetry.Run(ctx, "session.render", func(ctx context.Context) error {
		return c.sup.Run(ctx, runData)
	})
	if err == nil && c.journal != nil {
		if jerr := c.journal.RecordRender(c.sessionID); jerr != nil {
			slog.Warn("record render in journal", "error", jerr)
		}
	}
	return err
}

func (c *sessionController) RequestShutdown() {
	c.shutdown()
}

func (c *sessionController) Status() ipc.SessionStatus {
	last := c.sup.Progress()
	return ipc.SessionStatus{
		Phase:     c.sup.Phase().String(),
		Progress:  last.Progress,
		Message:   last.Message,
		StartedAt: c.sup.StartedAt(),
	}
}

func runCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the session in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConnectionFile(opts); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.initData, "init-data", "", "Init data: inline YAML or file://<path>")
	_ = cmd.MarkFlagRequired("init-data")
	return cmd
}

func runSession(ctx context.Context, opts *options) error {
	cfg, err := cmdutil.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	initData, err := cmdutil.LoadDataArg(opts.initData)
	if err != nil {
		return fmt.Errorf("load init data: %w", err)
	}

	sup := cmdutil.NewSupervisor(cfg)
	if err := telemetry.Run(ctx, "session.start", func(ctx context.Context) error {
		return sup.Start(ctx, initData)
	}); err != nil {
		cleanupErr := cleanupSession(sup)
		if cleanupErr != nil {
			slog.Error("clean up after failed start", "error", cleanupErr)
		}
		return err
	}

	sessionID := fmt.Sprintf("daemon-%d", os.Getpid())
	j, err := journal.Open(cmdutil.JournalPath(cfg))
	if err != nil {
		slog.Warn("open session journal", "error", err)
		j = nil
	}
	defer j.Close()
	if j != nil {
		scene, _ := initData["script_file"].(string)
		if err := j.Begin(sessionID, scene, os.Getpid(), time.Now()); err != nil {
			slog.Warn("record session start in journal", "error", err)
		}
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	ctrl := &sessionController{
		sup:       sup,
		journal:   j,
		sessionID: sessionID,
		shutdown:  cancelServe,
	}

	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("farmhand-ctl-%d.sock", os.Getpid()))
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return ipc.NewControlServer(ctrl).Serve(gctx, socketPath)
	})

	if err := ipc.WaitHealthy(ctx, socketPath, 10*time.Second); err != nil {
		cancelServe()
		_ = g.Wait()
		_ = cleanupSession(sup)
		return err
	}
	if err := writeConnection(opts.connectionFile, Connection{
		PID:       os.Getpid(),
		Socket:    socketPath,
		SessionID: sessionID,
		StartedAt: time.Now(),
	}); err != nil {
		cancelServe()
		_ = g.Wait()
		_ = cleanupSession(sup)
		return err
	}
	slog.Info("session ready", "socket", socketPath, "connection_file", opts.connectionFile)

	<-serveCtx.Done()

	sessionErr := cleanupSession(sup)
	if err := g.Wait(); err != nil && sessionErr == nil {
		sessionErr = err
	}
	_ = os.Remove(opts.connectionFile)

	if j != nil {
		failure := ""
		if sessionErr != nil {
			failure = sessionErr.Error()
		}
		if err := j.End(sessionID, time.Now(), failure); err != nil {
			slog.Warn("record session end in journal", "error", err)
		}
	}
	return sessionErr
}

func cleanupSession(sup *adaptor.Supervisor) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return telemetry.Run(ctx, "session.cleanup", func(ctx context.Context) error {
		return sup.Cleanup(ctx)
	})
}

func startCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the session in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConnectionFile(opts); err != nil {
				return err
			}
			return startSession(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.initData, "init-data", "", "Init data: inline YAML or file://<path>")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 330*time.Second, "How long to wait for the session to come up")
	_ = cmd.MarkFlagRequired("init-data")
	return cmd
}

func startSession(ctx context.Context, opts *options) error {
	if _, err := os.Stat(opts.connectionFile); err == nil {
		if conn, err := readConnection(opts.connectionFile); err == nil && processRunning(conn.PID) {
			return fmt.Errorf("a session is already running (pid %d)", conn.PID)
		}
		_ = os.Remove(opts.connectionFile)
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(opts.connectionFile), 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	logPath := opts.connectionFile + ".log"
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"daemon", "run",
		"--connection-file", opts.connectionFile,
		"--init-data", opts.initData,
	}
	if opts.configPath != "" {
		args = append(args, "--config", opts.configPath)
	}
	proc := exec.Command(exePath, args...)
	proc.Stdout = logFile
	proc.Stderr = logFile
	proc.Stdin = nil
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start session process: %w", err)
	}
	pid := proc.Process.Pid
	_ = proc.Process.Release()

	conn, err := waitConnection(opts.connectionFile, opts.timeout)
	if err != nil {
		return fmt.Errorf("session pid %d did not come up: %w (log: %s)", pid, err, logPath)
	}
	if err := ipc.WaitHealthy(ctx, conn.Socket, 30*time.Second); err != nil {
		return fmt.Errorf("session pid %d is not healthy: %w (log: %s)", pid, err, logPath)
	}

	fmt.Println(ui.SuccessMsg("started session (pid %d)", conn.PID))
	fmt.Print(ui.KeyValues("  ",
		ui.KV("socket", conn.Socket),
		ui.KV("connection file", opts.connectionFile),
		ui.KV("log", logPath),
	))
	return nil
}

func renderCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render through a running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConnectionFile(opts); err != nil {
				return err
			}
			conn, err := readConnection(opts.connectionFile)
			if err != nil {
				return err
			}
			runData, err := cmdutil.LoadDataArg(opts.runData)
			if err != nil {
				return fmt.Errorf("load run data: %w", err)
			}
			if err := ipc.NewControlClient(conn.Socket).Render(cmd.Context(), runData); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("render complete"))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.runData, "run-data", "", "Run data: inline YAML or file://<path>")
	_ = cmd.MarkFlagRequired("run-data")
	return cmd
}

func stopCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConnectionFile(opts); err != nil {
				return err
			}
			return stopSession(cmd.Context(), opts)
		},
	}
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "How long to wait for a graceful exit")
	return cmd
}

func stopSession(ctx context.Context, opts *options) error {
	conn, err := readConnection(opts.connectionFile)
	if err != nil {
		fmt.Println(ui.InfoMsg("no session connection file, nothing to stop"))
		return nil
	}
	if !processRunning(conn.PID) {
		_ = os.Remove(opts.connectionFile)
		fmt.Println(ui.InfoMsg("session pid %d is not running", conn.PID))
		return nil
	}

	if err := ipc.NewControlClient(conn.Socket).Shutdown(ctx); err != nil {
		slog.Warn("shutdown request failed, falling back to signals", "error", err)
	}

	deadline := time.Now().Add(opts.timeout)
	for processRunning(conn.PID) {
		if time.Now().After(deadline) {
			slog.Error("session did not stop in time, sending SIGKILL", "pid", conn.PID)
			if proc, err := os.FindProcess(conn.PID); err == nil {
				_ = proc.Signal(syscall.SIGKILL)
			}
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = os.Remove(opts.connectionFile)
	fmt.Println(ui.SuccessMsg("stopped session (pid %d)", conn.PID))
	return nil
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConnectionFile(opts); err != nil {
				return err
			}
			return showStatus(cmd.Context(), opts)
		},
	}
}

func showStatus(ctx context.Context, opts *options) error {
	conn, err := readConnection(opts.connectionFile)
	if err != nil {
		fmt.Println(ui.InfoMsg("no session connection file"))
		return nil
	}

	running := processRunning(conn.PID)
	healthText := "down"
	var st ipc.SessionStatus
	if running {
		client := ipc.NewControlClient(conn.Socket)
		if err := client.Health(ctx); err == nil {
			healthText = "ok"
			if st, err = client.Status(ctx); err != nil {
				slog.Warn("fetch session status", "error", err)
			}
		}
	}

	pairs := []ui.Pair{
		ui.KV("running", ui.Bool(running)),
		ui.KV("health", healthText),
		ui.KV("pid", strconv.Itoa(conn.PID)),
		ui.KV("socket", conn.Socket),
		ui.KV("started", conn.StartedAt.Format(time.RFC3339)),
	}
	if st.Phase != "" {
		pairs = append(pairs,
			ui.KV("phase", st.Phase),
			ui.KV("progress", fmt.Sprintf("%.2f%%", st.Progress)),
		)
		if st.Message != "" {
			pairs = append(pairs, ui.KV("message", st.Message))
		}
	}
	fmt.Print(ui.KeyValues("", pairs...))

	printJournalSummary(opts, conn.SessionID)
	return nil
}

func printJournalSummary(opts *options, sessionID string) {
	cfg, err := cmdutil.LoadConfig(opts.configPath)
	if err != nil {
		return
	}
	j, err := journal.Open(cmdutil.JournalPath(cfg))
	if err != nil {
		return
	}
	defer j.Close()

	s, ok, err := j.Get(sessionID)
	if err != nil || !ok {
		return
	}
	fmt.Print(ui.KeyValues("",
		ui.KV("scene", s.SceneFile),
		ui.KV("renders", strconv.Itoa(s.Renders)),
		ui.KV("state", s.State),
	))
}
