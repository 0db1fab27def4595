// Package runcmd implements "farmhand run": one full render session in the
// foreground, from worker start to cleanup.
package runcmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"farmhand/adaptor"
	"farmhand/cmd/farmhand/cmdutil"
	"farmhand/cmd/farmhand/ui"
	"farmhand/config"
	"farmhand/internal/journal"
	"farmhand/internal/telemetry"
)

type options struct {
	configPath string
	initData   string
	runData    string
}

func Cmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one render session in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (default the user config)")
	cmd.Flags().StringVar(&opts.initData, "init-data", "", "Init data: inline YAML or file://<path>")
	cmd.Flags().StringVar(&opts.runData, "run-data", "", "Run data: inline YAML or file://<path>")
	_ = cmd.MarkFlagRequired("init-data")
	_ = cmd.MarkFlagRequired("run-data")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, err := cmdutil.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	initData, err := cmdutil.LoadDataArg(opts.initData)
	if err != nil {
		return fmt.Errorf("load init data: %w", err)
	}
	runData, err := cmdutil.LoadDataArg(opts.runData)
	if err != nil {
		return fmt.Errorf("load run data: %w", err)
	}

	sup := cmdutil.NewSupervisor(cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-sessionDone:
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, ui.WarnMsg("cancel requested, terminating worker"))
			if err := sup.Cancel(); err != nil {
				slog.Error("cancel worker", "error", err)
			}
		}
	}()

	j := openJournal(cfg)
	defer j.Close()
	sessionID := fmt.Sprintf("run-%d", os.Getpid())
	recordBegin(j, sessionID, initData)

	err = renderSession(ctx, sup, initData, runData, j, sessionID)
	recordEnd(j, sessionID, err)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, ui.SuccessMsg("render complete"))
	return nil
}

func renderSession(ctx context.Context, sup *adaptor.Supervisor, initData, runData map[string]any, j *journal.Journal, sessionID string) error {
	if err := telemetry.Run(ctx, "session.start", func(ctx context.Context) error {
		return sup.Start(ctx, initData)
	}); err != nil {
		cleanup(sup)
		return err
	}

	err := telemetry.Run(ctx, "session.render", func(ctx context.Context) error {
		return sup.Run(ctx, runData)
	})
	if err == nil && j != nil {
		if jerr := j.RecordRender(sessionID); jerr != nil {
			slog.Warn("record render in journal", "error", jerr)
		}
	}

	if cerr := cleanup(sup); err == nil {
		err = cerr
	}
	return err
}

func cleanup(sup *adaptor.Supervisor) error {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return telemetry.Run(cleanupCtx, "session.cleanup", func(ctx context.Context) error {
		return sup.Cleanup(ctx)
	})
}

// openJournal never fails the render over journal problems; a nil journal
// is skipped by the record helpers.
func openJournal(cfg *config.Config) *journal.Journal {
	j, err := journal.Open(cmdutil.JournalPath(cfg))
	if err != nil {
		slog.Warn("open session journal", "error", err)
		return nil
	}
	return j
}

func recordBegin(j *journal.Journal, id string, initData map[string]any) {
	if j == nil {
		return
	}
	scene, _ := initData["script_file"].(string)
	if err := j.Begin(id, scene, os.Getpid(), time.Now()); err != nil {
		slog.Warn("record session start in journal", "error", err)
	}
}

func recordEnd(j *journal.Journal, id string, sessionErr error) {
	if j == nil {
		return
	}
	failure := ""
	if sessionErr != nil {
		failure = sessionErr.Error()
	}
	if err := j.End(id, time.Now(), failure); err != nil {
		slog.Warn("record session end in journal", "error", err)
	}
}
