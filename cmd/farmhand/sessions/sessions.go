// Package sessions implements "farmhand sessions": list recorded render
// sessions from the journal.
package sessions

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"farmhand/cmd/farmhand/cmdutil"
	"farmhand/cmd/farmhand/ui"
	"farmhand/internal/journal"
)

type options struct {
	configPath string
	limit      int
}

func Cmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded render sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (default the user config)")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Show at most this many sessions (0 for all)")
	return cmd
}

func run(opts *options) error {
	cfg, err := cmdutil.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	j, err := journal.Open(cmdutil.JournalPath(cfg))
	if err != nil {
		return err
	}
	defer j.Close()

	sessions, err := j.List(opts.limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println(ui.InfoMsg("no recorded sessions"))
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID,
			s.SceneFile,
			stateText(s.State),
			strconv.Itoa(s.Renders),
			s.StartedAt.Local().Format(time.DateTime),
			durationText(s),
		})
	}
	fmt.Println(ui.Table(
		[]string{"SESSION", "SCENE", "STATE", "RENDERS", "STARTED", "DURATION"},
		rows,
	))
	return nil
}

func stateText(state string) string {
	switch state {
	case journal.StateStopped:
		return ui.SuccessStyle.Render(state)
	case journal.StateFailed:
		return ui.ErrorStyle.Render(state)
	default:
		return ui.AccentStyle.Render(state)
	}
}

func durationText(s journal.Session) string {
	if s.EndedAt.IsZero() {
		return "-"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
}
