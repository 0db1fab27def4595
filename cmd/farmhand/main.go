package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"farmhand/cmd/farmhand/clientcmd"
	"farmhand/cmd/farmhand/daemon"
	"farmhand/cmd/farmhand/runcmd"
	"farmhand/cmd/farmhand/sessions"
	"farmhand/cmd/farmhand/submit"
	"farmhand/cmd/farmhand/ui"
	"farmhand/internal/logging"
)

func main() {
	var (
		logLevel string
		plain    bool
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "farmhand",
		Short:         "Render-farm integration for Nuke: job submission and worker supervision",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Configure(logLevel); err != nil {
				return err
			}
			ui.ConfigureColor(plain)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", logging.LevelWarn, "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&plain, "plain", false, "Disable styled output")

	root.AddCommand(submit.Cmd())
	root.AddCommand(runcmd.Cmd())
	root.AddCommand(daemon.Cmd())
	root.AddCommand(sessions.Cmd())
	root.AddCommand(clientcmd.Cmd())

	telemetry := ui.InstallTelemetry()
	err := root.Execute()
	telemetry.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}
