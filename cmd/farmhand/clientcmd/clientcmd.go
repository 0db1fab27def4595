// Package clientcmd implements the hidden "farmhand client" command: the
// reference worker client driven by the simulated render engine. Useful for
// exercising a supervisor end to end without the real compositor.
package clientcmd

import (
	"github.com/spf13/cobra"

	"farmhand/client"
)

type options struct {
	writeNodes []string
	views      []string
}

func Cmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:    "client",
		Short:  "Run the reference worker client against a session socket",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			socketPath, err := client.SocketPathFromEnv()
			if err != nil {
				return err
			}
			engine := &client.SimEngine{Scene: simScene(opts)}
			return client.New(socketPath, engine).Poll(cmd.Context())
		},
	}

	cmd.Flags().StringSliceVar(&opts.writeNodes, "write-node", []string{"Write1"}, "Simulated write node names")
	cmd.Flags().StringSliceVar(&opts.views, "view", []string{"main"}, "Simulated view names")
	return cmd
}

func simScene(opts *options) client.SimScene {
	scene := client.SimScene{Views: opts.views}
	for i, name := range opts.writeNodes {
		scene.WriteNodes = append(scene.WriteNodes, client.WriteNode{
			Name:        name,
			RenderOrder: i + 1,
			Views:       opts.views,
		})
	}
	return scene
}
