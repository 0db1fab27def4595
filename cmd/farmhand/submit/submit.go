// Package submit implements "farmhand submit": scan a scene, assemble the
// job bundle, and remember the submission settings beside the scene.
package submit

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"farmhand/assets"
	"farmhand/bundle"
	"farmhand/cmd/farmhand/ui"
	"farmhand/internal/telemetry"
)

type options struct {
	output          string
	name            string
	frames          string
	writeNode       string
	view            string
	proxyMode       bool
	continueOnError bool
	version         string
	priority        int
	noSticky        bool
}

func Cmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "submit <scene.nk>",
		Short: "Build a job bundle for a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Bundle output directory (default <scene>_bundle)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Job name (default scene file name)")
	cmd.Flags().StringVar(&opts.frames, "frames", "", "Frame range, e.g. 1-100")
	cmd.Flags().StringVar(&opts.writeNode, "write-node", "", "Write node to render (default all)")
	cmd.Flags().StringVar(&opts.view, "view", "", "View to render (default all)")
	cmd.Flags().BoolVar(&opts.proxyMode, "proxy", false, "Render in proxy mode")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", true, "Keep rendering after node errors")
	cmd.Flags().StringVar(&opts.version, "nuke-version", "", "Worker version, e.g. 15.1v3")
	cmd.Flags().IntVar(&opts.priority, "priority", 0, "Job priority 0-100 (default from sticky settings)")
	cmd.Flags().BoolVar(&opts.noSticky, "no-sticky", false, "Do not load or save sticky settings")

	return cmd
}

func run(cmd *cobra.Command, opts *options, sceneFile string) error {
	op := telemetry.StartOperation(cmd.Context(), "submit")
	err := submit(cmd, opts, sceneFile)
	op.End(err)
	return err
}

func submit(cmd *cobra.Command, opts *options, sceneFile string) error {
	sceneFile, err := filepath.Abs(sceneFile)
	if err != nil {
		return fmt.Errorf("resolve scene path: %w", err)
	}

	settings := bundle.DefaultSettings(sceneFile)
	if !opts.noSticky {
		settings, err = bundle.LoadSticky(sceneFile)
		if err != nil {
			return err
		}
	}
	applyFlags(cmd, opts, &settings)
	if err := settings.Validate(); err != nil {
		return err
	}

	refs, err := assets.Scan(sceneFile)
	if err != nil {
		return err
	}
	nodes, views, err := sceneChoices(sceneFile)
	if err != nil {
		return err
	}

	dir := opts.output
	if dir == "" {
		dir = sceneFile[:len(sceneFile)-len(filepath.Ext(sceneFile))] + "_bundle"
	}
	if err := bundle.Write(dir, settings, nodes, views, refs); err != nil {
		return err
	}
	if !opts.noSticky {
		if err := bundle.SaveSticky(settings); err != nil {
			return err
		}
	}

	fmt.Println(ui.SuccessMsg("wrote job bundle for %s", ui.Bold(settings.Name)))
	fmt.Print(ui.KeyValues("  ",
		ui.KV("bundle", dir),
		ui.KV("scene", sceneFile),
		ui.KV("frames", settings.Frames),
		ui.KV("write node", settings.WriteNode),
		ui.KV("view", settings.View),
		ui.KV("inputs", fmt.Sprintf("%d files, %d directories",
			len(refs.InputFilenames), len(refs.InputDirectories))),
		ui.KV("outputs", fmt.Sprintf("%d directories", len(refs.OutputDirectories))),
	))
	return nil
}

func applyFlags(cmd *cobra.Command, opts *options, settings *bundle.Settings) {
	set := cmd.Flags().Changed
	if set("name") {
		settings.Name = opts.name
	}
	if set("frames") {
		settings.Frames = opts.frames
	}
	if set("write-node") {
		settings.WriteNode = opts.writeNode
	}
	if set("view") {
		settings.View = opts.view
	}
	if set("proxy") {
		settings.ProxyMode = opts.proxyMode
	}
	if set("continue-on-error") {
		settings.ContinueOnError = opts.continueOnError
	}
	if set("nuke-version") {
		settings.Version = opts.version
	}
	if set("priority") {
		settings.Priority = opts.priority
	}
}

// sceneChoices lists the write node and view names the scene offers, for
// the template's dropdown values.
func sceneChoices(sceneFile string) (nodes, views []string, err error) {
	parsed, err := assets.Parse(sceneFile)
	if err != nil {
		return nil, nil, err
	}
	for _, n := range parsed {
		switch n.Class {
		case "Write", "DeepWrite", "WriteGeo":
			if name := n.Knobs["name"]; name != "" {
				nodes = append(nodes, name)
			}
		case "Root":
			// Single-line form only: views {left right}. The multi-line
			// colored form still renders through the sentinel.
			v := strings.TrimSpace(n.Knobs["views"])
			if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") {
				views = append(views, strings.Fields(strings.Trim(v, "{}"))...)
			}
		}
	}
	return nodes, views, nil
}
