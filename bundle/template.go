package bundle

import (
	"fmt"
	"sort"

	"farmhand"
	"farmhand/client"
)

const specificationVersion = "jobtemplate-2023-09"

// adaptorCommand is the binary the render step invokes on the worker host.
const adaptorCommand = "farmhand"

// Template is an OpenJD-style job template document.
type Template struct {
	SpecificationVersion string                `yaml:"specificationVersion"`
	Name                 string                `yaml:"name"`
	ParameterDefinitions []ParameterDefinition `yaml:"parameterDefinitions"`
	Steps                []Step                `yaml:"steps"`
}

type ParameterDefinition struct {
	Name          string         `yaml:"name"`
	Type          string         `yaml:"type"`
	ObjectType    string         `yaml:"objectType,omitempty"`
	DataFlow      string         `yaml:"dataFlow,omitempty"`
	UserInterface *UserInterface `yaml:"userInterface,omitempty"`
	Description   string         `yaml:"description,omitempty"`
	Default       string         `yaml:"default,omitempty"`
	AllowedValues []string       `yaml:"allowedValues,omitempty"`
	MinLength     int            `yaml:"minLength,omitempty"`
}

type UserInterface struct {
	Control     string       `yaml:"control"`
	Label       string       `yaml:"label,omitempty"`
	FileFilters []FileFilter `yaml:"fileFilters,omitempty"`
}

type FileFilter struct {
	Label    string   `yaml:"label"`
	Patterns []string `yaml:"patterns"`
}

type Step struct {
	Name             string            `yaml:"name"`
	ParameterSpace   *ParameterSpace   `yaml:"parameterSpace,omitempty"`
	StepEnvironments []StepEnvironment `yaml:"stepEnvironments,omitempty"`
	Script           Script            `yaml:"script"`
}

type ParameterSpace struct {
	TaskParameterDefinitions []TaskParameterDefinition `yaml:"taskParameterDefinitions"`
}

type TaskParameterDefinition struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Range string `yaml:"range"`
}

type StepEnvironment struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Script      Script `yaml:"script"`
}

type Script struct {
	EmbeddedFiles []EmbeddedFile `yaml:"embeddedFiles,omitempty"`
	Actions       Actions        `yaml:"actions"`
}

type EmbeddedFile struct {
	Name     string `yaml:"name"`
	Filename string `yaml:"filename"`
	Type     string `yaml:"type"`
	Runnable bool   `yaml:"runnable,omitempty"`
	Data     string `yaml:"data"`
}

type Actions struct {
	OnEnter *Action `yaml:"onEnter,omitempty"`
	OnExit  *Action `yaml:"onExit,omitempty"`
	OnRun   *Action `yaml:"onRun,omitempty"`
}

type Action struct {
	Command     string       `yaml:"command"`
	Args        []string     `yaml:"args,omitempty"`
	Timeout     int          `yaml:"timeout,omitempty"`
	Cancelation *Cancelation `yaml:"cancelation,omitempty"`
}

type Cancelation struct {
	Mode string `yaml:"mode"`
}

// Action timeouts in seconds. Session startup loads the scene and so gets
// the long budget; teardown is bounded so a wedged worker cannot pin a host.
const (
	startTimeout = 600
	runTimeout   = 0 // unbounded, renders are long
	stopTimeout  = 60
)

const initDataTemplate = `continue_on_error: {{Param.ContinueOnError}}
proxy: {{Param.ProxyMode}}
script_file: '{{Param.NukeScriptFile}}'
version: '{{Param.NukeVersion}}'
write_nodes:
- '{{Param.WriteNode}}'
views:
- '{{Param.View}}'
`

const runDataTemplate = "frame_range: '{{Task.Param.Frame}}'\n"

// BuildTemplate assembles the job template for one submission. nodeNames and
// viewNames populate the dropdown choices; the sentinels are always offered.
func BuildTemplate(settings Settings, nodeNames, viewNames []string) (Template, error) {
	if err := settings.Validate(); err != nil {
		return Template{}, err
	}

	version := ""
	if settings.Version != "" {
		v, err := farmhand.MajorMinor(settings.Version)
		if err != nil {
			return Template{}, fmt.Errorf("build template: %w", err)
		}
		version = v
	}

	cancel := &Cancelation{Mode: "NOTIFY_THEN_TERMINATE"}
	connectionFile := "{{Session.WorkingDirectory}}/connection.json"

	return Template{
		SpecificationVersion: specificationVersion,
		Name:                 settings.Name,
		ParameterDefinitions: parameterDefinitions(version, nodeNames, viewNames),
		Steps: []Step{{
			Name: "Render",
			ParameterSpace: &ParameterSpace{
				TaskParameterDefinitions: []TaskParameterDefinition{
					{Name: "Frame", Type: "INT", Range: "{{Param.Frames}}"},
				},
			},
			StepEnvironments: []StepEnvironment{{
				Name:        "Nuke",
				Description: "Runs Nuke in the background with a script file loaded.",
				Script: Script{
					EmbeddedFiles: []EmbeddedFile{{
						Name:     "initData",
						Filename: "init-data.yaml",
						Type:     "TEXT",
						Data:     initDataTemplate,
					}},
					Actions: Actions{
						OnEnter: &Action{
							Command: adaptorCommand,
							Args: []string{
								"daemon", "start",
								"--connection-file", connectionFile,
								"--init-data", "file://{{Env.File.initData}}",
							},
							Timeout:     startTimeout,
							Cancelation: cancel,
						},
						OnExit: &Action{
							Command: adaptorCommand,
							Args: []string{
								"daemon", "stop",
								"--connection-file", connectionFile,
							},
							Timeout:     stopTimeout,
							Cancelation: cancel,
						},
					},
				},
			}},
			Script: Script{
				EmbeddedFiles: []EmbeddedFile{{
					Name:     "runData",
					Filename: "run-data.yaml",
					Type:     "TEXT",
					Data:     runDataTemplate,
				}},
				Actions: Actions{
					OnRun: &Action{
						Command: adaptorCommand,
						Args: []string{
							"daemon", "render",
							"--connection-file", connectionFile,
							"--run-data", "file://{{Task.File.runData}}",
						},
						Cancelation: cancel,
					},
				},
			},
		}},
	}, nil
}

func parameterDefinitions(version string, nodeNames, viewNames []string) []ParameterDefinition {
	return []ParameterDefinition{
		{
			Name:       "NukeScriptFile",
			Type:       "PATH",
			ObjectType: "FILE",
			DataFlow:   "IN",
			UserInterface: &UserInterface{
				Control: "CHOOSE_INPUT_FILE",
				Label:   "Nuke Script File",
				FileFilters: []FileFilter{
					{Label: "Nuke Script Files", Patterns: []string{"*.nk"}},
					{Label: "All Files", Patterns: []string{"*"}},
				},
			},
			Description: "The Nuke script file to render.",
		},
		{
			Name:        "Frames",
			Type:        "STRING",
			Description: "The frames to render. E.g. 1-3,8,11-15",
			MinLength:   1,
		},
		{
			Name:          "WriteNode",
			Type:          "STRING",
			UserInterface: &UserInterface{Control: "DROPDOWN_LIST", Label: "Write Node"},
			Description:   "Which write node to render ('All Write Nodes' for all of them)",
			Default:       client.AllWriteNodes,
			AllowedValues: withSentinel(client.AllWriteNodes, nodeNames),
		},
		{
			Name:          "View",
			Type:          "STRING",
			UserInterface: &UserInterface{Control: "DROPDOWN_LIST"},
			Description:   "Which view to render ('All Views' for all of them)",
			Default:       client.AllViews,
			AllowedValues: withSentinel(client.AllViews, viewNames),
		},
		{
			Name:          "ProxyMode",
			Type:          "STRING",
			UserInterface: &UserInterface{Control: "CHECK_BOX", Label: "Proxy Mode"},
			Description:   "Render in Proxy Mode.",
			Default:       "false",
			AllowedValues: []string{"true", "false"},
		},
		{
			Name:          "ContinueOnError",
			Type:          "STRING",
			UserInterface: &UserInterface{Control: "CHECK_BOX", Label: "Continue On Error"},
			Description:   "Continue processing when errors occur.",
			Default:       "false",
			AllowedValues: []string{"true", "false"},
		},
		{
			Name:          "NukeVersion",
			Type:          "STRING",
			UserInterface: &UserInterface{Control: "LINE_EDIT", Label: "Nuke Version"},
			Description:   "The version of Nuke.",
			Default:       version,
		},
	}
}

func withSentinel(sentinel string, names []string) []string {
	out := []string{sentinel}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return append(out, sorted...)
}
