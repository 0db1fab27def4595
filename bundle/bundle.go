package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"farmhand/assets"
	"farmhand/client"
)

// Artifact filenames inside the bundle directory.
const (
	TemplateFile        = "template.yaml"
	ParameterValuesFile = "parameter_values.yaml"
	AssetReferencesFile = "asset_references.yaml"
)

// ParameterValue is one submitted value of a template parameter.
type ParameterValue struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

type parameterValuesDoc struct {
	ParameterValues []ParameterValue `yaml:"parameterValues"`
}

type assetReferencesDoc struct {
	AssetReferences assetReferences `yaml:"assetReferences"`
}

type assetReferences struct {
	Inputs  assetInputs  `yaml:"inputs"`
	Outputs assetOutputs `yaml:"outputs"`
}

type assetInputs struct {
	Filenames   []string `yaml:"filenames"`
	Directories []string `yaml:"directories"`
}

type assetOutputs struct {
	Directories []string `yaml:"directories"`
}

// ParameterValues maps settings onto the template's parameters. Farm-level
// knobs carry the "farm:" prefix so the queue can tell them apart from job
// parameters.
func ParameterValues(settings Settings) []ParameterValue {
	values := []ParameterValue{
		{Name: "farm:priority", Value: settings.Priority},
		{Name: "farm:targetTaskRunStatus", Value: settings.InitialStatus},
		{Name: "farm:maxFailedTasksCount", Value: settings.MaxFailedTasksCount},
		{Name: "farm:maxRetriesPerTask", Value: settings.MaxRetriesPerTask},
		{Name: "NukeScriptFile", Value: settings.SceneFile},
		{Name: "Frames", Value: settings.Frames},
		{Name: "ProxyMode", Value: strconv.FormatBool(settings.ProxyMode)},
		{Name: "ContinueOnError", Value: strconv.FormatBool(settings.ContinueOnError)},
	}
	if settings.WriteNode != "" && settings.WriteNode != client.AllWriteNodes {
		values = append(values, ParameterValue{Name: "WriteNode", Value: settings.WriteNode})
	}
	if settings.View != "" && settings.View != client.AllViews {
		values = append(values, ParameterValue{Name: "View", Value: settings.View})
	}
	if settings.Version != "" {
		values = append(values, ParameterValue{Name: "NukeVersion", Value: settings.Version})
	}
	return values
}

// Write lays down the three bundle artifacts in dir, creating it if needed.
func Write(dir string, settings Settings, nodeNames, viewNames []string, refs assets.References) error {
	template, err := BuildTemplate(settings, nodeNames, viewNames)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle directory: %w", err)
	}

	if err := writeYAML(filepath.Join(dir, TemplateFile), template); err != nil {
		return err
	}
	values := parameterValuesDoc{ParameterValues: ParameterValues(settings)}
	if err := writeYAML(filepath.Join(dir, ParameterValuesFile), values); err != nil {
		return err
	}
	doc := assetReferencesDoc{AssetReferences: assetReferences{
		Inputs: assetInputs{
			Filenames:   emptyNotNil(refs.InputFilenames),
			Directories: emptyNotNil(refs.InputDirectories),
		},
		Outputs: assetOutputs{Directories: emptyNotNil(refs.OutputDirectories)},
	}}
	return writeYAML(filepath.Join(dir, AssetReferencesFile), doc)
}

func writeYAML(path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// emptyNotNil keeps empty reference lists rendering as [] instead of null.
func emptyNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
