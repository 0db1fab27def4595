package adaptor

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce    sync.Once
	schemaErr     error
	initDataSchem *jsonschema.Schema
	runDataSchema *jsonschema.Schema
)

func compileSchemas() error {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, name := range []string{"init_data.json", "run_data.json"} {
			raw, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemaErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				schemaErr = fmt.Errorf("parse schema %s: %w", name, err)
				return
			}
			if err := c.AddResource(name, doc); err != nil {
				schemaErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		if initDataSchem, schemaErr = c.Compile("init_data.json"); schemaErr != nil {
			return
		}
		runDataSchema, schemaErr = c.Compile("run_data.json")
	})
	return schemaErr
}

// ValidateInitData checks an initialization payload against the adaptor's
// schema. The payload must contain script_file; the optional keys are
// type-checked when present.
func ValidateInitData(initData map[string]any) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	if err := initDataSchem.Validate(toJSONValue(initData)); err != nil {
		return fmt.Errorf("invalid init data: %w", err)
	}
	return nil
}

// ValidateRunData checks a run payload against the adaptor's schema. The
// frame_range string must look like "<start>-<end>" or "<frame>".
func ValidateRunData(runData map[string]any) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	if err := runDataSchema.Validate(toJSONValue(runData)); err != nil {
		return fmt.Errorf("invalid run data: %w", err)
	}
	return nil
}

// toJSONValue normalizes decoded YAML/JSON values into the shapes the schema
// validator expects: string-keyed maps, []any slices, float64 numbers.
func toJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = toJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}
