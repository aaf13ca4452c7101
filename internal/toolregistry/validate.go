package toolregistry

import (
	"fmt"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
)

// ValidateArguments checks args against a parameter schema. Violations are
// permanent ErrInvalidArguments failures; no network call may follow one.
func ValidateArguments(schema ports.ParameterSchema, args map[string]any) error {
	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: missing required argument %q", finerrors.ErrInvalidArguments, required)
		}
	}

	for name, value := range args {
		prop, ok := schema.Properties[name]
		if !ok {
			return fmt.Errorf("%w: unknown argument %q", finerrors.ErrInvalidArguments, name)
		}
		if err := checkType(name, prop, value); err != nil {
			return err
		}
	}

	return nil
}

func checkType(name string, prop ports.Property, value any) error {
	if value == nil {
		return nil
	}

	switch prop.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return typeError(name, "string", value)
		}
	case "integer":
		// JSON numbers decode as float64; accept whole floats and native ints
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			if v != float64(int64(v)) {
				return typeError(name, "integer", value)
			}
		default:
			return typeError(name, "integer", value)
		}
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return typeError(name, "number", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(name, "boolean", value)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			// Typed slices arriving from Go callers are fine
			switch value.(type) {
			case []string, []int, []float64, []map[string]any:
				return nil
			}
			return typeError(name, "array", value)
		}
		if prop.Items != nil {
			for _, item := range items {
				if err := checkType(name, *prop.Items, item); err != nil {
					return err
				}
			}
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return typeError(name, "object", value)
		}
	}

	if len(prop.Enum) > 0 {
		for _, allowed := range prop.Enum {
			if allowed == value {
				return nil
			}
		}
		return fmt.Errorf("%w: argument %q must be one of %v", finerrors.ErrInvalidArguments, name, prop.Enum)
	}

	return nil
}

func typeError(name, expected string, value any) error {
	return fmt.Errorf("%w: argument %q must be %s, got %T", finerrors.ErrInvalidArguments, name, expected, value)
}
