package catalog

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"

	"github.com/tbxark/talkform/form"
)

// Schema describes the slots of a form as a JSON Schema object. Base slots are required;
// enumerated slots carry their accepted values.
func (c *Catalog) Schema(spec *form.Spec) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	for _, name := range spec.Slots() {
		prop := &jsonschema.Schema{Type: "string"}
		if rule, ok := spec.Rule(name); ok {
			prop.Title = rule.DisplayName
			prop.Description = rule.Description
			if p := rule.Predicate; p != nil {
				switch p.Kind {
				case form.PredicateOneOf:
					prop.Enum = toAny(p.Values)
				case form.PredicateRange:
					prop.Pattern = `^\d+-\d+$`
					if prop.Description == "" {
						prop.Description = fmt.Sprintf("Rango mínimo-máximo entre %d y %d", p.Min, p.Max)
					}
				}
			}
		}
		props.Set(name, prop)
	}
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Type:        "object",
		Title:       spec.Title,
		Description: spec.Description,
		Properties:  props,
		Required:    append([]string(nil), spec.Base...),
	}
}

// SchemaJSON renders Schema as a JSON string.
func (c *Catalog) SchemaJSON(name string) (string, error) {
	spec, ok := c.Form(name)
	if !ok {
		return "", fmt.Errorf("unknown form %q", name)
	}
	out, err := sonic.MarshalString(c.Schema(spec))
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	return out, nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
