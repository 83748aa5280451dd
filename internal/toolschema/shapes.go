package toolschema

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// object is a JSON object that marshals its keys in insertion order.
// encoding/json sorts map keys, which would reorder tool parameters.
type object []field

type field struct {
	key   string
	value any
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// typeNamer renders a canonical type name for one provider.
type typeNamer func(schema.ParamType) string

func lowerType(t schema.ParamType) string { return string(t) }
func upperType(t schema.ParamType) string { return strings.ToUpper(string(t)) }

func propertySchema(p schema.Property, name typeNamer) object {
	out := object{{"type", name(p.Type)}}
	if p.Description != "" {
		out = append(out, field{"description", p.Description})
	}
	if len(p.Enum) > 0 {
		out = append(out, field{"enum", p.Enum})
	}
	if p.Type == schema.TypeArray {
		items := schema.Property{Type: schema.TypeString}
		if p.Items != nil {
			items = *p.Items
		}
		out = append(out, field{"items", propertySchema(items, name)})
	}
	return out
}

func parametersSchema(params schema.Parameters, name typeNamer) object {
	props := make(object, 0, len(params.Properties))
	for _, p := range params.Properties {
		props = append(props, field{p.Name, propertySchema(p, name)})
	}
	out := object{
		{"type", name(schema.TypeObject)},
		{"properties", props},
	}
	if len(params.Required) > 0 {
		out = append(out, field{"required", params.Required})
	}
	return out
}

// OpenAI renders defs as function-wrapped tools:
// {"type":"function","function":{"name","description","parameters"}}.
func OpenAI(defs []schema.ToolDefinition) []any {
	out := make([]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, object{
			{"type", "function"},
			{"function", object{
				{"name", d.Name},
				{"description", d.Description},
				{"parameters", parametersSchema(d.Parameters, lowerType)},
			}},
		})
	}
	return out
}

// Anthropic renders defs as flat tools: {"name","description","input_schema"}.
func Anthropic(defs []schema.ToolDefinition) []any {
	out := make([]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, object{
			{"name", d.Name},
			{"description", d.Description},
			{"input_schema", parametersSchema(d.Parameters, lowerType)},
		})
	}
	return out
}

// Google renders defs as a single tool container holding every declaration,
// with uppercase type names. It returns nil when defs is empty.
func Google(defs []schema.ToolDefinition) []any {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]any, 0, len(defs))
	for _, d := range defs {
		decl := object{
			{"name", d.Name},
			{"description", d.Description},
		}
		// Google rejects OBJECT schemas with no properties.
		if len(d.Parameters.Properties) > 0 {
			decl = append(decl, field{"parameters", parametersSchema(d.Parameters, upperType)})
		}
		decls = append(decls, decl)
	}
	return []any{object{{"functionDeclarations", decls}}}
}
