// Package tools defines the framework's tool abstraction: a uniform
// parameter schema, the Tool interface agents execute against, and a
// registry of tool definitions.
package tools

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// ParameterType enumerates the JSON Schema primitive types a tool
// parameter can declare.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// knownParameterTypes guards the mapper's type fallback.
var knownParameterTypes = map[ParameterType]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeInteger: true,
	TypeBoolean: true,
	TypeArray:   true,
	TypeObject:  true,
}

// Parameter describes one tool argument.
type Parameter struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Default     interface{}   `json:"default,omitempty"`
}

// ParameterSchema is the framework's uniform description of a tool's
// arguments, independent of the wire schema it was mapped from.
type ParameterSchema struct {
	Parameters []Parameter `json:"parameters"`
}

// Names returns the parameter names in schema order.
func (s *ParameterSchema) Names() []string {
	names := make([]string, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		names = append(names, p.Name)
	}
	return names
}

// Get returns the parameter with the given name, or false when absent.
func (s *ParameterSchema) Get(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// MapInputSchema converts an MCP tool input schema into the framework's
// parameter schema. Properties are emitted in sorted name order so the
// result is deterministic. Unknown or missing property types fall back
// to string rather than failing the whole tool.
func MapInputSchema(schema mcp.ToolInputSchema) ParameterSchema {
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Parameter, 0, len(names))
	for _, name := range names {
		param := Parameter{
			Name:     name,
			Type:     TypeString,
			Required: required[name],
		}

		if prop, ok := schema.Properties[name].(map[string]interface{}); ok {
			if typ, ok := prop["type"].(string); ok && knownParameterTypes[ParameterType(typ)] {
				param.Type = ParameterType(typ)
			}
			if desc, ok := prop["description"].(string); ok {
				param.Description = desc
			}
			if def, ok := prop["default"]; ok {
				param.Default = def
			}
		}

		params = append(params, param)
	}

	return ParameterSchema{Parameters: params}
}
