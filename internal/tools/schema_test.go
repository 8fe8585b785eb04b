package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapInputSchema(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query",
			},
			"limit": map[string]interface{}{
				"type":    "integer",
				"default": float64(10),
			},
			"deep": map[string]interface{}{
				"type": "boolean",
			},
		},
		Required: []string{"query"},
	}

	mapped := MapInputSchema(schema)
	require.Len(t, mapped.Parameters, 3)

	// Sorted name order keeps the mapping deterministic.
	assert.Equal(t, []string{"deep", "limit", "query"}, mapped.Names())

	query, ok := mapped.Get("query")
	require.True(t, ok)
	assert.Equal(t, TypeString, query.Type)
	assert.Equal(t, "Search query", query.Description)
	assert.True(t, query.Required)

	limit, ok := mapped.Get("limit")
	require.True(t, ok)
	assert.Equal(t, TypeInteger, limit.Type)
	assert.False(t, limit.Required)
	assert.Equal(t, float64(10), limit.Default)

	deep, ok := mapped.Get("deep")
	require.True(t, ok)
	assert.Equal(t, TypeBoolean, deep.Type)
}

func TestMapInputSchemaUnknownTypeFallsBackToString(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"weird":    map[string]interface{}{"type": "tuple"},
			"untyped":  map[string]interface{}{"description": "no type at all"},
			"malformed": "not an object",
		},
	}

	mapped := MapInputSchema(schema)
	require.Len(t, mapped.Parameters, 3)
	for _, p := range mapped.Parameters {
		assert.Equal(t, TypeString, p.Type, "parameter %q must fall back to string", p.Name)
	}
}

func TestMapInputSchemaEmpty(t *testing.T) {
	mapped := MapInputSchema(mcp.ToolInputSchema{Type: "object"})
	assert.Empty(t, mapped.Parameters)

	_, ok := mapped.Get("anything")
	assert.False(t, ok)
}
