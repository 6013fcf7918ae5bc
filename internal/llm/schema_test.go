package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceSchemaShape(t *testing.T) {
	data, err := json.Marshal(InvoiceSchema())
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"vendor", "customer", "metadata", "totals", "line_items", "confidence"}, required)

	props := schema["properties"].(map[string]any)

	vendor := props["vendor"].(map[string]any)
	assert.Equal(t, false, vendor["additionalProperties"])
	vendorName := vendor["properties"].(map[string]any)["name"].(map[string]any)
	assert.Equal(t, []any{"string", "null"}, vendorName["type"])

	items := props["line_items"].(map[string]any)
	assert.Equal(t, "array", items["type"])

	item := items["items"].(map[string]any)
	assert.Equal(t, false, item["additionalProperties"])
	itemProps := item["properties"].(map[string]any)
	assert.Equal(t, "string", itemProps["description"].(map[string]any)["type"])
	assert.Equal(t, []any{"number", "null"}, itemProps["tax"].(map[string]any)["type"])

	confidence := props["confidence"].(map[string]any)
	score := confidence["properties"].(map[string]any)["totals"].(map[string]any)
	assert.Equal(t, "integer", score["type"])
}

func TestInvoiceSchemaEveryObjectIsClosed(t *testing.T) {
	data, err := json.Marshal(InvoiceSchema())
	require.NoError(t, err)

	var node map[string]any
	require.NoError(t, json.Unmarshal(data, &node))

	var walk func(n map[string]any)
	walk = func(n map[string]any) {
		if n["type"] == "object" {
			assert.Equal(t, false, n["additionalProperties"], "object node must be closed: %v", n)
		}
		if props, ok := n["properties"].(map[string]any); ok {
			for _, p := range props {
				walk(p.(map[string]any))
			}
		}
		if items, ok := n["items"].(map[string]any); ok {
			walk(items)
		}
	}
	walk(node)
}
