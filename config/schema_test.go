package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "cryoview configuration", doc["title"])
	assert.Equal(t, true, doc["additionalProperties"], "extensions must be allowed at the top level")

	props, ok := doc["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"version", "server", "views", "devserver"} {
		assert.Contains(t, props, key)
	}
	assert.NotContains(t, props, "Extensions")
}
