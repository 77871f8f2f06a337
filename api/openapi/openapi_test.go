package openapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type document struct {
	Paths      map[string]map[string]json.RawMessage `json:"paths"`
	Components struct {
		Responses map[string]json.RawMessage `json:"responses"`
	} `json:"components"`
}

type operation struct {
	Responses map[string]json.RawMessage `json:"responses"`
}

func TestSpec_UserRoutesDocumentRateLimit(t *testing.T) {
	var doc document
	require.NoError(t, json.Unmarshal(Spec, &doc))
	require.Contains(t, doc.Components.Responses, "RateLimited")

	for _, path := range []string{"/users", "/users/{user_id}"} {
		item, ok := doc.Paths[path]
		require.True(t, ok, path)

		for method, raw := range item {
			if method == "parameters" {
				continue
			}
			var op operation
			require.NoError(t, json.Unmarshal(raw, &op))
			assert.Contains(t, op.Responses, "429", "%s %s", method, path)
		}
	}
}
