// Package openapi embeds the OpenAPI document for the users HTTP API.
package openapi

import _ "embed"

// Spec is the OpenAPI 3 document served at /openapi.json.
//
//go:embed user.openapi.json
var Spec []byte
