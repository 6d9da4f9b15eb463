package paidtool

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nooterra/trustcore/pkg/errs"
)

const manifestSchemaURL = "https://trustcore.local/schemas/paid_tool_manifest.json"

const manifestSchemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "providerId", "defaults", "tools"],
  "properties": {
    "version": {"type": "string", "enum": ["v1", "v2"]},
    "providerId": {"type": "string", "minLength": 1},
    "upstreamBaseUrl": {"type": "string"},
    "publishProofJwksUrl": {"type": "string"},
    "defaults": {
      "type": "object",
      "required": ["amountCents", "currency", "idempotency", "signatureMode"],
      "properties": {
        "amountCents": {"type": "integer", "minimum": 0},
        "currency": {"type": "string"},
        "idempotency": {"type": "string"},
        "signatureMode": {"type": "string"}
      }
    },
    "tools": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["toolId", "paidPath", "method", "pricing"],
        "properties": {
          "toolId": {"type": "string", "minLength": 1},
          "paidPath": {"type": "string", "pattern": "^/"},
          "method": {"type": "string"},
          "pricing": {
            "type": "object",
            "required": ["amountCents", "currency"],
            "properties": {
              "amountCents": {"type": "integer", "minimum": 0},
              "currency": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var (
	manifestSchemaOnce     sync.Once
	manifestSchemaCompiled *jsonschema.Schema
	manifestSchemaErr      error
)

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(manifestSchemaURL, strings.NewReader(manifestSchemaDoc)); err != nil {
			manifestSchemaErr = err
			return
		}
		manifestSchemaCompiled, manifestSchemaErr = c.Compile(manifestSchemaURL)
	})
	return manifestSchemaCompiled, manifestSchemaErr
}

// ValidateManifestDocument structurally pre-validates a raw
// PaidToolManifest JSON document against a compiled JSON Schema before
// Build runs its field-level normalizers. It catches wire-level shape
// errors (wrong types, missing required fields) in one pass instead of
// one normalizer failure at a time.
func ValidateManifestDocument(raw []byte) error {
	schema, err := compiledManifestSchema()
	if err != nil {
		return errs.Wrap("MANIFEST_SCHEMA_COMPILE_FAILED", "failed to compile manifest JSON schema", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errs.Wrap("MANIFEST_DOCUMENT_INVALID_JSON", "manifest document is not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return errs.Wrap("MANIFEST_SCHEMA_VALIDATION_FAILED", "manifest document failed structural schema validation", err)
	}
	return nil
}
