package artifact

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nooterra/trustcore/pkg/errs"
)

const metadataSchemaURL = "https://trustcore.local/schemas/artifact_ref_metadata.json"

const metadataSchemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "contentType": {"type": "string"},
    "sizeBytes": {"type": "integer", "minimum": 0}
  }
}`

var (
	metadataSchemaOnce     sync.Once
	metadataSchemaCompiled *jsonschema.Schema
	metadataSchemaErr      error
)

func compiledMetadataSchema() (*jsonschema.Schema, error) {
	metadataSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(metadataSchemaURL, strings.NewReader(metadataSchemaDoc)); err != nil {
			metadataSchemaErr = err
			return
		}
		metadataSchemaCompiled, metadataSchemaErr = c.Compile(metadataSchemaURL)
	})
	return metadataSchemaCompiled, metadataSchemaErr
}

// validateMetadataSchema structurally pre-validates an ArtifactRef's
// metadata blob against a compiled JSON Schema before it is embedded in
// the normalized Ref. Spec §3 leaves metadata's shape open to callers,
// but any contentType/sizeBytes fields present are still type-checked
// rather than accepted blindly.
func validateMetadataSchema(meta map[string]interface{}) error {
	if meta == nil {
		return nil
	}
	schema, err := compiledMetadataSchema()
	if err != nil {
		return errs.Wrap("ARTIFACT_METADATA_SCHEMA_COMPILE_FAILED", "failed to compile artifact metadata JSON schema", err)
	}
	if err := schema.Validate(meta); err != nil {
		return errs.Wrap("ARTIFACT_METADATA_SCHEMA_INVALID", "artifact metadata failed structural schema validation", err)
	}
	return nil
}
