// Package artifact implements ArtifactRef.v1, the content-addressed
// handle shared by every other record in this module (spec §3,
// component C3). Grounded on the teacher's
// pkg/canonicalize/artifact_impl.go, which computes a SHA-256 digest
// over arbitrary payload bytes (here emitted as plain lowercase hex,
// with no "sha256:" prefix), and
// pkg/firewall/firewall.go for compiling a github.com/santhosh-tekuri/jsonschema/v5
// schema once and validating an arbitrary map value against it.
package artifact

import (
	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

const SchemaVersion = "ArtifactRef.v1"

// Ref is the normalized ArtifactRef.v1 record.
type Ref struct {
	SchemaVersion string                 `json:"schemaVersion"`
	ArtifactID    string                 `json:"artifactId"`
	ArtifactHash  string                 `json:"artifactHash"`
	ArtifactType  string                 `json:"artifactType,omitempty"`
	TenantID      string                 `json:"tenantId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Input is the unnormalized set of fields a caller supplies to build a Ref.
type Input struct {
	ArtifactID   string
	ArtifactHash string
	ArtifactType string
	TenantID     string
	Metadata     map[string]interface{}
}

// Build normalizes in into a Ref. It does not recompute ArtifactHash
// from a payload; callers that have the payload bytes should use
// HashArtifactPayload and compare, or call BuildFromPayload.
func Build(in Input) (*Ref, error) {
	artifactID, err := normalize.Identifier("artifactId", in.ArtifactID, 256)
	if err != nil {
		return nil, err
	}
	artifactHash, err := normalize.HexSHA256("artifactHash", in.ArtifactHash)
	if err != nil {
		return nil, err
	}
	meta, err := normalize.PlainObject("metadata", metaOrNil(in.Metadata))
	if err != nil {
		return nil, err
	}
	if err := validateMetadataSchema(meta); err != nil {
		return nil, err
	}

	ref := &Ref{
		SchemaVersion: SchemaVersion,
		ArtifactID:    artifactID,
		ArtifactHash:  artifactHash,
		Metadata:      meta,
	}
	if in.ArtifactType != "" {
		at, err := normalize.NonEmptyString("artifactType", in.ArtifactType, 128)
		if err != nil {
			return nil, err
		}
		ref.ArtifactType = at
	}
	if in.TenantID != "" {
		tid, err := normalize.Identifier("tenantId", in.TenantID, 256)
		if err != nil {
			return nil, err
		}
		ref.TenantID = tid
	}
	return ref, nil
}

// BuildFromPayload computes ArtifactHash from payload and builds a Ref
// bound to it, enforcing the spec's binding property by construction.
func BuildFromPayload(in Input, payload []byte) (*Ref, error) {
	in.ArtifactHash = HashArtifactPayload(payload)
	return Build(in)
}

// HashArtifactPayload is the binding function: ArtifactRef.v1's
// artifactHash MUST equal HashArtifactPayload(payload) for the
// reference to be valid (spec §3).
func HashArtifactPayload(payload []byte) string {
	return canonical.SHA256Hex(payload)
}

// VerifyBinding checks the spec §3 invariant
// `hashArtifactPayload(payload) == artifactHash`.
func VerifyBinding(ref *Ref, payload []byte) error {
	if ref == nil {
		return errs.New("ARTIFACT_REF_MISSING", "artifact reference is nil")
	}
	computed := HashArtifactPayload(payload)
	if computed != ref.ArtifactHash {
		return errs.New("ARTIFACT_HASH_MISMATCH", "payload hash does not match artifactHash")
	}
	return nil
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
