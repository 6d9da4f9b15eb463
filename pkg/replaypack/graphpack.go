package replaypack

import (
	"crypto/ed25519"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// Relationship is one edge in a VerifiedInteractionGraphPack.v1.
type Relationship struct {
	FromAgentID string                 `json:"fromAgentId"`
	ToAgentID   string                 `json:"toAgentId"`
	Kind        string                 `json:"kind"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// GraphPack is the normalized VerifiedInteractionGraphPack.v1 record.
type GraphPack struct {
	GraphID              string                       `json:"graphId"`
	TenantID             string                       `json:"tenantId"`
	Relationships        []Relationship               `json:"relationships"`
	Summary              map[string]interface{}       `json:"summary,omitempty"`
	VerificationMetadata map[string]interface{}       `json:"verificationMetadata,omitempty"`
	PackHash             string                       `json:"packHash,omitempty"`
	Signature            *canonical.SignatureEnvelope `json:"signature,omitempty"`
}

// GraphInput is the unnormalized set of fields used to build a GraphPack.
type GraphInput struct {
	GraphID              string
	TenantID             string
	Relationships        []Relationship
	Summary              map[string]interface{}
	VerificationMetadata map[string]interface{}
}

// BuildGraph normalizes in into a GraphPack and computes packHash. If
// priv is non-nil, the pack is signed, binding the signature to packHash.
func BuildGraph(in GraphInput, priv ed25519.PrivateKey, signedAt string) (*GraphPack, error) {
	graphID, err := normalize.Identifier("graphId", in.GraphID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	relationships := in.Relationships
	if relationships == nil {
		relationships = []Relationship{}
	}
	for i := range relationships {
		if _, err := normalize.Identifier("relationships[].fromAgentId", relationships[i].FromAgentID, 256); err != nil {
			return nil, err
		}
		if _, err := normalize.Identifier("relationships[].toAgentId", relationships[i].ToAgentID, 256); err != nil {
			return nil, err
		}
		if _, err := normalize.NonEmptyString("relationships[].kind", relationships[i].Kind, 128); err != nil {
			return nil, err
		}
	}
	summary, err := normalize.PlainObject("summary", metaOrNil(in.Summary))
	if err != nil {
		return nil, err
	}
	meta, err := normalize.PlainObject("verificationMetadata", metaOrNil(in.VerificationMetadata))
	if err != nil {
		return nil, err
	}

	g := &GraphPack{
		GraphID:              graphID,
		TenantID:             tenantID,
		Relationships:        relationships,
		Summary:              summary,
		VerificationMetadata: meta,
	}

	packHash, err := canonical.HashJSON(withoutGraphPackHash(g))
	if err != nil {
		return nil, err
	}
	g.PackHash = packHash

	if priv != nil {
		env, err := canonical.SignEnvelope(packHash, priv, signedAt)
		if err != nil {
			return nil, err
		}
		g.Signature = env
	}
	return g, nil
}

// ValidateGraph recomputes packHash and, if signed, verifies the
// signature against pub.
func ValidateGraph(g *GraphPack, pub ed25519.PublicKey) error {
	if g == nil {
		return errs.New("VERIFIED_INTERACTION_GRAPH_PACK_MISSING", "pack is nil")
	}
	recomputed, err := canonical.HashJSON(withoutGraphPackHash(g))
	if err != nil {
		return err
	}
	if recomputed != g.PackHash {
		return errs.New("VERIFIED_INTERACTION_GRAPH_PACK_HASH_MISMATCH", "recomputed packHash does not match stored value")
	}
	if g.Signature != nil {
		if pub == nil {
			return errs.New("VERIFIED_INTERACTION_GRAPH_PACK_SIGNATURE_MISSING_KEY", "pack is signed but no public key was presented")
		}
		if err := canonical.VerifyEnvelope(g.PackHash, g.Signature, pub); err != nil {
			return err
		}
	}
	return nil
}

func withoutGraphPackHash(g *GraphPack) *GraphPack {
	cp := *g
	cp.PackHash = ""
	cp.Signature = nil
	return &cp
}
