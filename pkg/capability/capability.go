// Package capability implements CapabilityAttestation.v1 (spec §3,
// component C4), whose distinguishing feature is the two-hash model: a
// signature-payload hash a client can compute before any server-side
// bookkeeping exists, and a full attestationHash that covers the
// complete record. Grounded on the teacher's
// pkg/trust/signature_verifier.go (threshold verification shape) and
// pkg/crypto/canonical.go (pre-sign payload hashing pattern).
// NewAttestationID follows the teacher's pervasive
// `uuid.New().String()` id-generation convenience (e.g.
// pkg/credentials/handlers.go, pkg/tenants/provisioner.go).
package capability

import (
	"crypto/ed25519"

	"github.com/google/uuid"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

var allowedLevels = []string{"self_claim", "attested", "certified"}

// NewAttestationID generates an opaque attestationId for a caller that
// has none of its own. It must be called once and reused across both
// ComputeSignPayloadHash and Build for the same record: attestationId
// is part of the signed payload, so generating it separately at each
// call would sign over a different id than the one Build stores.
func NewAttestationID() string {
	return uuid.New().String()
}

type Validity struct {
	NotBefore string `json:"notBefore"`
	ExpiresAt string `json:"expiresAt"`
}

type Revocation struct {
	RevokedAt  *string `json:"revokedAt"`
	ReasonCode *string `json:"reasonCode"`
}

// Signature is the attestation's own signature envelope. Its nested
// Signature field (the raw Ed25519 bytes) is the one item the §3
// exclusion list calls out by name ("signature.signature"); the rest of
// this struct, like every other non-validity timestamp, is excluded
// from the pre-sign payload by the general timestamp rule.
type Signature struct {
	Algorithm   string `json:"algorithm"`
	KeyID       string `json:"keyId"`
	SignedAt    string `json:"signedAt"`
	PayloadHash string `json:"payloadHash"`
	Signature   string `json:"signature"`
}

// Attestation is the normalized CapabilityAttestation.v1 record.
type Attestation struct {
	AttestationID      string                 `json:"attestationId"`
	TenantID           string                 `json:"tenantId"`
	SubjectAgentID     string                 `json:"subjectAgentId"`
	Capability         string                 `json:"capability"`
	Level              string                 `json:"level"`
	IssuerAgentID      *string                `json:"issuerAgentId"`
	Validity           Validity               `json:"validity"`
	Signature          Signature              `json:"signature"`
	VerificationMethod string                 `json:"verificationMethod,omitempty"`
	EvidenceRefs       []string               `json:"evidenceRefs"`
	Revocation         Revocation             `json:"revocation"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          string                 `json:"createdAt"`
	UpdatedAt          string                 `json:"updatedAt"`
	Revision           int                    `json:"revision"`
	AttestationHash    string                 `json:"attestationHash,omitempty"`
}

// signPayload is the subset of fields the client signs over: everything
// except attestationHash, revision, non-validity timestamps, and the
// not-yet-existing signature envelope itself.
type signPayload struct {
	AttestationID      string                 `json:"attestationId"`
	TenantID           string                 `json:"tenantId"`
	SubjectAgentID     string                 `json:"subjectAgentId"`
	Capability         string                 `json:"capability"`
	Level              string                 `json:"level"`
	IssuerAgentID      *string                `json:"issuerAgentId"`
	Validity           Validity               `json:"validity"`
	VerificationMethod string                 `json:"verificationMethod,omitempty"`
	EvidenceRefs       []string               `json:"evidenceRefs"`
	Revocation         Revocation             `json:"revocation"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Input is the unnormalized set of fields used to build an Attestation.
type Input struct {
	AttestationID      string
	TenantID           string
	SubjectAgentID     string
	Capability         string
	Level              string
	IssuerAgentID      *string
	NotBefore          string
	ExpiresAt          string
	VerificationMethod string
	EvidenceRefs       []string
	Metadata           map[string]interface{}
	CreatedAt          string
	UpdatedAt          string
	Revision           int
}

func normalizeCommon(in Input) (signPayload, error) {
	attestationID, err := normalize.Identifier("attestationId", in.AttestationID, 256)
	if err != nil {
		return signPayload{}, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return signPayload{}, err
	}
	subjectAgentID, err := normalize.Identifier("subjectAgentId", in.SubjectAgentID, 256)
	if err != nil {
		return signPayload{}, err
	}
	capabilityName, err := normalize.NonEmptyString("capability", in.Capability, 256)
	if err != nil {
		return signPayload{}, err
	}
	level, err := normalize.AllowListEnum("level", in.Level, allowedLevels...)
	if err != nil {
		return signPayload{}, err
	}
	var issuerAgentID *string
	if in.IssuerAgentID != nil {
		v, err := normalize.Identifier("issuerAgentId", *in.IssuerAgentID, 256)
		if err != nil {
			return signPayload{}, err
		}
		issuerAgentID = &v
	}
	notBefore, err := normalize.Timestamp("validity.notBefore", in.NotBefore)
	if err != nil {
		return signPayload{}, err
	}
	expiresAt, err := normalize.Timestamp("validity.expiresAt", in.ExpiresAt)
	if err != nil {
		return signPayload{}, err
	}
	meta, err := normalize.PlainObject("metadata", metaOrNil(in.Metadata))
	if err != nil {
		return signPayload{}, err
	}
	evidenceRefs := in.EvidenceRefs
	if evidenceRefs == nil {
		evidenceRefs = []string{}
	}

	return signPayload{
		AttestationID:      attestationID,
		TenantID:           tenantID,
		SubjectAgentID:     subjectAgentID,
		Capability:         capabilityName,
		Level:              level,
		IssuerAgentID:      issuerAgentID,
		Validity:           Validity{NotBefore: notBefore, ExpiresAt: expiresAt},
		VerificationMethod: in.VerificationMethod,
		EvidenceRefs:       evidenceRefs,
		Revocation:         Revocation{},
		Metadata:           meta,
	}, nil
}

// ComputeSignPayloadHash is what a client calls to get the hash it must
// sign before any server-side bookkeeping (createdAt, updatedAt,
// revision, the signature envelope itself) exists.
func ComputeSignPayloadHash(in Input) (string, error) {
	p, err := normalizeCommon(in)
	if err != nil {
		return "", err
	}
	return canonical.HashJSON(p)
}

// Build assembles the full Attestation record once a signature over
// ComputeSignPayloadHash(in) has been produced, and computes
// attestationHash over the complete record.
func Build(in Input, keyID string, signatureBase64 string, signedAt string) (*Attestation, error) {
	p, err := normalizeCommon(in)
	if err != nil {
		return nil, err
	}
	payloadHash, err := canonical.HashJSON(p)
	if err != nil {
		return nil, err
	}
	signedAtNorm, err := normalize.Timestamp("signature.signedAt", signedAt)
	if err != nil {
		return nil, err
	}
	keyIDNorm, err := normalize.NonEmptyString("signature.keyId", keyID, 256)
	if err != nil {
		return nil, err
	}
	sigNorm, err := normalize.NonEmptyString("signature.signature", signatureBase64, 0)
	if err != nil {
		return nil, err
	}

	createdAt, err := normalize.Timestamp("createdAt", in.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := normalize.Timestamp("updatedAt", in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	revision, err := normalize.NonNegativeSafeInt("revision", int64(in.Revision))
	if err != nil {
		return nil, err
	}

	a := &Attestation{
		AttestationID:      p.AttestationID,
		TenantID:           p.TenantID,
		SubjectAgentID:     p.SubjectAgentID,
		Capability:         p.Capability,
		Level:              p.Level,
		IssuerAgentID:      p.IssuerAgentID,
		Validity:           p.Validity,
		Signature:          Signature{Algorithm: "ed25519", KeyID: keyIDNorm, SignedAt: signedAtNorm, PayloadHash: payloadHash, Signature: sigNorm},
		VerificationMethod: p.VerificationMethod,
		EvidenceRefs:       p.EvidenceRefs,
		Revocation:         p.Revocation,
		Metadata:           p.Metadata,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
		Revision:           int(revision),
	}

	hash, err := canonical.HashJSON(withoutAttestationHash(a))
	if err != nil {
		return nil, err
	}
	a.AttestationHash = hash
	return a, nil
}

// VerifySignature checks the attestation's signature against pub. It
// recomputes the sign-payload subset from the record's own fields and
// requires that to match the declared payloadHash before verifying the
// Ed25519 signature, so a field changed after signing (with
// attestationHash recomputed to match) is caught here rather than
// silently verifying a stale signature over a payloadHash that no
// longer describes the record.
func VerifySignature(a *Attestation, pub ed25519.PublicKey) error {
	if a == nil {
		return errs.New("CAPABILITY_ATTESTATION_MISSING", "attestation is nil")
	}
	keyID, err := canonical.DeriveKeyId(pub)
	if err != nil {
		return err
	}
	if keyID != a.Signature.KeyID {
		return errs.New("KEY_MISMATCH", "presented public key does not derive the declared keyId")
	}
	recomputed, err := canonical.HashJSON(recordSignPayload(a))
	if err != nil {
		return err
	}
	if recomputed != a.Signature.PayloadHash {
		return errs.New("CAPABILITY_ATTESTATION_SIGNATURE_PAYLOAD_HASH_MISMATCH", "recomputed sign-payload hash does not match signature.payloadHash")
	}
	return canonical.VerifyEd25519(a.Signature.PayloadHash, a.Signature.Signature, pub)
}

// recordSignPayload reconstructs the signPayload subset from a's
// current field values, the inverse of normalizeCommon's assembly, so
// VerifySignature can bind the signature to what the record actually
// says rather than to its own stale declaration.
func recordSignPayload(a *Attestation) signPayload {
	return signPayload{
		AttestationID:      a.AttestationID,
		TenantID:           a.TenantID,
		SubjectAgentID:     a.SubjectAgentID,
		Capability:         a.Capability,
		Level:              a.Level,
		IssuerAgentID:      a.IssuerAgentID,
		Validity:           a.Validity,
		VerificationMethod: a.VerificationMethod,
		EvidenceRefs:       a.EvidenceRefs,
		Revocation:         a.Revocation,
		Metadata:           a.Metadata,
	}
}

// Validate recomputes attestationHash and compares it to the stored
// value (the C4 verification half of the lifecycle).
func Validate(a *Attestation) error {
	if a == nil {
		return errs.New("CAPABILITY_ATTESTATION_MISSING", "attestation is nil")
	}
	recomputed, err := canonical.HashJSON(withoutAttestationHash(a))
	if err != nil {
		return err
	}
	if recomputed != a.AttestationHash {
		return errs.New("CAPABILITY_ATTESTATION_HASH_MISMATCH", "recomputed attestationHash does not match stored value")
	}
	return nil
}

func withoutAttestationHash(a *Attestation) *Attestation {
	cp := *a
	cp.AttestationHash = ""
	return &cp
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
