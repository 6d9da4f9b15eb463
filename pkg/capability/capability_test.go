package capability

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
)

func baseInput() Input {
	return Input{
		AttestationID:  "attest_1",
		TenantID:       "tenant_1",
		SubjectAgentID: "agent_1",
		Capability:     "search.web",
		Level:          "self_claim",
		NotBefore:      "2025-01-01T00:00:00Z",
		ExpiresAt:      "2026-01-01T00:00:00Z",
		EvidenceRefs:   []string{"ev_1"},
		CreatedAt:      "2025-01-01T00:00:00Z",
		UpdatedAt:      "2025-01-01T00:00:00Z",
		Revision:       0,
	}
}

func TestClientPreSignThenServerBuild(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	in := baseInput()
	payloadHash, err := ComputeSignPayloadHash(in)
	require.NoError(t, err)

	sig, err := canonical.SignEd25519(payloadHash, priv)
	require.NoError(t, err)
	keyID, err := canonical.DeriveKeyId(pub)
	require.NoError(t, err)

	a, err := Build(in, keyID, sig, "2025-01-01T00:00:01Z")
	require.NoError(t, err)
	require.NoError(t, VerifySignature(a, pub))
	require.NoError(t, Validate(a))
}

func TestValidate_DetectsTamperedField(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	in := baseInput()
	payloadHash, err := ComputeSignPayloadHash(in)
	require.NoError(t, err)
	sig, err := canonical.SignEd25519(payloadHash, priv)
	require.NoError(t, err)
	keyID, err := canonical.DeriveKeyId(pub)
	require.NoError(t, err)

	a, err := Build(in, keyID, sig, "2025-01-01T00:00:01Z")
	require.NoError(t, err)

	a.Capability = "search.web.v2"
	err = Validate(a)
	require.Equal(t, "CAPABILITY_ATTESTATION_HASH_MISMATCH", errs.CodeOf(err))
}

func TestVerifySignature_RejectsWrongKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	in := baseInput()
	payloadHash, err := ComputeSignPayloadHash(in)
	require.NoError(t, err)
	sig, err := canonical.SignEd25519(payloadHash, priv)
	require.NoError(t, err)
	keyID, err := canonical.DeriveKeyId(pub)
	require.NoError(t, err)

	a, err := Build(in, keyID, sig, "2025-01-01T00:00:01Z")
	require.NoError(t, err)

	err = VerifySignature(a, otherPub)
	require.Equal(t, "KEY_MISMATCH", errs.CodeOf(err))
}

func TestVerifySignature_RejectsFieldTamperedAfterSigning(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	in := baseInput()
	payloadHash, err := ComputeSignPayloadHash(in)
	require.NoError(t, err)
	sig, err := canonical.SignEd25519(payloadHash, priv)
	require.NoError(t, err)
	keyID, err := canonical.DeriveKeyId(pub)
	require.NoError(t, err)

	a, err := Build(in, keyID, sig, "2025-01-01T00:00:01Z")
	require.NoError(t, err)

	// Tamper a signed field and recompute attestationHash so Validate
	// still passes, but leave signature.payloadHash/signature untouched.
	a.Level = "attested"
	recomputed, err := canonical.HashJSON(withoutAttestationHash(a))
	require.NoError(t, err)
	a.AttestationHash = recomputed
	require.NoError(t, Validate(a))

	err = VerifySignature(a, pub)
	require.Equal(t, "CAPABILITY_ATTESTATION_SIGNATURE_PAYLOAD_HASH_MISMATCH", errs.CodeOf(err))
}

func TestNewAttestationID_ReusedAcrossSignAndBuildStaysConsistent(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	in := baseInput()
	in.AttestationID = NewAttestationID()

	payloadHash, err := ComputeSignPayloadHash(in)
	require.NoError(t, err)
	sig, err := canonical.SignEd25519(payloadHash, priv)
	require.NoError(t, err)
	keyID, err := canonical.DeriveKeyId(pub)
	require.NoError(t, err)

	a, err := Build(in, keyID, sig, "2025-01-01T00:00:01Z")
	require.NoError(t, err)
	require.Equal(t, in.AttestationID, a.AttestationID)
	require.NoError(t, VerifySignature(a, pub))
}
