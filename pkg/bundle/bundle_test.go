package bundle

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
)

func baseFiles() map[string][]byte {
	return map[string][]byte{
		"nooterra.json":                       []byte(`{"v":1}`),
		"events/events.jsonl":                 []byte("{\"e\":1}\n"),
		"verify/verification_report.json":     []byte(`{"ok":true}`),
	}
}

func TestBuildManifest_ExcludesVerifyFromHash(t *testing.T) {
	files := baseFiles()
	m1, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: files})
	require.NoError(t, err)

	mutated := baseFiles()
	mutated["verify/verification_report.json"] = []byte(`{"ok":false,"extra":"data"}`)
	m2, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: mutated})
	require.NoError(t, err)

	require.Equal(t, m1.ManifestHash, m2.ManifestHash)
	for _, f := range m1.Files {
		require.NotEqual(t, "verify/verification_report.json", f.Name)
	}
}

func TestBuildManifest_ChangesHashWhenNonVerifyFileMutates(t *testing.T) {
	files := baseFiles()
	m1, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: files})
	require.NoError(t, err)

	mutated := baseFiles()
	mutated["events/events.jsonl"] = []byte("{\"e\":2}\n")
	m2, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: mutated})
	require.NoError(t, err)

	require.NotEqual(t, m1.ManifestHash, m2.ManifestHash)
}

func TestBuildManifest_SortsFilesByPath(t *testing.T) {
	m, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: baseFiles()})
	require.NoError(t, err)
	require.Equal(t, "events/events.jsonl", m.Files[0].Name)
	require.Equal(t, "nooterra.json", m.Files[1].Name)
}

func TestValidateManifest_DetectsTamperedHash(t *testing.T) {
	m, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: baseFiles()})
	require.NoError(t, err)
	m.Files[0].Bytes++

	err = ValidateManifest(m)
	require.Equal(t, "PROOF_BUNDLE_MANIFEST_HASH_MISMATCH", errs.CodeOf(err))
}

func TestBuildHeadAttestation_BindsManifestHash(t *testing.T) {
	m, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: baseFiles()})
	require.NoError(t, err)

	h, err := BuildHeadAttestation(m, []StreamHead{{Stream: "job:1", ChainHash: "abc"}}, nil)
	require.NoError(t, err)
	require.Equal(t, m.ManifestHash, h.ManifestHash)
	require.Equal(t, m.GeneratedAt, h.SignedAt)
	require.NoError(t, ValidateHeadAttestation(h))
}

func TestBuildHeadAttestation_SignedVerifiesAndBindsAttestationHash(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m, err := BuildManifest(BuildInput{Kind: "close_pack", TenantID: "t1", GeneratedAt: "2025-01-01T00:00:00Z", Files: baseFiles()})
	require.NoError(t, err)

	h, err := BuildHeadAttestation(m, []StreamHead{{Stream: "job:1", ChainHash: "abc"}}, priv)
	require.NoError(t, err)
	require.NotNil(t, h.Signature)
	require.Equal(t, h.AttestationHash, h.Signature.PayloadHash)
	require.NoError(t, ValidateHeadAttestation(h))
	require.NoError(t, VerifyHeadAttestation(h, pub))

	// Tamper a signed field and recompute attestationHash so
	// ValidateHeadAttestation still passes; the signature no longer
	// covers the new attestationHash and verification must fail.
	h.Heads[0].ChainHash = "def"
	recomputed, err := canonical.HashJSON(withoutAttestationHash(h))
	require.NoError(t, err)
	h.AttestationHash = recomputed
	require.NoError(t, ValidateHeadAttestation(h))

	err = VerifyHeadAttestation(h, pub)
	require.Equal(t, "SIGNATURE_PAYLOAD_HASH_MISMATCH", errs.CodeOf(err))
}
