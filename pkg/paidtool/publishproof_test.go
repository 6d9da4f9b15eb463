package paidtool

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/errs"
)

func testJWKS(t *testing.T, kid string, pub ed25519.PublicKey) *JWKS {
	t.Helper()
	body := fmt.Sprintf(`{"keys":[{"kty":"OKP","crv":"Ed25519","kid":%q,"x":%q}]}`,
		kid, base64.RawURLEncoding.EncodeToString(pub))
	jwks, err := ParseJWKS([]byte(body))
	require.NoError(t, err)
	return jwks
}

const testManifestHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestSignVerifyPublishProof_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := SignPublishProof(SignPublishProofInput{
		ManifestHash: testManifestHash,
		ProviderID:   "provider_1",
		KeyID:        "key1",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}, priv)
	require.NoError(t, err)

	jwks := testJWKS(t, "key1", pub)
	claims, err := VerifyPublishProof(VerifyPublishProofInput{
		Token:                token,
		ExpectedManifestHash: testManifestHash,
		ExpectedProviderID:   "provider_1",
		JWKS:                 jwks,
		Now:                  now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, "provider_1", claims.ProviderID)
}

func TestVerifyPublishProof_RejectsUnknownKid(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := SignPublishProof(SignPublishProofInput{
		ManifestHash: testManifestHash,
		ProviderID:   "provider_1",
		KeyID:        "key1",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}, priv)
	require.NoError(t, err)

	jwks := testJWKS(t, "key-other", otherPub)
	_, err = VerifyPublishProof(VerifyPublishProofInput{
		Token:                token,
		ExpectedManifestHash: testManifestHash,
		ExpectedProviderID:   "provider_1",
		JWKS:                 jwks,
		Now:                  now.Add(time.Minute),
	})
	require.Equal(t, "PUBLISH_PROOF_SIGNATURE_INVALID", errs.CodeOf(err))
}

func TestVerifyPublishProof_RejectsExpired(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := SignPublishProof(SignPublishProofInput{
		ManifestHash: testManifestHash,
		ProviderID:   "provider_1",
		KeyID:        "key1",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Minute),
	}, priv)
	require.NoError(t, err)

	jwks := testJWKS(t, "key1", pub)
	_, err = VerifyPublishProof(VerifyPublishProofInput{
		Token:                token,
		ExpectedManifestHash: testManifestHash,
		ExpectedProviderID:   "provider_1",
		JWKS:                 jwks,
		Now:                  now.Add(time.Hour),
	})
	require.Equal(t, "PUBLISH_PROOF_EXPIRED", errs.CodeOf(err))
}

func TestVerifyPublishProof_RejectsManifestMismatch(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := SignPublishProof(SignPublishProofInput{
		ManifestHash: testManifestHash,
		ProviderID:   "provider_1",
		KeyID:        "key1",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}, priv)
	require.NoError(t, err)

	jwks := testJWKS(t, "key1", pub)
	_, err = VerifyPublishProof(VerifyPublishProofInput{
		Token:                token,
		ExpectedManifestHash: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		ExpectedProviderID:   "provider_1",
		JWKS:                 jwks,
		Now:                  now.Add(time.Minute),
	})
	require.Equal(t, "PUBLISH_PROOF_MANIFEST_MISMATCH", errs.CodeOf(err))
}
