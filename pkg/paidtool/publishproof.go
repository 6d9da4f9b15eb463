package paidtool

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// PublishProofAudience is the fixed `aud` claim every publish proof
// must carry.
const PublishProofAudience = "nooterra-paid-tool-publish"

// publishProofHeader is the fixed JWS header shape (spec §6):
// `{alg:"EdDSA",kid,typ:"JWT"}`.
type publishProofHeader struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid"`
	Type      string `json:"typ"`
}

// publishProofClaims is the ProviderPublishProof.v1 JWS payload (spec
// §6): a compact token over {aud,typ,manifestHash,providerId,iat,exp,nonce?}.
type publishProofClaims struct {
	Audience     string `json:"aud"`
	Type         string `json:"typ"`
	ManifestHash string `json:"manifestHash"`
	ProviderID   string `json:"providerId"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
	Nonce        string `json:"nonce,omitempty"`
}

// maxClockSkewSeconds bounds how far into the future iat may sit
// (spec §6: `iat ≤ now+300s`).
const maxClockSkewSeconds = 300

// SignPublishProofInput carries the fields needed to mint a compact
// ProviderPublishProof JWS.
type SignPublishProofInput struct {
	ManifestHash string
	ProviderID   string
	KeyID        string
	Nonce        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// SignPublishProof builds and signs a ProviderPublishProof.v1 compact
// JWS using the EdDSA signing method (spec §6: three base64url
// segments, header `{alg:"EdDSA",kid,typ:"JWT"}`). Per the open
// question on non-canonical wire formats: the payload segment is this
// module's own canonical.Encode of the claims, not encoding/json's
// default struct-field order, so the bytes any verifier hashes or
// re-derives agree regardless of implementation language.
func SignPublishProof(in SignPublishProofInput, priv ed25519.PrivateKey) (string, error) {
	manifestHash, err := normalize.HexSHA256("manifestHash", in.ManifestHash)
	if err != nil {
		return "", err
	}
	providerID, err := normalize.Identifier("providerId", in.ProviderID, 256)
	if err != nil {
		return "", err
	}
	keyID, err := normalize.NonEmptyString("keyId", in.KeyID, 256)
	if err != nil {
		return "", err
	}
	if !in.ExpiresAt.After(in.IssuedAt) {
		return "", errs.New("PUBLISH_PROOF_EXP_NOT_AFTER_IAT", "exp must be after iat")
	}

	header := publishProofHeader{Algorithm: "EdDSA", KeyID: keyID, Type: "JWT"}
	claims := publishProofClaims{
		Audience:     PublishProofAudience,
		Type:         "JWT",
		ManifestHash: manifestHash,
		ProviderID:   providerID,
		IssuedAt:     in.IssuedAt.Unix(),
		ExpiresAt:    in.ExpiresAt.Unix(),
		Nonce:        in.Nonce,
	}

	headerBytes, err := canonical.Encode(header)
	if err != nil {
		return "", errs.Wrap("PUBLISH_PROOF_HEADER_INVALID", "header failed canonical encoding", err)
	}
	payloadBytes, err := canonical.Encode(claims)
	if err != nil {
		return "", errs.Wrap("PUBLISH_PROOF_CLAIMS_INVALID", "claims failed canonical encoding", err)
	}

	signingString := base64.RawURLEncoding.EncodeToString(headerBytes) + "." + base64.RawURLEncoding.EncodeToString(payloadBytes)
	sigBytes, err := jwt.SigningMethodEdDSA.Sign(signingString, priv)
	if err != nil {
		return "", errs.Wrap("PUBLISH_PROOF_SIGN_FAILED", "failed to sign publish proof", err)
	}
	return signingString + "." + base64.RawURLEncoding.EncodeToString(sigBytes), nil
}

// VerifyPublishProofInput carries the expected binding a publish proof
// must satisfy.
type VerifyPublishProofInput struct {
	Token                string
	ExpectedManifestHash string
	ExpectedProviderID   string
	JWKS                 *JWKS
	Now                  time.Time
}

// VerifyPublishProof parses and verifies a compact ProviderPublishProof
// JWS: signature against the JWKS-resolved key, `exp>now`, `iat ≤
// now+300s`, and payload binding to the expected manifest/provider
// (spec §6).
func VerifyPublishProof(in VerifyPublishProofInput) (*publishProofClaims, error) {
	if in.JWKS == nil {
		return nil, errs.New("JWKS_KEYS_MISSING", "no JWKS provided to verify against")
	}
	if in.Now.IsZero() {
		return nil, errs.New("PUBLISH_PROOF_NOW_REQUIRED", "a reference time is required for verification")
	}

	var claims publishProofClaims
	parsed, err := jwt.ParseWithClaims(in.Token, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, errors.New("unexpected signing algorithm")
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		pub := in.JWKS.Lookup(kid)
		if pub == nil {
			return nil, errors.New("kid not present in JWKS")
		}
		return pub, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || parsed == nil || !parsed.Valid {
		return nil, errs.Wrap("PUBLISH_PROOF_SIGNATURE_INVALID", "publish proof signature verification failed", err)
	}

	mapClaims, _ := parsed.Claims.(jwt.MapClaims)
	claims, err = claimsFromMap(mapClaims)
	if err != nil {
		return nil, err
	}

	if claims.Audience != PublishProofAudience {
		return nil, errs.New("PUBLISH_PROOF_AUDIENCE_INVALID", "publish proof aud does not match expected audience")
	}
	if claims.ExpiresAt <= in.Now.Unix() {
		return nil, errs.New("PUBLISH_PROOF_EXPIRED", "publish proof exp has passed")
	}
	if claims.IssuedAt > in.Now.Unix()+maxClockSkewSeconds {
		return nil, errs.New("PUBLISH_PROOF_IAT_TOO_FAR_FUTURE", "publish proof iat exceeds allowed clock skew")
	}
	if claims.ManifestHash != in.ExpectedManifestHash {
		return nil, errs.New("PUBLISH_PROOF_MANIFEST_MISMATCH", "publish proof manifestHash does not match the manifest being published")
	}
	if claims.ProviderID != in.ExpectedProviderID {
		return nil, errs.New("PUBLISH_PROOF_PROVIDER_MISMATCH", "publish proof providerId does not match the publishing provider")
	}
	return &claims, nil
}

func claimsFromMap(m jwt.MapClaims) (publishProofClaims, error) {
	var c publishProofClaims
	aud, _ := m["aud"].(string)
	typ, _ := m["typ"].(string)
	manifestHash, _ := m["manifestHash"].(string)
	providerID, _ := m["providerId"].(string)
	nonce, _ := m["nonce"].(string)
	iat, ok1 := m["iat"].(float64)
	exp, ok2 := m["exp"].(float64)
	if aud == "" || manifestHash == "" || providerID == "" || !ok1 || !ok2 {
		return c, errs.New("PUBLISH_PROOF_CLAIMS_INVALID", "publish proof is missing required claims")
	}
	c = publishProofClaims{
		Audience:     aud,
		Type:         typ,
		ManifestHash: manifestHash,
		ProviderID:   providerID,
		IssuedAt:     int64(iat),
		ExpiresAt:    int64(exp),
		Nonce:        nonce,
	}
	return c, nil
}
