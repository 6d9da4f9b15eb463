// Package canonical implements the deterministic JSON-like encoding and
// SHA-256/Ed25519 primitives every other trustcore record binds to (spec
// §4.1, component C1). It is grounded on the teacher's
// pkg/canonicalize/jcs.go (which hand-rolls RFC 8785) and pkg/crypto
// (signer.go / canonical.go): here the encoder defers to the teacher's
// declared-but-unused github.com/gowebpki/jcs dependency instead of
// reimplementing RFC 8785 by hand.
package canonical

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gowebpki/jcs"
	"github.com/nooterra/trustcore/pkg/errs"
)

// AnyJSON is the only place trustcore schemas allow arbitrary structure
// (e.g. metadata blocks). Everything else is a typed struct.
type AnyJSON = map[string]interface{}

// Encode returns the canonical byte representation of v: object keys in
// code-point-sorted order, numbers in shortest decimal form, arrays in
// original order, strings JSON-escaped. Any value reachable from v must
// be a plain map[string]interface{}, []interface{}, string, bool,
// json.Number/float64/int, or nil; foreign types are rejected by virtue
// of failing json.Marshal or the plain-object walk below.
func Encode(v interface{}) ([]byte, error) {
	if err := validatePlain(v); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap("CANONICAL_MARSHAL_FAILED", "value is not JSON-marshalable", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, errs.Wrap("CANONICAL_TRANSFORM_FAILED", "RFC 8785 transform failed", err)
	}
	return out, nil
}

// validatePlain rejects NaN/±Inf floats and non-plain container shapes
// reachable from v. Structs/slices/maps of concrete Go types are
// inherently "plain" (Go has no prototype chain); the check matters for
// the AnyJSON metadata escape hatch where callers can embed arbitrary
// decoded JSON (e.g. from encoding/json.Unmarshal into interface{}).
func validatePlain(v interface{}) error {
	switch t := v.(type) {
	case nil, bool, string, json.Number:
		return nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return errs.New("CANONICAL_NUMBER_INVALID", "NaN and Infinity are not representable")
		}
		return nil
	case int, int32, int64, uint, uint32, uint64:
		return nil
	case map[string]interface{}:
		for _, val := range t {
			if err := validatePlain(val); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		for _, val := range t {
			if err := validatePlain(val); err != nil {
				return err
			}
		}
		return nil
	case map[interface{}]interface{}:
		return errs.New("CANONICAL_NON_PLAIN_OBJECT", "non-string-keyed maps are rejected")
	default:
		// A typed struct/slice: let json.Marshal validate it structurally;
		// any float64 field with NaN/Inf is caught by encoding/json itself.
		return nil
	}
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashJSON is Encode followed by SHA256Hex, the operation every signed
// record performs to compute its identity hash.
func HashJSON(v interface{}) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

// SignEd25519 signs the UTF-8 bytes of hashHex (a lowercase-hex SHA-256
// digest, NOT the raw hash bytes, per spec §4.1) and returns the signature
// base64-encoded (standard, not URL-safe).
func SignEd25519(hashHex string, priv ed25519.PrivateKey) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", errs.New("SIGNING_KEY_INVALID", "private key has wrong size")
	}
	sig := ed25519.Sign(priv, []byte(hashHex))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyEd25519 verifies signatureBase64 over the UTF-8 bytes of hashHex.
func VerifyEd25519(hashHex string, signatureBase64 string, pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return errs.New("KEY_MISMATCH", "public key has wrong size")
	}
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return errs.Wrap("SIGNATURE_INVALID", "signature is not valid base64", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return errs.New("SIGNATURE_INVALID", "signature has wrong size")
	}
	if !ed25519.Verify(pub, []byte(hashHex), sig) {
		return errs.New("SIGNATURE_INVALID", "signature does not verify")
	}
	return nil
}

// DeriveKeyId is the stable, collision-resistant function of the
// public-key bytes every producer and verifier must agree on: SHA-256
// hex of the DER-encoded SubjectPublicKeyInfo (spec §4.1, §9 open
// question (ii)).
func DeriveKeyId(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errs.New("KEY_MISMATCH", "public key has wrong size")
	}
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errs.Wrap("KEY_DERIVATION_FAILED", "failed to marshal SPKI", err)
	}
	return SHA256Hex(spki), nil
}

// DeriveKeyIdFromSPKIBytes derives a key-id from raw SPKI DER bytes,
// for callers that hold the encoded key rather than a structured
// ed25519.PublicKey.
func DeriveKeyIdFromSPKIBytes(spkiDER []byte) string {
	return SHA256Hex(spkiDER)
}

// SignatureEnvelope is the common "Signature envelope" primitive (spec
// §3): `{algorithm:"ed25519", keyId, signedAt, payloadHash, signatureBase64}`.
type SignatureEnvelope struct {
	Algorithm       string `json:"algorithm"`
	KeyID           string `json:"keyId"`
	SignedAt        string `json:"signedAt"`
	PayloadHash     string `json:"payloadHash"`
	SignatureBase64 string `json:"signatureBase64"`
}

// SignEnvelope builds a SignatureEnvelope over payloadHash.
func SignEnvelope(payloadHash string, priv ed25519.PrivateKey, signedAt string) (*SignatureEnvelope, error) {
	keyID, err := DeriveKeyId(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	sig, err := SignEd25519(payloadHash, priv)
	if err != nil {
		return nil, err
	}
	return &SignatureEnvelope{
		Algorithm:       "ed25519",
		KeyID:           keyID,
		SignedAt:        signedAt,
		PayloadHash:     payloadHash,
		SignatureBase64: sig,
	}, nil
}

// VerifyEnvelope verifies env against pub and checks that env.KeyID
// matches deriveKeyId(pub) and env.PayloadHash matches the presented
// payloadHash (spec §4.1: "compare declared keyId").
func VerifyEnvelope(payloadHash string, env *SignatureEnvelope, pub ed25519.PublicKey) error {
	if env == nil {
		return errs.New("SIGNATURE_MISSING", "signature envelope is nil")
	}
	if env.Algorithm != "ed25519" {
		return errs.New("ALG_INVALID", "unsupported signature algorithm")
	}
	if env.PayloadHash != payloadHash {
		return errs.New("SIGNATURE_PAYLOAD_HASH_MISMATCH", "declared payloadHash does not match recomputed hash")
	}
	keyID, err := DeriveKeyId(pub)
	if err != nil {
		return err
	}
	if keyID != env.KeyID {
		return errs.New("KEY_MISMATCH", "presented public key does not derive the declared keyId")
	}
	return VerifyEd25519(payloadHash, env.SignatureBase64, pub)
}

// ParseEd25519SPKI decodes a DER SubjectPublicKeyInfo blob expected to
// wrap an Ed25519 key.
func ParseEd25519SPKI(spkiDER []byte) (ed25519.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(spkiDER)
	if err != nil {
		return nil, errs.Wrap("KEY_MISMATCH", "failed to parse SPKI", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errs.New("ALG_INVALID", fmt.Sprintf("unexpected public key type %T", pub))
	}
	return edPub, nil
}
