package paidtool

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nooterra/trustcore/pkg/errs"
)

// maxJWKSBodyBytes bounds the JWKS response body this module will read
// (the one I/O edge in the module, per spec §6 bounded-fetch requirement).
const maxJWKSBodyBytes = 1 << 20 // 1 MiB

// defaultJWKSFetchTimeout is the hard ceiling on the JWKS HTTP round trip.
const defaultJWKSFetchTimeout = 5 * time.Second

type jwkKey struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Kid string `json:"kid"`
}

type jwksDoc struct {
	Keys []jwkKey `json:"keys"`
}

// JWKS is a resolved, in-memory set of Ed25519 public keys keyed by kid.
type JWKS struct {
	keys map[string]ed25519.PublicKey
}

// Lookup returns the public key for kid, or nil if absent.
func (j *JWKS) Lookup(kid string) ed25519.PublicKey {
	if j == nil {
		return nil
	}
	return j.keys[kid]
}

// FetchJWKSInput carries the parameters for a bounded JWKS fetch.
type FetchJWKSInput struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// FetchJWKS performs the one I/O edge in this module: a bounded GET of
// an OKP/Ed25519 JWKS document (spec §6). The URL must be https, the
// response body is capped at maxJWKSBodyBytes, and the whole call is
// bounded by a hard timeout so a slow or hostile publishProofJwksUrl
// can never hang a caller.
func FetchJWKS(ctx context.Context, in FetchJWKSInput) (*JWKS, error) {
	u, err := url.Parse(in.URL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, errs.New("JWKS_URL_UNSAFE", "publishProofJwksUrl must be a well-formed https URL")
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = defaultJWKSFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := in.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errs.Wrap("JWKS_FETCH_FAILED", "failed to construct JWKS request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap("JWKS_FETCH_FAILED", "JWKS request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.New("JWKS_FETCH_FAILED", "JWKS endpoint returned a non-2xx status")
	}

	limited := io.LimitReader(resp.Body, maxJWKSBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, errs.Wrap("JWKS_FETCH_FAILED", "failed to read JWKS response body", err)
	}
	if len(body) > maxJWKSBodyBytes {
		return nil, errs.New("JWKS_BODY_TOO_LARGE", "JWKS response exceeds the maximum allowed size")
	}

	return ParseJWKS(body)
}

// ParseJWKS decodes a JWKS document already held in memory, accepting
// only OKP/Ed25519 keys.
func ParseJWKS(body []byte) (*JWKS, error) {
	var doc jwksDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errs.Wrap("JWKS_JSON_INVALID", "JWKS response is not valid JSON", err)
	}
	if len(doc.Keys) == 0 {
		return nil, errs.New("JWKS_KEYS_MISSING", "JWKS document contains no keys")
	}

	keys := make(map[string]ed25519.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "OKP" || k.Crv != "Ed25519" || k.Kid == "" || k.X == "" {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			continue
		}
		keys[k.Kid] = ed25519.PublicKey(raw)
	}
	if len(keys) == 0 {
		return nil, errs.New("JWKS_KEYS_MISSING", "JWKS document contains no usable Ed25519 keys")
	}
	return &JWKS{keys: keys}, nil
}
