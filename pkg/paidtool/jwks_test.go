package paidtool

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/errs"
)

func TestFetchJWKS_RejectsNonHTTPS(t *testing.T) {
	_, err := FetchJWKS(context.Background(), FetchJWKSInput{URL: "http://example.com/jwks.json"})
	require.Equal(t, "JWKS_URL_UNSAFE", errs.CodeOf(err))
}

func TestFetchJWKS_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"keys":[{"kty":"OKP","crv":"Ed25519","kid":"key1","x":%q}]}`,
		base64.RawURLEncoding.EncodeToString(pub))

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	jwks, err := FetchJWKS(context.Background(), FetchJWKSInput{URL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	require.Equal(t, pub, jwks.Lookup("key1"))
}

func TestFetchJWKS_RejectsOversizedBody(t *testing.T) {
	huge := `{"keys":[{"kty":"OKP","crv":"Ed25519","kid":"key1","x":"` + strings.Repeat("A", maxJWKSBodyBytes+16) + `"}]}`
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(huge))
	}))
	defer srv.Close()

	_, err := FetchJWKS(context.Background(), FetchJWKSInput{URL: srv.URL, Client: srv.Client()})
	require.Equal(t, "JWKS_BODY_TOO_LARGE", errs.CodeOf(err))
}

func TestParseJWKS_RejectsNoUsableKeys(t *testing.T) {
	_, err := ParseJWKS([]byte(`{"keys":[{"kty":"RSA","crv":"","kid":"k","x":""}]}`))
	require.Equal(t, "JWKS_KEYS_MISSING", errs.CodeOf(err))
}

func TestParseJWKS_RejectsInvalidJSON(t *testing.T) {
	_, err := ParseJWKS([]byte(`not json`))
	require.Equal(t, "JWKS_JSON_INVALID", errs.CodeOf(err))
}
