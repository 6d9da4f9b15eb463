package paidtool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/errs"
)

func baseV1Input() Input {
	return Input{
		Version:              VersionV1,
		ProviderID:           "provider_1",
		DefaultAmountCents:   100,
		DefaultCurrency:      "USD",
		DefaultIdempotency:   "idempotent",
		DefaultSignatureMode: "optional",
		Tools: []ToolInput{
			{
				ToolID:        "tool_1",
				PaidPath:      "/v1/do-thing",
				Method:        "post",
				AmountCents:   500,
				Currency:      "USD",
				Idempotency:   "idempotent",
				SignatureMode: "optional",
			},
		},
	}
}

func TestBuild_V1RoundTrip(t *testing.T) {
	m, err := Build(baseV1Input())
	require.NoError(t, err)
	require.Equal(t, "POST", m.Tools[0].Method)
	require.Empty(t, m.Tools[0].ToolClass)
	require.Nil(t, m.Tools[0].Security)
}

func TestBuild_V2RequiresV2Fields(t *testing.T) {
	in := baseV1Input()
	in.Version = VersionV2
	in.Tools[0].ToolClass = "action"
	in.Tools[0].RiskLevel = "high"
	in.Tools[0].RequiredSignatures = []string{"quote", "output"}
	in.Tools[0].RequestBinding = "strict"
	m, err := Build(in)
	require.NoError(t, err)
	require.Equal(t, "action", m.Tools[0].ToolClass)
	require.Equal(t, []string{"output", "quote"}, m.Tools[0].Security.RequiredSignatures)
}

func TestBuild_V1RejectsJwksURL(t *testing.T) {
	in := baseV1Input()
	in.PublishProofJwksURL = "https://example.com/.well-known/jwks.json"
	_, err := Build(in)
	require.Equal(t, "JWKS_URL_V2_ONLY", errs.CodeOf(err))
}

func TestValidateManifestDocument_AcceptsWellFormedDocument(t *testing.T) {
	doc := []byte(`{
		"version": "v1",
		"providerId": "provider_1",
		"defaults": {"amountCents": 100, "currency": "USD", "idempotency": "idempotent", "signatureMode": "optional"},
		"tools": [{"toolId": "tool_1", "paidPath": "/v1/do-thing", "method": "POST", "pricing": {"amountCents": 500, "currency": "USD"}}]
	}`)
	require.NoError(t, ValidateManifestDocument(doc))
}

func TestValidateManifestDocument_RejectsMissingRequiredField(t *testing.T) {
	doc := []byte(`{"version": "v1", "tools": []}`)
	err := ValidateManifestDocument(doc)
	require.Equal(t, "MANIFEST_SCHEMA_VALIDATION_FAILED", errs.CodeOf(err))
}

func TestValidateManifestDocument_RejectsInvalidJSON(t *testing.T) {
	err := ValidateManifestDocument([]byte(`not json`))
	require.Equal(t, "MANIFEST_DOCUMENT_INVALID_JSON", errs.CodeOf(err))
}

func TestBuild_RejectsInsecureJwksURL(t *testing.T) {
	in := baseV1Input()
	in.Version = VersionV2
	in.Tools[0].ToolClass = "action"
	in.Tools[0].RiskLevel = "low"
	in.Tools[0].RequestBinding = "none"
	in.PublishProofJwksURL = "http://example.com/jwks.json"
	_, err := Build(in)
	require.Equal(t, "URL_INSECURE", errs.CodeOf(err))
}

func TestBuild_RejectsDuplicateToolID(t *testing.T) {
	in := baseV1Input()
	second := in.Tools[0]
	second.PaidPath = "/v1/other"
	in.Tools = append(in.Tools, second)
	_, err := Build(in)
	require.Equal(t, "TOOL_ID_DUPLICATE", errs.CodeOf(err))
}

func TestBuild_RejectsDuplicatePaidPath(t *testing.T) {
	in := baseV1Input()
	second := in.Tools[0]
	second.ToolID = "tool_2"
	in.Tools = append(in.Tools, second)
	_, err := Build(in)
	require.Equal(t, "PAID_PATH_DUPLICATE", errs.CodeOf(err))
}

func TestBuild_RejectsPaidPathMissingLeadingSlash(t *testing.T) {
	in := baseV1Input()
	in.Tools[0].PaidPath = "v1/do-thing"
	_, err := Build(in)
	require.Equal(t, "PAID_PATH_INVALID", errs.CodeOf(err))
}
