// Package paidtool implements PaidToolManifest.v1/v2 and
// ProviderPublishProof (spec §3, component C4). Grounded on the
// teacher's pkg/manifest/schema.go for the tools-list/defaults shape,
// pkg/identity/token.go for the compact-JWS publish proof built on
// github.com/golang-jwt/jwt/v5, and pkg/firewall/firewall.go for
// structural pre-validation of a raw document against a compiled
// github.com/santhosh-tekuri/jsonschema/v5 schema.
package paidtool

import (
	"net/url"
	"strings"

	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

var httpMethodSet = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}
var allowedIdempotency = []string{"idempotent", "non_idempotent", "side_effecting"}
var allowedSignatureMode = []string{"required", "optional"}
var allowedToolClass = []string{"read", "compute", "action"}
var allowedRiskLevel = []string{"low", "medium", "high"}
var allowedRequiredSignatures = []string{"quote", "output", "refund_decision"}
var allowedRequestBinding = []string{"strict", "recommended", "none"}

const (
	VersionV1 = "v1"
	VersionV2 = "v2"
)

type Pricing struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

type Defaults struct {
	AmountCents   int64  `json:"amountCents"`
	Currency      string `json:"currency"`
	Idempotency   string `json:"idempotency"`
	SignatureMode string `json:"signatureMode"`
}

type Security struct {
	RequiredSignatures []string `json:"requiredSignatures"`
	RequestBinding     string   `json:"requestBinding"`
}

type Tool struct {
	ToolID         string   `json:"toolId"`
	PaidPath       string   `json:"paidPath"`
	Method         string   `json:"method"`
	Pricing        Pricing  `json:"pricing"`
	Idempotency    string   `json:"idempotency"`
	SignatureMode  string   `json:"signatureMode"`
	ToolClass      string   `json:"toolClass,omitempty"`
	RiskLevel      string   `json:"riskLevel,omitempty"`
	CapabilityTags []string `json:"capabilityTags,omitempty"`
	Security       *Security `json:"security,omitempty"`
}

// Manifest is the normalized PaidToolManifest.v1 or .v2 record,
// distinguished by Version.
type Manifest struct {
	Version             string `json:"version"`
	ProviderID          string `json:"providerId"`
	UpstreamBaseURL     string `json:"upstreamBaseUrl,omitempty"`
	PublishProofJwksURL string `json:"publishProofJwksUrl,omitempty"`
	Defaults            Defaults `json:"defaults"`
	Tools               []Tool `json:"tools"`
}

// ToolInput is the unnormalized set of fields for a single tool entry.
type ToolInput struct {
	ToolID         string
	PaidPath       string
	Method         string
	AmountCents    int64
	Currency       string
	Idempotency    string
	SignatureMode  string
	ToolClass      string
	RiskLevel      string
	CapabilityTags []string
	RequiredSignatures []string
	RequestBinding string
}

// Input is the unnormalized set of fields used to build a Manifest.
type Input struct {
	Version             string
	ProviderID          string
	UpstreamBaseURL     string
	PublishProofJwksURL string
	DefaultAmountCents  int64
	DefaultCurrency     string
	DefaultIdempotency  string
	DefaultSignatureMode string
	Tools               []ToolInput
}

// Build normalizes in into a Manifest, enforcing version-specific
// fields and the toolId/paidPath uniqueness invariant (spec §3).
func Build(in Input) (*Manifest, error) {
	version, err := normalize.AllowListEnum("version", in.Version, VersionV1, VersionV2)
	if err != nil {
		return nil, err
	}
	providerID, err := normalize.Identifier("providerId", in.ProviderID, 256)
	if err != nil {
		return nil, err
	}

	var upstreamBaseURL string
	if in.UpstreamBaseURL != "" {
		upstreamBaseURL, err = normalize.NonEmptyString("upstreamBaseUrl", in.UpstreamBaseURL, 2048)
		if err != nil {
			return nil, err
		}
	}

	var jwksURL string
	if in.PublishProofJwksURL != "" {
		if version != VersionV2 {
			return nil, errs.New("JWKS_URL_V2_ONLY", "publishProofJwksUrl is only valid on PaidToolManifest.v2")
		}
		jwksURL, err = normalizeHTTPSURL("publishProofJwksUrl", in.PublishProofJwksURL)
		if err != nil {
			return nil, err
		}
	}

	defaultCurrency, err := normalize.Currency("defaults.currency", in.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	defaultAmount, err := normalize.NonNegativeSafeInt("defaults.amountCents", in.DefaultAmountCents)
	if err != nil {
		return nil, err
	}
	defaultIdempotency, err := normalize.AllowListEnum("defaults.idempotency", in.DefaultIdempotency, allowedIdempotency...)
	if err != nil {
		return nil, err
	}
	defaultSignatureMode, err := normalize.AllowListEnum("defaults.signatureMode", in.DefaultSignatureMode, allowedSignatureMode...)
	if err != nil {
		return nil, err
	}

	if len(in.Tools) == 0 {
		return nil, errs.New("MANIFEST_NO_TOOLS", "a manifest must declare at least one tool")
	}

	seenToolIDs := make(map[string]struct{}, len(in.Tools))
	seenPaidPaths := make(map[string]struct{}, len(in.Tools))
	tools := make([]Tool, 0, len(in.Tools))
	for _, ti := range in.Tools {
		tool, err := buildTool(ti, version)
		if err != nil {
			return nil, err
		}
		if _, dup := seenToolIDs[tool.ToolID]; dup {
			return nil, errs.New("TOOL_ID_DUPLICATE", "toolId must be unique within a manifest")
		}
		seenToolIDs[tool.ToolID] = struct{}{}
		if _, dup := seenPaidPaths[tool.PaidPath]; dup {
			return nil, errs.New("PAID_PATH_DUPLICATE", "paidPath must be unique within a manifest")
		}
		seenPaidPaths[tool.PaidPath] = struct{}{}
		tools = append(tools, *tool)
	}

	return &Manifest{
		Version:             version,
		ProviderID:          providerID,
		UpstreamBaseURL:     upstreamBaseURL,
		PublishProofJwksURL: jwksURL,
		Defaults: Defaults{
			AmountCents:   defaultAmount,
			Currency:      defaultCurrency,
			Idempotency:   defaultIdempotency,
			SignatureMode: defaultSignatureMode,
		},
		Tools: tools,
	}, nil
}

func buildTool(in ToolInput, version string) (*Tool, error) {
	toolID, err := normalize.Identifier("tools[].toolId", in.ToolID, 256)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(in.PaidPath, "/") {
		return nil, errs.New("PAID_PATH_INVALID", "paidPath must start with /")
	}
	paidPath, err := normalize.NonEmptyString("tools[].paidPath", in.PaidPath, 2048)
	if err != nil {
		return nil, err
	}
	method, err := normalize.AllowListEnum("tools[].method", strings.ToUpper(in.Method), httpMethodSet...)
	if err != nil {
		return nil, err
	}
	amountCents, err := normalize.NonNegativeSafeInt("tools[].pricing.amountCents", in.AmountCents)
	if err != nil {
		return nil, err
	}
	currency, err := normalize.Currency("tools[].pricing.currency", in.Currency)
	if err != nil {
		return nil, err
	}
	idempotency, err := normalize.AllowListEnum("tools[].idempotency", in.Idempotency, allowedIdempotency...)
	if err != nil {
		return nil, err
	}
	signatureMode, err := normalize.AllowListEnum("tools[].signatureMode", in.SignatureMode, allowedSignatureMode...)
	if err != nil {
		return nil, err
	}

	t := &Tool{
		ToolID:        toolID,
		PaidPath:      paidPath,
		Method:        method,
		Pricing:       Pricing{AmountCents: amountCents, Currency: currency},
		Idempotency:   idempotency,
		SignatureMode: signatureMode,
	}

	if version == VersionV2 {
		toolClass, err := normalize.AllowListEnum("tools[].toolClass", in.ToolClass, allowedToolClass...)
		if err != nil {
			return nil, err
		}
		riskLevel, err := normalize.AllowListEnum("tools[].riskLevel", in.RiskLevel, allowedRiskLevel...)
		if err != nil {
			return nil, err
		}
		requiredSignatures := normalize.DedupedSortedList(in.RequiredSignatures)
		if err := normalize.SubsetOf("tools[].security.requiredSignatures", requiredSignatures, allowedRequiredSignatures...); err != nil {
			return nil, err
		}
		requestBinding, err := normalize.AllowListEnum("tools[].security.requestBinding", in.RequestBinding, allowedRequestBinding...)
		if err != nil {
			return nil, err
		}
		t.ToolClass = toolClass
		t.RiskLevel = riskLevel
		t.CapabilityTags = normalize.DedupedSortedList(in.CapabilityTags)
		t.Security = &Security{RequiredSignatures: requiredSignatures, RequestBinding: requestBinding}
	}

	return t, nil
}

func normalizeHTTPSURL(field, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errs.Wrap("URL_INVALID", field+" is not a valid URL", err)
	}
	if u.Scheme != "https" {
		return "", errs.New("URL_INSECURE", field+" must use https")
	}
	return u.String(), nil
}
