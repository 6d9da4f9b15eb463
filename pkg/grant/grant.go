// Package grant implements AuthorityGrant.v1 and the trust-evaluation
// algorithm of spec §4.3 (component C4). Grounded on the teacher's
// pkg/anchor_proof (trust-state style layered checks) reworked to the
// uniform signed-record lifecycle described for C4, and on
// pkg/governance/risk_envelope.go for the shape of a pure decision
// evaluator.
package grant

import (
	"time"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

const RootSeedSchema = "AuthorityGrantRootSeed.v1"

var allowedPrincipalTypes = []string{"human", "org", "service", "agent"}
var allowedRiskClassUniverse = []string{"read", "compute", "action", "financial"}

type PrincipalRef struct {
	PrincipalType string `json:"principalType"`
	PrincipalID   string `json:"principalId"`
}

type Scope struct {
	AllowedRiskClasses   []string `json:"allowedRiskClasses"`
	SideEffectingAllowed bool     `json:"sideEffectingAllowed"`
	AllowedProviderIds   []string `json:"allowedProviderIds,omitempty"`
	AllowedToolIds       []string `json:"allowedToolIds,omitempty"`
}

type SpendEnvelope struct {
	Currency        string `json:"currency"`
	MaxPerCallCents int64  `json:"maxPerCallCents"`
	MaxTotalCents   int64  `json:"maxTotalCents"`
}

type ChainBinding struct {
	RootGrantHash      string  `json:"rootGrantHash"`
	ParentGrantHash    *string `json:"parentGrantHash"`
	Depth              int     `json:"depth"`
	MaxDelegationDepth int     `json:"maxDelegationDepth"`
}

type Validity struct {
	IssuedAt  string `json:"issuedAt"`
	NotBefore string `json:"notBefore"`
	ExpiresAt string `json:"expiresAt"`
}

type Revocation struct {
	Revocable            bool    `json:"revocable"`
	RevokedAt            *string `json:"revokedAt"`
	RevocationReasonCode *string `json:"revocationReasonCode"`
}

// Grant is the normalized AuthorityGrant.v1 record.
type Grant struct {
	GrantID        string                 `json:"grantId"`
	TenantID       string                 `json:"tenantId"`
	PrincipalRef   PrincipalRef           `json:"principalRef"`
	GranteeAgentID string                 `json:"granteeAgentId"`
	Scope          Scope                  `json:"scope"`
	SpendEnvelope  SpendEnvelope          `json:"spendEnvelope"`
	ChainBinding   ChainBinding           `json:"chainBinding"`
	Validity       Validity               `json:"validity"`
	Revocation     Revocation             `json:"revocation"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      string                 `json:"createdAt"`
	GrantHash      string                 `json:"grantHash,omitempty"`
}

// Input is the unnormalized set of fields used to build a Grant.
type Input struct {
	GrantID              string
	TenantID             string
	PrincipalType        string
	PrincipalID          string
	GranteeAgentID       string
	AllowedRiskClasses   []string
	SideEffectingAllowed bool
	AllowedProviderIds   []string
	AllowedToolIds       []string
	Currency             string
	MaxPerCallCents      int64
	MaxTotalCents        int64
	ParentGrantHash      *string
	RootGrantHash        string
	Depth                int
	MaxDelegationDepth   int
	IssuedAt             string
	NotBefore            string
	ExpiresAt            string
	Revocable            bool
	Metadata             map[string]interface{}
	CreatedAt            string
}

// Build normalizes in, derives rootGrantHash at depth 0, and computes
// grantHash per the uniform signed-record lifecycle (spec §4.3).
func Build(in Input) (*Grant, error) {
	grantID, err := normalize.Identifier("grantId", in.GrantID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	principalType, err := normalize.AllowListEnum("principalRef.principalType", in.PrincipalType, allowedPrincipalTypes...)
	if err != nil {
		return nil, err
	}
	principalID, err := normalize.Identifier("principalRef.principalId", in.PrincipalID, 256)
	if err != nil {
		return nil, err
	}
	granteeAgentID, err := normalize.Identifier("granteeAgentId", in.GranteeAgentID, 256)
	if err != nil {
		return nil, err
	}

	riskClasses, err := normalize.NonEmptySortedSet("scope.allowedRiskClasses", in.AllowedRiskClasses)
	if err != nil {
		return nil, err
	}
	if err := normalize.SubsetOf("scope.allowedRiskClasses", riskClasses, allowedRiskClassUniverse...); err != nil {
		return nil, err
	}

	currency, err := normalize.Currency("spendEnvelope.currency", in.Currency)
	if err != nil {
		return nil, err
	}
	maxPerCall, err := normalize.NonNegativeSafeInt("spendEnvelope.maxPerCallCents", in.MaxPerCallCents)
	if err != nil {
		return nil, err
	}
	maxTotal, err := normalize.NonNegativeSafeInt("spendEnvelope.maxTotalCents", in.MaxTotalCents)
	if err != nil {
		return nil, err
	}

	issuedAt, err := normalize.Timestamp("validity.issuedAt", in.IssuedAt)
	if err != nil {
		return nil, err
	}
	notBefore, err := normalize.Timestamp("validity.notBefore", in.NotBefore)
	if err != nil {
		return nil, err
	}
	expiresAt, err := normalize.Timestamp("validity.expiresAt", in.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := checkValidityOrdering(issuedAt, notBefore, expiresAt); err != nil {
		return nil, err
	}

	createdAt, err := normalize.Timestamp("createdAt", in.CreatedAt)
	if err != nil {
		return nil, err
	}

	if in.Depth < 0 {
		return nil, errs.New("CHAIN_DEPTH_INVALID", "chainBinding.depth must be non-negative")
	}
	if in.MaxDelegationDepth < in.Depth {
		return nil, errs.New("CHAIN_DEPTH_INVALID", "chainBinding.maxDelegationDepth must be >= depth")
	}

	var rootGrantHash string
	if in.Depth == 0 {
		if in.ParentGrantHash != nil {
			return nil, errs.New("CHAIN_PARENT_INVALID", "depth 0 grants must not carry a parentGrantHash")
		}
		seedHash, err := computeRootSeedHash(tenantID, grantID, PrincipalRef{PrincipalType: principalType, PrincipalID: principalID}, granteeAgentID)
		if err != nil {
			return nil, err
		}
		if in.RootGrantHash != "" && in.RootGrantHash != seedHash {
			return nil, errs.New("CHAIN_ROOT_MISMATCH", "rootGrantHash does not match the computed root seed hash")
		}
		rootGrantHash = seedHash
	} else {
		if in.ParentGrantHash == nil || *in.ParentGrantHash == "" {
			return nil, errs.New("CHAIN_PARENT_REQUIRED", "depth > 0 grants must carry a parentGrantHash")
		}
		if in.RootGrantHash == "" {
			return nil, errs.New("CHAIN_ROOT_REQUIRED", "depth > 0 grants must carry the inherited rootGrantHash")
		}
		if _, err := normalize.HexSHA256("chainBinding.parentGrantHash", *in.ParentGrantHash); err != nil {
			return nil, err
		}
		rootGrantHash, err = normalize.HexSHA256("chainBinding.rootGrantHash", in.RootGrantHash)
		if err != nil {
			return nil, err
		}
	}

	meta, err := normalize.PlainObject("metadata", metaOrNil(in.Metadata))
	if err != nil {
		return nil, err
	}

	g := &Grant{
		GrantID:        grantID,
		TenantID:       tenantID,
		PrincipalRef:   PrincipalRef{PrincipalType: principalType, PrincipalID: principalID},
		GranteeAgentID: granteeAgentID,
		Scope: Scope{
			AllowedRiskClasses:   riskClasses,
			SideEffectingAllowed: in.SideEffectingAllowed,
			AllowedProviderIds:   normalize.DedupedSortedList(in.AllowedProviderIds),
			AllowedToolIds:       normalize.DedupedSortedList(in.AllowedToolIds),
		},
		SpendEnvelope: SpendEnvelope{Currency: currency, MaxPerCallCents: maxPerCall, MaxTotalCents: maxTotal},
		ChainBinding: ChainBinding{
			RootGrantHash:      rootGrantHash,
			ParentGrantHash:    in.ParentGrantHash,
			Depth:              in.Depth,
			MaxDelegationDepth: in.MaxDelegationDepth,
		},
		Validity:   Validity{IssuedAt: issuedAt, NotBefore: notBefore, ExpiresAt: expiresAt},
		Revocation: Revocation{Revocable: in.Revocable},
		Metadata:   meta,
		CreatedAt:  createdAt,
	}

	hash, err := canonical.HashJSON(g)
	if err != nil {
		return nil, err
	}
	g.GrantHash = hash
	return g, nil
}

// Revoke mutates only the revocation block of an existing grant and
// recomputes grantHash (spec §3: "Revocation mutates only the
// revocation block and recomputes grantHash").
func Revoke(g *Grant, revokedAt string, reasonCode string) (*Grant, error) {
	if g == nil {
		return nil, errs.New("AUTHORITY_GRANT_MISSING", "grant is nil")
	}
	if !g.Revocation.Revocable {
		return nil, errs.New("AUTHORITY_GRANT_NOT_REVOCABLE", "grant is not revocable")
	}
	at, err := normalize.Timestamp("revocation.revokedAt", revokedAt)
	if err != nil {
		return nil, err
	}
	code, err := normalize.NonEmptyString("revocation.revocationReasonCode", reasonCode, 128)
	if err != nil {
		return nil, err
	}

	next := *g
	next.Revocation = Revocation{Revocable: g.Revocation.Revocable, RevokedAt: &at, RevocationReasonCode: &code}
	next.GrantHash = ""

	hash, err := canonical.HashJSON(next)
	if err != nil {
		return nil, err
	}
	next.GrantHash = hash
	return &next, nil
}

// Validate recomputes grantHash and compares it to the stored value,
// the C4 verification half of the lifecycle.
func Validate(g *Grant) error {
	if g == nil {
		return errs.New("AUTHORITY_GRANT_MISSING", "grant is nil")
	}
	declared := g.GrantHash
	unhashed := *g
	unhashed.GrantHash = ""
	recomputed, err := canonical.HashJSON(unhashed)
	if err != nil {
		return err
	}
	if recomputed != declared {
		return errs.New("AUTHORITY_GRANT_HASH_MISMATCH", "recomputed grantHash does not match stored grantHash")
	}
	return nil
}

func computeRootSeedHash(tenantID, grantID string, principalRef PrincipalRef, granteeAgentID string) (string, error) {
	seed := struct {
		Schema         string       `json:"schema"`
		TenantID       string       `json:"tenantId"`
		GrantID        string       `json:"grantId"`
		PrincipalRef   PrincipalRef `json:"principalRef"`
		GranteeAgentID string       `json:"granteeAgentId"`
	}{
		Schema:         RootSeedSchema,
		TenantID:       tenantID,
		GrantID:        grantID,
		PrincipalRef:   principalRef,
		GranteeAgentID: granteeAgentID,
	}
	return canonical.HashJSON(seed)
}

func checkValidityOrdering(issuedAt, notBefore, expiresAt string) error {
	issued, err1 := time.Parse(time.RFC3339Nano, issuedAt)
	nb, err2 := time.Parse(time.RFC3339Nano, notBefore)
	exp, err3 := time.Parse(time.RFC3339Nano, expiresAt)
	if err1 != nil || err2 != nil || err3 != nil {
		return errs.New("TIMESTAMP_INVALID", "validity timestamps failed to parse after normalization")
	}
	if issued.After(nb) {
		return errs.New("VALIDITY_ORDER_INVALID", "issuedAt must be <= notBefore")
	}
	if !nb.Before(exp) {
		return errs.New("VALIDITY_ORDER_INVALID", "notBefore must be < expiresAt")
	}
	return nil
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
