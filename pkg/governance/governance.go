// Package governance implements the governance policy template
// evaluator of spec §4.8 (component C10): a pure function from a
// normalized template and a request to an allow/challenge/deny
// decision. Grounded on the teacher's pkg/governance/risk_envelope.go
// (per-action + sliding-window aggregate risk accounting, anti-gaming
// tier structure) and pkg/governance/denial.go (reason-code taxonomy for
// fail-closed refusals). Per spec §1's Non-goal on "compiled governance
// policy templates", this evaluator is the one fixed algorithm in §4.8,
// not a CEL/expression compiler like the teacher's pkg/governance/pdp.go.
// LoadTemplateYAML in yaml.go decodes a fixture into this same fixed
// shape; it never compiles behavior from the document.
package governance

import (
	"sort"

	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// Decision is the evaluator's deterministic verdict.
type Decision string

const (
	DecisionAllow     Decision = "allow"
	DecisionChallenge Decision = "challenge"
	DecisionDeny      Decision = "deny"
)

// denyTriggering is the fixed subset of reason codes spec §4.8 says
// "triggers deny" outright; every other blocking issue yields
// challenge. Hard policy boundaries (a riskLevel the template auto-blocks
// outright, or an external transfer the template disallows) cannot be
// resolved by an approval step, so they deny rather than challenge.
var denyTriggering = map[string]struct{}{
	"RISK_LEVEL_BLOCKED":            {},
	"EXTERNAL_TRANSFER_NOT_ALLOWED": {},
	"DATA_CLASS_NOT_ALLOWED":        {},
}

// ApprovalTier is one rung of the template's monotonic approval ladder:
// requests up to MaxAmountCents require at least RequiredApprovers
// approvals. Tiers must be sorted by MaxAmountCents ascending with a
// non-decreasing RequiredApprovers (spec §4.8: "monotonic approval tiers").
type ApprovalTier struct {
	MaxAmountCents    int64 `json:"maxAmountCents" yaml:"maxAmountCents"`
	RequiredApprovers int64 `json:"requiredApprovers" yaml:"requiredApprovers"`
}

// Template is the normalized governance policy template.
type Template struct {
	TemplateID                   string         `json:"templateId"`
	PerActionUSDCents             int64          `json:"perActionUsdCents"`
	MonthlyUSDCents               int64          `json:"monthlyUsdCents"`
	AllowedDataClasses            []string       `json:"allowedDataClasses"`
	AllowExternalTransfer         bool           `json:"allowExternalTransfer"`
	Tiers                         []ApprovalTier `json:"tiers"`
	RequireApprovalForRiskLevels  []string       `json:"requireApprovalForRiskLevels"`
	AutoBlockRiskLevels           []string       `json:"autoBlockRiskLevels"`
}

// TemplateInput is the unnormalized set of fields used to build a Template.
type TemplateInput struct {
	TemplateID                   string
	PerActionUSDCents            int64
	MonthlyUSDCents              int64
	AllowedDataClasses           []string
	AllowExternalTransfer        bool
	Tiers                        []ApprovalTier
	RequireApprovalForRiskLevels []string
	AutoBlockRiskLevels          []string
}

// BuildTemplate normalizes in into a Template: data classes are
// deduped and sorted, risk-level sets are deduped and sorted and must
// be non-empty where the schema requires it, and tiers are checked for
// monotonicity (spec §4.8).
func BuildTemplate(in TemplateInput) (*Template, error) {
	templateID, err := normalize.Identifier("templateId", in.TemplateID, 256)
	if err != nil {
		return nil, err
	}
	perAction, err := normalize.NonNegativeSafeInt("perActionUsdCents", in.PerActionUSDCents)
	if err != nil {
		return nil, err
	}
	monthly, err := normalize.NonNegativeSafeInt("monthlyUsdCents", in.MonthlyUSDCents)
	if err != nil {
		return nil, err
	}
	allowedDataClasses := normalize.DedupedSortedList(in.AllowedDataClasses)
	requireApproval := normalize.DedupedSortedList(in.RequireApprovalForRiskLevels)
	autoBlock := normalize.DedupedSortedList(in.AutoBlockRiskLevels)

	tiers := make([]ApprovalTier, len(in.Tiers))
	copy(tiers, in.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MaxAmountCents < tiers[j].MaxAmountCents })
	var lastAmount int64 = -1
	var lastApprovers int64
	for i, t := range tiers {
		if t.MaxAmountCents < 0 || t.RequiredApprovers < 0 {
			return nil, errs.New("GOVERNANCE_TEMPLATE_INVALID", "tier amounts and approver counts must be non-negative")
		}
		if t.MaxAmountCents <= lastAmount {
			return nil, errs.New("GOVERNANCE_TEMPLATE_INVALID", "tiers must have strictly increasing maxAmountCents")
		}
		if i > 0 && t.RequiredApprovers < lastApprovers {
			return nil, errs.New("GOVERNANCE_TEMPLATE_INVALID", "tiers must have non-decreasing requiredApprovers")
		}
		lastAmount = t.MaxAmountCents
		lastApprovers = t.RequiredApprovers
	}
	if len(requireApproval) == 0 || len(autoBlock) == 0 {
		return nil, errs.New("GOVERNANCE_TEMPLATE_INVALID", "requireApprovalForRiskLevels and autoBlockRiskLevels must be non-empty")
	}

	return &Template{
		TemplateID:                   templateID,
		PerActionUSDCents:            perAction,
		MonthlyUSDCents:              monthly,
		AllowedDataClasses:           allowedDataClasses,
		AllowExternalTransfer:        in.AllowExternalTransfer,
		Tiers:                        tiers,
		RequireApprovalForRiskLevels: requireApproval,
		AutoBlockRiskLevels:          autoBlock,
	}, nil
}

// Request is one governance evaluation request.
type Request struct {
	AmountCents       int64
	MonthlySpendCents int64
	DataClass         string
	ExternalTransfer  bool
	ApprovalsProvided int64
	RiskLevel         string
}

// Result is the evaluator's full output: the decision plus every
// blocking issue found, so a caller can present all of them at once
// rather than fail on the first.
type Result struct {
	Decision Decision
	Issues   []string
}

// Evaluate runs every check in spec §4.8 against req and returns the
// deterministic decision plus the full set of blocking issues found.
func Evaluate(tpl *Template, req Request) (*Result, error) {
	if tpl == nil {
		return nil, errs.New("GOVERNANCE_TEMPLATE_MISSING", "template is nil")
	}

	var issues []string

	if req.AmountCents > tpl.PerActionUSDCents {
		issues = append(issues, "PER_ACTION_LIMIT_EXCEEDED")
	}
	if req.MonthlySpendCents+req.AmountCents > tpl.MonthlyUSDCents {
		issues = append(issues, "MONTHLY_LIMIT_EXCEEDED")
	}
	if req.DataClass != "" && !contains(tpl.AllowedDataClasses, req.DataClass) {
		issues = append(issues, "DATA_CLASS_NOT_ALLOWED")
	}
	if req.ExternalTransfer && !tpl.AllowExternalTransfer {
		issues = append(issues, "EXTERNAL_TRANSFER_NOT_ALLOWED")
	}
	if !tierSatisfied(tpl.Tiers, req.AmountCents, req.ApprovalsProvided) {
		issues = append(issues, "APPROVAL_TIER_NOT_SATISFIED")
	}
	if contains(tpl.RequireApprovalForRiskLevels, req.RiskLevel) && req.ApprovalsProvided < 1 {
		issues = append(issues, "RISK_LEVEL_APPROVAL_REQUIRED")
	}
	if contains(tpl.AutoBlockRiskLevels, req.RiskLevel) {
		issues = append(issues, "RISK_LEVEL_BLOCKED")
	}

	decision := DecisionAllow
	for _, issue := range issues {
		if _, deny := denyTriggering[issue]; deny {
			decision = DecisionDeny
			break
		}
		decision = DecisionChallenge
	}

	return &Result{Decision: decision, Issues: issues}, nil
}

// tierSatisfied reports whether amountCents fits some tier and
// approvalsProvided meets that tier's requirement. An empty tier list
// imposes no approval requirement.
func tierSatisfied(tiers []ApprovalTier, amountCents, approvalsProvided int64) bool {
	if len(tiers) == 0 {
		return true
	}
	for _, t := range tiers {
		if amountCents <= t.MaxAmountCents {
			return approvalsProvided >= t.RequiredApprovers
		}
	}
	return false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
