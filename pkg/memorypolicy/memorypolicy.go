// Package memorypolicy implements the session-memory access policy
// evaluator named in spec §2 (component C12): scope resolution for
// personal/team/delegated reads of an agent's session memory. Grounded
// on the teacher's pkg/identity/conditional_access.go (policy → decision
// enum shape) and pkg/grant's AuthorityGrant trust evaluation, which
// this package reuses directly for the delegated-scope case rather than
// re-deriving trust precedence.
package memorypolicy

import (
	"time"

	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/grant"
)

// Scope is the closed set of session-memory read scopes.
type Scope string

const (
	ScopePersonal  Scope = "personal"
	ScopeTeam      Scope = "team"
	ScopeDelegated Scope = "delegated"
)

// Request is one session-memory read request.
type Request struct {
	Scope            Scope
	RequesterAgentID string
	OwnerAgentID     string
	RequesterTeamID  string
	OwnerTeamID      string
	DelegationGrant  *grant.Grant
	EvaluationTime   time.Time
}

// Decision is the evaluator's output.
type Decision struct {
	Allowed    bool
	ReasonCode string
}

// Evaluate resolves req.Scope against the requester/owner identity and,
// for a delegated read, the bound AuthorityGrant's trust state.
func Evaluate(req Request) (*Decision, error) {
	switch req.Scope {
	case ScopePersonal:
		return evaluatePersonal(req), nil
	case ScopeTeam:
		return evaluateTeam(req), nil
	case ScopeDelegated:
		return evaluateDelegated(req)
	default:
		return nil, errs.New("MEMORY_SCOPE_INVALID", "scope must be one of personal, team, delegated")
	}
}

func evaluatePersonal(req Request) *Decision {
	if req.RequesterAgentID != "" && req.RequesterAgentID == req.OwnerAgentID {
		return &Decision{Allowed: true, ReasonCode: "PERSONAL_SCOPE_ALLOWED"}
	}
	return &Decision{Allowed: false, ReasonCode: "PERSONAL_SCOPE_DENIED"}
}

func evaluateTeam(req Request) *Decision {
	if req.RequesterTeamID != "" && req.RequesterTeamID == req.OwnerTeamID {
		return &Decision{Allowed: true, ReasonCode: "TEAM_SCOPE_ALLOWED"}
	}
	return &Decision{Allowed: false, ReasonCode: "TEAM_SCOPE_DENIED"}
}

// evaluateDelegated requires a bound AuthorityGrant naming the
// requester as grantee, "read" among the grant's allowed risk classes,
// and a trust state that allows writes (ACTIVE or REVOKED_PENDING). No
// evidence time is passed to the trust evaluation, so historical reads
// are never granted here; a denied read carries the trust evaluation's
// reason code.
func evaluateDelegated(req Request) (*Decision, error) {
	if req.DelegationGrant == nil {
		return &Decision{Allowed: false, ReasonCode: "DELEGATED_SCOPE_GRANT_MISSING"}, nil
	}
	if req.DelegationGrant.GranteeAgentID != req.RequesterAgentID {
		return &Decision{Allowed: false, ReasonCode: "DELEGATED_SCOPE_GRANT_MISMATCH"}, nil
	}
	if !containsReadRiskClass(req.DelegationGrant.Scope.AllowedRiskClasses) {
		return &Decision{Allowed: false, ReasonCode: "DELEGATED_SCOPE_READ_NOT_GRANTED"}, nil
	}

	trust, err := grant.EvaluateTrust(req.DelegationGrant, req.EvaluationTime, grant.OperationRead, nil)
	if err != nil {
		return nil, err
	}
	if !trust.ReadAllowed {
		return &Decision{Allowed: false, ReasonCode: trust.ReasonCode}, nil
	}
	return &Decision{Allowed: true, ReasonCode: "DELEGATED_SCOPE_ALLOWED"}, nil
}

func containsReadRiskClass(classes []string) bool {
	for _, c := range classes {
		if c == "read" {
			return true
		}
	}
	return false
}
