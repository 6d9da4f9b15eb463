package grant

import (
	"time"

	"github.com/nooterra/trustcore/pkg/errs"
)

// TrustState is the sum type the precedence ladder in spec §4.3 resolves to.
type TrustState string

const (
	TrustAmbiguous    TrustState = "AMBIGUOUS"
	TrustRevoked      TrustState = "REVOKED"
	TrustNotYetActive TrustState = "NOT_YET_ACTIVE"
	TrustExpired      TrustState = "EXPIRED"
	TrustRevokedPend  TrustState = "REVOKED_PENDING"
	TrustActive       TrustState = "ACTIVE"
)

// Operation distinguishes the two evaluation modes named in §4.3.
type Operation string

const (
	OperationRead  Operation = "read"
	OperationWrite Operation = "write"
)

// Decision is the output of the AuthorityGrant trust evaluator.
type Decision struct {
	TrustState                 TrustState `json:"trustState"`
	ReasonCode                 string     `json:"reasonCode"`
	ReadAllowed                bool       `json:"readAllowed"`
	WriteAllowed               bool       `json:"writeAllowed"`
	HistoricalVerificationOnly bool       `json:"historicalVerificationOnly"`
}

// EvaluateTrust computes a Decision for g at evaluation time t, following
// the precedence order in spec §4.3 exactly. evidenceAt is only
// consulted for read operations lacking a write right.
func EvaluateTrust(g *Grant, t time.Time, operation Operation, evidenceAt *time.Time) (*Decision, error) {
	if g == nil {
		return nil, errs.New("AUTHORITY_GRANT_MISSING", "grant is nil")
	}
	notBefore, err := time.Parse(time.RFC3339Nano, g.Validity.NotBefore)
	if err != nil {
		return nil, errs.Wrap("TIMESTAMP_INVALID", "validity.notBefore failed to parse", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, g.Validity.ExpiresAt)
	if err != nil {
		return nil, errs.Wrap("TIMESTAMP_INVALID", "validity.expiresAt failed to parse", err)
	}

	var revokedAt *time.Time
	if g.Revocation.RevokedAt != nil {
		rv, err := time.Parse(time.RFC3339Nano, *g.Revocation.RevokedAt)
		if err != nil {
			return nil, errs.Wrap("TIMESTAMP_INVALID", "revocation.revokedAt failed to parse", err)
		}
		revokedAt = &rv
	}

	if revokedAt != nil && g.Revocation.RevocationReasonCode == nil {
		return &Decision{
			TrustState: TrustAmbiguous,
			ReasonCode: "REVOCATION_REASON_REQUIRED",
		}, nil
	}

	var state TrustState
	switch {
	case revokedAt != nil && !revokedAt.After(t):
		state = TrustRevoked
	case t.Before(notBefore):
		state = TrustNotYetActive
	case !t.Before(expiresAt):
		state = TrustExpired
	case revokedAt != nil && revokedAt.After(t):
		state = TrustRevokedPend
	default:
		state = TrustActive
	}

	writeAllowed := state == TrustActive || state == TrustRevokedPend

	d := &Decision{
		TrustState:   state,
		ReasonCode:   string(state),
		WriteAllowed: writeAllowed,
	}

	if operation != OperationRead {
		d.ReadAllowed = writeAllowed
		return d, nil
	}

	if writeAllowed {
		d.ReadAllowed = true
		return d, nil
	}

	if evidenceAt == nil {
		d.ReadAllowed = false
		d.ReasonCode = "HISTORICAL_READ_EVIDENCE_REQUIRED"
		return d, nil
	}

	windowEnd := expiresAt
	if revokedAt != nil && revokedAt.Before(windowEnd) {
		windowEnd = *revokedAt
	}
	if t.Before(windowEnd) {
		windowEnd = t
	}

	if !evidenceAt.Before(notBefore) && evidenceAt.Before(windowEnd) {
		d.ReadAllowed = true
		d.HistoricalVerificationOnly = true
		d.ReasonCode = "HISTORICAL_READ_ALLOWED"
		return d, nil
	}

	d.ReadAllowed = false
	d.ReasonCode = "HISTORICAL_READ_OUTSIDE_WINDOW"
	return d, nil
}
