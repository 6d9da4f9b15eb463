// Package identitylog implements the append-only identity transparency
// log of spec §4.7 (component C7): hash-chained IdentityLogEntry.v1
// records, an IdentityLogCheckpoint.v1 carrying an RFC-6962-style Merkle
// root, and IdentityLogProof.v1 inclusion proofs. Grounded on the
// teacher's pkg/merkle (tree.go/proof.go: same split-point recursion,
// generalized here to hash-only leaves per spec §4.7) and
// pkg/identity/token.go for the entry/event shape, and the teacher's
// pervasive uuid.New().String() id-generation convenience
// (pkg/credentials/handlers.go, pkg/tenants/provisioner.go) for
// entryId when a caller omits one.
package identitylog

import (
	"github.com/google/uuid"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

type EventType string

const (
	EventCreate               EventType = "create"
	EventRotate               EventType = "rotate"
	EventRevoke               EventType = "revoke"
	EventCapabilityClaimChange EventType = "capability-claim-change"
)

var allowedAgentStatuses = []string{"active", "suspended", "revoked"}

// Entry is the normalized IdentityLogEntry.v1 record.
type Entry struct {
	EntryID              string                 `json:"entryId"`
	TenantID             string                 `json:"tenantId"`
	AgentID              string                 `json:"agentId"`
	EventType            EventType              `json:"eventType"`
	LogIndex             int64                  `json:"logIndex"`
	PrevEntryHash        *string                `json:"prevEntryHash"`
	KeyIDBefore          string                 `json:"keyIdBefore,omitempty"`
	KeyIDAfter           string                 `json:"keyIdAfter,omitempty"`
	StatusBefore         string                 `json:"statusBefore,omitempty"`
	StatusAfter          string                 `json:"statusAfter,omitempty"`
	CapabilitiesBefore   []string               `json:"capabilitiesBefore"`
	CapabilitiesAfter    []string               `json:"capabilitiesAfter"`
	ReasonCode           string                 `json:"reasonCode,omitempty"`
	Reason               string                 `json:"reason,omitempty"`
	OccurredAt           string                 `json:"occurredAt"`
	RecordedAt           string                 `json:"recordedAt"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	EntryHash            string                 `json:"entryHash,omitempty"`
}

// Input is the unnormalized set of fields used to build an Entry.
type Input struct {
	EntryID            string
	TenantID           string
	AgentID            string
	EventType          EventType
	LogIndex           int64
	PrevEntryHash      *string
	KeyIDBefore        string
	KeyIDAfter         string
	StatusBefore       string
	StatusAfter        string
	CapabilitiesBefore []string
	CapabilitiesAfter  []string
	ReasonCode         string
	Reason             string
	OccurredAt         string
	RecordedAt         string
	Metadata           map[string]interface{}
}

// Build normalizes in into an Entry, enforces the per-eventType field
// requirements of spec §4.7, and computes entryHash.
func Build(in Input) (*Entry, error) {
	if in.EntryID == "" {
		in.EntryID = uuid.New().String()
	}
	entryID, err := normalize.Identifier("entryId", in.EntryID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	agentID, err := normalize.Identifier("agentId", in.AgentID, 256)
	if err != nil {
		return nil, err
	}
	eventType, err := normalizeEventType(in.EventType)
	if err != nil {
		return nil, err
	}
	logIndex, err := normalize.NonNegativeSafeInt("logIndex", in.LogIndex)
	if err != nil {
		return nil, err
	}
	occurredAt, err := normalize.Timestamp("occurredAt", in.OccurredAt)
	if err != nil {
		return nil, err
	}
	recordedAt, err := normalize.Timestamp("recordedAt", in.RecordedAt)
	if err != nil {
		return nil, err
	}
	meta, err := normalize.PlainObject("metadata", metaOrNil(in.Metadata))
	if err != nil {
		return nil, err
	}

	capsBefore := normalize.DedupedSortedList(in.CapabilitiesBefore)
	capsAfter := normalize.DedupedSortedList(in.CapabilitiesAfter)

	var keyIDBefore, keyIDAfter string
	if in.KeyIDBefore != "" {
		if keyIDBefore, err = normalize.NonEmptyString("keyIdBefore", in.KeyIDBefore, 256); err != nil {
			return nil, err
		}
	}
	if in.KeyIDAfter != "" {
		if keyIDAfter, err = normalize.NonEmptyString("keyIdAfter", in.KeyIDAfter, 256); err != nil {
			return nil, err
		}
	}
	var statusBefore, statusAfter string
	if in.StatusBefore != "" {
		if statusBefore, err = normalize.AllowListEnum("statusBefore", in.StatusBefore, allowedAgentStatuses...); err != nil {
			return nil, err
		}
	}
	if in.StatusAfter != "" {
		if statusAfter, err = normalize.AllowListEnum("statusAfter", in.StatusAfter, allowedAgentStatuses...); err != nil {
			return nil, err
		}
	}

	e := &Entry{
		EntryID:            entryID,
		TenantID:           tenantID,
		AgentID:            agentID,
		EventType:          eventType,
		LogIndex:           logIndex,
		PrevEntryHash:      in.PrevEntryHash,
		KeyIDBefore:        keyIDBefore,
		KeyIDAfter:         keyIDAfter,
		StatusBefore:       statusBefore,
		StatusAfter:        statusAfter,
		CapabilitiesBefore: capsBefore,
		CapabilitiesAfter:  capsAfter,
		ReasonCode:         in.ReasonCode,
		Reason:             in.Reason,
		OccurredAt:         occurredAt,
		RecordedAt:         recordedAt,
		Metadata:           meta,
	}

	if err := checkEventTypeRequirements(e); err != nil {
		return nil, err
	}

	hash, err := canonical.HashJSON(withoutEntryHash(e))
	if err != nil {
		return nil, err
	}
	e.EntryHash = hash
	return e, nil
}

func normalizeEventType(t EventType) (EventType, error) {
	switch t {
	case EventCreate, EventRotate, EventRevoke, EventCapabilityClaimChange:
		return t, nil
	default:
		return "", errs.New("EVENT_TYPE_INVALID", "eventType is not one of the allowed identity log event types")
	}
}

// checkEventTypeRequirements enforces the per-type field rules of spec
// §4.7: "create requires keyIdAfter and statusAfter; rotate requires
// keyIdBefore ≠ keyIdAfter; revoke requires statusAfter=revoked;
// capability-claim-change requires a capability delta."
func checkEventTypeRequirements(e *Entry) error {
	switch e.EventType {
	case EventCreate:
		if e.KeyIDAfter == "" || e.StatusAfter == "" {
			return errs.New("IDENTITY_LOG_ENTRY_INVALID", "create requires keyIdAfter and statusAfter")
		}
	case EventRotate:
		if e.KeyIDBefore == "" || e.KeyIDAfter == "" || e.KeyIDBefore == e.KeyIDAfter {
			return errs.New("IDENTITY_LOG_ENTRY_INVALID", "rotate requires keyIdBefore and keyIdAfter to differ")
		}
	case EventRevoke:
		if e.StatusAfter != "revoked" {
			return errs.New("IDENTITY_LOG_ENTRY_INVALID", "revoke requires statusAfter=revoked")
		}
	case EventCapabilityClaimChange:
		if sameStringSet(e.CapabilitiesBefore, e.CapabilitiesAfter) {
			return errs.New("IDENTITY_LOG_ENTRY_INVALID", "capability-claim-change requires a capability delta")
		}
	}
	return nil
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Validate recomputes entryHash and compares it to the stored value.
func Validate(e *Entry) error {
	if e == nil {
		return errs.New("IDENTITY_LOG_ENTRY_MISSING", "entry is nil")
	}
	if err := checkEventTypeRequirements(e); err != nil {
		return err
	}
	recomputed, err := canonical.HashJSON(withoutEntryHash(e))
	if err != nil {
		return err
	}
	if recomputed != e.EntryHash {
		return errs.New("IDENTITY_LOG_ENTRY_HASH_MISMATCH", "recomputed entryHash does not match stored value")
	}
	return nil
}

func withoutEntryHash(e *Entry) *Entry {
	cp := *e
	cp.EntryHash = ""
	return &cp
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
