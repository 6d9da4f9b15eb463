// Package negotiation implements IntentNegotiationEvent.v1 and the
// propose→counter*→accept state machine of spec §4.4 (component C5).
// Grounded on the teacher's pkg/envelope/gate.go for the shape of a
// pure, fail-closed decision function over an ordered event sequence.
package negotiation

import (
	"sort"
	"time"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

type EventType string

const (
	EventPropose EventType = "propose"
	EventCounter EventType = "counter"
	EventAccept  EventType = "accept"
)

// fixedReasonCode is the reasonCode spec §3 requires to be "fixed per
// type": every event of a given type must carry exactly this code.
var fixedReasonCode = map[EventType]string{
	EventPropose: "INTENT_PROPOSED",
	EventCounter: "INTENT_COUNTERED",
	EventAccept:  "INTENT_ACCEPTED",
}

// Event is the normalized IntentNegotiationEvent.v1 record.
type Event struct {
	EventID       string                 `json:"eventId"`
	NegotiationID string                 `json:"negotiationId"`
	IntentID      string                 `json:"intentId"`
	IntentHash    string                 `json:"intentHash"`
	EventType     EventType              `json:"eventType"`
	ReasonCode    string                 `json:"reasonCode"`
	ActorAgentID  string                 `json:"actorAgentId"`
	At            string                 `json:"at"`
	PrevEventHash *string                `json:"prevEventHash"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	EventHash     string                 `json:"eventHash,omitempty"`
}

// Input is the unnormalized set of fields used to build an Event.
type Input struct {
	EventID       string
	NegotiationID string
	IntentID      string
	IntentHash    string
	EventType     EventType
	ActorAgentID  string
	At            string
	PrevEventHash *string
	Metadata      map[string]interface{}
}

// Build normalizes in into an Event and computes eventHash.
func Build(in Input) (*Event, error) {
	eventID, err := normalize.Identifier("eventId", in.EventID, 256)
	if err != nil {
		return nil, err
	}
	negotiationID, err := normalize.Identifier("negotiationId", in.NegotiationID, 256)
	if err != nil {
		return nil, err
	}
	intentID, err := normalize.Identifier("intentId", in.IntentID, 256)
	if err != nil {
		return nil, err
	}
	intentHash, err := normalize.HexSHA256("intentHash", in.IntentHash)
	if err != nil {
		return nil, err
	}
	eventType, err := normalizeEventType(in.EventType)
	if err != nil {
		return nil, err
	}
	actorAgentID, err := normalize.Identifier("actorAgentId", in.ActorAgentID, 256)
	if err != nil {
		return nil, err
	}
	at, err := normalize.Timestamp("at", in.At)
	if err != nil {
		return nil, err
	}
	meta, err := normalize.PlainObject("metadata", metaOrNil(in.Metadata))
	if err != nil {
		return nil, err
	}

	e := &Event{
		EventID:       eventID,
		NegotiationID: negotiationID,
		IntentID:      intentID,
		IntentHash:    intentHash,
		EventType:     eventType,
		ReasonCode:    fixedReasonCode[eventType],
		ActorAgentID:  actorAgentID,
		At:            at,
		PrevEventHash: in.PrevEventHash,
		Metadata:      meta,
	}

	hash, err := canonical.HashJSON(withoutEventHash(e))
	if err != nil {
		return nil, err
	}
	e.EventHash = hash
	return e, nil
}

func normalizeEventType(t EventType) (EventType, error) {
	switch t {
	case EventPropose, EventCounter, EventAccept:
		return t, nil
	default:
		return "", errs.New("EVENT_TYPE_INVALID", "eventType must be one of propose, counter, accept")
	}
}

func withoutEventHash(e *Event) *Event {
	cp := *e
	cp.EventHash = ""
	return &cp
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}

// Status is the negotiation transcript's accepted/open outcome.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAccepted  Status = "accepted"
)

// Transcript is the result of validating an ordered event sequence.
type Transcript struct {
	Events        []*Event
	Status        Status
	TranscriptHash string
}

// BoundContract is the minimal view of an IntentContract.v1 a
// transcript validates events against.
type BoundContract struct {
	IntentID      string
	NegotiationID string
	IntentHash    string
}

// ValidateTranscript sorts events stably by (at ASC, eventId ASC),
// checks each event's fields and chain hash, enforces the
// propose→counter*→accept state machine, and computes the transcript
// hash (spec §4.4).
func ValidateTranscript(events []*Event, contract BoundContract) (*Transcript, error) {
	if len(events) == 0 {
		return nil, errs.New("PROPOSE_REQUIRED", "transcript has no events")
	}

	sorted := make([]*Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, erri := time.Parse(time.RFC3339Nano, sorted[i].At)
		tj, errj := time.Parse(time.RFC3339Nano, sorted[j].At)
		if erri == nil && errj == nil {
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
		} else if sorted[i].At != sorted[j].At {
			return sorted[i].At < sorted[j].At
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	var state EventType // "" means no events yet
	var prevHash *string

	for i, e := range sorted {
		if e.IntentID != contract.IntentID || e.NegotiationID != contract.NegotiationID {
			return nil, errs.New("INTENT_ID_MISMATCH", "event does not match the bound contract")
		}
		if e.IntentHash != contract.IntentHash {
			return nil, errs.New("INTENT_ID_MISMATCH", "event intentHash does not match the bound contract")
		}
		if e.ReasonCode != fixedReasonCode[e.EventType] {
			return nil, errs.New("REASON_CODE_INVALID", "event reasonCode does not match the fixed code for its eventType")
		}

		recomputed, err := canonical.HashJSON(withoutEventHash(e))
		if err != nil {
			return nil, err
		}
		if recomputed != e.EventHash {
			return nil, errs.New("NEGOTIATION_EVENT_HASH_TAMPERED", "recomputed eventHash does not match stored value")
		}

		if !samePrevHash(e.PrevEventHash, prevHash) {
			return nil, errs.New("NEGOTIATION_CHAIN_BROKEN", "prevEventHash does not chain to the prior event")
		}

		if err := checkTransition(state, e.EventType, i == 0); err != nil {
			return nil, err
		}
		state = e.EventType
		h := e.EventHash
		prevHash = &h
	}

	hashes := make([]string, len(sorted))
	for i, e := range sorted {
		hashes[i] = e.EventHash
	}
	transcriptHash, err := canonical.HashJSON(hashes)
	if err != nil {
		return nil, err
	}

	status := StatusOpen
	if state == EventAccept {
		status = StatusAccepted
	}

	return &Transcript{Events: sorted, Status: status, TranscriptHash: transcriptHash}, nil
}

func checkTransition(state EventType, next EventType, isFirst bool) error {
	if isFirst {
		if next != EventPropose {
			return errs.New("PROPOSE_REQUIRED", "the first event in a transcript must be propose")
		}
		return nil
	}
	switch state {
	case EventPropose, EventCounter:
		if next == EventCounter || next == EventAccept {
			return nil
		}
		return errs.New("TRANSITION_INVALID", "invalid negotiation transition")
	case EventAccept:
		return errs.New("EVENT_AFTER_ACCEPT", "no event may follow an accept")
	default:
		return errs.New("TRANSITION_INVALID", "invalid negotiation transition")
	}
}

func samePrevHash(declared *string, expected *string) bool {
	if declared == nil && expected == nil {
		return true
	}
	if declared == nil || expected == nil {
		return false
	}
	return *declared == *expected
}
