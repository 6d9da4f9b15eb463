// Package replaypack implements SessionReplayPack.v1 and
// VerifiedInteractionGraphPack.v1 (spec §3, component C8): canonical,
// hashed, optionally-signed wrappers around a chain of session events
// or a verified interaction graph. Grounded on the teacher's
// pkg/contracts/receipt.go (ReplayScriptRef / chain-hash fields) and
// pkg/envelope/gate.go (optional-signature binding pattern).
package replaypack

import (
	"crypto/ed25519"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// ReplayEvent is one entry in a SessionReplayPack.v1's event list.
type ReplayEvent struct {
	EventID   string                 `json:"eventId"`
	At        string                 `json:"at"`
	EventType string                 `json:"eventType"`
	EventHash string                 `json:"eventHash"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SessionReplayPack is the normalized SessionReplayPack.v1 record.
type SessionReplayPack struct {
	SessionID            string                    `json:"sessionId"`
	TenantID             string                    `json:"tenantId"`
	Events               []ReplayEvent             `json:"events"`
	SessionHash          string                    `json:"sessionHash"`
	EventChainHash       string                    `json:"eventChainHash"`
	VerificationMetadata map[string]interface{}    `json:"verificationMetadata,omitempty"`
	PackHash             string                    `json:"packHash,omitempty"`
	Signature            *canonical.SignatureEnvelope `json:"signature,omitempty"`
}

// SessionInput is the unnormalized set of fields used to build a
// SessionReplayPack.
type SessionInput struct {
	SessionID            string
	TenantID             string
	Events               []ReplayEvent
	VerificationMetadata map[string]interface{}
}

// sessionPayload is what sessionHash binds to: the session identity
// independent of its event list.
type sessionPayload struct {
	SessionID string `json:"sessionId"`
	TenantID  string `json:"tenantId"`
}

// BuildSession normalizes in into a SessionReplayPack, computing
// sessionHash, eventChainHash, and packHash. If priv is non-nil, the
// pack is signed, binding the signature to packHash.
func BuildSession(in SessionInput, priv ed25519.PrivateKey, signedAt string) (*SessionReplayPack, error) {
	sessionID, err := normalize.Identifier("sessionId", in.SessionID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	events := in.Events
	if events == nil {
		events = []ReplayEvent{}
	}
	for i := range events {
		if _, err := normalize.Identifier("events[].eventId", events[i].EventID, 256); err != nil {
			return nil, err
		}
		if _, err := normalize.HexSHA256("events[].eventHash", events[i].EventHash); err != nil {
			return nil, err
		}
	}
	meta, err := normalize.PlainObject("verificationMetadata", metaOrNil(in.VerificationMetadata))
	if err != nil {
		return nil, err
	}

	sessionHash, err := canonical.HashJSON(sessionPayload{SessionID: sessionID, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(events))
	for i, e := range events {
		hashes[i] = e.EventHash
	}
	eventChainHash, err := canonical.HashJSON(hashes)
	if err != nil {
		return nil, err
	}

	p := &SessionReplayPack{
		SessionID:            sessionID,
		TenantID:             tenantID,
		Events:               events,
		SessionHash:          sessionHash,
		EventChainHash:       eventChainHash,
		VerificationMetadata: meta,
	}

	packHash, err := canonical.HashJSON(withoutSessionPackHash(p))
	if err != nil {
		return nil, err
	}
	p.PackHash = packHash

	if priv != nil {
		env, err := canonical.SignEnvelope(packHash, priv, signedAt)
		if err != nil {
			return nil, err
		}
		p.Signature = env
	}
	return p, nil
}

// ValidateSession recomputes packHash and, if signed, verifies the
// signature against pub.
func ValidateSession(p *SessionReplayPack, pub ed25519.PublicKey) error {
	if p == nil {
		return errs.New("SESSION_REPLAY_PACK_MISSING", "pack is nil")
	}
	recomputed, err := canonical.HashJSON(withoutSessionPackHash(p))
	if err != nil {
		return err
	}
	if recomputed != p.PackHash {
		return errs.New("SESSION_REPLAY_PACK_HASH_MISMATCH", "recomputed packHash does not match stored value")
	}
	if p.Signature != nil {
		if pub == nil {
			return errs.New("SESSION_REPLAY_PACK_SIGNATURE_PAYLOAD_HASH_MISMATCH", "pack is signed but no public key was presented")
		}
		if err := canonical.VerifyEnvelope(p.PackHash, p.Signature, pub); err != nil {
			return err
		}
	}
	return nil
}

func withoutSessionPackHash(p *SessionReplayPack) *SessionReplayPack {
	cp := *p
	cp.PackHash = ""
	cp.Signature = nil
	return &cp
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
