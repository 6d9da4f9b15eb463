// Package inbox implements AgentInboxCursor.v1 / AgentInboxChannelState.v1
// / AgentInboxMessage.v1 (spec §4.6, component C6): an at-most-once-advance
// cursor over a per-channel, totally-ordered message timeline with
// idempotency-keyed publish. Grounded on the teacher's
// pkg/pack/fs_registry.go (monotonic sequence + idempotent-write checks)
// generalized from a single registry stream to many named channels.
//
// Every function here is pure: the caller owns the ChannelState, passes
// it in, and receives the advanced state back (spec §5: "stateless w.r.t.
// the core"). Concurrent access to the same channel is the caller's
// responsibility to serialize.
package inbox

import (
	"encoding/base64"
	"fmt"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// Message is one entry in a channel's timeline.
type Message struct {
	Channel        string      `json:"channel"`
	Seq            int64       `json:"seq"`
	MessageID      string      `json:"messageId"`
	IdempotencyKey string      `json:"idempotencyKey"`
	PayloadHash    string      `json:"payloadHash"`
	Payload        interface{} `json:"payload,omitempty"`
	PublishedAt    string      `json:"publishedAt"`
}

type idempotencyEntry struct {
	payloadHash string
	seq         int64
}

// ChannelState is the caller-owned state of one channel. Its
// idempotency index is unexported, so encoding/json does not carry it.
type ChannelState struct {
	Channel     string
	NextSeq     int64
	Messages    []Message
	idempotency map[string]idempotencyEntry
}

// NewChannelState returns an empty channel state with nextSeq=1.
func NewChannelState(channel string) (*ChannelState, error) {
	ch, err := normalize.Identifier("channel", channel, 256)
	if err != nil {
		return nil, err
	}
	return &ChannelState{Channel: ch, NextSeq: 1, idempotency: map[string]idempotencyEntry{}}, nil
}

// Cursor is the AgentInboxCursor.v1 record.
type Cursor struct {
	Schema      string `json:"schema"`
	Channel     string `json:"channel"`
	Seq         int64  `json:"seq"`
	MessageID   string `json:"messageId"`
	PublishedAt string `json:"publishedAt"`
}

// cursorToken is the {v:1,cursor} wrapper the token base64url-encodes.
type cursorToken struct {
	V      int    `json:"v"`
	Cursor Cursor `json:"cursor"`
}

// EncodeCursorToken returns the base64url of canonical({v:1,cursor}).
func EncodeCursorToken(c Cursor) (string, error) {
	b, err := canonical.Encode(cursorToken{V: 1, Cursor: c})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// PublishResult is the outcome of Publish.
type PublishResult struct {
	State    *ChannelState
	Message  Message
	Deduped  bool
}

// Publish appends payload to the channel timeline under idempotencyKey,
// or replays the existing message if idempotencyKey was already used
// with an identical payload (spec §4.6).
func Publish(state *ChannelState, idempotencyKey string, payload interface{}, publishedAt string) (*PublishResult, error) {
	if state == nil {
		return nil, errs.New("INBOX_STATE_MISSING", "channel state is nil")
	}
	idemKey, err := normalize.NonEmptyString("idempotencyKey", idempotencyKey, 256)
	if err != nil {
		return nil, err
	}
	at, err := normalize.Timestamp("publishedAt", publishedAt)
	if err != nil {
		return nil, err
	}
	payloadHash, err := canonical.HashJSON(payload)
	if err != nil {
		return nil, err
	}

	if existing, ok := state.idempotency[idemKey]; ok {
		if existing.payloadHash != payloadHash {
			return nil, errs.New("IDEMPOTENCY_CONFLICT", "idempotencyKey was already used with a different payload")
		}
		return &PublishResult{State: state, Message: state.Messages[existing.seq-1], Deduped: true}, nil
	}

	seq := state.NextSeq
	messageID := deriveMessageID(state.Channel, seq)
	msg := Message{
		Channel:        state.Channel,
		Seq:            seq,
		MessageID:      messageID,
		IdempotencyKey: idemKey,
		PayloadHash:    payloadHash,
		Payload:        payload,
		PublishedAt:    at,
	}

	next := &ChannelState{
		Channel:     state.Channel,
		NextSeq:     seq + 1,
		Messages:    append(append([]Message{}, state.Messages...), msg),
		idempotency: cloneIdempotency(state.idempotency),
	}
	next.idempotency[idemKey] = idempotencyEntry{payloadHash: payloadHash, seq: seq}

	return &PublishResult{State: next, Message: msg, Deduped: false}, nil
}

func deriveMessageID(channel string, seq int64) string {
	h := canonical.SHA256Hex([]byte(channel))
	return "aimsg_" + h[:16] + "_" + fmt.Sprintf("%012d", seq)
}

func cloneIdempotency(m map[string]idempotencyEntry) map[string]idempotencyEntry {
	out := make(map[string]idempotencyEntry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ListResult is the outcome of List.
type ListResult struct {
	Messages   []Message
	NextCursor *Cursor
}

// List returns up to limit messages after cursor (or from the start, if
// cursor is nil), and the cursor to resume from (spec §4.6).
func List(state *ChannelState, cursor *Cursor, limit int) (*ListResult, error) {
	if state == nil {
		return nil, errs.New("INBOX_STATE_MISSING", "channel state is nil")
	}
	if limit < 1 || limit > 1000 {
		return nil, errs.New("LIST_LIMIT_INVALID", "limit must be between 1 and 1000")
	}

	startIdx := 0
	if cursor != nil {
		if cursor.Channel != state.Channel {
			return nil, errs.New("CURSOR_NOT_FOUND", "cursor does not belong to this channel")
		}
		if cursor.Seq < 1 || int(cursor.Seq) > len(state.Messages) || state.Messages[cursor.Seq-1].MessageID != cursor.MessageID {
			return nil, errs.New("CURSOR_NOT_FOUND", "cursor does not match the stored message at that sequence")
		}
		startIdx = int(cursor.Seq)
	}

	end := startIdx + limit
	if end > len(state.Messages) {
		end = len(state.Messages)
	}
	page := append([]Message{}, state.Messages[startIdx:end]...)

	var nextCursor *Cursor
	if len(page) > 0 {
		last := page[len(page)-1]
		nextCursor = &Cursor{
			Schema:      "AgentInboxCursor.v1",
			Channel:     last.Channel,
			Seq:         last.Seq,
			MessageID:   last.MessageID,
			PublishedAt: last.PublishedAt,
		}
	}
	return &ListResult{Messages: page, NextCursor: nextCursor}, nil
}

// AckResult is the outcome of Ack.
type AckResult struct {
	Checkpoint *Cursor
	Noop       bool
}

// Ack advances a per-consumer checkpoint by at most one message per call
// (spec §4.6's checkpoint-advance semantics).
func Ack(state *ChannelState, existing *Cursor, target Cursor) (*AckResult, error) {
	if state == nil {
		return nil, errs.New("INBOX_STATE_MISSING", "channel state is nil")
	}
	if target.Channel != state.Channel {
		return nil, errs.New("ACK_CHANNEL_MISMATCH", "ack cursor does not belong to this channel")
	}
	if existing != nil && existing.Channel != state.Channel {
		return nil, errs.New("ACK_CHANNEL_MISMATCH", "existing checkpoint does not belong to this channel")
	}
	if target.Seq < 1 || int(target.Seq) > len(state.Messages) || state.Messages[target.Seq-1].MessageID != target.MessageID {
		return nil, errs.New("ACK_CURSOR_NOT_FOUND", "target message does not exist in the channel timeline")
	}

	var e int64
	if existing != nil {
		e = existing.Seq
	}

	switch {
	case target.Seq < e:
		return nil, errs.New("ACK_CURSOR_REGRESSION", "ack cursor may not move the checkpoint backward")
	case target.Seq == e:
		return &AckResult{Checkpoint: existing, Noop: true}, nil
	case target.Seq == e+1:
		cp := target
		cp.Schema = "AgentInboxCursor.v1"
		return &AckResult{Checkpoint: &cp, Noop: false}, nil
	default:
		return nil, errs.New("ACK_OUT_OF_ORDER", "ack may advance the checkpoint by at most one message")
	}
}
