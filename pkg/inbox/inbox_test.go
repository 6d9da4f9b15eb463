package inbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/errs"
)

func TestPublish_AssignsSequentialMessageIDs(t *testing.T) {
	state, err := NewChannelState("c")
	require.NoError(t, err)

	r1, err := Publish(state, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	require.False(t, r1.Deduped)
	require.Equal(t, int64(1), r1.Message.Seq)

	r2, err := Publish(r1.State, "k2", map[string]interface{}{"n": 2.0}, "2025-01-01T00:01:00Z")
	require.NoError(t, err)
	require.Equal(t, int64(2), r2.Message.Seq)
	require.NotEqual(t, r1.Message.MessageID, r2.Message.MessageID)
}

func TestPublish_SameKeySamePayloadDedupes(t *testing.T) {
	state, err := NewChannelState("c")
	require.NoError(t, err)

	r1, err := Publish(state, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:00:00Z")
	require.NoError(t, err)

	r2, err := Publish(r1.State, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:05:00Z")
	require.NoError(t, err)
	require.True(t, r2.Deduped)
	require.Equal(t, r1.Message.MessageID, r2.Message.MessageID)
}

func TestPublish_SameKeyDifferentPayloadConflicts(t *testing.T) {
	state, err := NewChannelState("c")
	require.NoError(t, err)

	r1, err := Publish(state, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:00:00Z")
	require.NoError(t, err)

	_, err = Publish(r1.State, "k1", map[string]interface{}{"n": 2.0}, "2025-01-01T00:05:00Z")
	require.Equal(t, "IDEMPOTENCY_CONFLICT", errs.CodeOf(err))
}

// TestScenarioS3_InboxAck matches the literal scenario: empty inbox,
// publish one message, ack it, re-ack it (noop), ack a non-existent seq.
func TestScenarioS3_InboxAck(t *testing.T) {
	state, err := NewChannelState("c")
	require.NoError(t, err)

	pub, err := Publish(state, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, int64(1), pub.Message.Seq)
	state = pub.State

	target1 := Cursor{Channel: "c", Seq: 1, MessageID: pub.Message.MessageID}
	ack1, err := Ack(state, nil, target1)
	require.NoError(t, err)
	require.False(t, ack1.Noop)

	ack2, err := Ack(state, ack1.Checkpoint, target1)
	require.NoError(t, err)
	require.True(t, ack2.Noop)

	target2 := Cursor{Channel: "c", Seq: 2, MessageID: "aimsg_doesnotexist"}
	_, err = Ack(state, ack2.Checkpoint, target2)
	require.Equal(t, "ACK_CURSOR_NOT_FOUND", errs.CodeOf(err))
}

func TestAck_RejectsRegressionAndOutOfOrder(t *testing.T) {
	state, err := NewChannelState("c")
	require.NoError(t, err)
	p1, err := Publish(state, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	p2, err := Publish(p1.State, "k2", map[string]interface{}{"n": 2.0}, "2025-01-01T00:01:00Z")
	require.NoError(t, err)
	p3, err := Publish(p2.State, "k3", map[string]interface{}{"n": 3.0}, "2025-01-01T00:02:00Z")
	require.NoError(t, err)
	state = p3.State

	target1 := Cursor{Channel: "c", Seq: 1, MessageID: p1.Message.MessageID}
	ack1, err := Ack(state, nil, target1)
	require.NoError(t, err)

	target3 := Cursor{Channel: "c", Seq: 3, MessageID: p3.Message.MessageID}
	_, err = Ack(state, ack1.Checkpoint, target3)
	require.Equal(t, "ACK_OUT_OF_ORDER", errs.CodeOf(err))

	regressTarget := Cursor{Channel: "c", Seq: 1, MessageID: p1.Message.MessageID}
	ack2, err := Ack(state, ack1.Checkpoint, Cursor{Channel: "c", Seq: 2, MessageID: p2.Message.MessageID})
	require.NoError(t, err)
	require.False(t, ack2.Noop)

	_, err = Ack(state, ack2.Checkpoint, regressTarget)
	require.Equal(t, "ACK_CURSOR_REGRESSION", errs.CodeOf(err))
}

func TestList_CursorNotFoundOnMismatch(t *testing.T) {
	state, err := NewChannelState("c")
	require.NoError(t, err)
	p1, err := Publish(state, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:00:00Z")
	require.NoError(t, err)

	bad := Cursor{Channel: "c", Seq: 1, MessageID: "wrong"}
	_, err = List(p1.State, &bad, 10)
	require.Equal(t, "CURSOR_NOT_FOUND", errs.CodeOf(err))
}

func TestList_PaginatesForward(t *testing.T) {
	state, err := NewChannelState("c")
	require.NoError(t, err)
	p1, err := Publish(state, "k1", map[string]interface{}{"n": 1.0}, "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	p2, err := Publish(p1.State, "k2", map[string]interface{}{"n": 2.0}, "2025-01-01T00:01:00Z")
	require.NoError(t, err)

	page1, err := List(p2.State, nil, 1)
	require.NoError(t, err)
	require.Len(t, page1.Messages, 1)
	require.Equal(t, int64(1), page1.Messages[0].Seq)

	page2, err := List(p2.State, page1.NextCursor, 1)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 1)
	require.Equal(t, int64(2), page2.Messages[0].Seq)
}
