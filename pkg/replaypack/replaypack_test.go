package replaypack

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/errs"
)

func hex64(b byte) string {
	s := make([]byte, 64)
	for i := range s {
		s[i] = '0' + b%10
	}
	return string(s)
}

func TestBuildSession_UnsignedRoundTrip(t *testing.T) {
	p, err := BuildSession(SessionInput{
		SessionID: "sess_1",
		TenantID:  "tenant_1",
		Events: []ReplayEvent{
			{EventID: "e0", At: "2025-01-01T00:00:00Z", EventType: "start", EventHash: hex64(1)},
			{EventID: "e1", At: "2025-01-01T00:01:00Z", EventType: "action", EventHash: hex64(2)},
		},
	}, nil, "")
	require.NoError(t, err)
	require.NoError(t, ValidateSession(p, nil))
	require.Nil(t, p.Signature)
}

func TestBuildSession_SignedRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	p, err := BuildSession(SessionInput{
		SessionID: "sess_1",
		TenantID:  "tenant_1",
		Events:    []ReplayEvent{{EventID: "e0", At: "2025-01-01T00:00:00Z", EventType: "start", EventHash: hex64(1)}},
	}, priv, "2025-01-01T00:02:00Z")
	require.NoError(t, err)
	require.NotNil(t, p.Signature)
	require.NoError(t, ValidateSession(p, pub))
}

func TestValidateSession_DetectsTampering(t *testing.T) {
	p, err := BuildSession(SessionInput{SessionID: "sess_1", TenantID: "tenant_1"}, nil, "")
	require.NoError(t, err)
	p.SessionID = "sess_2"
	err = ValidateSession(p, nil)
	require.Equal(t, "SESSION_REPLAY_PACK_HASH_MISMATCH", errs.CodeOf(err))
}

func TestBuildGraph_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	g, err := BuildGraph(GraphInput{
		GraphID:  "graph_1",
		TenantID: "tenant_1",
		Relationships: []Relationship{
			{FromAgentID: "a", ToAgentID: "b", Kind: "delegates_to"},
		},
	}, priv, "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, ValidateGraph(g, pub))
}
