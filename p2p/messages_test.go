package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEnvelope(t *testing.T) {
	msg, err := NewMessage(MsgHandshake, HandshakePayload{
		Version:    "1.0",
		NodeID:     "node-a",
		ListenAddr: "127.0.0.1:8333",
		Height:     7,
	})
	require.NoError(t, err)
	assert.Equal(t, MsgHandshake, msg.Type)
	assert.NotZero(t, msg.Timestamp)

	var hs HandshakePayload
	require.NoError(t, msg.Decode(&hs))
	assert.Equal(t, "node-a", hs.NodeID)
	assert.EqualValues(t, 7, hs.Height)

	var wrong GetBlocksPayload
	require.NoError(t, msg.Decode(&wrong), "mismatched payload decodes to zero values")
	assert.Zero(t, wrong.From)
}

func TestMessageWithoutPayload(t *testing.T) {
	msg, err := NewMessage(MsgGetPeers, nil)
	require.NoError(t, err)
	assert.Nil(t, msg.Data)
}

func TestMessageRejectsUnencodablePayload(t *testing.T) {
	_, err := NewMessage(MsgBlock, func() {})
	assert.Error(t, err)
}
