// Package p2p implements the peer-to-peer protocol that keeps node
// ledgers consistent: JSON message envelopes over TCP, the per-peer
// session state machine, and the network manager that owns the peer set
// and fan-out.
package p2p

import (
	"encoding/json"
	"time"

	"genx/core"
)

// MessageType enumerates the fixed wire message set.
type MessageType string

const (
	MsgHandshake       MessageType = "handshake"
	MsgPing            MessageType = "ping"
	MsgPong            MessageType = "pong"
	MsgGetPeers        MessageType = "get_peers"
	MsgPeers           MessageType = "peers"
	MsgGetBlocks       MessageType = "get_blocks"
	MsgBlocks          MessageType = "blocks"
	MsgBlock           MessageType = "block"
	MsgTransaction     MessageType = "transaction"
	MsgGetTransactions MessageType = "get_transactions"
)

// Message is the wire envelope. One envelope per logical send; framing
// is newline-delimited JSON, which json.Encoder/Decoder preserve as
// message boundaries.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewMessage wraps a typed payload in an envelope.
func NewMessage(t MessageType, payload any) (*Message, error) {
	msg := &Message{Type: t, Timestamp: time.Now().Unix()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return msg, nil
}

// Decode unmarshals the envelope's payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// HandshakePayload opens every connection. Version and NodeID are
// mandatory; a handshake missing either is malformed and the connection
// is closed.
type HandshakePayload struct {
	Version    string `json:"version"`
	NodeID     string `json:"node_id"`
	ListenAddr string `json:"listen_addr,omitempty"`
	Height     uint64 `json:"height"`
}

// PingPayload and PongPayload carry the liveness probe.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PeersPayload answers GET_PEERS with the locally known address set.
type PeersPayload struct {
	Addresses []string `json:"addresses"`
}

// GetBlocksPayload requests the inclusive index range [From, To].
type GetBlocksPayload struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// BlocksPayload answers GET_BLOCKS with an ordered run of blocks.
type BlocksPayload struct {
	Blocks []*core.Block `json:"blocks"`
}

// BlockPayload announces a single block.
type BlockPayload struct {
	Block *core.Block `json:"block"`
}

// TransactionPayload announces a single transaction.
type TransactionPayload struct {
	Transaction *core.Transaction `json:"transaction"`
}
