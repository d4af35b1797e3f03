package p2p

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// PeerState is the per-connection lifecycle. Disconnected is terminal.
type PeerState int32

const (
	StateConnecting PeerState = iota
	StateHandshaking
	StateActive
	StateDisconnected
)

func (s PeerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Peer is one bidirectional session with a remote node. Socket reads
// happen on the session goroutine; writes are serialized through Send.
// Peers are never persisted.
type Peer struct {
	id       string
	conn     net.Conn
	outbound bool

	state    atomic.Int32
	lastSeen atomic.Int64
	height   atomic.Uint64

	encMu sync.Mutex // serializes socket writes
	enc   *json.Encoder

	mu      sync.Mutex // guards the handshake-set fields below
	addr    string     // remote listen address; dial address until handshake
	nodeID  string
	version string

	closeOnce sync.Once
}

func newPeer(conn net.Conn, outbound bool, addr string) *Peer {
	p := &Peer{
		id:       uuid.NewString(),
		conn:     conn,
		outbound: outbound,
		enc:      json.NewEncoder(conn),
		addr:     addr,
	}
	p.state.Store(int32(StateConnecting))
	p.touch()
	return p
}

// ID returns the local session identity, stable for the lifetime of
// the connection.
func (p *Peer) ID() string { return p.id }

// Outbound reports whether this side dialed the connection.
func (p *Peer) Outbound() bool { return p.outbound }

// State returns the current lifecycle state.
func (p *Peer) State() PeerState {
	return PeerState(p.state.Load())
}

func (p *Peer) setState(s PeerState) {
	p.state.Store(int32(s))
}

// Addr returns the peer's listen address as reported in its handshake,
// or the dial/remote address before that.
func (p *Peer) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// NodeID returns the remote node identity from the handshake.
func (p *Peer) NodeID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodeID
}

// Version returns the protocol version the peer reported.
func (p *Peer) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Height returns the chain height the peer last reported.
func (p *Peer) Height() uint64 {
	return p.height.Load()
}

// completeHandshake records the identity fields from a valid handshake.
func (p *Peer) completeHandshake(hs *HandshakePayload) {
	p.mu.Lock()
	p.nodeID = hs.NodeID
	p.version = hs.Version
	if hs.ListenAddr != "" {
		p.addr = hs.ListenAddr
	}
	p.mu.Unlock()
	p.height.Store(hs.Height)
	p.setState(StateActive)
}

// Send writes one envelope to the socket. Concurrent senders are
// serialized so frames never interleave; a slow write never blocks the
// metadata accessors.
func (p *Peer) Send(msg *Message) error {
	p.encMu.Lock()
	defer p.encMu.Unlock()
	return p.enc.Encode(msg)
}

// touch records activity; any received message counts.
func (p *Peer) touch() {
	p.lastSeen.Store(time.Now().UnixNano())
}

// silence returns how long the peer has been quiet.
func (p *Peer) silence() time.Duration {
	return time.Since(time.Unix(0, p.lastSeen.Load()))
}

// Close tears the connection down. Safe to call more than once; the
// blocked session read unblocks with an error and the session exits.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.setState(StateDisconnected)
		p.conn.Close()
	})
}

// PeerInfo is the read-only snapshot reported to the API and sync loop.
type PeerInfo struct {
	ID       string    `json:"id"`
	NodeID   string    `json:"node_id"`
	Addr     string    `json:"address"`
	Outbound bool      `json:"outbound"`
	State    string    `json:"state"`
	Height   uint64    `json:"height"`
	Version  string    `json:"version,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func (p *Peer) info() PeerInfo {
	return PeerInfo{
		ID:       p.id,
		NodeID:   p.NodeID(),
		Addr:     p.Addr(),
		Outbound: p.outbound,
		State:    p.State().String(),
		Height:   p.Height(),
		Version:  p.Version(),
		LastSeen: time.Unix(0, p.lastSeen.Load()),
	}
}
