package p2p

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"genx/core"
)

// Handler is the node-side sink for ledger-bound traffic. The manager
// never talks to the ledger directly; origin is the session ID of the
// peer a message arrived from, echoed back on rebroadcast exclusion.
type Handler interface {
	OnBlock(origin string, b *core.Block)
	OnTransaction(origin string, tx *core.Transaction)
	OnBlocks(origin string, blocks []*core.Block)
	GetBlocks(from, to uint64) []*core.Block
	PendingTransactions() []*core.Transaction
	Height() uint64
}

// Config holds the network manager's knobs.
type Config struct {
	NodeID     string
	ListenAddr string
	// AdvertiseAddr is the address other nodes should dial; defaults
	// to ListenAddr.
	AdvertiseAddr string
	Version       string
	Bootstrap     []string

	MaxInbound  int
	MaxOutbound int

	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	RetryBackoff     time.Duration
	MaxRetries       int
}

func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.AdvertiseAddr == "" {
		c.AdvertiseAddr = c.ListenAddr
	}
	if c.MaxInbound <= 0 {
		c.MaxInbound = 32
	}
	if c.MaxOutbound <= 0 {
		c.MaxOutbound = 8
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Manager owns the peer set, discovery and retry policy, and message
// fan-out. Errors on one connection never take down another: a failed
// peer is dropped (and, for outbound peers, redialed under the retry
// cap) while the rest of the network carries on.
type Manager struct {
	cfg     Config
	log     *zap.Logger
	handler Handler

	listener net.Listener

	mu       sync.RWMutex
	peers    map[string]*Peer       // session ID -> peer
	byAddr   map[string]string      // dialed address -> session ID
	known    map[string]struct{}    // known listen addresses
	attempts map[string]int         // outbound attempts per address
	retries  map[string]*time.Timer // pending redial timers per address

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager builds a network manager; Start brings it up.
func NewManager(cfg Config, handler Handler, log *zap.Logger) *Manager {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		log:      log.Named("p2p"),
		handler:  handler,
		peers:    make(map[string]*Peer),
		byAddr:   make(map[string]string),
		known:    make(map[string]struct{}),
		attempts: make(map[string]int),
		retries:  make(map[string]*time.Timer),
		quit:     make(chan struct{}),
	}
}

// Start listens for inbound peers, dials the bootstrap set, and runs
// the liveness loop.
func (m *Manager) Start() error {
	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("p2p listen on %s: %w", m.cfg.ListenAddr, err)
	}
	m.listener = ln
	m.log.Info("listening", zap.String("addr", m.cfg.ListenAddr))

	m.wg.Add(2)
	go m.acceptLoop()
	go m.pingLoop()

	for _, addr := range m.cfg.Bootstrap {
		m.addKnown(addr)
		go m.Connect(addr)
	}
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (m *Manager) Addr() string {
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.cfg.ListenAddr
}

// Stop closes the listener, every peer socket and every pending redial
// timer, then waits for the session and timer goroutines to drain.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		if m.listener != nil {
			m.listener.Close()
		}
		m.mu.Lock()
		for _, tmr := range m.retries {
			tmr.Stop()
		}
		m.retries = make(map[string]*time.Timer)
		for _, p := range m.peers {
			p.Close()
		}
		m.mu.Unlock()
		m.wg.Wait()
	})
}

func (m *Manager) stopping() bool {
	select {
	case <-m.quit:
		return true
	default:
		return false
	}
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if m.stopping() {
				return
			}
			m.log.Warn("accept failed", zap.Error(err))
			continue
		}

		if m.countDirection(false) >= m.cfg.MaxInbound {
			m.log.Debug("inbound cap reached, refusing",
				zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		p := newPeer(conn, false, conn.RemoteAddr().String())
		p.setState(StateHandshaking)
		m.addPeer(p)

		m.wg.Add(1)
		go m.runSession(p)
	}
}

// Connect dials addr as a new outbound peer. Dialing is refused before
// it starts when the outbound cap is hit, the address is already
// connected, or it is our own advertise address. Dial failures are
// retried with a fixed backoff until the per-address attempt cap is
// exhausted; after that the address is left alone.
func (m *Manager) Connect(addr string) {
	if addr == m.cfg.AdvertiseAddr || m.stopping() {
		return
	}

	m.mu.Lock()
	if _, dup := m.byAddr[addr]; dup {
		m.mu.Unlock()
		return
	}
	if m.countDirectionLocked(true) >= m.cfg.MaxOutbound {
		m.mu.Unlock()
		m.log.Debug("outbound cap reached, not dialing", zap.String("addr", addr))
		return
	}
	m.byAddr[addr] = "" // reserve while the dial is in flight
	m.mu.Unlock()

	conn, err := net.DialTimeout("tcp", addr, m.cfg.HandshakeTimeout)
	if err != nil {
		m.mu.Lock()
		delete(m.byAddr, addr)
		m.mu.Unlock()
		m.log.Debug("dial failed", zap.String("addr", addr), zap.Error(err))
		m.scheduleRetry(addr)
		return
	}

	p := newPeer(conn, true, addr)
	p.setState(StateHandshaking)
	m.mu.Lock()
	m.peers[p.ID()] = p
	m.byAddr[addr] = p.ID()
	m.mu.Unlock()

	// Outbound side speaks first.
	if err := p.Send(m.handshake()); err != nil {
		m.log.Debug("handshake send failed", zap.String("addr", addr), zap.Error(err))
		m.removePeer(p, "handshake send failed")
		return
	}

	m.wg.Add(1)
	go m.runSession(p)
}

func (m *Manager) handshake() *Message {
	msg, _ := NewMessage(MsgHandshake, HandshakePayload{
		Version:    m.cfg.Version,
		NodeID:     m.cfg.NodeID,
		ListenAddr: m.cfg.AdvertiseAddr,
		Height:     m.handler.Height(),
	})
	return msg
}

// runSession is the per-peer read loop. The handshake must arrive
// within the handshake timeout; afterwards reads block indefinitely and
// the ping loop handles liveness.
func (m *Manager) runSession(p *Peer) {
	defer m.wg.Done()
	defer m.removePeer(p, "session closed")

	p.conn.SetReadDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	dec := json.NewDecoder(p.conn)

	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if !m.stopping() && !errors.Is(err, net.ErrClosed) {
				m.log.Debug("peer read ended", zap.String("peer", p.Addr()), zap.Error(err))
			}
			return
		}
		p.touch()
		if !m.handleMessage(p, &msg) {
			return
		}
	}
}

// handleMessage dispatches one envelope. A false return tears the
// session down; payload parse failures only drop the message.
func (m *Manager) handleMessage(p *Peer, msg *Message) bool {
	if p.State() != StateActive && msg.Type != MsgHandshake {
		m.log.Debug("message before handshake, dropping",
			zap.String("type", string(msg.Type)), zap.String("peer", p.Addr()))
		return true
	}

	switch msg.Type {
	case MsgHandshake:
		return m.handleHandshake(p, msg)

	case MsgPing:
		pong, _ := NewMessage(MsgPong, PongPayload{Timestamp: time.Now().Unix()})
		p.Send(pong)

	case MsgPong:
		// lastSeen already refreshed.

	case MsgGetPeers:
		reply, _ := NewMessage(MsgPeers, PeersPayload{Addresses: m.KnownAddresses()})
		p.Send(reply)

	case MsgPeers:
		var peers PeersPayload
		if err := msg.Decode(&peers); err != nil {
			m.logParseFailure(p, msg.Type, err)
			return true
		}
		for _, addr := range peers.Addresses {
			if addr == m.cfg.AdvertiseAddr {
				continue
			}
			if m.addKnown(addr) {
				go m.Connect(addr)
			}
		}

	case MsgGetBlocks:
		var req GetBlocksPayload
		if err := msg.Decode(&req); err != nil {
			m.logParseFailure(p, msg.Type, err)
			return true
		}
		blocks := m.handler.GetBlocks(req.From, req.To)
		reply, err := NewMessage(MsgBlocks, BlocksPayload{Blocks: blocks})
		if err == nil {
			p.Send(reply)
		}

	case MsgBlocks:
		var payload BlocksPayload
		if err := msg.Decode(&payload); err != nil {
			m.logParseFailure(p, msg.Type, err)
			return true
		}
		// JSON null elements decode to nil blocks; drop them so a
		// malformed payload cannot reach the handler.
		blocks := make([]*core.Block, 0, len(payload.Blocks))
		for _, b := range payload.Blocks {
			if b != nil {
				blocks = append(blocks, b)
			}
		}
		m.handler.OnBlocks(p.ID(), blocks)

	case MsgBlock:
		var payload BlockPayload
		if err := msg.Decode(&payload); err != nil || payload.Block == nil {
			m.logParseFailure(p, msg.Type, err)
			return true
		}
		if h := payload.Block.Index; h > p.Height() {
			p.height.Store(h)
		}
		m.handler.OnBlock(p.ID(), payload.Block)

	case MsgTransaction:
		var payload TransactionPayload
		if err := msg.Decode(&payload); err != nil || payload.Transaction == nil {
			m.logParseFailure(p, msg.Type, err)
			return true
		}
		m.handler.OnTransaction(p.ID(), payload.Transaction)

	case MsgGetTransactions:
		for _, tx := range m.handler.PendingTransactions() {
			reply, err := NewMessage(MsgTransaction, TransactionPayload{Transaction: tx})
			if err == nil {
				p.Send(reply)
			}
		}

	default:
		m.log.Debug("unknown message type, dropping",
			zap.String("type", string(msg.Type)), zap.String("peer", p.Addr()))
	}
	return true
}

func (m *Manager) handleHandshake(p *Peer, msg *Message) bool {
	var hs HandshakePayload
	if err := msg.Decode(&hs); err != nil || hs.Version == "" || hs.NodeID == "" {
		m.log.Warn("malformed handshake, disconnecting",
			zap.String("peer", p.Addr()), zap.Error(err))
		return false
	}

	if p.State() == StateActive {
		// Repeated handshake is just a height refresh.
		p.height.Store(hs.Height)
		return true
	}

	p.completeHandshake(&hs)
	p.conn.SetReadDeadline(time.Time{})
	if hs.ListenAddr != "" {
		m.addKnown(hs.ListenAddr)
	}
	m.resetAttempts(p.Addr())

	m.log.Info("peer active",
		zap.String("node", hs.NodeID),
		zap.String("addr", p.Addr()),
		zap.Uint64("height", hs.Height),
		zap.Bool("outbound", p.Outbound()))

	// The inbound side replies with its own handshake.
	if !p.Outbound() {
		if err := p.Send(m.handshake()); err != nil {
			return false
		}
	}
	getPeers, _ := NewMessage(MsgGetPeers, nil)
	p.Send(getPeers)
	return true
}

// pingLoop probes every active peer each interval and drops the ones
// silent for over twice the interval.
func (m *Manager) pingLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
		}

		for _, p := range m.snapshot() {
			if p.State() != StateActive {
				continue
			}
			if p.silence() > 2*m.cfg.PingInterval {
				m.log.Info("peer timed out", zap.String("addr", p.Addr()))
				m.removePeer(p, "ping timeout")
				continue
			}
			ping, _ := NewMessage(MsgPing, PingPayload{Timestamp: time.Now().Unix()})
			if err := p.Send(ping); err != nil {
				m.removePeer(p, "ping send failed")
			}
		}
	}
}

// Broadcast fans payload out to every active peer except excludeID and
// returns the number of successful sends. One peer's failure never
// blocks the rest.
func (m *Manager) Broadcast(t MessageType, payload any, excludeID string) int {
	msg, err := NewMessage(t, payload)
	if err != nil {
		m.log.Error("broadcast encode failed", zap.String("type", string(t)), zap.Error(err))
		return 0
	}

	sent := 0
	for _, p := range m.snapshot() {
		if p.ID() == excludeID || p.State() != StateActive {
			continue
		}
		if err := p.Send(msg); err != nil {
			m.log.Debug("broadcast send failed",
				zap.String("addr", p.Addr()), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// BroadcastBlock announces a block to everyone but its origin.
func (m *Manager) BroadcastBlock(b *core.Block, excludeID string) int {
	return m.Broadcast(MsgBlock, BlockPayload{Block: b}, excludeID)
}

// BroadcastTransaction announces a transaction to everyone but its
// origin.
func (m *Manager) BroadcastTransaction(tx *core.Transaction, excludeID string) int {
	return m.Broadcast(MsgTransaction, TransactionPayload{Transaction: tx}, excludeID)
}

// SendTo delivers one message to a specific active peer.
func (m *Manager) SendTo(peerID string, t MessageType, payload any) error {
	m.mu.RLock()
	p, ok := m.peers[peerID]
	m.mu.RUnlock()
	if !ok || p.State() != StateActive {
		return fmt.Errorf("peer %s is not active", peerID)
	}
	msg, err := NewMessage(t, payload)
	if err != nil {
		return err
	}
	return p.Send(msg)
}

// Peers returns a snapshot of the current peer set.
func (m *Manager) Peers() []PeerInfo {
	peers := m.snapshot()
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.info())
	}
	return out
}

// PeerCount returns the number of active peers.
func (m *Manager) PeerCount() int {
	n := 0
	for _, p := range m.snapshot() {
		if p.State() == StateActive {
			n++
		}
	}
	return n
}

// KnownAddresses returns every listen address this node has learned.
func (m *Manager) KnownAddresses() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.known))
	for addr := range m.known {
		out = append(out, addr)
	}
	return out
}

func (m *Manager) snapshot() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}

func (m *Manager) addPeer(p *Peer) {
	m.mu.Lock()
	m.peers[p.ID()] = p
	m.mu.Unlock()
}

// addKnown records addr, reporting whether it was new.
func (m *Manager) addKnown(addr string) bool {
	if addr == "" || addr == m.cfg.AdvertiseAddr {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.known[addr]; ok {
		return false
	}
	m.known[addr] = struct{}{}
	return true
}

// removePeer tears a session down and, for outbound peers, schedules a
// reconnect attempt under the retry cap.
func (m *Manager) removePeer(p *Peer, reason string) {
	m.mu.Lock()
	_, present := m.peers[p.ID()]
	delete(m.peers, p.ID())
	for addr, id := range m.byAddr {
		if id == p.ID() {
			delete(m.byAddr, addr)
		}
	}
	m.mu.Unlock()

	p.Close()
	if !present {
		return
	}
	m.log.Debug("peer removed", zap.String("addr", p.Addr()), zap.String("reason", reason))
	if p.Outbound() && !m.stopping() {
		m.scheduleRetry(p.Addr())
	}
}

func (m *Manager) scheduleRetry(addr string) {
	if m.stopping() {
		return
	}
	m.mu.Lock()
	m.attempts[addr]++
	n := m.attempts[addr]
	m.mu.Unlock()
	if n >= m.cfg.MaxRetries {
		m.log.Info("retry attempts exhausted", zap.String("addr", addr))
		return
	}
	timer := time.AfterFunc(m.cfg.RetryBackoff, func() {
		m.mu.Lock()
		delete(m.retries, addr)
		m.mu.Unlock()
		if !m.stopping() {
			m.Connect(addr)
		}
	})
	m.mu.Lock()
	if old, ok := m.retries[addr]; ok {
		old.Stop()
	}
	m.retries[addr] = timer
	m.mu.Unlock()
}

func (m *Manager) resetAttempts(addr string) {
	m.mu.Lock()
	delete(m.attempts, addr)
	m.mu.Unlock()
}

func (m *Manager) countDirection(outbound bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countDirectionLocked(outbound)
}

func (m *Manager) countDirectionLocked(outbound bool) int {
	n := 0
	for _, p := range m.peers {
		if p.Outbound() == outbound && p.State() != StateDisconnected {
			n++
		}
	}
	return n
}

func (m *Manager) logParseFailure(p *Peer, t MessageType, err error) {
	m.log.Warn("payload parse failed, dropping message",
		zap.String("type", string(t)), zap.String("peer", p.Addr()), zap.Error(err))
}
