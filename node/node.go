// Package node wires the ledger and the network manager into a running
// node: inbound peer traffic flows into ledger validation, and ledger
// acceptance events flow back out as broadcasts.
package node

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"genx/core"
	"genx/keys"
	"genx/ledger"
	"genx/p2p"
)

// Config holds node-level settings on top of the ledger and network
// configs it embeds.
type Config struct {
	// NodeID identifies this node to peers; generated when empty.
	NodeID string

	Network p2p.Config

	// SyncInterval is how often the node compares its height against
	// its peers and requests missing blocks.
	SyncInterval time.Duration

	// Validator mode: when enabled, the node forges a block from the
	// mempool every block interval using Key, paying the reward to the
	// key's address.
	ValidatorEnabled bool
	ValidatorKey     *keys.PrivateKey
	BlockInterval    time.Duration
}

// Node is the composition root. It owns the ledger and the network
// manager and implements the p2p handler surface.
type Node struct {
	cfg Config
	log *zap.Logger

	ledger *ledger.Ledger
	net    *p2p.Manager

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New assembles a node around an initialized ledger.
func New(cfg Config, l *ledger.Ledger, log *zap.Logger) (*Node, error) {
	if l == nil {
		return nil, fmt.Errorf("nil ledger")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = 5 * time.Second
	}
	if cfg.ValidatorEnabled && cfg.ValidatorKey == nil {
		return nil, fmt.Errorf("validator mode requires key material")
	}
	cfg.Network.NodeID = cfg.NodeID

	n := &Node{
		cfg:    cfg,
		log:    log.Named("node").With(zap.String("node", cfg.NodeID)),
		ledger: l,
		quit:   make(chan struct{}),
	}
	n.net = p2p.NewManager(cfg.Network, n, log)
	return n, nil
}

// Ledger exposes the node's ledger to boundary consumers (API, wallet).
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Network exposes the network manager for peer introspection.
func (n *Node) Network() *p2p.Manager { return n.net }

// Start brings up networking and the node's background loops.
func (n *Node) Start() error {
	if err := n.net.Start(); err != nil {
		return err
	}

	n.wg.Add(2)
	go n.eventPump()
	go n.syncLoop()

	if n.cfg.ValidatorEnabled {
		n.wg.Add(1)
		go n.forgeLoop()
		n.log.Info("validator mode enabled",
			zap.String("address", n.cfg.ValidatorKey.Address()))
	}
	return nil
}

// Stop shuts down networking and stops every loop before returning.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.quit)
		n.net.Stop()
		n.wg.Wait()
		n.log.Info("node stopped")
	})
}

// eventPump turns ledger acceptance events into broadcasts, excluding
// the peer an item was relayed from.
func (n *Node) eventPump() {
	defer n.wg.Done()
	for {
		select {
		case <-n.quit:
			return
		case ev := <-n.ledger.Events():
			switch e := ev.(type) {
			case ledger.TxAccepted:
				n.net.BroadcastTransaction(e.Tx, e.Origin)
			case ledger.BlockAdded:
				n.net.BroadcastBlock(e.Block, e.Origin)
			}
		}
	}
}

// syncLoop periodically asks a taller peer for the block range this
// node is missing.
func (n *Node) syncLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			n.requestMissingBlocks()
		}
	}
}

func (n *Node) requestMissingBlocks() {
	local := n.ledger.Height()
	for _, info := range n.net.Peers() {
		if info.State != "active" || info.Height <= local {
			continue
		}
		req := p2p.GetBlocksPayload{From: local + 1, To: info.Height}
		if err := n.net.SendTo(info.ID, p2p.MsgGetBlocks, req); err != nil {
			n.log.Debug("sync request failed",
				zap.String("peer", info.Addr), zap.Error(err))
			continue
		}
		n.log.Info("requesting blocks",
			zap.Uint64("from", req.From), zap.Uint64("to", req.To),
			zap.String("peer", info.Addr))
		return
	}
}

// forgeLoop produces a block every interval whenever transactions are
// pending. The forged block goes through the same AddBlock gate as a
// remote one; the acceptance event then broadcasts it.
func (n *Node) forgeLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.BlockInterval)
	defer ticker.Stop()

	addr := n.cfg.ValidatorKey.Address()
	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			if n.ledger.MempoolSize() == 0 {
				continue
			}
			b, err := n.ledger.CreateBlock(addr, n.cfg.ValidatorKey)
			if err != nil {
				n.log.Error("block creation failed", zap.Error(err))
				continue
			}
			if err := n.ledger.AddBlock(b); err != nil {
				n.log.Warn("forged block rejected", zap.Error(err))
			}
		}
	}
}

// SubmitTransaction is the local submission path (wallet, API). The
// acceptance event rebroadcasts with no excluded origin.
func (n *Node) SubmitTransaction(tx *core.Transaction) error {
	return n.ledger.AddTransaction(tx)
}

// OnBlock handles a BLOCK announcement: validated and appended by the
// ledger, then rebroadcast to everyone but its origin via the event
// pump. Rejection is logged and otherwise silent toward the peer.
func (n *Node) OnBlock(origin string, b *core.Block) {
	if err := n.ledger.AddBlockFrom(b, origin); err != nil {
		n.log.Debug("peer block rejected",
			zap.Uint64("index", b.Index), zap.Error(err))
	}
}

// OnTransaction handles a TRANSACTION announcement the same way.
func (n *Node) OnTransaction(origin string, tx *core.Transaction) {
	if err := n.ledger.AddTransactionFrom(tx, origin); err != nil {
		n.log.Debug("peer transaction rejected",
			zap.String("tx", tx.ID.Short()), zap.Error(err))
	}
}

// OnBlocks applies a sync response in order, stopping at the first
// rejection; later blocks cannot link onto a rejected one anyway. Nil
// entries are skipped, never dereferenced.
func (n *Node) OnBlocks(origin string, blocks []*core.Block) {
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if err := n.ledger.AddBlockFrom(b, origin); err != nil {
			n.log.Debug("sync block rejected",
				zap.Uint64("index", b.Index), zap.Error(err))
			return
		}
	}
}

// GetBlocks serves a GET_BLOCKS request from the local chain.
func (n *Node) GetBlocks(from, to uint64) []*core.Block {
	return n.ledger.BlockRange(from, to)
}

// PendingTransactions serves GET_TRANSACTIONS from the mempool.
func (n *Node) PendingTransactions() []*core.Transaction {
	return n.ledger.MempoolTransactions()
}

// Height reports the local chain height to the network layer.
func (n *Node) Height() uint64 {
	return n.ledger.Height()
}
