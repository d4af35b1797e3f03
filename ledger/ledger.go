// Package ledger implements the canonical chain state machine: block
// and transaction validation, chain extension, the balance index and
// the mempool. All mutation is gated through validation and serialized
// behind a single lock; rejection leaves the state untouched.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"genx/core"
	"genx/keys"
)

// Allocation is one genesis coinbase entry.
type Allocation struct {
	Address string `yaml:"address"`
	Amount  uint64 `yaml:"amount"`
}

// Config carries the ledger's tunables.
type Config struct {
	// DataDir is the root data directory; blocks live in its chain
	// subdirectory.
	DataDir string

	// BlockReward is the coinbase amount paid per forged block.
	BlockReward uint64

	// MaxBlockTxs caps how many mempool transactions a forged block
	// may include (the coinbase is not counted).
	MaxBlockTxs int

	// TargetBlockTime and DifficultyInterval drive retargeting:
	// difficulty is re-examined every DifficultyInterval blocks
	// against the elapsed time expected for the interval.
	TargetBlockTime    time.Duration
	DifficultyInterval uint64

	// Genesis is the initial distribution minted by block 0.
	Genesis []Allocation
}

// Ledger owns the canonical chain, the balance index and the mempool.
type Ledger struct {
	cfg Config
	log *zap.Logger

	mu        sync.RWMutex
	store     *BlockStore
	blocks    []*core.Block
	hashIndex map[core.Hash]int
	balances  map[string]uint64
	supply    uint64

	mempool map[core.Hash]*core.Transaction
	arrival []core.Hash

	events chan Event
}

// NewLedger opens the persisted chain under cfg.DataDir, replaying it
// to rebuild the balance index, or synthesizes and persists the genesis
// block when no chain exists yet. Malformed or gapped persisted data is
// fatal: the returned error wraps ErrCorruptedStore.
func NewLedger(cfg Config, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBlockTxs <= 0 {
		cfg.MaxBlockTxs = 100
	}
	if cfg.TargetBlockTime <= 0 {
		cfg.TargetBlockTime = 5 * time.Second
	}

	store, err := NewBlockStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		cfg:       cfg,
		log:       log.Named("ledger"),
		store:     store,
		hashIndex: make(map[core.Hash]int),
		balances:  make(map[string]uint64),
		mempool:   make(map[core.Hash]*core.Transaction),
		events:    make(chan Event, 64),
	}

	height, exists, err := store.Height()
	if err != nil {
		return nil, err
	}
	if exists {
		if err := l.load(height); err != nil {
			return nil, err
		}
		l.log.Info("chain loaded",
			zap.Uint64("height", l.blocks[len(l.blocks)-1].Index),
			zap.Uint64("supply", l.supply))
		return l, nil
	}

	genesis := l.buildGenesis()
	if err := store.Write(genesis); err != nil {
		return nil, err
	}
	l.append(genesis)
	l.log.Info("genesis created",
		zap.String("hash", genesis.Hash.String()),
		zap.Int("allocations", len(genesis.Transactions)))
	return l, nil
}

// buildGenesis mints the configured initial distribution. Coinbase
// timestamps are fixed at zero so every node configured alike derives
// an identical genesis block.
func (l *Ledger) buildGenesis() *core.Block {
	txs := make([]core.Transaction, 0, len(l.cfg.Genesis))
	for _, a := range l.cfg.Genesis {
		tx := core.Transaction{
			Recipient: a.Address,
			Amount:    a.Amount,
		}
		tx.ID = tx.Hash()
		txs = append(txs, tx)
	}
	return core.NewGenesis(txs)
}

// load replays the persisted chain from disk, validating linkage and
// rebuilding the balance index from scratch.
func (l *Ledger) load(height uint64) error {
	for i := uint64(0); i <= height; i++ {
		b, err := l.store.Read(i)
		if err != nil {
			return err
		}
		var prev *core.Block
		if i > 0 {
			prev = l.blocks[len(l.blocks)-1]
		}
		if err := l.validateBlock(b, prev); err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrCorruptedStore, i, err)
		}
		l.append(b)
	}
	return nil
}

// append commits an already-validated block to the in-memory state:
// chain, hash index, balance index, and mempool eviction.
func (l *Ledger) append(b *core.Block) {
	l.blocks = append(l.blocks, b)
	l.hashIndex[b.Hash] = len(l.blocks) - 1

	for i := range b.Transactions {
		l.applyTransaction(&b.Transactions[i])
	}

	if len(l.mempool) > 0 {
		for i := range b.Transactions {
			delete(l.mempool, b.Transactions[i].ID)
		}
		pending := l.arrival[:0]
		for _, id := range l.arrival {
			if _, ok := l.mempool[id]; ok {
				pending = append(pending, id)
			}
		}
		l.arrival = pending
	}
}

// applyTransaction updates the balance index for one transaction. The
// sender is debited amount plus fee; the fee is burned, not credited to
// anyone. Coinbase transactions only credit and grow the supply.
func (l *Ledger) applyTransaction(tx *core.Transaction) {
	if tx.IsCoinbase() {
		l.balances[tx.Recipient] += tx.Amount
		l.supply += tx.Amount
		return
	}
	debitSender(l.balances, tx)
	l.balances[tx.Recipient] += tx.Amount
}

// debitSender subtracts amount plus fee from the sender, clamping at
// zero. Block validation lets transactions in one block collectively
// overspend the pre-block balance, so the debit can exceed what the
// sender holds; a wrapped balance would mint money out of thin air.
func debitSender(balances map[string]uint64, tx *core.Transaction) {
	debit := tx.Amount + tx.Fee
	if have := balances[tx.Sender]; have > debit {
		balances[tx.Sender] = have - debit
	} else {
		balances[tx.Sender] = 0
	}
}

// validateTxAgainst checks a single transaction against the given
// balance view. Coinbase transactions skip every check.
func validateTxAgainst(tx *core.Transaction, balances map[string]uint64) error {
	if tx.IsCoinbase() {
		return nil
	}
	if !tx.VerifySignature() {
		return ErrInvalidSignature
	}
	if tx.Fee > math.MaxUint64-tx.Amount {
		// amount+fee would wrap and slip past the balance check.
		return fmt.Errorf("%w: amount %d plus fee %d overflows",
			ErrInsufficientBalance, tx.Amount, tx.Fee)
	}
	if balances[tx.Sender] < tx.Amount+tx.Fee {
		return fmt.Errorf("%w: %s has %d, needs %d",
			ErrInsufficientBalance, tx.Sender, balances[tx.Sender], tx.Amount+tx.Fee)
	}
	return nil
}

// ValidateTransaction checks tx against the current balance index.
// Pending mempool debits are deliberately not considered. Invalidity is
// a normal outcome, reported as a reason, never a panic.
func (l *Ledger) ValidateTransaction(tx *core.Transaction) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return validateTxAgainst(tx, l.balances)
}

// AddTransaction validates tx and inserts it into the mempool.
func (l *Ledger) AddTransaction(tx *core.Transaction) error {
	return l.AddTransactionFrom(tx, "")
}

// AddTransactionFrom is AddTransaction with the relaying peer recorded,
// so the acceptance event can exclude it from rebroadcast. Re-adding an
// already-pending ID is a no-op success.
func (l *Ledger) AddTransactionFrom(tx *core.Transaction, origin string) error {
	l.mu.Lock()
	if _, ok := l.mempool[tx.ID]; ok {
		l.mu.Unlock()
		return nil
	}
	if err := validateTxAgainst(tx, l.balances); err != nil {
		l.mu.Unlock()
		l.log.Debug("transaction rejected", zap.String("tx", tx.ID.Short()), zap.Error(err))
		return err
	}
	l.mempool[tx.ID] = tx
	l.arrival = append(l.arrival, tx.ID)
	l.mu.Unlock()

	l.log.Debug("transaction accepted", zap.String("tx", tx.ID.Short()))
	l.emit(TxAccepted{Tx: tx, Origin: origin})
	return nil
}

// validateBlock runs the ordered block checks against prev, stopping at
// the first failure. A nil prev marks the genesis block, which skips
// the linkage checks.
//
// Each transaction is checked against the balance index as it stood
// before this block, not incrementally within it: two transactions from
// one sender that together overspend the pre-block balance both pass.
// Known gap, kept deliberately and pinned by tests; see the overspend
// note in DESIGN.md.
func (l *Ledger) validateBlock(b *core.Block, prev *core.Block) error {
	if prev != nil {
		if b.Index != prev.Index+1 {
			return fmt.Errorf("%w: expected %d, got %d", ErrIndexMismatch, prev.Index+1, b.Index)
		}
		if b.PrevHash != prev.Hash {
			return ErrPrevHashMismatch
		}
	}
	if b.Hash != b.ComputeHash() {
		return ErrHashMismatch
	}
	if b.MerkleRoot != b.ComputeMerkleRoot() {
		return ErrMerkleMismatch
	}
	for i := range b.Transactions {
		if err := validateTxAgainst(&b.Transactions[i], l.balances); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	if b.Validator != "" && !b.VerifySignature() {
		return ErrInvalidBlockSignature
	}
	return nil
}

// ValidateBlock checks b as the successor of prev without applying it.
func (l *Ledger) ValidateBlock(b, prev *core.Block) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.validateBlock(b, prev)
}

// AddBlock validates b against the current tip and appends it.
func (l *Ledger) AddBlock(b *core.Block) error {
	return l.AddBlockFrom(b, "")
}

// AddBlockFrom is AddBlock with the relaying peer recorded. The block
// file is persisted before any in-memory state changes; a write failure
// aborts the append exactly like a validation failure, so a partially
// applied block is never observable.
func (l *Ledger) AddBlockFrom(b *core.Block, origin string) error {
	l.mu.Lock()
	tip := l.blocks[len(l.blocks)-1]
	if err := l.validateBlock(b, tip); err != nil {
		l.mu.Unlock()
		l.log.Debug("block rejected",
			zap.Uint64("index", b.Index), zap.String("hash", b.Hash.Short()), zap.Error(err))
		return err
	}
	if err := l.store.Write(b); err != nil {
		l.mu.Unlock()
		return err
	}
	l.append(b)
	height := b.Index
	l.mu.Unlock()

	l.log.Info("block added",
		zap.Uint64("height", height),
		zap.String("hash", b.Hash.Short()),
		zap.Int("txs", len(b.Transactions)))
	l.emit(BlockAdded{Block: b, Origin: origin})
	return nil
}

// CreateBlock forges the next block from the mempool: up to MaxBlockTxs
// transactions by descending fee (arrival order breaks ties), behind a
// coinbase paying the block reward to validatorAddr. The block is
// signed when a key is supplied. The caller still has to AddBlock it.
func (l *Ledger) CreateBlock(validatorAddr string, validatorKey *keys.PrivateKey) (*core.Block, error) {
	if validatorAddr == "" {
		return nil, fmt.Errorf("validator address is empty")
	}

	l.mu.RLock()
	tip := l.blocks[len(l.blocks)-1]

	pending := make([]*core.Transaction, 0, len(l.arrival))
	for _, id := range l.arrival {
		pending = append(pending, l.mempool[id])
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Fee > pending[j].Fee
	})
	if len(pending) > l.cfg.MaxBlockTxs {
		pending = pending[:l.cfg.MaxBlockTxs]
	}

	txs := make([]core.Transaction, 0, len(pending)+1)
	txs = append(txs, *core.NewCoinbase(validatorAddr, l.cfg.BlockReward))
	for _, tx := range pending {
		txs = append(txs, *tx)
	}

	b := &core.Block{
		Index:        tip.Index + 1,
		Timestamp:    time.Now().Unix(),
		Transactions: txs,
		PrevHash:     tip.Hash,
		Difficulty:   l.nextDifficulty(),
	}
	l.mu.RUnlock()

	if validatorKey != nil {
		b.Validator = validatorAddr
	}
	b.Seal()
	if validatorKey != nil {
		if err := b.Sign(validatorKey); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ValidateChain re-validates every adjacent block pair from index 1
// onward, replaying balances from scratch. A consistency self-check,
// not a hot path.
func (l *Ledger) ValidateChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balances := make(map[string]uint64)
	apply := func(b *core.Block) {
		for i := range b.Transactions {
			tx := &b.Transactions[i]
			if tx.IsCoinbase() {
				balances[tx.Recipient] += tx.Amount
			} else {
				debitSender(balances, tx)
				balances[tx.Recipient] += tx.Amount
			}
		}
	}

	genesis := l.blocks[0]
	if genesis.Hash != genesis.ComputeHash() {
		return fmt.Errorf("block 0: %w", ErrHashMismatch)
	}
	if genesis.MerkleRoot != genesis.ComputeMerkleRoot() {
		return fmt.Errorf("block 0: %w", ErrMerkleMismatch)
	}
	apply(genesis)

	for i := 1; i < len(l.blocks); i++ {
		b, prev := l.blocks[i], l.blocks[i-1]
		if b.Index != prev.Index+1 {
			return fmt.Errorf("block %d: %w", i, ErrIndexMismatch)
		}
		if b.PrevHash != prev.Hash {
			return fmt.Errorf("block %d: %w", i, ErrPrevHashMismatch)
		}
		if b.Hash != b.ComputeHash() {
			return fmt.Errorf("block %d: %w", i, ErrHashMismatch)
		}
		if b.MerkleRoot != b.ComputeMerkleRoot() {
			return fmt.Errorf("block %d: %w", i, ErrMerkleMismatch)
		}
		for j := range b.Transactions {
			if err := validateTxAgainst(&b.Transactions[j], balances); err != nil {
				return fmt.Errorf("block %d transaction %d: %w", i, j, err)
			}
		}
		if b.Validator != "" && !b.VerifySignature() {
			return fmt.Errorf("block %d: %w", i, ErrInvalidBlockSignature)
		}
		apply(b)
	}
	return nil
}
