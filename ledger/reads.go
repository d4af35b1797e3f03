package ledger

import "genx/core"

// Read operations are pure lookups: not-found is a nil or zero result,
// never an error. They serialize against in-progress appends, so a
// reader sees either fully-pre-block or fully-post-block state.

// Height returns the index of the chain tip.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1].Index
}

// Tip returns the latest block.
func (l *Ledger) Tip() *core.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

// BlockByIndex returns the block at the given height, or nil.
func (l *Ledger) BlockByIndex(index uint64) *core.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.blocks)) {
		return nil
	}
	return l.blocks[index]
}

// BlockByHash returns the block with the given hash, or nil.
func (l *Ledger) BlockByHash(hash core.Hash) *core.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i, ok := l.hashIndex[hash]; ok {
		return l.blocks[i]
	}
	return nil
}

// BlockRange returns the blocks with indexes in [from, to], clamped to
// the chain tip. An empty range yields an empty slice.
func (l *Ledger) BlockRange(from, to uint64) []*core.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	max := uint64(len(l.blocks)) - 1
	if from > max {
		return nil
	}
	if to > max {
		to = max
	}
	out := make([]*core.Block, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, l.blocks[i])
	}
	return out
}

// TransactionByID looks a transaction up in the mempool first, then
// scans the chain. Returns nil when unknown.
func (l *Ledger) TransactionByID(id core.Hash) *core.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if tx, ok := l.mempool[id]; ok {
		return tx
	}
	for i := len(l.blocks) - 1; i >= 0; i-- {
		if tx := l.blocks[i].FindTransaction(id); tx != nil {
			return tx
		}
	}
	return nil
}

// TransactionsByAddress returns every confirmed transaction that the
// address sent or received, in chain order, followed by its pending
// mempool transactions in arrival order.
func (l *Ledger) TransactionsByAddress(addr string) []*core.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*core.Transaction
	for _, b := range l.blocks {
		for i := range b.Transactions {
			tx := &b.Transactions[i]
			if tx.Sender == addr || tx.Recipient == addr {
				out = append(out, tx)
			}
		}
	}
	for _, id := range l.arrival {
		tx := l.mempool[id]
		if tx.Sender == addr || tx.Recipient == addr {
			out = append(out, tx)
		}
	}
	return out
}

// Balance returns the spendable balance of addr, zero when unknown.
func (l *Ledger) Balance(addr string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// TotalSupply returns the sum of all coinbase issuance so far.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// MempoolSize returns the number of pending transactions.
func (l *Ledger) MempoolSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.mempool)
}

// MempoolTransactions returns the pending transactions in arrival
// order.
func (l *Ledger) MempoolTransactions() []*core.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*core.Transaction, 0, len(l.arrival))
	for _, id := range l.arrival {
		out = append(out, l.mempool[id])
	}
	return out
}
