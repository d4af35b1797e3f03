package ledger

import "genx/core"

// Event is the ledger's acceptance notification, consumed by the node
// to drive network rebroadcast. Origin is the opaque identity of the
// peer a relayed item arrived from (empty for local submissions) so the
// broadcaster can skip echoing it back.
type Event interface {
	isEvent()
}

// TxAccepted is emitted when a transaction enters the mempool.
type TxAccepted struct {
	Tx     *core.Transaction
	Origin string
}

// BlockAdded is emitted when a block is appended to the chain.
type BlockAdded struct {
	Block  *core.Block
	Origin string
}

func (TxAccepted) isEvent() {}
func (BlockAdded) isEvent() {}

// emit delivers an event without ever blocking an append: when nobody
// is draining the channel the event is dropped.
func (l *Ledger) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
	}
}

// Events returns the acceptance notification channel.
func (l *Ledger) Events() <-chan Event {
	return l.events
}
