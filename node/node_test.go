package node_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genx/core"
	"genx/internal/testutil"
	"genx/ledger"
	"genx/node"
	"genx/p2p"
)

func startNode(t *testing.T, l *ledger.Ledger, cfg node.Config) *node.Node {
	t.Helper()
	cfg.Network.ListenAddr = "127.0.0.1:0"
	cfg.Network.MaxRetries = 1
	n, err := node.New(cfg, l, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(n.Stop)
	return n
}

func connect(t *testing.T, from, to *node.Node) {
	t.Helper()
	from.Network().Connect(to.Network().Addr())
	require.Eventually(t, func() bool {
		return from.Network().PeerCount() == 1 && to.Network().PeerCount() == 1
	}, 3*time.Second, 10*time.Millisecond, "nodes never connected")
}

func signedTransfer(t *testing.T, from testutil.Account, to string, amount, fee, nonce uint64) *core.Transaction {
	t.Helper()
	tx := core.NewTransaction(from.Addr, to, amount, fee, nil, nonce)
	require.NoError(t, tx.Sign(from.Key))
	return tx
}

func TestNewRejectsValidatorWithoutKey(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 100})
	_, err := node.New(node.Config{ValidatorEnabled: true}, l, nil)
	assert.Error(t, err)

	_, err = node.New(node.Config{}, nil, nil)
	assert.Error(t, err, "nil ledger")
}

func TestTransactionPropagation(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	bob := testutil.DeterministicAccount(t, 1)
	genesis := map[string]uint64{alice.Addr: 1000}

	n1 := startNode(t, testutil.NewLedger(t, genesis), node.Config{NodeID: "n1"})
	n2 := startNode(t, testutil.NewLedger(t, genesis), node.Config{NodeID: "n2"})
	connect(t, n2, n1)

	tx := signedTransfer(t, alice, bob.Addr, 100, 1, 1)
	require.NoError(t, n1.SubmitTransaction(tx))

	require.Eventually(t, func() bool {
		return n2.Ledger().MempoolSize() == 1
	}, 3*time.Second, 10*time.Millisecond, "transaction never reached the peer")
	assert.NotNil(t, n2.Ledger().TransactionByID(tx.ID))
}

func TestBlockPropagation(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	bob := testutil.DeterministicAccount(t, 1)
	validator := testutil.DeterministicAccount(t, 2)
	genesis := map[string]uint64{alice.Addr: 1000}

	n1 := startNode(t, testutil.NewLedger(t, genesis), node.Config{NodeID: "n1"})
	n2 := startNode(t, testutil.NewLedger(t, genesis), node.Config{NodeID: "n2"})
	connect(t, n2, n1)

	require.NoError(t, n1.SubmitTransaction(signedTransfer(t, alice, bob.Addr, 100, 1, 1)))
	b, err := n1.Ledger().CreateBlock(validator.Addr, validator.Key)
	require.NoError(t, err)
	require.NoError(t, n1.Ledger().AddBlock(b))

	require.Eventually(t, func() bool {
		return n2.Ledger().Height() == 1
	}, 3*time.Second, 10*time.Millisecond, "block never reached the peer")

	assert.Equal(t, n1.Ledger().Tip().Hash, n2.Ledger().Tip().Hash)
	assert.EqualValues(t, 100, n2.Ledger().Balance(bob.Addr))
	assert.Zero(t, n2.Ledger().MempoolSize(), "relayed block evicts the relayed transaction")
}

func TestSyncCatchesUpFromTallerPeer(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	validator := testutil.DeterministicAccount(t, 2)
	genesis := map[string]uint64{alice.Addr: 1000}

	l1 := testutil.NewLedger(t, genesis)
	for i := 0; i < 3; i++ {
		b, err := l1.CreateBlock(validator.Addr, validator.Key)
		require.NoError(t, err)
		require.NoError(t, l1.AddBlock(b))
	}

	n1 := startNode(t, l1, node.Config{NodeID: "n1"})
	n2 := startNode(t, testutil.NewLedger(t, genesis), node.Config{
		NodeID:       "n2",
		SyncInterval: 50 * time.Millisecond,
	})
	connect(t, n2, n1)

	require.Eventually(t, func() bool {
		return n2.Ledger().Height() == 3
	}, 5*time.Second, 20*time.Millisecond, "node never caught up")
	assert.Equal(t, l1.Tip().Hash, n2.Ledger().Tip().Hash)
	assert.NoError(t, n2.Ledger().ValidateChain())
}

func TestValidatorForgesPendingTransactions(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	bob := testutil.DeterministicAccount(t, 1)
	validator := testutil.DeterministicAccount(t, 2)

	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 1000})
	n := startNode(t, l, node.Config{
		NodeID:           "forger",
		ValidatorEnabled: true,
		ValidatorKey:     validator.Key,
		BlockInterval:    50 * time.Millisecond,
	})

	require.NoError(t, n.SubmitTransaction(signedTransfer(t, alice, bob.Addr, 100, 1, 1)))

	require.Eventually(t, func() bool {
		return l.Height() >= 1
	}, 3*time.Second, 10*time.Millisecond, "validator never forged")

	assert.Zero(t, l.MempoolSize())
	assert.EqualValues(t, 100, l.Balance(bob.Addr))
	assert.EqualValues(t, 50, l.Balance(validator.Addr))
	assert.True(t, l.Tip().VerifySignature())

	// An empty mempool produces no further blocks.
	h := l.Height()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, h, l.Height())
}

func TestRejectedForkDoesNotAdvancePeer(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	validator := testutil.DeterministicAccount(t, 2)
	genesis := map[string]uint64{alice.Addr: 1000}

	n1 := startNode(t, testutil.NewLedger(t, genesis), node.Config{NodeID: "n1"})
	n2 := startNode(t, testutil.NewLedger(t, genesis), node.Config{NodeID: "n2"})
	connect(t, n2, n1)

	// A block whose linkage does not match n2's tip is rejected there
	// and n2's height stays put.
	b, err := n1.Ledger().CreateBlock(validator.Addr, validator.Key)
	require.NoError(t, err)
	b.PrevHash = core.Sum256([]byte("fork"))
	b.Seal()
	require.NoError(t, b.Sign(validator.Key))

	require.ErrorIs(t, n2.Ledger().AddBlock(b), ledger.ErrPrevHashMismatch)
	n2.OnBlock("", b) // same outcome through the network path, silently

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, n2.Ledger().Height())
	assert.Zero(t, n1.Ledger().Height(), "rejected block is never rebroadcast")
}

// A sync response may carry null entries after JSON decoding; they are
// skipped and the valid blocks still apply.
func TestNilBlocksInSyncResponseSkipped(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	validator := testutil.DeterministicAccount(t, 2)
	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 1000})

	n, err := node.New(node.Config{NodeID: "n1"}, l, nil)
	require.NoError(t, err)

	n.OnBlocks("peer-x", []*core.Block{nil})
	assert.EqualValues(t, 0, n.Height())

	b, err := l.CreateBlock(validator.Addr, validator.Key)
	require.NoError(t, err)
	n.OnBlocks("peer-x", []*core.Block{nil, b, nil})
	assert.EqualValues(t, 1, n.Height())
}

func TestHandlerSurface(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	validator := testutil.DeterministicAccount(t, 2)
	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 1000})

	n, err := node.New(node.Config{NodeID: "n1"}, l, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 0, n.Height())
	assert.Len(t, n.GetBlocks(0, 10), 1)
	assert.Empty(t, n.PendingTransactions())

	var _ p2p.Handler = n

	b, err := l.CreateBlock(validator.Addr, validator.Key)
	require.NoError(t, err)
	n.OnBlocks("", []*core.Block{b})
	assert.EqualValues(t, 1, n.Height())
}
