package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genx/core"
	"genx/internal/testutil"
	"genx/ledger"
	"genx/p2p"
)

type directSubmitter struct{ l *ledger.Ledger }

func (s directSubmitter) SubmitTransaction(tx *core.Transaction) error {
	return s.l.AddTransaction(tx)
}

type noPeers struct{}

func (noPeers) Peers() []p2p.PeerInfo { return nil }
func (noPeers) PeerCount() int        { return 0 }

func newTestServer(t *testing.T, l *ledger.Ledger) *httptest.Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", l, directSubmitter{l}, noPeers{}, nil)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestChainAndBlockEndpoints(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 1000})
	ts := newTestServer(t, l)

	chain := getJSON(t, ts.URL+"/api/chain", http.StatusOK)
	assert.EqualValues(t, 0, chain["height"])
	assert.EqualValues(t, 1000, chain["total_supply"])
	assert.Equal(t, l.Tip().Hash.String(), chain["tip_hash"])

	byIndex := getJSON(t, ts.URL+"/api/blocks/0", http.StatusOK)
	assert.Equal(t, l.Tip().Hash.String(), byIndex["hash"])

	byHash := getJSON(t, ts.URL+"/api/blocks/"+l.Tip().Hash.String(), http.StatusOK)
	assert.EqualValues(t, 0, byHash["index"])

	getJSON(t, ts.URL+"/api/blocks/99", http.StatusNotFound)
	getJSON(t, ts.URL+"/api/blocks/zz", http.StatusBadRequest)
}

func TestTransactionSubmission(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	bob := testutil.DeterministicAccount(t, 1)
	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 1000})
	ts := newTestServer(t, l)

	tx := core.NewTransaction(alice.Addr, bob.Addr, 100, 1, nil, 1)
	require.NoError(t, tx.Sign(alice.Key))
	body, err := json.Marshal(tx)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/transactions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, l.MempoolSize())

	lookup := getJSON(t, ts.URL+"/api/transactions/"+tx.ID.String(), http.StatusOK)
	assert.Equal(t, tx.ID.String(), lookup["id"])

	mempool := getJSON(t, ts.URL+"/api/mempool", http.StatusOK)
	assert.EqualValues(t, 1, mempool["size"])

	balance := getJSON(t, ts.URL+"/api/balance/"+alice.Addr, http.StatusOK)
	assert.EqualValues(t, 1000, balance["balance"], "mempool debits are not reflected")
	assert.EqualValues(t, 2, balance["transactions"], "genesis credit plus pending transfer")
}

func TestTransactionSubmissionRejections(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	bob := testutil.DeterministicAccount(t, 1)
	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 100})
	ts := newTestServer(t, l)

	t.Run("invalid JSON", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/transactions", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("overspend", func(t *testing.T) {
		tx := core.NewTransaction(alice.Addr, bob.Addr, 500, 1, nil, 1)
		require.NoError(t, tx.Sign(alice.Key))
		body, err := json.Marshal(tx)
		require.NoError(t, err)
		resp, err := http.Post(ts.URL+"/api/transactions", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Zero(t, l.MempoolSize())
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/transactions")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestPeersEndpoint(t *testing.T) {
	alice := testutil.DeterministicAccount(t, 0)
	l := testutil.NewLedger(t, map[string]uint64{alice.Addr: 100})
	ts := newTestServer(t, l)

	peers := getJSON(t, ts.URL+"/api/peers", http.StatusOK)
	assert.EqualValues(t, 0, peers["count"])
}
