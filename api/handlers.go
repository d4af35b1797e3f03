package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"genx/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleChain reports the chain summary.
func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tip := s.ledger.Tip()
	writeJSON(w, http.StatusOK, map[string]any{
		"height":       tip.Index,
		"tip_hash":     tip.Hash.String(),
		"total_supply": s.ledger.TotalSupply(),
		"mempool_size": s.ledger.MempoolSize(),
		"peer_count":   s.net.PeerCount(),
	})
}

// handleBlock serves /api/blocks/{index or hash}.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/blocks/")

	var b *core.Block
	if index, err := strconv.ParseUint(key, 10, 64); err == nil {
		b = s.ledger.BlockByIndex(index)
	} else if hash, err := core.HashFromString(key); err == nil {
		b = s.ledger.BlockByHash(hash)
	} else {
		writeError(w, http.StatusBadRequest, "expected a block index or hash")
		return
	}

	if b == nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleTransactions accepts a signed transaction for the mempool.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var tx core.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction JSON")
		return
	}
	if err := s.node.SubmitTransaction(&tx); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "accepted",
		"id":     tx.ID.String(),
	})
}

// handleTransactionByID serves /api/transactions/{id}.
func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	id, err := core.HashFromString(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	tx := s.ledger.TransactionByID(id)
	if tx == nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleBalance serves /api/balance/{address} with the balance and the
// address's transaction history.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	addr := strings.TrimPrefix(r.URL.Path, "/api/balance/")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":      addr,
		"balance":      s.ledger.Balance(addr),
		"transactions": len(s.ledger.TransactionsByAddress(addr)),
	})
}

// handleMempool lists pending transactions.
func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"size":         s.ledger.MempoolSize(),
		"transactions": s.ledger.MempoolTransactions(),
	})
}

// handlePeers lists the current peer set.
func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": s.net.PeerCount(),
		"peers": s.net.Peers(),
	})
}
