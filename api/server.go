// Package api is the read-only explorer surface over the ledger, plus
// the one mutation path the core exposes: transaction submission. It is
// a thin projection with no state of its own.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"genx/core"
	"genx/ledger"
	"genx/p2p"
)

// Submitter is the node's transaction intake.
type Submitter interface {
	SubmitTransaction(tx *core.Transaction) error
}

// PeerReporter exposes the network manager's peer view.
type PeerReporter interface {
	Peers() []p2p.PeerInfo
	PeerCount() int
}

// Server serves the HTTP API.
type Server struct {
	ledger *ledger.Ledger
	node   Submitter
	net    PeerReporter
	log    *zap.Logger
	srv    *http.Server
}

// NewServer builds the API server bound to addr.
func NewServer(addr string, l *ledger.Ledger, node Submitter, net PeerReporter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		ledger: l,
		node:   node,
		net:    net,
		log:    log.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chain", s.handleChain)
	mux.HandleFunc("/api/blocks/", s.handleBlock)
	mux.HandleFunc("/api/transactions", s.handleTransactions)
	mux.HandleFunc("/api/transactions/", s.handleTransactionByID)
	mux.HandleFunc("/api/balance/", s.handleBalance)
	mux.HandleFunc("/api/mempool", s.handleMempool)
	mux.HandleFunc("/api/peers", s.handlePeers)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it runs on the caller's goroutine.
func (s *Server) Start() error {
	s.log.Info("serving", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
