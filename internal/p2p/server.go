// Package p2p is the transport layer of the peer network: a JSON-over-HTTP
// listener per node, a fan-out broadcaster and pluggable peer discovery.
package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/gossip"
)

// Handler is implemented by the node; the server decodes requests and
// hands them over.
type Handler interface {
	// HandleGossip processes one inbound gossip envelope.
	HandleGossip(ctx context.Context, env gossip.Envelope)

	// SubmitTransaction accepts a point-to-point transaction from the
	// gateway into the mempool.
	SubmitTransaction(ctx context.Context, tx chain.Transaction) error

	// Status reports the node's identity and chain height.
	Status() Status

	// ChainSnapshot returns a copy of the local chain, served to peers
	// that bootstrap after blocks already exist.
	ChainSnapshot() []*chain.Block
}

// Status is the response of GET /status.
type Status struct {
	NodeID  string  `json:"node_id"`
	Role    string  `json:"role"`
	Height  uint64  `json:"height"`
	Length  int     `json:"length"`
	TailAge float64 `json:"tail_age_seconds"`
}

// Server accepts inbound connections for one node.
type Server struct {
	addr    string
	handler Handler
	httpSrv *http.Server
}

func NewServer(addr string, handler Handler) *Server {
	s := &Server{addr: addr, handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /gossip", s.handleGossip)
	mux.HandleFunc("POST /transactions", s.handleTransaction)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /chain", s.handleChain)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and serves until ctx is cancelled. It returns
// the bound address, useful when addr was ":0".
func (s *Server) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Peer server stopped unexpectedly", "addr", s.addr, "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	return ln.Addr().String(), nil
}

func (s *Server) handleGossip(w http.ResponseWriter, r *http.Request) {
	var env gossip.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	s.handler.HandleGossip(r.Context(), env)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var tx chain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, "bad transaction", http.StatusBadRequest)
		return
	}
	if err := s.handler.SubmitTransaction(r.Context(), tx); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.handler.Status()); err != nil {
		slog.Error("Failed to encode status response", "error", err)
	}
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.handler.ChainSnapshot()); err != nil {
		slog.Error("Failed to encode chain response", "error", err)
	}
}
