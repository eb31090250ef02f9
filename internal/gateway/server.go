package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// SubmitRequest is the body of POST /transactions.
type SubmitRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
	Data     string `json:"data,omitempty"`
}

// SubmitResponse is the body returned by POST /transactions.
type SubmitResponse struct {
	TxID string `json:"tx_id"`
}

// StatusResponse is the body returned by GET /transactions/{id}.
type StatusResponse struct {
	TxID    string `json:"tx_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Server exposes the coordinator over HTTP.
type Server struct {
	addr    string
	coord   *Coordinator
	httpSrv *http.Server
}

func NewServer(addr string, coord *Coordinator) *Server {
	s := &Server{addr: addr, coord: coord}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transactions", s.handleSubmit)
	mux.HandleFunc("GET /transactions/{id}", s.handleStatus)
	mux.HandleFunc("POST /confirmations", s.handleConfirmation)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and serves until ctx is cancelled. It returns
// the bound address.
func (s *Server) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Gateway server stopped unexpectedly", "addr", s.addr, "error", err)
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

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	txID, err := s.coord.SubmitTransaction(req.Sender, req.Receiver, req.Amount, req.Data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(SubmitResponse{TxID: txID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("id")
	ticket, ok := s.coord.GetStatus(txID)
	if !ok {
		http.Error(w, "unknown transaction", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StatusResponse{
		TxID:    ticket.TxID,
		Status:  string(ticket.Status),
		Message: ticket.Message,
	})
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	var conf Confirmation
	if err := json.NewDecoder(r.Body).Decode(&conf); err != nil {
		http.Error(w, "bad confirmation body", http.StatusBadRequest)
		return
	}

	if err := s.coord.HandleConfirmation(r.Context(), conf); err != nil {
		slog.Error("Confirmation processing failed", "block", conf.BlockHash, "error", err)
		http.Error(w, "confirmation processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
