// Package rpc provides the operator JSON-RPC 2.0 server for the solver
// daemon, plus a WebSocket feed of intent lifecycle events.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/semantic-layer/agi-solver/internal/solver"
	"github.com/semantic-layer/agi-solver/internal/storage"
	"github.com/semantic-layer/agi-solver/pkg/logging"
)

// Server is a JSON-RPC 2.0 server.
type Server struct {
	queue *solver.QueueManager
	store *storage.Storage
	log   *logging.Logger
	wsHub *WSHub

	startedAt time.Time

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer creates a new JSON-RPC server.
func NewServer(queue *solver.QueueManager, store *storage.Storage) *Server {
	s := &Server{
		queue:     queue,
		store:     store,
		log:       logging.GetDefault().Component("rpc"),
		wsHub:     NewWSHub(),
		startedAt: time.Now(),
		handlers:  make(map[string]Handler),
	}

	s.registerHandlers()

	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	s.handlers["solver_status"] = s.solverStatus
	s.handlers["solver_failedSwaps"] = s.solverFailedSwaps
	s.handlers["solver_requeue"] = s.solverRequeue
}

// WSHub returns the WebSocket hub for event broadcasting.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Start starts the HTTP server on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go s.wsHub.Run()

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr)
	return nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleHTTP serves JSON-RPC requests.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: ParseError, Message: "parse error"},
		})
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeResponse(w, &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: MethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)},
			ID:      req.ID,
		})
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeResponse(w, &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: InternalError, Message: err.Error()},
			ID:      req.ID,
		})
		return
	}

	s.writeResponse(w, &Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}

// =============================================================================
// Method Handlers
// =============================================================================

// StatusResult is the solver_status reply.
type StatusResult struct {
	QueueLength int      `json:"queue_length"`
	Queued      []uint64 `json:"queued"`
	Uptime      string   `json:"uptime"`
}

func (s *Server) solverStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return &StatusResult{
		QueueLength: s.queue.Len(),
		Queued:      s.queue.Queued(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}, nil
}

// FailedSwapsResult is the solver_failedSwaps reply.
type FailedSwapsResult struct {
	Count     int               `json:"count"`
	Exhausted []uint64          `json:"exhausted"`
	Persisted []*FailedSwapInfo `json:"persisted"`
}

// FailedSwapInfo is one persisted failure row.
type FailedSwapInfo struct {
	Timestamp    int64  `json:"timestamp"`
	OrderID      uint64 `json:"order_id"`
	ErrorMessage string `json:"error_message"`
	AssetToSell  string `json:"asset_to_sell"`
	AmountToSell string `json:"amount_to_sell"`
	AssetToBuy   string `json:"asset_to_buy"`
}

func (s *Server) solverFailedSwaps(ctx context.Context, params json.RawMessage) (interface{}, error) {
	count, exhausted := s.queue.FailedSwapReport()

	rows, err := s.store.ListFailedSwaps()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed swaps: %w", err)
	}

	persisted := make([]*FailedSwapInfo, 0, len(rows))
	for _, row := range rows {
		info := &FailedSwapInfo{
			Timestamp:    row.Timestamp.Unix(),
			OrderID:      row.OrderID,
			ErrorMessage: row.ErrorMessage,
			AssetToSell:  row.AssetToSell,
			AssetToBuy:   row.AssetToBuy,
		}
		if row.AmountToSell != nil {
			info.AmountToSell = row.AmountToSell.String()
		}
		persisted = append(persisted, info)
	}

	return &FailedSwapsResult{Count: count, Exhausted: exhausted, Persisted: persisted}, nil
}

// requeueParams are the solver_requeue parameters.
type requeueParams struct {
	OrderID uint64 `json:"order_id"`
}

func (s *Server) solverRequeue(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p requeueParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.OrderID == 0 {
		return nil, fmt.Errorf("order_id required")
	}

	s.queue.Requeue(p.OrderID)
	s.log.Info("Intent re-admitted by operator", "order_id", p.OrderID)

	return map[string]interface{}{"requeued": p.OrderID}, nil
}
