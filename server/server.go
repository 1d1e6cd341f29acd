package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mobile-next/siminspect/utils"
)

const (
	// Parse error: Invalid JSON was received by the server
	ErrCodeParseError = -32700

	// Invalid Request: The JSON sent is not a valid Request object
	ErrCodeInvalidRequest = -32600

	// Method not found: The method does not exist / is not available
	ErrCodeMethodNotFound = -32601

	// Server error: Internal JSON-RPC error
	ErrCodeServerError = -32000

	// Invalid params: Invalid method parameters
	ErrCodeInvalidParams = -32602

	// Internal error: Internal JSON-RPC error
	ErrCodeInternalError = -32603
)

const (
	errTitleParseError     = "Parse error"
	errTitleInvalidReq     = "Invalid Request"
	errTitleMethodNotFound = "Method not found"
	errTitleMethodNotSupp  = "Method not supported"
	errTitleServerError    = "Server error"

	errMsgParseError     = "expecting jsonrpc payload"
	errMsgInvalidJSONRPC = "'jsonrpc' must be '2.0'"
	errMsgIDRequired     = "'id' field is required"
	errMsgMethodRequired = "'method' is required"
	errMsgTextOnly       = "only text messages accepted for requests"
	errMsgSubscribeHTTP  = "events.subscribe is only available over WebSocket, use the /ws endpoint"
)

// Server timeouts
const (
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 70 * time.Second
	IdleTimeout     = 120 * time.Second
	shutdownTimeout = 5 * time.Second
)

const (
	methodShutdown  = "server.shutdown"
	methodSubscribe = "events.subscribe"
)

var okResponse = map[string]interface{}{"status": "ok"}

// shutdownRequests is signalled by the server.shutdown method.
var shutdownRequests = make(chan struct{}, 1)

type JSONRPCRequest struct {
	// these fields are all omitempty, so we can report back to client if they are missing
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// JSONRPCNotification is pushed to subscribed WebSocket clients
type JSONRPCNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	code    int
	message string
	data    string
}

// validateJSONRPCRequest checks the envelope shared by /rpc and /ws.
func validateJSONRPCRequest(req JSONRPCRequest) *rpcError {
	if req.JSONRPC != "2.0" {
		return &rpcError{ErrCodeInvalidRequest, errTitleInvalidReq, errMsgInvalidJSONRPC}
	}
	if req.ID == nil {
		return &rpcError{ErrCodeInvalidRequest, errTitleInvalidReq, errMsgIDRequired}
	}
	if req.Method == "" {
		return &rpcError{ErrCodeInvalidRequest, errTitleInvalidReq, errMsgMethodRequired}
	}
	return nil
}

// corsMiddleware handles CORS preflight requests and adds CORS headers to responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewHandler builds the HTTP handler serving the banner, /rpc and /ws.
func NewHandler(hub *Hub, enableCORS bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", sendBanner)
	mux.HandleFunc("/rpc", handleJSONRPC)
	mux.Handle("/ws", NewWebSocketHandler(hub, enableCORS))

	if enableCORS {
		return corsMiddleware(mux)
	}
	return mux
}

// StartServer serves until server.shutdown is called or ctx is done.
func StartServer(ctx context.Context, addr string, enableCORS bool, hub *Hub) error {
	addr, err := utils.NormalizeListenAddr(addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      NewHandler(hub, enableCORS),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		utils.Info("Starting server on http://%s...", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-shutdownRequests:
		utils.Info("Shutdown requested")
	case <-ctx.Done():
	}

	if hub != nil {
		hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestShutdown() {
	select {
	case shutdownRequests <- struct{}{}:
	default:
	}
}

func handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONRPCError(w, nil, ErrCodeParseError, errTitleParseError, errMsgParseError)
		return
	}

	if verr := validateJSONRPCRequest(req); verr != nil {
		sendJSONRPCError(w, req.ID, verr.code, verr.message, verr.data)
		return
	}

	utils.Info("Request ID: %v, Method: %s, Params: %s", req.ID, req.Method, string(req.Params))

	switch req.Method {
	case methodShutdown:
		sendJSONRPCResponse(w, req.ID, okResponse)
		requestShutdown()
		return
	case methodSubscribe:
		sendJSONRPCError(w, req.ID, ErrCodeMethodNotFound, errTitleMethodNotSupp, errMsgSubscribeHTTP)
		return
	}

	handler, exists := GetMethodRegistry()[req.Method]
	if !exists {
		sendJSONRPCError(w, req.ID, ErrCodeMethodNotFound, errTitleMethodNotFound, fmt.Sprintf("Method '%s' not found", req.Method))
		return
	}

	res, err := handler(req.Params)
	if err != nil {
		utils.Warn("Error executing method %s: %v", req.Method, err)
		sendJSONRPCError(w, req.ID, errorCode(err), errTitleServerError, err.Error())
		return
	}

	sendJSONRPCResponse(w, req.ID, res)
}

func sendJSONRPCResponse(w http.ResponseWriter, id interface{}, result interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
			"data":    data,
		},
		ID: id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(okResponse)
}
