package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mobile-next/siminspect/utils"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	writeWait    = 10 * time.Second
	eventBacklog = 64
)

type wsConnection struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan JSONRPCNotification
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConnection(conn *websocket.Conn) *wsConnection {
	return &wsConnection{
		id:     uuid.NewString(),
		conn:   conn,
		events: make(chan JSONRPCNotification, eventBacklog),
		done:   make(chan struct{}),
	}
}

func newUpgrader(enableCORS bool) *websocket.Upgrader {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if enableCORS {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	} else {
		upgrader.CheckOrigin = isSameOrigin
	}

	return &upgrader
}

// NewWebSocketHandler serves JSON-RPC over WebSocket. Clients that call
// events.subscribe also receive overlay and frame notifications from hub.
func NewWebSocketHandler(hub *Hub, enableCORS bool) http.Handler {
	upgrader := newUpgrader(enableCORS)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, upgrader, hub)
	})
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, hub *Hub) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	wsConn := newWSConnection(conn)
	defer wsConn.close()
	if hub != nil {
		defer hub.unsubscribe(wsConn)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go wsConn.pump()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			// connection closed or error
			utils.Verbose("WebSocket connection %s closed: %v", wsConn.id, err)
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			_ = wsConn.sendError(nil, ErrCodeInvalidRequest, errTitleInvalidReq, errMsgTextOnly)
			continue
		}

		handleWSMessage(hub, wsConn, message)
	}
}

func isSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return originURL.Host == r.Host
}

func handleWSMessage(hub *Hub, wsConn *wsConnection, message []byte) {
	var req JSONRPCRequest
	if err := json.Unmarshal(message, &req); err != nil {
		_ = wsConn.sendError(nil, ErrCodeParseError, errTitleParseError, errMsgParseError)
		return
	}

	if verr := validateJSONRPCRequest(req); verr != nil {
		_ = wsConn.sendError(req.ID, verr.code, verr.message, verr.data)
		return
	}

	utils.Info("WebSocket Request ID: %v, Method: %s, Params: %s", req.ID, req.Method, string(req.Params))

	switch req.Method {
	case methodSubscribe:
		if hub == nil {
			_ = wsConn.sendError(req.ID, ErrCodeMethodNotFound, errTitleMethodNotSupp, "events are not available on this server")
			return
		}
		view := hub.subscribe(wsConn)
		_ = wsConn.sendResponse(req.ID, map[string]interface{}{
			"clientId": wsConn.id,
			"overlay":  view,
		})
		return
	case methodShutdown:
		_ = wsConn.sendResponse(req.ID, okResponse)
		requestShutdown()
		return
	}

	handleWSMethodCall(wsConn, req)
}

func handleWSMethodCall(wsConn *wsConnection, req JSONRPCRequest) {
	registry := GetMethodRegistry()
	handler, exists := registry[req.Method]
	if !exists {
		_ = wsConn.sendError(req.ID, ErrCodeMethodNotFound, errTitleMethodNotFound, req.Method+" not found")
		return
	}

	res, err := handler(req.Params)
	if err != nil {
		utils.Warn("Error executing method %s: %v", req.Method, err)
		_ = wsConn.sendError(req.ID, errorCode(err), errTitleServerError, err.Error())
		return
	}

	_ = wsConn.sendResponse(req.ID, res)
}

// pump writes queued notifications and keeps the connection alive with
// pings until the connection is closed.
func (wsc *wsConnection) pump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case n := <-wsc.events:
			if err := wsc.sendJSON(n); err != nil {
				utils.Verbose("WebSocket %s write failed: %v", wsc.id, err)
				return
			}
		case <-ticker.C:
			wsc.writeMu.Lock()
			err := wsc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			wsc.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-wsc.done:
			return
		}
	}
}

// notify queues n without blocking; a client that falls behind loses
// notifications rather than stalling the sender.
func (wsc *wsConnection) notify(n JSONRPCNotification) bool {
	select {
	case <-wsc.done:
		return false
	default:
	}

	select {
	case wsc.events <- n:
		return true
	default:
		utils.Verbose("WebSocket %s is not keeping up, dropped %s notification", wsc.id, n.Method)
		return false
	}
}

func (wsc *wsConnection) close() {
	wsc.closeOnce.Do(func() { close(wsc.done) })
}

func (wsc *wsConnection) sendResponse(id interface{}, result interface{}) error {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	return wsc.sendJSON(response)
}

func (wsc *wsConnection) sendError(id interface{}, code int, message string, data interface{}) error {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
			"data":    data,
		},
		ID: id,
	}
	return wsc.sendJSON(response)
}

func (wsc *wsConnection) sendJSON(v interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()
	_ = wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsc.conn.WriteJSON(v)
}
