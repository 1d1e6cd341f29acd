package server

import (
	"sync"

	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/tracker"
	"github.com/mobile-next/siminspect/utils"
)

const (
	notifyOverlay = "overlay"
	notifyFrame   = "frame"
)

// OverlayView is the overlay window as a remote renderer should draw it.
// Frame uses a bottom-left origin; Highlight is relative to the
// overlay's top-left corner.
type OverlayView struct {
	Frame        geometry.Rect  `json:"frame"`
	Visible      bool           `json:"visible"`
	ClickThrough bool           `json:"clickThrough"`
	Highlight    *geometry.Rect `json:"highlight,omitempty"`
	Label        string         `json:"label,omitempty"`
}

// Hub is the overlay surface for WebSocket renderers. Every change is
// broadcast to subscribed clients as an "overlay" notification carrying
// the whole view. Surface methods never block.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*wsConnection
	view    OverlayView
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*wsConnection)}
}

func (h *Hub) SetFrame(frame geometry.Rect) {
	h.update(func(v *OverlayView) { v.Frame = frame })
}

func (h *Hub) SetVisible(visible bool) {
	h.update(func(v *OverlayView) { v.Visible = visible })
}

func (h *Hub) SetClickThrough(clickThrough bool) {
	h.update(func(v *OverlayView) { v.ClickThrough = clickThrough })
}

func (h *Hub) Highlight(rect geometry.Rect, label string) {
	h.update(func(v *OverlayView) {
		v.Highlight = &rect
		v.Label = label
	})
}

func (h *Hub) ClearHighlight() {
	h.update(func(v *OverlayView) {
		v.Highlight = nil
		v.Label = ""
	})
}

// FrameChanged forwards tracker changes as "frame" notifications.
func (h *Hub) FrameChanged(s tracker.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast(notifyFrame, s)
}

// View returns the current overlay view.
func (h *Hub) View() OverlayView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view.clone()
}

// Clients counts subscribed connections.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops further broadcasts. Connections stay open until the
// server shuts down.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.clients = make(map[string]*wsConnection)
}

func (h *Hub) subscribe(c *wsConnection) OverlayView {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.clients[c.id] = c
		utils.Verbose("WebSocket %s subscribed, %d clients", c.id, len(h.clients))
	}
	return h.view.clone()
}

func (h *Hub) unsubscribe(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		utils.Verbose("WebSocket %s unsubscribed, %d clients", c.id, len(h.clients))
	}
}

func (h *Hub) update(fn func(v *OverlayView)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.view)
	h.broadcast(notifyOverlay, h.view.clone())
}

// broadcast must be called with h.mu held.
func (h *Hub) broadcast(method string, params interface{}) {
	if h.closed {
		return
	}
	n := JSONRPCNotification{JSONRPC: "2.0", Method: method, Params: params}
	for _, c := range h.clients {
		c.notify(n)
	}
}

func (v OverlayView) clone() OverlayView {
	if v.Highlight != nil {
		r := *v.Highlight
		v.Highlight = &r
	}
	return v
}
