package httpserver

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub owns the single browser connection: reply audio goes down as binary
// frames, display events as JSON text frames. It satisfies the speech
// output's sink contract.
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// attach replaces the active connection; the previous one is closed.
func (h *Hub) attach(conn *websocket.Conn) {
	h.mu.Lock()
	old := h.conn
	h.conn = conn
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (h *Hub) detach(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// WritePCM pushes one chunk of reply audio to the browser.
func (h *Hub) WritePCM(pcm []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return
	}
	if err := h.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		log.Printf("hub: write audio: %v", err)
	}
}

// FlushTail marks the end of a reply's audio stream.
func (h *Hub) FlushTail() {
	h.Publish(map[string]string{"type": "audio_end"})
}

// Reset tells the browser to drop any queued audio immediately.
func (h *Hub) Reset() {
	h.Publish(map[string]string{"type": "audio_reset"})
}

// Publish sends one JSON display event.
func (h *Hub) Publish(event any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return
	}
	if err := h.conn.WriteJSON(event); err != nil {
		log.Printf("hub: write event: %v", err)
	}
}
