// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"audioviz/internal/log"

	"github.com/gorilla/websocket"
)

const (
	// WebSocketPath is the path clients connect to.
	WebSocketPath = "/ws"

	broadcastQueue = 64
	writeTimeout   = time.Second
)

// WebSocketTransport serves frames as JSON text messages to every connected
// client.
//
// Thread Safety:
// - Send marshals on the caller's goroutine and queues the bytes, so callers may reuse frame buffers immediately
// - A full queue drops the message instead of blocking the render loop
// - clientsMu guards the client set; one broadcast goroutine does all writes
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	listener  net.Listener
	server    *http.Server
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   uint64
}

// NewWebSocketTransport listens on addr and starts serving WebSocketPath.
// Use port 0 to pick a free port; Addr reports the bound address.
func NewWebSocketTransport(addr string) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: failed to listen on %s: %w", addr, err)
	}

	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Frames are public; any page may visualize them.
			},
		},
		listener:  ln,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, broadcastQueue),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, wst.handleWebSocket)
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		log.Infof("WebSocketTransport: Serving frames on ws://%s%s", ln.Addr(), WebSocketPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	go wst.handleBroadcasts()

	return wst, nil
}

// Addr returns the address the server is bound to.
func (wst *WebSocketTransport) Addr() net.Addr {
	return wst.listener.Addr()
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket and watches each
// client until it disconnects.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.wg.Add(1)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client connected from %s, total: %d", conn.RemoteAddr(), total)

	go func() {
		defer wst.wg.Done()
		// Clients never send frames; reading only detects the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.remove(conn)
	}()
}

func (wst *WebSocketTransport) remove(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		log.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts writes queued messages to all clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case msg := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		case <-wst.done:
			return
		}
	}
}

// Send marshals data as JSON and queues it for every client. Messages are
// dropped while the queue is full. Send after Close returns an error.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return errors.New("websocket transport: closed")
	default:
	}

	msg, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("websocket transport: failed to marshal frame: %w", err)
	}

	select {
	case wst.broadcast <- msg:
	default:
		// Channel full, drop message
		wst.clientsMu.Lock()
		wst.dropped++
		wst.clientsMu.Unlock()
	}
	return nil
}

// Close disconnects every client, shuts down the server and waits for its
// goroutines. It is idempotent.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Infof("WebSocketTransport: Closing server")

		wst.clientsMu.Lock()
		close(wst.done)
		for client := range wst.clients {
			client.Close()
		}
		if wst.dropped > 0 {
			log.Debugf("WebSocketTransport: Dropped %d messages on a full queue", wst.dropped)
		}
		wst.clientsMu.Unlock()

		err = wst.server.Close()
		wst.wg.Wait()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
