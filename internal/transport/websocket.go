package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "iocapture/internal/log"
)

// LevelsPath is where WebSocketTransport accepts clients.
const LevelsPath = "/levels"

const writeTimeout = time.Second

// WebSocketTransport broadcasts every sent value as JSON to all connected
// WebSocket clients. Slow consumers lose frames rather than stall Send.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
	server    *http.Server
}

// NewWebSocketTransport creates a transport that will listen on addr once
// Serve is called. Handler may be mounted elsewhere instead.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Level frames carry no secrets.
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(LevelsPath, wst.handleWebSocket)
	wst.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving LevelsPath.
func (wst *WebSocketTransport) Handler() http.Handler {
	return wst.server.Handler
}

// Serve listens on the configured address until ctx is done or Close is
// called.
func (wst *WebSocketTransport) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		applog.Infof("WebSocketTransport: Listening on %s%s", wst.addr, LevelsPath)
		errc <- wst.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		wst.Close()
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped returns how many frames were discarded because the queue was full.
func (wst *WebSocketTransport) Dropped() uint64 {
	return wst.dropped.Load()
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
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
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client %s connected, total: %d", conn.RemoteAddr(), total)

	// Clients only listen; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	if ok {
		conn.Close()
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. A full queue drops the frame.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}

	select {
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Close disconnects all clients and shuts down the server.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Infof("WebSocketTransport: Closing server")

		wst.clientsMu.Lock()
		close(wst.done)
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
