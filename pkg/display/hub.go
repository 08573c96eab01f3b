package display

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itohio/gopulse/pkg/menu"
	"github.com/itohio/gopulse/pkg/monitor"
)

const (
	writeTimeout = time.Second
	sendBuffer   = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one websocket connection. Its writer goroutine is the only one
// writing to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// queue hands b to the writer without blocking. When the client is behind,
// the oldest pending frame is dropped. Only Render calls queue, so there is a
// single producer per client.
func (c *client) queue(b []byte) {
	select {
	case c.send <- b:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				// Unblocks the read loop, which unregisters the client.
				_ = c.conn.Close()
				return
			}
		}
	}
}

// Hub broadcasts each changed view as a JSON text frame to every connected
// websocket client. Render never waits on the network.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte

	stats  func() monitor.Stats
	frames atomic.Uint64
}

// NewHub creates a hub. stats, if not nil, is reported on /metrics.
func NewHub(stats func() monitor.Stats) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		stats:   stats,
	}
}

// add registers c and queues the current frame for it. Both happen under the
// lock Render holds, so c sees every frame from the current one on.
func (h *Hub) add(c *client) {
	h.mu.Lock()
	if h.last != nil {
		c.queue(h.last)
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Frames returns the number of frames broadcast.
func (h *Hub) Frames() uint64 {
	return h.frames.Load()
}

// Render queues v for every client if it differs from the previous frame.
func (h *Hub) Render(v menu.View) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode view: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if bytes.Equal(b, h.last) {
		return nil
	}
	h.last = b
	h.frames.Add(1)
	for c := range h.clients {
		c.queue(b)
	}
	return nil
}

// Handler serves /ws and /metrics.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/metrics", h.serveMetrics)
	return mux
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.add(c)
	defer h.remove(c)
	defer close(c.done)
	go c.writeLoop()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "frames %d\n", h.Frames())
	fmt.Fprintf(w, "clients %d\n", h.Clients())
	if h.stats != nil {
		st := h.stats()
		fmt.Fprintf(w, "samples %d\n", st.Processed)
		fmt.Fprintf(w, "beats %d\n", st.Beats)
		fmt.Fprintf(w, "dropped %d\n", st.Dropped)
		fmt.Fprintf(w, "queued %d\n", st.Queued)
	}
}

// Serve listens on addr until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: h.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Println("live view running on", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("live view server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("live view stopped")
	return nil
}
