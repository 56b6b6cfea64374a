// Package monitor serves a read-only live feed of stats and JIT queue
// depth over WebSocket (default port 17400, distinct from the Semtech
// protocol's own 1700/1701). It is adapted from this codebase's earlier
// outbound cloud WebSocket client, inverted into a small server: the
// forwarder pushes snapshots to whoever is connected rather than
// maintaining a single upstream connection of its own.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agsys/packetfwd/internal/gateway"
)

// MessageType identifies the shape of a pushed snapshot.
type MessageType string

const (
	MsgTypeStats    MessageType = "stats"
	MsgTypeJITDepth MessageType = "jit_depth"
)

// Message is one WebSocket frame pushed to a connected client.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// StatsPayload mirrors the upstream/downstream counters for the window
// just completed.
type StatsPayload struct {
	RXReceived  uint32  `json:"rx_received"`
	RXOK        uint32  `json:"rx_ok"`
	RXForwarded uint32  `json:"rx_forwarded"`
	TXOK        uint32  `json:"tx_ok"`
	TXFail      uint32  `json:"tx_fail"`
	AckRate     float32 `json:"ack_rate"`
}

// JITDepthPayload reports the current per-chain JIT queue depth.
type JITDepthPayload struct {
	Chain uint8 `json:"chain"`
	Depth int   `json:"depth"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server accepts WebSocket connections and broadcasts pushed messages to
// all of them.
type Server struct {
	GW   *gateway.Context
	Addr string

	mu      sync.Mutex
	clients map[uuid.UUID]*client

	httpSrv *http.Server
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Message
}

// NewServer constructs a monitor Server bound to addr (e.g. ":17400").
func NewServer(gw *gateway.Context, addr string) *Server {
	return &Server{
		GW:      gw,
		Addr:    addr,
		clients: make(map[uuid.UUID]*client),
	}
}

// Run starts the HTTP/WebSocket listener and the periodic broadcast
// loop, blocking until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleWS)
	s.httpSrv = &http.Server{Addr: s.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("monitor: listen: %w", err)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.httpSrv.Close()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.broadcastJITDepth()
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade: %v", err)
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan Message, 16)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	go s.writeLoop(c)
	s.readLoop(c) // blocks until the client disconnects
}

func (s *Server) readLoop(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		close(c.send)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return // client is read-only; any frame or error ends the session
		}
	}
}

func (s *Server) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// Broadcast pushes a stats snapshot to every connected client, called by
// the stats loop once per window.
func (s *Server) Broadcast(payload StatsPayload) {
	s.broadcast(Message{Type: MsgTypeStats, Timestamp: time.Now().Unix(), Payload: payload})
}

func (s *Server) broadcastJITDepth() {
	for chain, q := range s.GW.JIT {
		s.broadcast(Message{
			Type:      MsgTypeJITDepth,
			Timestamp: time.Now().Unix(),
			Payload:   JITDepthPayload{Chain: chain, Depth: q.Len()},
		})
	}
}

func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.send <- msg:
		default:
			// slow client: drop rather than block the broadcaster
		}
	}
}

// MarshalMessage is exposed for statslog/test callers that need the raw
// bytes without going through a live connection.
func MarshalMessage(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("monitor: marshal: %w", err)
	}
	return data, nil
}
