// Package dashboard serves a local WebSocket feed of sync activity.
//
// Connected clients receive the current snapshot on connect, a fresh one
// on every poll tick, and event messages pushed by the daemon (pass
// completions, network changes). Nothing here talks to the remote API;
// the dashboard observes, it never mutates.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/driftsync/drift/internal/cache"
	"github.com/driftsync/drift/internal/engine"
	"github.com/driftsync/drift/internal/intent"
	"github.com/driftsync/drift/internal/netmon"
)

// MessageType labels a dashboard broadcast.
type MessageType string

const (
	// MessageTypeSnapshot carries the full Snapshot, sent on connect and
	// on every poll tick.
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypeSyncComplete marks the end of a sync pass.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeNetworkChange marks a network state edge.
	MessageTypeNetworkChange MessageType = "network_change"
)

// Message is one dashboard broadcast frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Snapshot is the full observable state pushed to clients.
type Snapshot struct {
	Sync    engine.SyncStatus   `json:"sync"`
	Queue   intent.Stats        `json:"queue"`
	Todos   cache.Stats         `json:"todos"`
	Network netmon.NetworkState `json:"network"`
}

// StatusSource produces dashboard snapshots. The daemon wires it from
// the live engine, queue, cache and monitor.
type StatusSource func(ctx context.Context) Snapshot

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: localhost:8421)
	Addr string

	// PollInterval between pushed snapshots (default: 2s)
	PollInterval time.Duration

	// Logger for server activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:8421",
		PollInterval: 2 * time.Second,
		Logger:       log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server manages WebSocket clients and pushes sync state to them.
type Server struct {
	addr         string
	pollInterval time.Duration
	source       StatusSource
	listener     net.Listener
	server       *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server over the given status source.
func NewServer(source StatusSource, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:         config.Addr,
		pollInterval: config.PollInterval,
		source:       source,
		clients:      make(map[*websocket.Conn]bool),
		broadcast:    make(chan Message, 100),
		ctx:          ctx,
		cancel:       cancel,
		logger:       config.Logger,
	}
}

// Start begins listening. Returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go s.pollLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Printf("Dashboard stopped")
	return nil
}

// NotifySyncComplete pushes a pass-completion event to all clients.
func (s *Server) NotifySyncComplete(status engine.SyncStatus) {
	s.publish(MessageTypeSyncComplete, status)
}

// NotifyNetworkChange pushes a network edge to all clients.
func (s *Server) NotifyNetworkChange(state netmon.NetworkState) {
	s.publish(MessageTypeNetworkChange, state)
}

func (s *Server) publish(msgType MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("Failed to marshal %s payload: %v", msgType, err)
		return
	}
	msg := Message{Type: msgType, Timestamp: time.Now(), Data: data}

	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("Warning: broadcast channel full, dropping %s", msgType)
	}
}

// pollLoop pushes a fresh snapshot to clients on a fixed cadence, but
// only while someone is listening.
func (s *Server) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.ClientCount() == 0 {
				continue
			}
			s.publish(MessageTypeSnapshot, s.source(s.ctx))
		}
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot
			// stall new connections.
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected (total: %d)", count)

	// New clients get the current state immediately instead of waiting
	// for the next tick.
	snapshot, err := json.Marshal(s.source(r.Context()))
	if err == nil {
		welcome, _ := json.Marshal(Message{
			Type:      MessageTypeSnapshot,
			Timestamp: time.Now(),
			Data:      snapshot,
		})
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, welcome)
		cancel()
	}

	go s.readLoop(conn)
}

// readLoop drains client frames so pings are answered; client payloads
// are ignored.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", count)
}

// handleStatus serves the current snapshot as plain JSON for clients
// that don't want a socket.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.source(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>drift dashboard</title>
</head>
<body>
    <h1>drift sync dashboard</h1>
    <p>WebSocket feed: <code>ws://%s/ws</code></p>
    <p>JSON snapshot: <a href="/status">/status</a></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
