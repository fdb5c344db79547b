package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/logging"
)

const (
	// writeWait is the time allowed to write a message to a peer.
	writeWait = 10 * time.Second

	// clientBuffer is the number of events queued per client before the
	// client counts as too slow and is dropped.
	clientBuffer = 64
)

// Event is one discovery event on the feed.
type Event struct {
	// Kind names the event: "host-found", "service-found",
	// "service-lost", "device-found".
	Kind string `json:"kind"`

	// Time is when the event was published.
	Time time.Time `json:"time"`

	// Payload is the event-specific record.
	Payload any `json:"payload"`
}

// client is one connected feed consumer.
type client struct {
	conn   *websocket.Conn
	events chan Event
}

// Server broadcasts discovery events to WebSocket clients.
type Server struct {
	addr     string
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	listener net.Listener
}

// New returns a feed server for the given listen address.
func New(addr string) *Server {
	return &Server{
		addr:    addr,
		clients: make(map[*client]struct{}),
	}
}

// Addr returns the bound listen address once ListenAndServe has started,
// useful when the configured address selects a random port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Publish broadcasts one event to every connected client.
func (s *Server) Publish(kind string, payload any) {
	event := Event{Kind: kind, Time: time.Now().UTC(), Payload: payload}

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c.events <- event:
		default:
			// The client cannot keep up; close it rather than block the
			// publisher.
			logging.Warn("Dropping slow feed client",
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
			)
			delete(s.clients, c)
			close(c.events)
		}
	}
}

// ListenAndServe runs the feed until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)

	httpServer := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)

		s.mu.Lock()
		for c := range s.clients {
			delete(s.clients, c)
			close(c.events)
		}
		s.mu.Unlock()
	}()

	logging.Info("Event feed listening", zap.String("addr", listener.Addr().String()))

	if err := httpServer.Serve(listener); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleEvents upgrades one HTTP request and streams events to it.
func (s *Server) handleEvents(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", req.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &client{
		conn:   conn,
		events: make(chan Event, clientBuffer),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	logging.Info("Feed client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go s.writePump(c)
	go s.readPump(c)
}

// writePump sends queued events until the client is dropped.
func (s *Server) writePump(c *client) {
	defer c.conn.Close()

	for event := range c.events {
		data, err := json.Marshal(event)
		if err != nil {
			logging.Error("Failed to marshal event", zap.Error(err))
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.drop(c)
			return
		}
	}
}

// readPump discards client messages and detects disconnects.
func (s *Server) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.events)
		logging.Info("Feed client disconnected",
			zap.String("remote_addr", c.conn.RemoteAddr().String()),
		)
	}
}
