package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// FeedEvent announces a feed the server applied. Subscribers replay Feed to
// follow the server's store.
type FeedEvent struct {
	Seq    int    `json:"seq,omitempty"`
	Digest string `json:"digest"`
	Feed   string `json:"feed"`
	Time   string `json:"time"`
}

// subscriber is one WebSocket connection following the feed stream.
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans applied feeds out to every subscriber.
type Hub struct {
	clients    map[*subscriber]bool
	broadcast  chan []byte
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*subscriber]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
	}
}

// Run handles registration and broadcasting until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.WithField("subscribers", h.Len()).Debug("feed subscriber connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.WithField("subscribers", h.Len()).Debug("feed subscriber disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Too far behind to catch up.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues event for every subscriber. It never blocks.
func (h *Hub) Broadcast(event FeedEvent) {
	if event.Time == "" {
		event.Time = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("failed to encode feed event")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log.Warn("feed broadcast queue full, dropping event")
	}
}

// readPump discards client messages and notices the connection closing.
func (c *subscriber) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("feed subscriber closed unexpectedly")
			}
			return
		}
	}
}

// writePump sends one event per WebSocket message.
func (c *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleSubscribe upgrades the request and registers the connection. With
// auth enabled the request must carry a bearer token.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.authRequired() {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if _, err := s.verifier.Verify(token); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &subscriber{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// streamServer serves the feed stream over HTTP.
type streamServer struct {
	listener net.Listener
	http     *http.Server
}

func (s *streamServer) Close() error {
	return s.http.Close()
}

// StartFeedStream serves the WebSocket feed stream at /feeds on addr.
func (s *Server) StartFeedStream(addr string) error {
	if s.stream != nil {
		return errors.New("feed stream already started")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start feed stream: %w", err)
	}

	s.startHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/feeds", s.handleSubscribe)

	s.stream = &streamServer{
		listener: listener,
		http:     &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}
	go func() {
		if err := s.stream.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("feed stream stopped")
		}
	}()

	s.log.WithField("addr", listener.Addr().String()).Info("feed stream listening")
	return nil
}

// StreamAddr returns the feed stream's listening address.
func (s *Server) StreamAddr() string {
	if s.stream == nil {
		return ""
	}
	return s.stream.listener.Addr().String()
}
