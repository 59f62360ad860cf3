// Package pushhub fans new_bid messages out to the websocket subscribers of
// each auction.
package pushhub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/gorilla/websocket"
)

// Config holds websocket connection settings
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns the settings used by the auction server
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     64,
		CheckOrigin: func(r *http.Request) bool {
			// viewers connect from any origin
			return true
		},
	}
}

// Hub tracks subscribers per auction
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	id        string
	auctionID string
	user      models.User
	conn      *websocket.Conn
	send      chan []byte
}

// New creates a hub
func New(cfg Config) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// Serve upgrades the request and subscribes it to an auction. It returns
// once the connection has been handed to its pumps.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, auctionID string, user models.User) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("pushhub: upgrade: %w", err)
	}

	s := &subscriber{
		id:        utils.ShortID(),
		auctionID: auctionID,
		user:      user,
		conn:      conn,
		send:      make(chan []byte, h.cfg.SendBuffer),
	}
	h.register(s)

	go h.writePump(s)
	go h.readPump(s)

	utils.Info("push subscriber connected", map[string]any{
		"subscriber_id": s.id,
		"auction_id":    auctionID,
		"user_id":       user.UserID,
	})
	return nil
}

// Publish sends a message to every subscriber of an auction. Subscribers
// that cannot keep up are disconnected; they re-fetch on reconnect.
func (h *Hub) Publish(auctionID string, msg models.PushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.Error("push message encode failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for s := range h.subs[auctionID] {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		utils.Warn("dropping slow push subscriber", map[string]any{"subscriber_id": s.id, "auction_id": auctionID})
		h.unregister(s)
	}
}

// Subscribers counts the live subscribers of an auction
func (h *Hub) Subscribers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[auctionID])
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[s.auctionID] == nil {
		h.subs[s.auctionID] = make(map[*subscriber]struct{})
	}
	h.subs[s.auctionID][s] = struct{}{}
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[s.auctionID]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	close(s.send)
	if len(subs) == 0 {
		delete(h.subs, s.auctionID)
	}
}

// readPump discards client frames and notices disconnects
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.unregister(s)
		_ = s.conn.Close()
		utils.Info("push subscriber disconnected", map[string]any{"subscriber_id": s.id, "auction_id": s.auctionID})
	}()

	s.conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
