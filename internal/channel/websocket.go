package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a control frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// WebsocketDialer dials <BaseURL>/ws/<auction id> with the viewer identity
// in the query string.
type WebsocketDialer struct {
	BaseURL string
	Dialer  *websocket.Dialer
}

// NewWebsocketDialer creates a dialer for a ws:// or wss:// base URL
func NewWebsocketDialer(baseURL string) *WebsocketDialer {
	return &WebsocketDialer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// SubscribeURL builds the push endpoint for an auction
func (d *WebsocketDialer) SubscribeURL(cfg Config) string {
	q := url.Values{}
	q.Set("user_id", cfg.Identity.UserID)
	if cfg.Identity.Username != "" {
		q.Set("user_name", cfg.Identity.Username)
	}
	return fmt.Sprintf("%s/ws/%s?%s", d.BaseURL, url.PathEscape(cfg.AuctionID), q.Encode())
}

// Dial opens the connection and starts its keep-alive pings
func (d *WebsocketDialer) Dial(ctx context.Context, cfg Config) (Conn, error) {
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	ws, resp, err := d.Dialer.DialContext(ctx, d.SubscribeURL(cfg), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("channel/ws: connect: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("channel/ws: connect: %w", err)
	}

	c := &wsConn{ws: ws, done: make(chan struct{})}
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c, nil
}

type wsConn struct {
	ws   *websocket.Conn
	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.wmu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close sends a close frame and tears the connection down. Safe to call twice.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}
