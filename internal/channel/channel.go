// Package channel keeps one push subscription alive per auction and reports
// what it hears to a Sink. It does not buffer or replay: events missed while
// disconnected are recovered by the consumer re-fetching after a reconnect.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/clock"
	"auction-sync/internal/models"
	"auction-sync/utils"
)

const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultMaxAttempts       = 10
	// DefaultStableAfter is how long a connection must stay open before a
	// later loss starts counting attempts from one again
	DefaultStableAfter = 10 * time.Second
)

// Sink receives everything the channel observes. Implementations must not
// block for long; the store queues and returns.
type Sink interface {
	BidReceived(msg models.PushMessage)
	ConnectionStateChanged(state models.ConnectionState)
}

// Conn is one established push connection
type Conn interface {
	// Read blocks until the next frame arrives or the connection is lost
	Read() ([]byte, error)
	Close() error
}

// Dialer opens push connections
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// Config describes the subscription
type Config struct {
	AuctionID         string
	Identity          models.User
	Token             string
	ReconnectInterval time.Duration
	MaxAttempts       int
	StableAfter       time.Duration
}

// Channel is the reconnecting push subscription for one auction
type Channel struct {
	cfg    Config
	dialer Dialer
	sink   Sink
	clock  clock.Source

	mu      sync.Mutex
	state   models.ConnectionState
	closing chan struct{}
	once    sync.Once
}

// New creates a channel. Zero settings fall back to the Default values.
func New(cfg Config, dialer Dialer, sink Sink, c clock.Source) *Channel {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = DefaultStableAfter
	}
	if cfg.Identity.UserID == "" {
		cfg.Identity.UserID = models.AnonymousUserID
	}
	return &Channel{
		cfg:     cfg,
		dialer:  dialer,
		sink:    sink,
		clock:   clock.OrReal(c),
		state:   models.ConnectionState{Phase: models.PhaseConnecting},
		closing: make(chan struct{}),
	}
}

// State returns the last reported connection state
func (c *Channel) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close unsubscribes. Run reports closed and returns; no reconnect follows.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.closing) })
}

// Run connects and keeps reconnecting at a fixed interval until ctx is done,
// Close is called, or MaxAttempts consecutive attempts have failed. Only the
// last case returns an error. A connection that drops before StableAfter
// counts as a failed attempt, so a source that accepts and immediately
// hangs up still exhausts the budget.
func (c *Channel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.transition(models.ConnectionState{Phase: models.PhaseConnecting})

	attempt := 0
	for {
		conn, err := c.dialer.Dial(ctx, c.cfg)
		if err == nil {
			opened := c.clock.Now()
			c.transition(models.ConnectionState{Phase: models.PhaseOpen})
			err = c.consume(ctx, conn)
			_ = conn.Close()
			if c.clock.Since(opened) >= c.cfg.StableAfter {
				attempt = 0
			}
		}

		if ctx.Err() != nil {
			c.transition(models.ConnectionState{Phase: models.PhaseClosed})
			return nil
		}

		attempt++
		if attempt > c.cfg.MaxAttempts {
			c.transition(models.ConnectionState{Phase: models.PhaseFailed})
			return fmt.Errorf("channel: %w - auction %s unreachable after %d attempts: %v",
				biddingerrors.ErrTransport, c.cfg.AuctionID, c.cfg.MaxAttempts, err)
		}

		utils.Warn("push channel lost", map[string]any{
			"auction_id": c.cfg.AuctionID,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		c.transition(models.ConnectionState{
			Phase:       models.PhaseReconnecting,
			Attempt:     attempt,
			NextRetryAt: c.clock.Now().Add(c.cfg.ReconnectInterval),
		})

		select {
		case <-ctx.Done():
			c.transition(models.ConnectionState{Phase: models.PhaseClosed})
			return nil
		case <-c.clock.After(c.cfg.ReconnectInterval):
		}
	}
}

// consume forwards frames until the connection fails. A frame that does not
// decode is treated like a dropped connection.
func (c *Channel) consume(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		data, err := conn.Read()
		if err != nil {
			return fmt.Errorf("channel: %w - read: %v", biddingerrors.ErrTransport, err)
		}

		var msg models.PushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			utils.Warn("undecodable push frame", map[string]any{"auction_id": c.cfg.AuctionID, "error": err.Error()})
			return fmt.Errorf("channel: %w - decode: %v", biddingerrors.ErrTransport, err)
		}

		if msg.Type != models.PushTypeNewBid {
			utils.Debug("ignoring push message", map[string]any{"auction_id": c.cfg.AuctionID, "type": msg.Type})
			continue
		}
		c.sink.BidReceived(msg)
	}
}

func (c *Channel) transition(state models.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	utils.Debug("push channel state", map[string]any{
		"auction_id": c.cfg.AuctionID,
		"phase":      string(state.Phase),
		"attempt":    state.Attempt,
	})
	c.sink.ConnectionStateChanged(state)
}
