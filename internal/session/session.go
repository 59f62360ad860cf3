// Package session wires the sync components for one viewed auction. Each
// session owns its store, push channel and countdown; sessions share nothing
// mutable, so viewing several auctions means opening several sessions.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-sync/internal/channel"
	"auction-sync/internal/clock"
	"auction-sync/internal/countdown"
	"auction-sync/internal/models"
	"auction-sync/internal/store"
	"auction-sync/internal/submission"
	"auction-sync/utils"

	"github.com/shopspring/decimal"
)

// Source is the REST side of the auction API
type Source interface {
	Snapshot(ctx context.Context, auctionID string) (models.Auction, []models.Bid, error)
	PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.Bid, error)
}

// Deps are shared, stateless collaborators. Channel carries the identity and
// reconnect policy; its AuctionID is filled in per session.
type Deps struct {
	Source  Source
	Dialer  channel.Dialer
	Clock   clock.Source
	Channel channel.Config
	Tick    time.Duration
}

// Session is one live auction subscription
type Session struct {
	auctionID string
	store     *store.Store
	channel   *channel.Channel
	flow      *submission.Flow
	ticks     <-chan countdown.Tick

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Open subscribes to an auction. The push channel starts first so nothing
// pushed during the initial fetch is lost. If that fetch fails the session
// is torn down and the error returned.
func Open(ctx context.Context, deps Deps, auctionID string) (*Session, error) {
	c := clock.OrReal(deps.Clock)
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{auctionID: auctionID, cancel: cancel}
	s.store = store.New(auctionID, func(ctx context.Context) (models.Auction, []models.Bid, error) {
		return deps.Source.Snapshot(ctx, auctionID)
	}, store.WithClock(c))

	cfg := deps.Channel
	cfg.AuctionID = auctionID
	s.channel = channel.New(cfg, deps.Dialer, s.store, c)

	s.wg.Go(func() {
		if err := s.channel.Run(ctx); err != nil {
			utils.Error("push channel gave up", map[string]any{"auction_id": auctionID, "error": err.Error()})
		}
	})

	auction, bids, err := deps.Source.Snapshot(ctx, auctionID)
	if err != nil {
		s.store.Discard()
		s.Close()
		return nil, fmt.Errorf("session: initial snapshot of auction %s: %w", auctionID, err)
	}
	s.store.Seed(auction, bids)

	s.wg.Go(func() { s.store.Run(ctx) })

	engine := countdown.NewEngine(c, deps.Tick, func() time.Time {
		return s.store.View().Auction.EndTime
	})
	s.ticks = engine.Start(ctx)
	s.flow = submission.New(s.store, deps.Source, c)

	utils.Info("session opened", map[string]any{"auction_id": auctionID, "bids": len(bids)})
	return s, nil
}

// AuctionID is the subscribed auction
func (s *Session) AuctionID() string {
	return s.auctionID
}

// View returns the reconciled view
func (s *Session) View() models.ReconciledView {
	return s.store.View()
}

// Changes fires whenever the view has been republished
func (s *Session) Changes() <-chan struct{} {
	return s.store.Changes()
}

// Countdown delivers the latest countdown tick; it closes on Close
func (s *Session) Countdown() <-chan countdown.Tick {
	return s.ticks
}

// Connection reports the push channel state, including closed after Close
func (s *Session) Connection() models.ConnectionState {
	return s.channel.State()
}

// Submit validates a bid against the current view and sends it
func (s *Session) Submit(ctx context.Context, amount decimal.Decimal) (submission.Pending, error) {
	return s.flow.Submit(ctx, amount)
}

// Close stops the countdown, closes the push channel and discards the store.
// REST calls still in flight are dropped when they return.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		s.channel.Close()
		s.wg.Wait()
		utils.Info("session closed", map[string]any{"auction_id": s.auctionID})
	})
}
