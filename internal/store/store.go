// Package store reconciles one auction's REST snapshots with push events
// into a single read model.
//
// All mutation happens on the goroutine running Run. Push events and
// connection transitions are posted through the channel.Sink methods and
// dequeued in order; re-fetch results come back through the same queue.
// Readers call View, which returns the last published snapshot.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/clock"
	"auction-sync/internal/ledger"
	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/shopspring/decimal"
)

// RefetchFunc loads a fresh snapshot and the full bid history of the auction
type RefetchFunc func(ctx context.Context) (models.Auction, []models.Bid, error)

const (
	inboxSize = 256

	// DefaultGapDelay is how long a count gap may stay open before the store
	// re-fetches on its own
	DefaultGapDelay = 2 * time.Second
	// DefaultGapRetries bounds the re-fetches spent on one gap
	DefaultGapRetries = 3
)

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used to schedule gap re-fetches
func WithClock(c clock.Source) Option {
	return func(s *Store) { s.clock = clock.OrReal(c) }
}

// WithGapRetry sets the delay before a gap re-fetch and how many are tried
// before the store stops waiting for the missing bids
func WithGapRetry(delay time.Duration, retries int) Option {
	return func(s *Store) {
		if delay > 0 {
			s.gapDelay = delay
		}
		if retries > 0 {
			s.gapRetries = retries
		}
	}
}

type event interface{}

type bidEvent struct{ msg models.PushMessage }

type stateEvent struct{ state models.ConnectionState }

type gapEvent struct{}

type refetchEvent struct {
	auction models.Auction
	bids    []models.Bid
	err     error
}

// Store owns the reconciled view of one auction
type Store struct {
	auctionID  string
	refetch    RefetchFunc
	clock      clock.Source
	gapDelay   time.Duration
	gapRetries int

	inbox   chan event
	changes chan struct{}
	stopped chan struct{}
	stop    sync.Once
	view    atomic.Pointer[models.ReconciledView]
	workers sync.WaitGroup

	// loop-owned state
	ledger     *ledger.Ledger
	auction    models.Auction
	conn       models.ConnectionState
	expected   int
	displayed  decimal.NullDecimal
	refetching bool
	again      bool
	gapPending bool
	gapTries   int
}

// New creates a store for an auction. refetch may be nil, in which case
// recoveries only update the connection state and count gaps close only
// through pushes.
func New(auctionID string, refetch RefetchFunc, opts ...Option) *Store {
	s := &Store{
		auctionID:  auctionID,
		refetch:    refetch,
		clock:      clock.Real(),
		gapDelay:   DefaultGapDelay,
		gapRetries: DefaultGapRetries,
		inbox:      make(chan event, inboxSize),
		changes:    make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		ledger:     ledger.New(auctionID),
		auction:    models.Auction{ID: auctionID},
		conn:       models.ConnectionState{Phase: models.PhaseConnecting},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publish()
	return s
}

// View returns the latest published view. It never blocks and never
// observes a half-applied update.
func (s *Store) View() models.ReconciledView {
	return *s.view.Load()
}

// Changes fires after every published view. Notifications coalesce, so a
// reader must call View rather than count signals.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// BidReceived queues a push message for the store loop
func (s *Store) BidReceived(msg models.PushMessage) {
	s.post(bidEvent{msg: msg})
}

// ConnectionStateChanged queues a connection transition for the store loop
func (s *Store) ConnectionStateChanged(state models.ConnectionState) {
	s.post(stateEvent{state: state})
}

func (s *Store) post(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.stopped:
	}
}

// Discard stops accepting events. Anything still queued is dropped.
func (s *Store) Discard() {
	s.stop.Do(func() { close(s.stopped) })
}

// Run applies queued events until ctx is done, then discards the store and
// waits for in-flight re-fetches to return. Their results are dropped.
func (s *Store) Run(ctx context.Context) {
	defer s.workers.Wait()
	defer s.Discard()

	s.chaseGap()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case ev := <-s.inbox:
			if ctx.Err() != nil {
				return
			}
			s.handle(ctx, ev)
			s.chaseGap()
		}
	}
}

func (s *Store) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case bidEvent:
		s.ApplyPushBid(e.msg)
	case stateEvent:
		if s.OnConnectionStateChanged(e.state) {
			s.startRefetch(ctx)
		}
	case refetchEvent:
		s.mergeRefetch(ctx, e)
	case gapEvent:
		s.gapPending = false
		if s.expected > s.ledger.Count() {
			utils.Info("count gap still open, re-fetching snapshot", map[string]any{
				"auction_id": s.auctionID,
				"bids":       s.ledger.Count(),
				"total_bids": s.expected,
				"try":        s.gapTries,
			})
			s.startRefetch(ctx)
		}
	}
}

// chaseGap schedules a delayed re-fetch while the source counts more bids
// than the ledger holds. After gapRetries re-fetches that do not close the
// gap the store trusts its own count so the view stops reconciling.
func (s *Store) chaseGap() {
	if s.expected <= s.ledger.Count() {
		s.gapTries = 0
		return
	}
	if s.refetch == nil || s.refetching || s.gapPending {
		return
	}
	if s.gapTries >= s.gapRetries {
		utils.Warn("count gap did not close, trusting the ledger", map[string]any{
			"auction_id": s.auctionID,
			"bids":       s.ledger.Count(),
			"total_bids": s.expected,
		})
		s.expected = s.ledger.Count()
		s.gapTries = 0
		s.publish()
		return
	}

	s.gapTries++
	s.gapPending = true
	s.clock.AfterFunc(s.gapDelay, func() { s.post(gapEvent{}) })
}

// Seed initialises the view from the first snapshot and bid history.
// History may come in any order; it is applied oldest first. Seed must be
// called before Run or from the loop goroutine.
func (s *Store) Seed(auction models.Auction, history []models.Bid) {
	s.absorbSnapshot(auction, history)
	utils.Info("auction seeded", map[string]any{
		"auction_id":  s.auctionID,
		"bids":        s.ledger.Count(),
		"total_bids":  auction.TotalBids,
		"reconciling": s.expected > s.ledger.Count(),
	})
	s.publish()
}

// ApplyPushBid runs a pushed bid through the ledger. A stale bid is recorded
// without taking the lead. Duplicates are absorbed silently; malformed bids
// are dropped with a warning. Must be called before Run or from the loop
// goroutine.
func (s *Store) ApplyPushBid(msg models.PushMessage) {
	if msg.Bid == nil {
		utils.Warn("push message without bid dropped", map[string]any{"auction_id": s.auctionID, "type": msg.Type})
		return
	}

	outcome, err := s.ledger.Accept(*msg.Bid)
	switch {
	case errors.Is(err, biddingerrors.ErrMalformedBid):
		utils.Warn("malformed push bid dropped", map[string]any{"auction_id": s.auctionID, "error": err.Error()})
		return
	case err != nil:
		utils.Debug("push bid absorbed", map[string]any{"auction_id": s.auctionID, "outcome": outcome.String(), "error": err.Error()})
	}

	// the summary can announce bids we have not seen yet, nothing more
	if msg.Auction != nil && msg.Auction.TotalBids > s.expected {
		s.expected = msg.Auction.TotalBids
	}

	if outcome.Recorded() || msg.Auction != nil {
		s.publish()
	}
}

// OnConnectionStateChanged records a transition and reports whether it is
// a recovery that needs a re-fetch. Must be called before Run or from the
// loop goroutine.
func (s *Store) OnConnectionStateChanged(state models.ConnectionState) bool {
	prev := s.conn.Phase
	s.conn = state
	s.publish()

	recovered := state.Phase == models.PhaseOpen && prev == models.PhaseReconnecting
	if recovered {
		utils.Info("push channel recovered, re-fetching snapshot", map[string]any{"auction_id": s.auctionID})
	}
	return recovered
}

func (s *Store) startRefetch(ctx context.Context) {
	if s.refetch == nil {
		return
	}
	if s.refetching {
		s.again = true
		return
	}
	s.refetching = true
	s.publish()

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		auction, bids, err := s.refetch(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case s.inbox <- refetchEvent{auction: auction, bids: bids, err: err}:
		case <-ctx.Done():
		case <-s.stopped:
		}
	}()
}

func (s *Store) mergeRefetch(ctx context.Context, e refetchEvent) {
	s.refetching = false
	if e.err != nil {
		utils.Warn("snapshot re-fetch failed", map[string]any{"auction_id": s.auctionID, "error": e.err.Error()})
	} else {
		before := s.ledger.Count()
		s.absorbSnapshot(e.auction, e.bids)
		utils.Info("snapshot re-fetched", map[string]any{
			"auction_id": s.auctionID,
			"recovered":  s.ledger.Count() - before,
			"total_bids": e.auction.TotalBids,
		})
	}
	s.publish()

	if s.again {
		s.again = false
		s.startRefetch(ctx)
	}
}

// absorbSnapshot merges a REST snapshot into loop state. Status, end time
// and descriptive fields always come from the source.
func (s *Store) absorbSnapshot(auction models.Auction, history []models.Bid) {
	if auction.ID == "" {
		auction.ID = s.auctionID
	}
	s.auction = auction

	ordered := append([]models.Bid(nil), history...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return models.BidBefore(ordered[j], ordered[i])
	})
	for _, bid := range ordered {
		if _, err := s.ledger.Accept(bid); errors.Is(err, biddingerrors.ErrMalformedBid) {
			utils.Warn("malformed history bid dropped", map[string]any{"auction_id": s.auctionID, "error": err.Error()})
		}
	}

	if auction.TotalBids > s.expected {
		s.expected = auction.TotalBids
	}
	s.raise(auction.CurrentHighestBid)
}

// raise lifts the displayed price, never lowering it
func (s *Store) raise(amount decimal.NullDecimal) {
	if !amount.Valid {
		return
	}
	if !s.displayed.Valid || amount.Decimal.GreaterThan(s.displayed.Decimal) {
		s.displayed = amount
	}
}

// publish builds an immutable view from loop state and swaps it in
func (s *Store) publish() {
	auction := s.auction
	count := s.ledger.Count()

	if highest, ok := s.ledger.Highest(); ok {
		s.raise(decimal.NewNullDecimal(highest.Amount))
		if highest.Amount.Equal(s.displayed.Decimal) {
			auction.CurrentHighestBidderID = highest.UserID
			auction.CurrentHighestBidderName = highest.UserName
		}
	}
	auction.CurrentHighestBid = s.displayed

	auction.TotalBids = count
	if s.expected > count {
		auction.TotalBids = s.expected
	}

	v := &models.ReconciledView{
		Auction:     auction,
		Bids:        s.ledger.All(),
		Connection:  s.conn,
		Reconciling: s.expected > count || s.refetching,
	}
	s.view.Store(v)

	select {
	case s.changes <- struct{}{}:
	default:
	}
}
