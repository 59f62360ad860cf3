package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/clock"
	model "auction-sync/internal/models"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionDB defines the auction and bid storage interface
type AuctionDB interface {
	CreateAuction(auction model.Auction) error
	GetAuction(auctionID string) (model.Auction, error)
	ListAuctions() ([]model.Auction, error)
	RecordBid(bid model.Bid) (model.Bid, model.Auction, error)
	GetBidsByAuction(auctionID string) ([]model.Bid, error)
	GetWinningBid(auctionID string) (model.Bid, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu       sync.RWMutex
	clock    clock.Source
	auctions map[string]model.Auction // key: auctionID -> value: auction with running summary
	bids     map[string][]model.Bid   // key: auctionID -> value: bids in arrival order
}

// Option configures a MemoryRepo
type Option func(*MemoryRepo)

// WithClock sets the clock that stamps recorded bids
func WithClock(c clock.Source) Option {
	return func(r *MemoryRepo) { r.clock = clock.OrReal(c) }
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo(opts ...Option) *MemoryRepo {
	r := &MemoryRepo{
		clock:    clock.Real(),
		auctions: make(map[string]model.Auction),
		bids:     make(map[string][]model.Bid),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.ID == "" {
		return fmt.Errorf("create auction: %w - missing id", biddingerrors.ErrInvalidBid)
	}
	if _, ok := r.auctions[auction.ID]; ok {
		return fmt.Errorf("create auction %s: already exists", auction.ID)
	}
	r.auctions[auction.ID] = auction
	return nil
}

// GetAuction returns an auction with its bid summary
func (r *MemoryRepo) GetAuction(auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// ListAuctions returns all auctions ordered by start time
func (r *MemoryRepo) ListAuctions() ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctions := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		auctions = append(auctions, a)
	}
	sort.Slice(auctions, func(i, j int) bool {
		if !auctions[i].StartTime.Equal(auctions[j].StartTime) {
			return auctions[i].StartTime.Before(auctions[j].StartTime)
		}
		return auctions[i].ID < auctions[j].ID
	})
	return auctions, nil
}

// RecordBid appends a bid and updates the auction summary in one step.
// The amount must exceed the current highest bid, or the starting price
// when there is none; two racing bids cannot both win.
//
// CreatedAt is assigned here under the write lock and is strictly later than
// every bid already recorded for the auction, so record order, amount order
// and created_at order agree. The stamped bid is returned.
func (r *MemoryRepo) RecordBid(bid model.Bid) (model.Bid, model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[bid.AuctionID]
	if !ok {
		return model.Bid{}, model.Auction{}, fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}

	minimum := auction.MinimumBid()
	if !bid.Amount.GreaterThan(minimum) {
		return model.Bid{}, model.Auction{}, fmt.Errorf("record bid for auction %s: %w - current minimum is %s",
			bid.AuctionID, biddingerrors.ErrBidTooLow, minimum)
	}

	bid.CreatedAt = r.stamp(bid.AuctionID)
	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)

	auction.CurrentHighestBid = decimal.NewNullDecimal(bid.Amount)
	auction.CurrentHighestBidderID = bid.UserID
	auction.CurrentHighestBidderName = bid.UserName
	auction.TotalBids = len(r.bids[bid.AuctionID])
	r.auctions[bid.AuctionID] = auction

	return bid, auction, nil
}

// stamp returns the creation time for the next bid on an auction. Callers
// hold r.mu.
func (r *MemoryRepo) stamp(auctionID string) time.Time {
	now := r.clock.Now().UTC()
	if bids := r.bids[auctionID]; len(bids) > 0 {
		if last := bids[len(bids)-1].CreatedAt; !now.After(last) {
			now = last.Add(time.Nanosecond)
		}
	}
	return now
}

// GetBidsByAuction returns all bids for an auction, newest first
func (r *MemoryRepo) GetBidsByAuction(auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	out := append([]model.Bid(nil), bids...)
	model.SortBids(out)
	return out, nil
}

// GetWinningBid returns the highest bid for an auction
func (r *MemoryRepo) GetWinningBid(auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(winning.Amount) || (b.Amount.Equal(winning.Amount) && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}
