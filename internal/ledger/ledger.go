package ledger

import (
	"fmt"
	"sort"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
)

// Outcome says how an accepted bid entered the ledger
type Outcome int

const (
	// OutcomeRejected is returned together with an error
	OutcomeRejected Outcome = iota
	// OutcomeLeading means the bid is the new highest
	OutcomeLeading
	// OutcomeStale means the bid does not beat the highest. It is still a real
	// bid, so it is kept in the trail and counted, but it never leads.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLeading:
		return "leading"
	case OutcomeStale:
		return "stale"
	default:
		return "rejected"
	}
}

// Recorded reports whether the bid is now part of the trail
func (o Outcome) Recorded() bool {
	return o == OutcomeLeading || o == OutcomeStale
}

// Ledger is the append-only, de-duplicated record of bids for one auction.
// It is owned by a single goroutine and is not safe for concurrent use.
type Ledger struct {
	auctionID string
	bids      []models.Bid // newest first
	known     map[string]struct{}
	highest   *models.Bid
}

// New creates an empty ledger for an auction
func New(auctionID string) *Ledger {
	return &Ledger{
		auctionID: auctionID,
		known:     make(map[string]struct{}),
	}
}

// Accept adjudicates a candidate bid.
//
// Duplicates and malformed bids are rejected outright. Every other bid enters
// the trail; the amount only decides whether it leads.
func (l *Ledger) Accept(bid models.Bid) (Outcome, error) {
	if err := l.validate(bid); err != nil {
		return OutcomeRejected, err
	}

	if l.Contains(bid.ID) {
		return OutcomeRejected, fmt.Errorf("ledger: %w - bid %s already recorded", biddingerrors.ErrDuplicateBid, bid.ID)
	}
	if bid.AuctionID == "" {
		bid.AuctionID = l.auctionID
	}

	l.insert(bid)
	if !l.leads(bid) {
		return OutcomeStale, nil
	}
	b := bid
	l.highest = &b
	return OutcomeLeading, nil
}

// leads reports whether bid beats the current highest. Equal amounts cannot
// happen under auction rules; if they do the earlier bid leads.
func (l *Ledger) leads(bid models.Bid) bool {
	if l.highest == nil {
		return true
	}
	switch bid.Amount.Cmp(l.highest.Amount) {
	case 1:
		return true
	case 0:
		return bid.CreatedAt.Before(l.highest.CreatedAt)
	default:
		return false
	}
}

func (l *Ledger) validate(bid models.Bid) error {
	switch {
	case bid.ID == "":
		return fmt.Errorf("ledger: %w - missing bid id", biddingerrors.ErrMalformedBid)
	case !bid.Amount.IsPositive():
		return fmt.Errorf("ledger: %w - non-positive amount on bid %s", biddingerrors.ErrMalformedBid, bid.ID)
	case bid.CreatedAt.IsZero():
		return fmt.Errorf("ledger: %w - missing created_at on bid %s", biddingerrors.ErrMalformedBid, bid.ID)
	case bid.AuctionID != "" && l.auctionID != "" && bid.AuctionID != l.auctionID:
		return fmt.Errorf("ledger: %w - bid %s belongs to auction %s", biddingerrors.ErrMalformedBid, bid.ID, bid.AuctionID)
	}
	return nil
}

// insert keeps bids sorted newest first
func (l *Ledger) insert(bid models.Bid) {
	i := sort.Search(len(l.bids), func(i int) bool {
		return !models.BidBefore(l.bids[i], bid)
	})
	l.bids = append(l.bids, models.Bid{})
	copy(l.bids[i+1:], l.bids[i:])
	l.bids[i] = bid
	l.known[bid.ID] = struct{}{}
}

// Highest returns the leading bid, if any
func (l *Ledger) Highest() (models.Bid, bool) {
	if l.highest == nil {
		return models.Bid{}, false
	}
	return *l.highest, true
}

// Count is the number of bids in the trail
func (l *Ledger) Count() int {
	return len(l.bids)
}

// Contains reports whether a bid id is in the trail
func (l *Ledger) Contains(id string) bool {
	_, ok := l.known[id]
	return ok
}

// All returns a copy of the trail, newest first
func (l *Ledger) All() []models.Bid {
	return append([]models.Bid(nil), l.bids...)
}
