package submission

//go:generate mockgen -source=flow.go -destination=mock_submission.go -package=submission

import (
	"context"
	"fmt"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/clock"
	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/shopspring/decimal"
)

// ViewReader is the read side of the auction state store
type ViewReader interface {
	View() models.ReconciledView
}

// BidSink forwards a bid to the auction source
type BidSink interface {
	PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.Bid, error)
}

// Pending is a bid the source has accepted but the push channel has not yet
// confirmed. The store is updated only by that confirmation.
type Pending struct {
	AuctionID   string
	Amount      decimal.Decimal
	BidID       string
	SubmittedAt time.Time
}

// Confirmed reports whether the bid has reached the reconciled view
func (p Pending) Confirmed(v models.ReconciledView) bool {
	for _, b := range v.Bids {
		if b.ID == p.BidID {
			return true
		}
	}
	return false
}

// Flow validates bids against the current view before sending them
type Flow struct {
	view  ViewReader
	sink  BidSink
	clock clock.Source
}

// New creates a submission flow
func New(view ViewReader, sink BidSink, c clock.Source) *Flow {
	return &Flow{view: view, sink: sink, clock: clock.OrReal(c)}
}

// Validate runs the local checks without calling the source
func Validate(v models.ReconciledView, amount decimal.Decimal) error {
	if v.Auction.Status != models.StatusOngoing {
		return fmt.Errorf("submission: %w - auction %s is %s", biddingerrors.ErrAuctionNotActive, v.Auction.ID, v.Auction.Status)
	}
	minimum := v.MinimumNextBid()
	if !amount.GreaterThan(minimum) {
		return fmt.Errorf("submission: %w - bid must exceed %s", biddingerrors.ErrBidTooLow, minimum)
	}
	return nil
}

// Submit checks the bid locally and forwards it. A rejection from the source
// is returned unwrapped so callers see the server's reason; nothing is
// retried and nothing is applied to the view.
func (f *Flow) Submit(ctx context.Context, amount decimal.Decimal) (Pending, error) {
	v := f.view.View()
	if err := Validate(v, amount); err != nil {
		return Pending{}, err
	}

	bid, err := f.sink.PlaceBid(ctx, v.Auction.ID, amount)
	if err != nil {
		utils.Warn("bid not accepted by source", map[string]any{
			"auction_id": v.Auction.ID,
			"amount":     amount.String(),
			"error":      err.Error(),
		})
		return Pending{}, err
	}

	utils.Info("bid submitted", map[string]any{
		"auction_id": v.Auction.ID,
		"bid_id":     bid.ID,
		"amount":     amount.String(),
	})

	return Pending{
		AuctionID:   v.Auction.ID,
		Amount:      amount,
		BidID:       bid.ID,
		SubmittedAt: f.clock.Now(),
	}, nil
}

// QuickIncrements suggests amounts just above the current minimum
func QuickIncrements(v models.ReconciledView, increments ...decimal.Decimal) []decimal.Decimal {
	minimum := v.MinimumNextBid()
	out := make([]decimal.Decimal, 0, len(increments))
	for _, inc := range increments {
		if inc.IsPositive() {
			out = append(out, minimum.Add(inc))
		}
	}
	return out
}

// DefaultIncrements are the quick bid steps offered to a bidder
var DefaultIncrements = []decimal.Decimal{
	decimal.NewFromInt(10),
	decimal.NewFromInt(50),
	decimal.NewFromInt(100),
}
