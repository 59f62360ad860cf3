package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/countdown"
	"auction-sync/internal/models"
	"auction-sync/internal/session"
	"auction-sync/utils"

	"github.com/shopspring/decimal"
)

// watch follows one auction until ctx is done or its push channel gives up
func watch(ctx context.Context, deps session.Deps, auctionID string, bid decimal.Decimal, out io.Writer) error {
	s, err := session.Open(ctx, deps, auctionID)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintln(out, describe(s.View()))

	if !bid.IsZero() {
		pending, err := s.Submit(ctx, bid)
		fmt.Fprintln(out, describeSubmit(auctionID, bid, pending.BidID, err))
	}

	ticks := s.Countdown()
	var lastPhase countdown.Phase
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Changes():
			view := s.View()
			fmt.Fprintln(out, describe(view))
			if view.Connection.Phase == models.PhaseFailed {
				utils.Warn("stopped following auction", map[string]any{"auction_id": auctionID})
				return nil
			}
		case t, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			if t.Phase != lastPhase || t.Ended() {
				fmt.Fprintf(out, "[%s] %s left (%s)\n", auctionID, t.Display(), t.Phase)
				lastPhase = t.Phase
			}
			if t.Ended() {
				ticks = nil
			}
			utils.Debug("countdown tick", map[string]any{"auction_id": auctionID, "remaining_ms": t.RemainingMs()})
		}
	}
}

// describe renders a one-line summary of a reconciled view
func describe(v models.ReconciledView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | %s", v.Auction.ID, v.Auction.Title, v.Auction.Status)

	if v.Auction.CurrentHighestBid.Valid {
		fmt.Fprintf(&b, " | high %s", v.Auction.CurrentHighestBid.Decimal.StringFixed(2))
		if v.Auction.CurrentHighestBidderName != "" {
			fmt.Fprintf(&b, " by %s", v.Auction.CurrentHighestBidderName)
		}
	} else {
		fmt.Fprintf(&b, " | starts at %s", v.Auction.StartingPrice.StringFixed(2))
	}

	fmt.Fprintf(&b, " | %d bids | %s", v.Auction.TotalBids, v.Connection.Phase)
	if v.Connection.Phase == models.PhaseReconnecting {
		fmt.Fprintf(&b, " (attempt %d)", v.Connection.Attempt)
	}
	if v.Reconciling {
		b.WriteString(" | syncing")
	}
	return b.String()
}

// describeSubmit renders the outcome of a bid submission
func describeSubmit(auctionID string, amount decimal.Decimal, bidID string, err error) string {
	var rejection *biddingerrors.SourceRejection
	switch {
	case err == nil:
		return fmt.Sprintf("[%s] bid %s sent as %s, waiting for confirmation", auctionID, amount.StringFixed(2), bidID)
	case errors.As(err, &rejection):
		return fmt.Sprintf("[%s] bid %s rejected: %s", auctionID, amount.StringFixed(2), rejection.Reason)
	case biddingerrors.IsValidation(err):
		return fmt.Sprintf("[%s] bid %s not sent: %v", auctionID, amount.StringFixed(2), err)
	default:
		return fmt.Sprintf("[%s] bid %s failed: %v", auctionID, amount.StringFixed(2), err)
	}
}
