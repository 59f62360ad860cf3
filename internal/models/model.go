package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts travel as plain JSON numbers, like the rest of the auction API
	decimal.MarshalJSONWithoutQuotes = true
}

// User represents a participant in the auction
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// AnonymousUserID identifies viewers that are not signed in
const AnonymousUserID = "anonymous"

// AuctionStatus is the temporal phase of an auction as reported by the source
type AuctionStatus string

const (
	StatusUpcoming  AuctionStatus = "upcoming"
	StatusOngoing   AuctionStatus = "ongoing"
	StatusCompleted AuctionStatus = "completed"
)

// StatusAt derives the status of an auction window at the given instant
func StatusAt(now, start, end time.Time) AuctionStatus {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusCompleted
	default:
		return StatusOngoing
	}
}

// Auction represents an auction snapshot
type Auction struct {
	ID                       string              `json:"id"`
	ItemID                   string              `json:"item_id"`
	Title                    string              `json:"title"`
	Description              string              `json:"description"`
	ImageURL                 string              `json:"image_url"`
	StartingPrice            decimal.Decimal     `json:"starting_price"`
	StartTime                time.Time           `json:"start_time"`
	EndTime                  time.Time           `json:"end_time"`
	CurrentHighestBid        decimal.NullDecimal `json:"current_highest_bid"`
	CurrentHighestBidderID   string              `json:"current_highest_bidder_id,omitempty"`
	CurrentHighestBidderName string              `json:"current_highest_bidder_name,omitempty"`
	Status                   AuctionStatus       `json:"status"`
	TotalBids                int                 `json:"total_bids"`
}

// MinimumBid returns the amount a new bid has to exceed
func (a Auction) MinimumBid() decimal.Decimal {
	if a.CurrentHighestBid.Valid {
		return a.CurrentHighestBid.Decimal
	}
	return a.StartingPrice
}

// Bid represents a user's bid on an auction
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	UserName  string          `json:"user_name"`
	Amount    decimal.Decimal `json:"bid_amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// SortBids orders bids newest first, ties broken by id so the order is total
func SortBids(bids []Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		return BidBefore(bids[i], bids[j])
	})
}

// BidBefore reports whether a sorts ahead of b in the newest-first order
func BidBefore(a, b Bid) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
