package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PushTypeNewBid is the only push message type the sync engine consumes
const PushTypeNewBid = "new_bid"

// AuctionSummary carries the partial auction fields embedded in a push message
type AuctionSummary struct {
	CurrentHighestBid        decimal.NullDecimal `json:"current_highest_bid"`
	CurrentHighestBidderName string              `json:"current_highest_bidder_name,omitempty"`
	TotalBids                int                 `json:"total_bids"`
}

// PushMessage is a message on an auction's push channel
type PushMessage struct {
	Type    string          `json:"type"`
	Auction *AuctionSummary `json:"auction,omitempty"`
	Bid     *Bid            `json:"bid,omitempty"`
}

// NewBidMessage builds the push message broadcast after a bid is recorded
func NewBidMessage(bid Bid, auction Auction) PushMessage {
	return PushMessage{
		Type: PushTypeNewBid,
		Auction: &AuctionSummary{
			CurrentHighestBid:        auction.CurrentHighestBid,
			CurrentHighestBidderName: auction.CurrentHighestBidderName,
			TotalBids:                auction.TotalBids,
		},
		Bid: &bid,
	}
}

// ConnectionPhase is the lifecycle phase of a push subscription
type ConnectionPhase string

const (
	PhaseConnecting   ConnectionPhase = "connecting"
	PhaseOpen         ConnectionPhase = "open"
	PhaseReconnecting ConnectionPhase = "reconnecting"
	PhaseFailed       ConnectionPhase = "failed"
	PhaseClosed       ConnectionPhase = "closed"
)

// ConnectionState is the externally visible state of a push subscription.
// Attempt and NextRetryAt are only set while reconnecting.
type ConnectionState struct {
	Phase       ConnectionPhase `json:"phase"`
	Attempt     int             `json:"attempt,omitempty"`
	NextRetryAt time.Time       `json:"next_retry_at,omitempty"`
}

// Terminal reports whether no further transitions can happen
func (s ConnectionState) Terminal() bool {
	return s.Phase == PhaseFailed || s.Phase == PhaseClosed
}

// ReconciledView is the single read model exposed to presentation
type ReconciledView struct {
	Auction     Auction         `json:"auction"`
	Bids        []Bid           `json:"bids"`
	Connection  ConnectionState `json:"connection"`
	Reconciling bool            `json:"reconciling"`
}

// MinimumNextBid returns the amount a submitted bid must exceed
func (v ReconciledView) MinimumNextBid() decimal.Decimal {
	return v.Auction.MinimumBid()
}
