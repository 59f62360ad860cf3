package helpers

import (
	"time"

	"github.com/shopspring/decimal"
)

// identity headers attached by the auction client
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"bid_amount"`
}

type CreateAuctionRequest struct {
	ItemID        string          `json:"item_id"`
	Title         string          `json:"title" binding:"required"`
	Description   string          `json:"description"`
	ImageURL      string          `json:"image_url"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	StartTime     time.Time       `json:"start_time" binding:"required"`
	EndTime       time.Time       `json:"end_time" binding:"required"`
}
