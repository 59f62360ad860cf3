package bidding

import (
	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/clock"
	model "auction-sync/internal/models"
	"auction-sync/internal/repository"
	"auction-sync/utils"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Publisher broadcasts push messages to an auction's subscribers
type Publisher interface {
	Publish(auctionID string, msg model.PushMessage)
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo      repository.AuctionDB
	clock     clock.Source
	publisher Publisher
}

// NewBiddingService creates a new BiddingService instance. publisher may be nil.
func NewBiddingService(repo repository.AuctionDB, c clock.Source, publisher Publisher) *BiddingService {
	return &BiddingService{
		repo:      repo,
		clock:     clock.OrReal(c),
		publisher: publisher,
	}
}

// CreateAuction validates and stores a new auction
func (s *BiddingService) CreateAuction(auction model.Auction) (model.Auction, error) {
	if strings.TrimSpace(auction.Title) == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing title", biddingerrors.ErrInvalidBid)
	}
	if !auction.StartingPrice.IsPositive() {
		return model.Auction{}, fmt.Errorf("service: %w - starting price must be positive", biddingerrors.ErrInvalidBid)
	}
	if !auction.EndTime.After(auction.StartTime) {
		return model.Auction{}, fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidBid)
	}

	if auction.ID == "" {
		auction.ID = utils.GenerateID()
	}
	auction.StartTime = auction.StartTime.UTC()
	auction.EndTime = auction.EndTime.UTC()
	auction.CurrentHighestBid = decimal.NullDecimal{}
	auction.CurrentHighestBidderID = ""
	auction.CurrentHighestBidderName = ""
	auction.TotalBids = 0

	if err := s.repo.CreateAuction(auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction %s: %w", auction.ID, err)
	}

	return s.withStatus(auction), nil
}

// ListAuctions returns auctions, filtered by status when one is given
func (s *BiddingService) ListAuctions(status model.AuctionStatus) ([]model.Auction, error) {
	switch status {
	case "", model.StatusUpcoming, model.StatusOngoing, model.StatusCompleted:
	default:
		return nil, fmt.Errorf("service: %w - unknown status %q", biddingerrors.ErrInvalidBid, status)
	}

	auctions, err := s.repo.ListAuctions()
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}

	out := make([]model.Auction, 0, len(auctions))
	for _, a := range auctions {
		a = s.withStatus(a)
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetAuction returns an auction with its status as of now
func (s *BiddingService) GetAuction(auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return s.withStatus(auction), nil
}

// PlaceBid validates and records a bid, then pushes it to subscribers
func (s *BiddingService) PlaceBid(auctionID string, user model.User, amount decimal.Decimal) (model.Bid, error) {
	if err := s.validateBid(auctionID, user, amount); err != nil {
		return model.Bid{}, err
	}

	bid := model.Bid{
		ID:        utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    user.UserID,
		UserName:  user.Username,
		Amount:    amount,
	}

	bid, auction, err := s.repo.RecordBid(bid)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, user.UserID, err)
	}

	if s.publisher != nil {
		s.publisher.Publish(auctionID, model.NewBidMessage(bid, auction))
	}

	return bid, nil
}

// validateBid checks input validity and business rules for bidding.
// The amount is checked again atomically when the bid is recorded.
func (s *BiddingService) validateBid(auctionID string, user model.User, amount decimal.Decimal) error {
	if auctionID == "" || user.UserID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}

	auction, err := s.GetAuction(auctionID)
	if err != nil {
		return err
	}
	if auction.Status != model.StatusOngoing {
		return fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotActive, auctionID, auction.Status)
	}
	if minimum := auction.MinimumBid(); !amount.GreaterThan(minimum) {
		return fmt.Errorf("service: %w - current highest bid is %s", biddingerrors.ErrBidTooLow, minimum)
	}

	return nil
}

// GetBids returns all bids for an auction, newest first
func (s *BiddingService) GetBids(auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByAuction(auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the highest bid for an auction
func (s *BiddingService) GetWinningBid(auctionID string) (model.Bid, error) {
	if auctionID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}

	return winningBid, nil
}

func (s *BiddingService) withStatus(a model.Auction) model.Auction {
	a.Status = model.StatusAt(s.clock.Now(), a.StartTime, a.EndTime)
	return a
}
