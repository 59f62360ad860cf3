package handler

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

import (
	"errors"
	"net/http"
	"strings"

	"auction-sync/internal/biddingerrors"
	model "auction-sync/internal/models"
	"auction-sync/services/bidding/helpers"
	"auction-sync/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	CreateAuction(auction model.Auction) (model.Auction, error)
	ListAuctions(status model.AuctionStatus) ([]model.Auction, error)
	GetAuction(auctionID string) (model.Auction, error)
	GetBids(auctionID string) ([]model.Bid, error)
	PlaceBid(auctionID string, user model.User, amount decimal.Decimal) (model.Bid, error)
	GetWinningBid(auctionID string) (model.Bid, error)
}

// Subscriber attaches a websocket client to an auction's push channel
type Subscriber interface {
	Serve(w http.ResponseWriter, r *http.Request, auctionID string, user model.User) error
}

type BiddingHandler struct {
	service BiddingServiceInterface
	hub     Subscriber
}

func NewBiddingHandler(service BiddingServiceInterface, hub Subscriber) *BiddingHandler {
	return &BiddingHandler{service: service, hub: hub}
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	status := model.AuctionStatus(c.Query("status"))
	auctions, err := h.service.ListAuctions(status)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("ListAuctionsHandler: error listing auctions", map[string]any{"status": status, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"status": status,
		"count":  len(auctions),
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(model.Auction{
		ItemID:        req.ItemID,
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		StartingPrice: req.StartingPrice,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		helpers.RespondError(c, err)
		utils.Error("CreateAuctionHandler: failed to create auction", map[string]any{
			"handler": "CreateAuctionHandler",
			"title":   req.Title,
			"error":   err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.ID,
		"status":     auction.Status,
	})
}

// GetAuctionHandler handles GET /auctions/:id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	auction, err := h.service.GetAuction(auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// GetBidsHandler handles GET /auctions/:id/bids
func (h *BiddingHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("id")
	bids, err := h.service.GetBids(auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.RespondError(c, err)
		utils.Warn("GetBidsHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// PlaceBidHandler handles POST /auctions/:id/bid
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	auctionID := c.Param("id")
	user := helpers.UserFromHeaders(c)

	bid, err := h.service.PlaceBid(auctionID, user, req.Amount)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"handler":    "PlaceBidHandler",
			"auction_id": auctionID,
			"user_id":    user.UserID,
			"amount":     req.Amount.String(),
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, bid, "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     bid.ID,
		"auction_id": auctionID,
		"user_id":    user.UserID,
		"amount":     bid.Amount.String(),
	})
}

// GetWinningBidHandler handles GET /auctions/:id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("id")
	bid, err := h.service.GetWinningBid(auctionID)
	if err != nil {
		// For auction, winning bid not found -> 404
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.RespondError(c, err)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, bid, "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.ID,
		"auction_id": auctionID,
		"user_id":    bid.UserID,
		"amount":     bid.Amount.String(),
	})
}

// SubscribeHandler handles GET /ws/:id and hands the connection to the push hub
func (h *BiddingHandler) SubscribeHandler(c *gin.Context) {
	auctionID := c.Param("id")
	if _, err := h.service.GetAuction(auctionID); err != nil {
		helpers.RespondError(c, err)
		utils.Warn("SubscribeHandler: rejected subscription", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	user := model.User{
		UserID:   strings.TrimSpace(c.Query("user_id")),
		Username: strings.TrimSpace(c.Query("user_name")),
	}
	if user.UserID == "" {
		user.UserID = model.AnonymousUserID
	}

	// the upgrader has already answered the request when this fails
	if err := h.hub.Serve(c.Writer, c.Request, auctionID, user); err != nil {
		utils.Warn("SubscribeHandler: upgrade failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
}
