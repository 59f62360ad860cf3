// Package restclient talks to the auction REST API: snapshots and bid
// history for seeding, and bid placement for the submission flow.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/services/bidding/helpers"
	"auction-sync/utils"

	"github.com/shopspring/decimal"
)

const DefaultTimeout = 10 * time.Second

// Client is a REST client bound to one viewer identity
type Client struct {
	baseURL  string
	http     *http.Client
	identity models.User
}

// New creates a client. A non-positive timeout falls back to ten seconds.
func New(baseURL string, timeout time.Duration, identity models.User) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		identity: identity,
	}
}

// ListAuctions returns auctions, optionally filtered by status
func (c *Client) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	path := "/auctions"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var auctions []models.Auction
	if err := c.do(ctx, http.MethodGet, path, nil, &auctions); err != nil {
		return nil, err
	}
	return auctions, nil
}

// GetAuction fetches one auction snapshot
func (c *Client) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	var auction models.Auction
	err := c.do(ctx, http.MethodGet, "/auctions/"+url.PathEscape(auctionID), nil, &auction)
	return auction, err
}

// GetBids fetches the bid history of an auction, newest first
func (c *Client) GetBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	var bids []models.Bid
	if err := c.do(ctx, http.MethodGet, "/auctions/"+url.PathEscape(auctionID)+"/bids", nil, &bids); err != nil {
		return nil, err
	}
	return bids, nil
}

// Snapshot fetches the auction and its bid history
func (c *Client) Snapshot(ctx context.Context, auctionID string) (models.Auction, []models.Bid, error) {
	auction, err := c.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, nil, err
	}
	bids, err := c.GetBids(ctx, auctionID)
	if err != nil {
		return models.Auction{}, nil, err
	}
	return auction, bids, nil
}

// PlaceBid submits a bid as the client's identity
func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.Bid, error) {
	var bid models.Bid
	err := c.do(ctx, http.MethodPost, "/auctions/"+url.PathEscape(auctionID)+"/bid",
		helpers.PlaceBidRequest{Amount: amount}, &bid)
	return bid, err
}

// CreateAuction registers a new auction
func (c *Client) CreateAuction(ctx context.Context, req helpers.CreateAuctionRequest) (models.Auction, error) {
	var auction models.Auction
	err := c.do(ctx, http.MethodPost, "/auctions", req, &auction)
	return auction, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("restclient: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("restclient: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity.UserID != "" {
		req.Header.Set(helpers.HeaderUserID, c.identity.UserID)
		req.Header.Set(helpers.HeaderUserName, c.identity.Username)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("restclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env utils.Envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := env.Error
		if reason == "" {
			reason = env.Message
		}
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		utils.Debug("request rejected by source", map[string]any{"method": method, "path": path, "status": resp.StatusCode})
		return &biddingerrors.SourceRejection{StatusCode: resp.StatusCode, Reason: reason}
	}
	if decodeErr != nil {
		return fmt.Errorf("restclient: decode %s %s: %w", method, path, decodeErr)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("restclient: decode data of %s %s: %w", method, path, err)
	}
	return nil
}
