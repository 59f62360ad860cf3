package integrationtests

import (
	bidding "auction-sync/internal/biddingService"
	"auction-sync/internal/clock"
	model "auction-sync/internal/models"
	"auction-sync/internal/pushhub"
	"auction-sync/internal/repository"
	"auction-sync/internal/server"
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// testUser is the default bidder identity attached by ExecuteRequestAndParse
var testUser = model.User{UserID: "user1", Username: "Ada"}

// Env is a reference server wired the way main wires it
type Env struct {
	Router *gin.Engine
	Hub    *pushhub.Hub
	Repo   *repository.MemoryRepo
}

// SetupTestEnv initializes the router with an in-memory repository seeded with auctions.
func SetupTestEnv(t *testing.T, c clock.Source, auctions ...model.Auction) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo(repository.WithClock(c))
	for _, a := range auctions {
		if err := repo.CreateAuction(a); err != nil {
			t.Fatalf("failed to seed auction %s: %v", a.ID, err)
		}
	}

	hub := pushhub.New(pushhub.DefaultConfig())
	service := bidding.NewBiddingService(repo, c, hub)
	return &Env{Router: server.SetupRouter(service, hub), Hub: hub, Repo: repo}
}

// liveAuction is open for bidding around now
func liveAuction(id string, startingPrice int64, now time.Time) model.Auction {
	return model.Auction{
		ID:            id,
		Title:         "title " + id,
		Description:   "description " + id,
		StartingPrice: decimal.NewFromInt(startingPrice),
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
	}
}

// ExecuteRequestAndParse executes an HTTP request as user and parses the envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any, user ...model.User) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	who := testUser
	if len(user) > 0 {
		who = user[0]
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", who.UserID)
	req.Header.Set("X-User-Name", who.Username)
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}
