package main

import (
	bidding "auction-sync/internal/biddingService"
	"auction-sync/internal/clock"
	"auction-sync/internal/config"
	model "auction-sync/internal/models"
	"auction-sync/internal/pushhub"
	"auction-sync/internal/repository"
	"auction-sync/internal/server"
	"auction-sync/utils"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.SetLevel(cfg.Log.Level)

	clk := clock.Real()
	repo := repository.NewMemoryRepo(repository.WithClock(clk))
	hub := pushhub.New(pushhub.DefaultConfig())

	prepopulateAuctions(repo, clk.Now())

	biddingSvc := bidding.NewBiddingService(repo, clk, hub)

	router := server.SetupRouter(biddingSvc, hub)

	addr := listenAddr(cfg.Server.Addr)
	utils.Info("starting auction server", map[string]any{"addr": addr})
	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

// prepopulateAuctions adds one auction per status to the in-memory repo
func prepopulateAuctions(repo *repository.MemoryRepo, now time.Time) {
	auctions := []model.Auction{
		{
			ID: "auction1", ItemID: "item1", Title: "Vintage camera", Description: "Rangefinder, working shutter",
			StartingPrice: decimal.NewFromInt(100), StartTime: now.Add(-time.Hour), EndTime: now.Add(2 * time.Hour),
		},
		{
			ID: "auction2", ItemID: "item2", Title: "Oak writing desk", Description: "Six drawers",
			StartingPrice: decimal.NewFromInt(200), StartTime: now.Add(30 * time.Minute), EndTime: now.Add(26 * time.Hour),
		},
		{
			ID: "auction3", ItemID: "item3", Title: "Signed poster", Description: "Framed",
			StartingPrice: decimal.NewFromInt(150), StartTime: now.Add(-48 * time.Hour), EndTime: now.Add(-24 * time.Hour),
		},
	}

	for _, a := range auctions {
		if err := repo.CreateAuction(a); err != nil {
			utils.Warn("failed to seed auction", map[string]any{"auction_id": a.ID, "error": err.Error()})
		}
	}
}

// listenAddr prefers the PORT env variable over the configured address
func listenAddr(configured string) string {
	if p := os.Getenv("PORT"); p != "" {
		return fmt.Sprintf(":%s", p)
	}
	return configured
}
