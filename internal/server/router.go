package server

import (
	handler "auction-sync/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService handler.BiddingServiceInterface, hub handler.Subscriber) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService, hub)

	auctions := router.Group("/auctions")
	{
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.POST("", biddingHandler.CreateAuctionHandler)
		auctions.GET("/:id", biddingHandler.GetAuctionHandler)
		auctions.GET("/:id/bids", biddingHandler.GetBidsHandler)
		auctions.GET("/:id/winning", biddingHandler.GetWinningBidHandler)
		auctions.POST("/:id/bid", biddingHandler.PlaceBidHandler)
	}

	router.GET("/ws/:id", biddingHandler.SubscribeHandler)

	return router
}
