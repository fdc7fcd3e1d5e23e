package server

import (
	"auction-engine/internal/metrics"
	handler "auction-engine/services/bidding/handler"
	"net/http"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gin-gonic/gin"
)

// Dependencies are the services the HTTP API is built on
type Dependencies struct {
	Bidding      handler.BiddingServiceInterface
	Auctions     handler.AuctionServiceInterface
	Products     handler.ProductReader
	Settlement   handler.SettlementServiceInterface
	Registration handler.RegistrationServiceInterface
	History      handler.BidHistory
	Events       handler.EventSource

	Metrics *metrics.Metrics
	Clock   clock.Clock

	// BidRatePerSecond of zero disables bid rate limiting
	BidRatePerSecond float64
	BidRateBurst     int

	KeepAlive time.Duration
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Clock == nil {
		deps.Clock = clock.NewClock()
	}

	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery()) // recover from panics
	router.Use(RequestIDMiddleware)
	router.Use(RequestLoggerMiddleware) // custom request logging
	if deps.Metrics != nil {
		router.Use(MetricsMiddleware(deps.Metrics))
	}

	biddingHandler := handler.NewBiddingHandler(deps.Bidding)
	auctionHandler := handler.NewAuctionHandler(deps.Auctions, deps.Products, deps.Settlement)
	registrationHandler := handler.NewRegistrationHandler(deps.Registration)
	eventsHandler := handler.NewEventsHandler(deps.Auctions, deps.Settlement, deps.History, deps.Events, deps.Clock, deps.KeepAlive)

	bidLimits := []gin.HandlerFunc{}
	if deps.BidRatePerSecond > 0 {
		bidLimits = append(bidLimits, NewRateLimiter(deps.BidRatePerSecond, deps.BidRateBurst, deps.Clock).Middleware())
	}

	bids := router.Group("/bids")
	{
		bids.POST("", append(bidLimits, biddingHandler.RecordBidHandler)...)
	}

	auctions := router.Group("/auctions")
	{
		auctions.POST("", auctionHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/submit", auctionHandler.SubmitAuctionHandler)
		auctions.POST("/:auction_id/approve", auctionHandler.ApproveAuctionHandler)
		auctions.POST("/:auction_id/reject", auctionHandler.RejectAuctionHandler)
		auctions.POST("/:auction_id/cancel", auctionHandler.CancelAuctionHandler)
		auctions.POST("/:auction_id/settle", auctionHandler.SettleAuctionHandler)
		auctions.GET("/:auction_id/result", auctionHandler.GetResultHandler)

		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.GET("/:auction_id/events", eventsHandler.StreamEventsHandler)

		auctions.POST("/:auction_id/registrations", registrationHandler.RegisterHandler)
		auctions.GET("/:auction_id/registrations/:user_id", registrationHandler.EligibilityHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
