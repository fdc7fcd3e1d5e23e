package handler

import (
	"auction-engine/internal/auctionstate"
	model "auction-engine/internal/models"
	"context"
	"iter"
)

//go:generate mockgen -source=interfaces.go -destination=mock_interfaces.go -package=handler

type BiddingServiceInterface interface {
	SubmitBid(ctx context.Context, req model.BidRequest) (model.BidReceipt, error)
	GetBidsForAuction(ctx context.Context, auctionID string, afterSequence int64, limit int) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)
}

type AuctionServiceInterface interface {
	Create(ctx context.Context, p auctionstate.CreateAuctionParams) (model.Auction, error)
	Submit(ctx context.Context, auctionID string) (model.Auction, error)
	Approve(ctx context.Context, auctionID string) (model.Auction, error)
	Reject(ctx context.Context, auctionID string) (model.Auction, error)
	Current(ctx context.Context, auctionID string) (model.Auction, error)
}

type ProductReader interface {
	GetProduct(ctx context.Context, productID string) (model.Product, error)
}

type SettlementServiceInterface interface {
	Settle(ctx context.Context, auctionID string) (model.AuctionResult, error)
	Cancel(ctx context.Context, auctionID, reason string) (model.AuctionResult, error)
	Result(ctx context.Context, auctionID string) (model.AuctionResult, error)
}

type RegistrationServiceInterface interface {
	Register(ctx context.Context, auctionID, token string) (model.Registration, error)
	IsEligible(ctx context.Context, auctionID, userID string) (bool, error)
}

// EventSource streams live events of one auction until ctx is done
type EventSource interface {
	Subscribe(ctx context.Context, auctionID string) <-chan model.Event
}

// BidHistory replays committed bids in sequence order
type BidHistory interface {
	HistoryAfter(ctx context.Context, auctionID string, afterSequence int64, pageSize int) iter.Seq2[model.Bid, error]
}
