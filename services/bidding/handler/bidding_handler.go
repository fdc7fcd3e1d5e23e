package handler

import (
	"errors"
	"net/http"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// defaultPageLimit caps a bid listing when the client does not ask for a size
const defaultPageLimit = 100

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	receipt, err := h.service.SubmitBid(c.Request.Context(), req.ToModel())
	if err != nil {
		helpers.RespondError(c, "RecordBidHandler", err, map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    req.UserID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewPlaceBidResponse(receipt), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     receipt.BidID,
		"auction_id": receipt.AuctionID,
		"user_id":    receipt.UserID,
		"sequence":   receipt.Sequence,
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids?after=&limit=
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	after, err := helpers.QueryInt64(c, "after", 0)
	if err != nil {
		helpers.HandleBindError(c, "GetBidsByAuctionHandler", err)
		return
	}
	limit, err := helpers.QueryInt64(c, "limit", defaultPageLimit)
	if err != nil {
		helpers.HandleBindError(c, "GetBidsByAuctionHandler", err)
		return
	}

	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID, after, int(limit))
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"after":      after,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		// For auction, winning bid not found -> 404
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"user_id":    bid.UserID,
		"amount":     bid.Amount.String(),
	})
}

// GetAuctionsByUserHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByUser(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		helpers.RespondError(c, "GetAuctionsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(auctions), "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(auctions),
	})
}
