package handler

import (
	"context"
	"errors"
	"net/http"

	"auction-engine/internal/auctionstate"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// AuctionHandler serves the seller and operator side of the lifecycle
type AuctionHandler struct {
	auctions   AuctionServiceInterface
	products   ProductReader
	settlement SettlementServiceInterface
}

func NewAuctionHandler(auctions AuctionServiceInterface, products ProductReader, settlement SettlementServiceInterface) *AuctionHandler {
	return &AuctionHandler{auctions: auctions, products: products, settlement: settlement}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.products.GetProduct(ctx, req.ProductID); err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"product_id": req.ProductID})
		return
	}

	auction, err := h.auctions.Create(ctx, auctionstate.CreateAuctionParams{
		AuctionID:    req.AuctionID,
		ProductID:    req.ProductID,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		StartingBid:  req.StartingBid,
		BidIncrement: req.BidIncrement,
		ReservePrice: req.ReservePrice,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"product_id": req.ProductID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewAuctionResponse(auction, nil), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"product_id": auction.ProductID,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	ctx := c.Request.Context()

	auction, err := h.auctions.Current(ctx, auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	var product *model.Product
	p, err := h.products.GetProduct(ctx, auction.ProductID)
	switch {
	case err == nil:
		product = &p
	case errors.Is(err, biddingerrors.ErrProductNotFound):
		utils.Warn("GetAuctionHandler: product missing for auction", map[string]any{"auction_id": auctionID, "product_id": auction.ProductID})
	default:
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(auction, product), "auction retrieved successfully")
}

// SubmitAuctionHandler handles POST /auctions/:auction_id/submit
func (h *AuctionHandler) SubmitAuctionHandler(c *gin.Context) {
	h.transition(c, "SubmitAuctionHandler", "auction submitted for approval", h.auctions.Submit)
}

// ApproveAuctionHandler handles POST /auctions/:auction_id/approve
func (h *AuctionHandler) ApproveAuctionHandler(c *gin.Context) {
	h.transition(c, "ApproveAuctionHandler", "auction approved", h.auctions.Approve)
}

// RejectAuctionHandler handles POST /auctions/:auction_id/reject
func (h *AuctionHandler) RejectAuctionHandler(c *gin.Context) {
	h.transition(c, "RejectAuctionHandler", "auction returned to draft", h.auctions.Reject)
}

func (h *AuctionHandler) transition(c *gin.Context, handlerName, message string, move func(context.Context, string) (model.Auction, error)) {
	auctionID := c.Param("auction_id")
	auction, err := move(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(auction, nil), message)
	helpers.LogSuccess(handlerName, message, map[string]any{
		"auction_id": auctionID,
		"status":     string(auction.Status),
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.CancelAuctionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.HandleBindError(c, "CancelAuctionHandler", err)
			return
		}
	}

	result, err := h.settlement.Cancel(c.Request.Context(), auctionID, req.Reason)
	if err != nil {
		helpers.RespondError(c, "CancelAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewResultResponse(result), "auction cancelled")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled", map[string]any{"auction_id": auctionID, "reason": req.Reason})
}

// SettleAuctionHandler handles POST /auctions/:auction_id/settle
func (h *AuctionHandler) SettleAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	result, err := h.settlement.Settle(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "SettleAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewResultResponse(result), "auction settled")
	helpers.LogSuccess("SettleAuctionHandler", "auction settled", map[string]any{
		"auction_id": auctionID,
		"outcome":    string(result.Outcome),
	})
}

// GetResultHandler handles GET /auctions/:auction_id/result
func (h *AuctionHandler) GetResultHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	result, err := h.settlement.Result(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetResultHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewResultResponse(result), "result retrieved successfully")
}
