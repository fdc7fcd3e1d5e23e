package handler

import (
	"net/http"

	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

type RegistrationHandler struct {
	gate RegistrationServiceInterface
}

func NewRegistrationHandler(gate RegistrationServiceInterface) *RegistrationHandler {
	return &RegistrationHandler{gate: gate}
}

// RegisterHandler handles POST /auctions/:auction_id/registrations
func (h *RegistrationHandler) RegisterHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterHandler", err)
		return
	}

	reg, err := h.gate.Register(c.Request.Context(), auctionID, req.Token)
	if err != nil {
		helpers.RespondError(c, "RegisterHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewRegistrationResponse(reg), "registration recorded successfully")
	helpers.LogSuccess("RegisterHandler", "registration recorded successfully", map[string]any{
		"auction_id": reg.AuctionID,
		"user_id":    reg.UserID,
	})
}

// EligibilityHandler handles GET /auctions/:auction_id/registrations/:user_id
func (h *RegistrationHandler) EligibilityHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID := c.Param("user_id")

	eligible, err := h.gate.IsEligible(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.RespondError(c, "EligibilityHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.EligibilityResponse{
		AuctionID: auctionID,
		UserID:    userID,
		Eligible:  eligible,
	}, "eligibility retrieved successfully")
}
