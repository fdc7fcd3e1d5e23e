package helpers

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"time"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs. Money travels as decimal strings.
type PlaceBidRequest struct {
	AuctionID        string          `json:"auction_id" binding:"required"`
	UserID           string          `json:"user_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	ClientTimestamp  *time.Time      `json:"client_timestamp,omitempty"`
	ExpectedSequence *int64          `json:"expected_sequence,omitempty"`
}

// ToModel converts the request into a service submission
func (r PlaceBidRequest) ToModel() model.BidRequest {
	req := model.BidRequest{
		AuctionID:        r.AuctionID,
		UserID:           r.UserID,
		Amount:           r.Amount,
		ExpectedSequence: r.ExpectedSequence,
	}
	if r.ClientTimestamp != nil {
		req.ClientTimestamp = *r.ClientTimestamp
	}
	return req
}

type PlaceBidResponse struct {
	BidID      string          `json:"bid_id"`
	AuctionID  string          `json:"auction_id"`
	UserID     string          `json:"user_id"`
	Sequence   int64           `json:"sequence"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	EndTime    string          `json:"end_time"`
	Extended   bool            `json:"extended"`
	AcceptedAt string          `json:"accepted_at"`
}

func NewPlaceBidResponse(r model.BidReceipt) PlaceBidResponse {
	return PlaceBidResponse{
		BidID:      r.BidID,
		AuctionID:  r.AuctionID,
		UserID:     r.UserID,
		Sequence:   r.Sequence,
		CurrentBid: r.CurrentBid,
		EndTime:    formatTime(r.EndTime),
		Extended:   r.Extended,
		AcceptedAt: formatTime(r.AcceptedAt),
	}
}

type BidResponse struct {
	BidID      string          `json:"bid_id"`
	AuctionID  string          `json:"auction_id"`
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Sequence   int64           `json:"sequence"`
	AcceptedAt string          `json:"accepted_at"`
}

func NewBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:      b.BidID,
		AuctionID:  b.AuctionID,
		UserID:     b.UserID,
		Amount:     b.Amount,
		Sequence:   b.Sequence,
		AcceptedAt: formatTime(b.AcceptedAt),
	}
}

func NewBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

// RejectionData tells the client what it would take to succeed
type RejectionData struct {
	Reason     string              `json:"reason"`
	CurrentBid decimal.NullDecimal `json:"current_bid"`
	MinimumBid decimal.Decimal     `json:"minimum_bid"`
	Sequence   int64               `json:"sequence"`
}

func NewRejectionData(r *biddingerrors.RejectionError) RejectionData {
	return RejectionData{
		Reason:     biddingerrors.ReasonCode(r),
		CurrentBid: r.CurrentBid,
		MinimumBid: r.MinimumBid,
		Sequence:   r.Sequence,
	}
}

type CreateAuctionRequest struct {
	AuctionID    string              `json:"auction_id"`
	ProductID    string              `json:"product_id" binding:"required"`
	StartTime    time.Time           `json:"start_time" binding:"required"`
	EndTime      time.Time           `json:"end_time" binding:"required"`
	StartingBid  decimal.Decimal     `json:"starting_bid"`
	BidIncrement decimal.Decimal     `json:"bid_increment"`
	ReservePrice decimal.NullDecimal `json:"reserve_price"`
}

type CancelAuctionRequest struct {
	Reason string `json:"reason"`
}

type ProductResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	BasePrice decimal.Decimal `json:"base_price"`
}

type AuctionResponse struct {
	AuctionID            string              `json:"auction_id"`
	ProductID            string              `json:"product_id"`
	Status               model.AuctionStatus `json:"status"`
	StartTime            string              `json:"start_time"`
	EndTime              string              `json:"end_time"`
	RegistrationDeadline string              `json:"registration_deadline"`
	StartingBid          decimal.Decimal     `json:"starting_bid"`
	BidIncrement         decimal.Decimal     `json:"bid_increment"`
	CurrentBid           decimal.NullDecimal `json:"current_bid"`
	MinimumBid           decimal.Decimal     `json:"minimum_bid"`
	HasReserve           bool                `json:"has_reserve"`
	LeaderID             string              `json:"leader_id,omitempty"`
	BidCount             int64               `json:"bid_count"`
	Product              *ProductResponse    `json:"product,omitempty"`
}

// NewAuctionResponse hides the reserve amount; bidders only learn whether one exists
func NewAuctionResponse(a model.Auction, product *model.Product) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:            a.AuctionID,
		ProductID:            a.ProductID,
		Status:               a.Status,
		StartTime:            formatTime(a.StartTime),
		EndTime:              formatTime(a.EndTime),
		RegistrationDeadline: formatTime(a.RegistrationDeadline),
		StartingBid:          a.StartingBid,
		BidIncrement:         a.BidIncrement,
		CurrentBid:           a.CurrentBid,
		MinimumBid:           a.MinimumNextBid(),
		HasReserve:           a.ReservePrice.Valid,
		LeaderID:             a.LeaderID,
		BidCount:             a.BidCount,
	}
	if product != nil {
		resp.Product = &ProductResponse{
			ProductID: product.ProductID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			BasePrice: product.BasePrice,
		}
	}
	return resp
}

func NewAuctionResponses(auctions []model.Auction) []AuctionResponse {
	out := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, NewAuctionResponse(a, nil))
	}
	return out
}

type ResultResponse struct {
	AuctionID       string              `json:"auction_id"`
	Outcome         model.Outcome       `json:"outcome"`
	WinnerUserID    string              `json:"winner_user_id,omitempty"`
	WinningBid      decimal.NullDecimal `json:"winning_bid"`
	WinningSequence int64               `json:"winning_sequence,omitempty"`
	SettledAt       string              `json:"settled_at"`
}

func NewResultResponse(r model.AuctionResult) ResultResponse {
	return ResultResponse{
		AuctionID:       r.AuctionID,
		Outcome:         r.Outcome,
		WinnerUserID:    r.WinnerUserID,
		WinningBid:      r.WinningBid,
		WinningSequence: r.WinningSequence,
		SettledAt:       formatTime(r.SettledAt),
	}
}

type RegisterRequest struct {
	Token string `json:"token" binding:"required"`
}

type RegistrationResponse struct {
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id"`
	FeePaid   bool   `json:"fee_paid"`
	PaidAt    string `json:"paid_at"`
}

func NewRegistrationResponse(r model.Registration) RegistrationResponse {
	return RegistrationResponse{
		AuctionID: r.AuctionID,
		UserID:    r.UserID,
		FeePaid:   r.FeePaid,
		PaidAt:    formatTime(r.PaidAt),
	}
}

type EligibilityResponse struct {
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id"`
	Eligible  bool   `json:"eligible"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
