package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusDraft           AuctionStatus = "draft"
	StatusPendingApproval AuctionStatus = "pending_approval"
	StatusScheduled       AuctionStatus = "scheduled"
	StatusActive          AuctionStatus = "active"
	StatusEndedSold       AuctionStatus = "ended_sold"
	StatusEndedUnsold     AuctionStatus = "ended_unsold"
	StatusCancelled       AuctionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible from s
func (s AuctionStatus) IsTerminal() bool {
	switch s {
	case StatusEndedSold, StatusEndedUnsold, StatusCancelled:
		return true
	}
	return false
}

// Outcome is the final verdict recorded by settlement
type Outcome string

const (
	OutcomeSold      Outcome = "sold"
	OutcomeUnsold    Outcome = "unsold"
	OutcomeCancelled Outcome = "cancelled"
)

// Status returns the terminal auction status matching the outcome
func (o Outcome) Status() AuctionStatus {
	switch o {
	case OutcomeSold:
		return StatusEndedSold
	case OutcomeCancelled:
		return StatusCancelled
	default:
		return StatusEndedUnsold
	}
}

// Product is read-only catalog data referenced by an auction
type Product struct {
	ProductID string          `json:"product_id" yaml:"product_id"`
	Name      string          `json:"name" yaml:"name"`
	ImageURL  string          `json:"image_url" yaml:"image_url"`
	BasePrice decimal.Decimal `json:"base_price" yaml:"base_price"`
}

// Auction represents an auction of a single product
type Auction struct {
	AuctionID            string              `json:"auction_id"`
	ProductID            string              `json:"product_id"`
	StartTime            time.Time           `json:"start_time"`
	EndTime              time.Time           `json:"end_time"`
	RegistrationDeadline time.Time           `json:"registration_deadline"`
	StartingBid          decimal.Decimal     `json:"starting_bid"`
	BidIncrement         decimal.Decimal     `json:"bid_increment"`
	CurrentBid           decimal.NullDecimal `json:"current_bid"`
	ReservePrice         decimal.NullDecimal `json:"reserve_price"`
	LeaderID             string              `json:"leader_id,omitempty"`
	BidCount             int64               `json:"bid_count"`
	Status               AuctionStatus       `json:"status"`
	Version              int64               `json:"version"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// MinimumNextBid is the lowest amount the next bid may carry
func (a Auction) MinimumNextBid() decimal.Decimal {
	base := a.StartingBid
	if a.CurrentBid.Valid {
		base = a.CurrentBid.Decimal
	}
	return base.Add(a.BidIncrement)
}

// AcceptsBidsAt reports whether a bid may be admitted at the given instant
func (a Auction) AcceptsBidsAt(now time.Time) bool {
	return a.Status == StatusActive && now.Before(a.EndTime)
}

// Registration records that a user paid the fee to bid on an auction
type Registration struct {
	AuctionID string    `json:"auction_id"`
	UserID    string    `json:"user_id"`
	FeePaid   bool      `json:"fee_paid"`
	PaidAt    time.Time `json:"paid_at"`
}

// Bid represents an accepted bid in the auction ledger
type Bid struct {
	BidID           string          `json:"bid_id"`
	AuctionID       string          `json:"auction_id"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Sequence        int64           `json:"sequence"`
	AcceptedAt      time.Time       `json:"accepted_at"`
	ClientTimestamp time.Time       `json:"client_timestamp,omitempty"`
}

// AcceptBidParams is the conditional write that admits a bid
type AcceptBidParams struct {
	Bid             Bid
	ExpectedVersion int64
	NewEndTime      time.Time
}

// AcceptedBid is the outcome of a committed AcceptBid
type AcceptedBid struct {
	Bid            Bid
	PreviousLeader string
	Auction        Auction
	Extended       bool
}

// AuctionResult is the final, settled verdict of an auction
type AuctionResult struct {
	AuctionID       string              `json:"auction_id"`
	Outcome         Outcome             `json:"outcome"`
	WinnerUserID    string              `json:"winner_user_id,omitempty"`
	WinningBid      decimal.NullDecimal `json:"winning_bid"`
	WinningSequence int64               `json:"winning_sequence,omitempty"`
	SettledAt       time.Time           `json:"settled_at"`
}

// BidRequest is an incoming bid submission
type BidRequest struct {
	AuctionID        string
	UserID           string
	Amount           decimal.Decimal
	ClientTimestamp  time.Time
	ExpectedSequence *int64
}

// BidReceipt describes an accepted submission
type BidReceipt struct {
	BidID      string          `json:"bid_id"`
	AuctionID  string          `json:"auction_id"`
	UserID     string          `json:"user_id"`
	Sequence   int64           `json:"sequence"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	EndTime    time.Time       `json:"end_time"`
	Extended   bool            `json:"extended"`
	AcceptedAt time.Time       `json:"accepted_at"`
}

// EventType names a notification published to auction subscribers
type EventType string

const (
	EventNewBid         EventType = "new_bid"
	EventOutbid         EventType = "outbid"
	EventAuctionSettled EventType = "auction_settled"
)

// Event is a notification derived from a ledger mutation or a settlement
type Event struct {
	Type           EventType           `json:"type"`
	AuctionID      string              `json:"auction_id"`
	Sequence       int64               `json:"sequence"`
	Amount         decimal.NullDecimal `json:"amount,omitempty"`
	Bidder         string              `json:"bidder,omitempty"`
	PreviousLeader string              `json:"previous_leader,omitempty"`
	Outcome        Outcome             `json:"outcome,omitempty"`
	Winner         string              `json:"winner,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}
