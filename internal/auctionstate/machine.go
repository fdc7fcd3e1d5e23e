package auctionstate

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"
)

// maxAttempts bounds the re-read loop when a conditional status write loses a race
const maxAttempts = 5

// transitions lists the moves allowed outside of settlement. Terminal
// statuses other than cancelled are only reachable through FinalizeAuction.
var transitions = map[model.AuctionStatus][]model.AuctionStatus{
	model.StatusDraft:           {model.StatusPendingApproval},
	model.StatusPendingApproval: {model.StatusScheduled, model.StatusDraft},
	model.StatusScheduled:       {model.StatusActive, model.StatusCancelled},
	model.StatusActive:          {model.StatusEndedSold, model.StatusEndedUnsold, model.StatusCancelled},
}

// CanTransition reports whether the lifecycle allows moving from one status to another
func CanTransition(from, to model.AuctionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CreateAuctionParams are the seller-supplied fields of a new auction
type CreateAuctionParams struct {
	AuctionID    string
	ProductID    string
	StartTime    time.Time
	EndTime      time.Time
	StartingBid  decimal.Decimal
	BidIncrement decimal.Decimal
	ReservePrice decimal.NullDecimal
}

// Machine owns auction lifecycle transitions
type Machine struct {
	repo             repository.AuctionDB
	clock            clock.Clock
	registrationLead time.Duration
}

// NewMachine creates a state machine. registrationLead is how long before
// start registration closes.
func NewMachine(repo repository.AuctionDB, clk clock.Clock, registrationLead time.Duration) *Machine {
	if registrationLead < 0 {
		registrationLead = 0
	}
	return &Machine{repo: repo, clock: clk, registrationLead: registrationLead}
}

// Create validates and stores a new auction in draft status
func (m *Machine) Create(ctx context.Context, p CreateAuctionParams) (model.Auction, error) {
	if err := validateCreate(p); err != nil {
		return model.Auction{}, err
	}

	now := utils.Timestamp(m.clock.Now())
	id := p.AuctionID
	if id == "" {
		id = utils.GenerateID()
	}
	start := utils.Timestamp(p.StartTime)
	auction := model.Auction{
		AuctionID:            id,
		ProductID:            p.ProductID,
		StartTime:            start,
		EndTime:              utils.Timestamp(p.EndTime),
		RegistrationDeadline: start.Add(-m.registrationLead),
		StartingBid:          p.StartingBid,
		BidIncrement:         p.BidIncrement,
		ReservePrice:         p.ReservePrice,
		Status:               model.StatusDraft,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := m.repo.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction %s: %w", id, err)
	}
	utils.Info("Auction created", map[string]any{"auction_id": id, "product_id": p.ProductID})
	return auction, nil
}

func validateCreate(p CreateAuctionParams) error {
	switch {
	case p.ProductID == "":
		return fmt.Errorf("service: %w - missing product ID", biddingerrors.ErrInvalidAuction)
	case p.StartTime.IsZero() || p.EndTime.IsZero():
		return fmt.Errorf("service: %w - start and end time are required", biddingerrors.ErrInvalidAuction)
	case !p.EndTime.After(p.StartTime):
		return fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	case p.StartingBid.IsNegative():
		return fmt.Errorf("service: %w - negative starting bid", biddingerrors.ErrInvalidAuction)
	case !p.BidIncrement.IsPositive():
		return fmt.Errorf("service: %w - bid increment must be positive", biddingerrors.ErrInvalidAuction)
	case p.ReservePrice.Valid && p.ReservePrice.Decimal.IsNegative():
		return fmt.Errorf("service: %w - negative reserve price", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// Transition moves an auction to a non-terminal status
func (m *Machine) Transition(ctx context.Context, auctionID string, to model.AuctionStatus) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if to.IsTerminal() {
		return model.Auction{}, fmt.Errorf("service: %w - %s is reached through settlement", biddingerrors.ErrInvalidTransition, to)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		current, err := m.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
		}
		if current.Status == to {
			return current, nil
		}
		if !CanTransition(current.Status, to) {
			return model.Auction{}, fmt.Errorf("service: %w - %s to %s", biddingerrors.ErrInvalidTransition, current.Status, to)
		}

		updated, err := m.repo.UpdateStatus(ctx, auctionID, current.Version, to, utils.Timestamp(m.clock.Now()))
		if errors.Is(err, biddingerrors.ErrStaleRead) {
			continue
		}
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to move auction %s to %s: %w", auctionID, to, err)
		}
		utils.Info("Auction status changed", map[string]any{
			"auction_id": auctionID,
			"from":       string(current.Status),
			"to":         string(to),
			"version":    updated.Version,
		})
		return updated, nil
	}
	return model.Auction{}, fmt.Errorf("service: failed to move auction %s to %s: %w", auctionID, to, biddingerrors.ErrStaleRead)
}

// Submit sends a draft for approval
func (m *Machine) Submit(ctx context.Context, auctionID string) (model.Auction, error) {
	return m.Transition(ctx, auctionID, model.StatusPendingApproval)
}

// Approve schedules an auction awaiting approval
func (m *Machine) Approve(ctx context.Context, auctionID string) (model.Auction, error) {
	return m.Transition(ctx, auctionID, model.StatusScheduled)
}

// Reject returns an auction awaiting approval to draft
func (m *Machine) Reject(ctx context.Context, auctionID string) (model.Auction, error) {
	return m.Transition(ctx, auctionID, model.StatusDraft)
}

// Current returns the latest state of an auction, activating a scheduled
// auction whose start time has passed. Concurrent callers converge on the
// same active auction.
func (m *Machine) Current(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	var current model.Auction
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var err error
		current, err = m.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
		}

		now := utils.Timestamp(m.clock.Now())
		if current.Status != model.StatusScheduled || now.Before(current.StartTime) {
			return current, nil
		}

		activated, err := m.repo.UpdateStatus(ctx, auctionID, current.Version, model.StatusActive, now)
		switch {
		case err == nil:
			utils.Info("Auction activated", map[string]any{"auction_id": auctionID, "start_time": current.StartTime})
			return activated, nil
		case errors.Is(err, biddingerrors.ErrStaleRead), errors.Is(err, biddingerrors.ErrInvalidTransition):
			// someone else activated or cancelled it first
			continue
		default:
			return model.Auction{}, fmt.Errorf("service: failed to activate auction %s: %w", auctionID, err)
		}
	}
	return current, nil
}
