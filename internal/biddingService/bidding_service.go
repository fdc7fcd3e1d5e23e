package bidding

import (
	"auction-engine/internal/auctionstate"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/ledger"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/registration"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"

	"code.cloudfoundry.org/clock"
)

// EligibilityChecker reports whether a user may bid on an auction
type EligibilityChecker interface {
	IsEligible(ctx context.Context, auctionID, userID string) (bool, error)
}

// AuctionReader returns the current state of an auction, activating it if its start has passed
type AuctionReader interface {
	Current(ctx context.Context, auctionID string) (models.Auction, error)
}

// BidNotifier is told about every committed bid
type BidNotifier interface {
	BidAccepted(accepted models.AcceptedBid)
}

// Config wires the collaborators of the bidding service. Zero values get
// working defaults built on the same repository.
type Config struct {
	Clock     clock.Clock
	Extension auctionstate.ExtensionPolicy
	Gate      EligibilityChecker
	Auctions  AuctionReader
	Notifier  BidNotifier
	Metrics   *metrics.Metrics
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo      repository.AuctionDB
	ledger    *ledger.Ledger
	clock     clock.Clock
	extension auctionstate.ExtensionPolicy
	gate      EligibilityChecker
	auctions  AuctionReader
	notifier  BidNotifier
	metrics   *metrics.Metrics
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, cfg Config) *BiddingService {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Gate == nil {
		cfg.Gate = registration.NewGate(repo, nil, cfg.Clock)
	}
	if cfg.Auctions == nil {
		cfg.Auctions = auctionstate.NewMachine(repo, cfg.Clock, 0)
	}
	return &BiddingService{
		repo:      repo,
		ledger:    ledger.New(repo),
		clock:     cfg.Clock,
		extension: cfg.Extension,
		gate:      cfg.Gate,
		auctions:  cfg.Auctions,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
	}
}

// SubmitBid validates a bid against the current auction state and, if it
// qualifies, commits it together with the new price, leader and end time.
// Refusals are *biddingerrors.RejectionError and are never retried here.
func (s *BiddingService) SubmitBid(ctx context.Context, req models.BidRequest) (models.BidReceipt, error) {
	start := s.clock.Now()
	if err := validateRequest(req); err != nil {
		return models.BidReceipt{}, err
	}

	receipt, err := s.submit(ctx, req)
	took := s.clock.Since(start)

	var rejection *biddingerrors.RejectionError
	switch {
	case err == nil:
		s.metrics.BidAccepted(receipt.Extended, took)
	case errors.As(err, &rejection):
		reason := biddingerrors.ReasonCode(rejection)
		s.metrics.BidRejected(reason, took)
		utils.Debug("Bid rejected", map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    req.UserID,
			"amount":     req.Amount.String(),
			"reason":     reason,
		})
	}
	return receipt, err
}

func (s *BiddingService) submit(ctx context.Context, req models.BidRequest) (models.BidReceipt, error) {
	auction, err := s.auctions.Current(ctx, req.AuctionID)
	if err != nil {
		return models.BidReceipt{}, fmt.Errorf("service: failed to read auction %s: %w", req.AuctionID, err)
	}

	eligible, err := s.gate.IsEligible(ctx, req.AuctionID, req.UserID)
	if err != nil {
		return models.BidReceipt{}, fmt.Errorf("service: failed to check eligibility of user %s: %w", req.UserID, err)
	}
	if !eligible {
		return models.BidReceipt{}, reject(biddingerrors.ErrNotEligible, auction)
	}

	now := utils.Timestamp(s.clock.Now())
	if !auction.AcceptsBidsAt(now) {
		return models.BidReceipt{}, reject(biddingerrors.ErrAuctionNotActive, auction)
	}
	if req.ExpectedSequence != nil && *req.ExpectedSequence != auction.BidCount {
		return models.BidReceipt{}, reject(biddingerrors.ErrStaleRead, auction)
	}
	if req.Amount.LessThan(auction.MinimumNextBid()) {
		return models.BidReceipt{}, reject(biddingerrors.ErrBidTooLow, auction)
	}

	accepted, err := s.ledger.Append(ctx, ledger.AppendParams{
		AuctionID:       req.AuctionID,
		UserID:          req.UserID,
		Amount:          req.Amount,
		ClientTimestamp: req.ClientTimestamp,
		AcceptedAt:      now,
		ExpectedVersion: auction.Version,
		NewEndTime:      s.extension.EndTimeAfterBid(auction.EndTime, now),
	})
	switch {
	case errors.Is(err, biddingerrors.ErrStaleRead):
		return models.BidReceipt{}, s.rejectWithLatest(ctx, biddingerrors.ErrStaleRead, auction)
	case errors.Is(err, biddingerrors.ErrAuctionNotActive):
		return models.BidReceipt{}, s.rejectWithLatest(ctx, biddingerrors.ErrAuctionNotActive, auction)
	case err != nil:
		return models.BidReceipt{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", req.AuctionID, req.UserID, err)
	}

	if s.notifier != nil {
		s.notifier.BidAccepted(accepted)
	}

	fields := map[string]any{
		"auction_id": accepted.Bid.AuctionID,
		"user_id":    accepted.Bid.UserID,
		"amount":     accepted.Bid.Amount.String(),
		"sequence":   accepted.Bid.Sequence,
	}
	if accepted.Extended {
		fields["end_time"] = accepted.Auction.EndTime
		utils.Info("Bid accepted, auction extended", fields)
	} else {
		utils.Info("Bid accepted", fields)
	}

	return models.BidReceipt{
		BidID:      accepted.Bid.BidID,
		AuctionID:  accepted.Bid.AuctionID,
		UserID:     accepted.Bid.UserID,
		Sequence:   accepted.Bid.Sequence,
		CurrentBid: accepted.Bid.Amount,
		EndTime:    accepted.Auction.EndTime,
		Extended:   accepted.Extended,
		AcceptedAt: accepted.Bid.AcceptedAt,
	}, nil
}

// validateRequest checks input validity before any state is read
func validateRequest(req models.BidRequest) error {
	if req.AuctionID == "" || req.UserID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	return nil
}

func reject(reason error, auction models.Auction) error {
	return &biddingerrors.RejectionError{
		Reason:     reason,
		CurrentBid: auction.CurrentBid,
		MinimumBid: auction.MinimumNextBid(),
		Sequence:   auction.BidCount,
	}
}

// rejectWithLatest reports a lost race with the price that beat the caller
func (s *BiddingService) rejectWithLatest(ctx context.Context, reason error, fallback models.Auction) error {
	latest, err := s.repo.GetAuction(ctx, fallback.AuctionID)
	if err != nil {
		latest = fallback
	}
	return reject(reason, latest)
}

// GetBidsForAuction returns up to limit bids after the given sequence, in ledger order
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string, afterSequence int64, limit int) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.ledger.Page(ctx, auctionID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the highest bid for a specific auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.ledger.HighestBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}

	return winningBid, nil
}

// GetAuctionsByUser returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}

	return auctions, nil
}
