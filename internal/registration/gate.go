package registration

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"

	"code.cloudfoundry.org/clock"
)

// Gate answers whether a user may bid on an auction and ingests the
// registration tokens that make them eligible
type Gate struct {
	repo   repository.AuctionDB
	tokens *Tokens
	clock  clock.Clock
}

// NewGate creates a registration gate. tokens may be nil when registrations
// are only written by seeding.
func NewGate(repo repository.AuctionDB, tokens *Tokens, clk clock.Clock) *Gate {
	return &Gate{repo: repo, tokens: tokens, clock: clk}
}

// IsEligible is true iff the user holds a paid registration for an auction
// that has not yet reached a terminal status
func (g *Gate) IsEligible(ctx context.Context, auctionID, userID string) (bool, error) {
	auction, err := g.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return false, fmt.Errorf("registration: %w", err)
	}
	if auction.Status.IsTerminal() {
		return false, nil
	}

	reg, err := g.repo.GetRegistration(ctx, auctionID, userID)
	if errors.Is(err, biddingerrors.ErrRegistrationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("registration: %w", err)
	}
	return reg.FeePaid, nil
}

// Register verifies a signed gate token and records the registration it
// describes. A non-empty auctionID must match the token's auction.
// Registering the same user twice returns the stored registration.
func (g *Gate) Register(ctx context.Context, auctionID, token string) (model.Registration, error) {
	if g.tokens == nil {
		return model.Registration{}, fmt.Errorf("registration: %w - token verification is not configured", biddingerrors.ErrInvalidToken)
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return model.Registration{}, fmt.Errorf("registration: %w", err)
	}
	if auctionID != "" && claims.AuctionID != auctionID {
		return model.Registration{}, fmt.Errorf("registration: %w - token is for auction %s", biddingerrors.ErrInvalidToken, claims.AuctionID)
	}
	if !claims.FeePaid {
		return model.Registration{}, fmt.Errorf("registration: %w - user %s", biddingerrors.ErrFeeNotPaid, claims.Subject)
	}

	auction, err := g.repo.GetAuction(ctx, claims.AuctionID)
	if err != nil {
		return model.Registration{}, fmt.Errorf("registration: %w", err)
	}

	existing, err := g.repo.GetRegistration(ctx, claims.AuctionID, claims.Subject)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, biddingerrors.ErrRegistrationNotFound) {
		return model.Registration{}, fmt.Errorf("registration: %w", err)
	}

	now := utils.Timestamp(g.clock.Now())
	if auction.Status.IsTerminal() {
		return model.Registration{}, fmt.Errorf("registration: %w - auction %s is %s", biddingerrors.ErrRegistrationClosed, auction.AuctionID, auction.Status)
	}
	if now.After(auction.RegistrationDeadline) {
		return model.Registration{}, fmt.Errorf("registration: %w - deadline was %s", biddingerrors.ErrRegistrationClosed, auction.RegistrationDeadline.Format("2006-01-02T15:04:05Z07:00"))
	}

	reg := model.Registration{
		AuctionID: claims.AuctionID,
		UserID:    claims.Subject,
		FeePaid:   true,
		PaidAt:    now,
	}
	if claims.PaidAt != nil {
		reg.PaidAt = utils.Timestamp(claims.PaidAt.Time)
	}

	err = g.repo.AddRegistration(ctx, reg)
	if errors.Is(err, biddingerrors.ErrDuplicateRegistration) {
		stored, gerr := g.repo.GetRegistration(ctx, reg.AuctionID, reg.UserID)
		if gerr != nil {
			return model.Registration{}, fmt.Errorf("registration: %w", gerr)
		}
		return stored, nil
	}
	if err != nil {
		return model.Registration{}, fmt.Errorf("registration: %w", err)
	}

	utils.Info("Bidder registered", map[string]any{"auction_id": reg.AuctionID, "user_id": reg.UserID})
	return reg, nil
}
