package settlement

import (
	"auction-engine/internal/auctionstate"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/metrics"
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

// maxAttempts bounds re-evaluation after losing a version race
const maxAttempts = 5

// AuctionReader returns the current state of an auction, activating it if its start has passed
type AuctionReader interface {
	Current(ctx context.Context, auctionID string) (model.Auction, error)
}

// ResultNotifier is told once about every newly stored result
type ResultNotifier interface {
	AuctionSettled(result model.AuctionResult)
}

// Config wires the collaborators of the engine. Zero values get defaults.
type Config struct {
	Clock    clock.Clock
	Auctions AuctionReader
	Notifier ResultNotifier
	Metrics  *metrics.Metrics
}

// Engine decides and records the final outcome of auctions, at most once each
type Engine struct {
	repo     repository.AuctionDB
	clock    clock.Clock
	auctions AuctionReader
	notifier ResultNotifier
	metrics  *metrics.Metrics
}

// NewEngine creates a settlement engine
func NewEngine(repo repository.AuctionDB, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Auctions == nil {
		cfg.Auctions = auctionstate.NewMachine(repo, cfg.Clock, 0)
	}
	return &Engine{
		repo:     repo,
		clock:    cfg.Clock,
		auctions: cfg.Auctions,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
	}
}

// Settle closes an auction whose end time has passed. The highest bid wins
// if it meets the reserve. Repeated or concurrent calls return the same result.
func (e *Engine) Settle(ctx context.Context, auctionID string) (model.AuctionResult, error) {
	if auctionID == "" {
		return model.AuctionResult{}, fmt.Errorf("settlement: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if stored, ok, err := e.storedResult(ctx, auctionID); err != nil || ok {
			return stored, err
		}

		auction, err := e.auctions.Current(ctx, auctionID)
		if err != nil {
			return model.AuctionResult{}, fmt.Errorf("settlement: failed to read auction %s: %w", auctionID, err)
		}
		now := utils.Timestamp(e.clock.Now())
		switch {
		case auction.Status.IsTerminal():
			// finalized between the two reads
			continue
		case auction.Status == model.StatusScheduled:
			return model.AuctionResult{}, fmt.Errorf("settlement: %w - auction %s has not started", biddingerrors.ErrSettlementNotDue, auctionID)
		case auction.Status != model.StatusActive:
			return model.AuctionResult{}, fmt.Errorf("settlement: %w - auction %s is %s", biddingerrors.ErrInvalidTransition, auctionID, auction.Status)
		case now.Before(auction.EndTime):
			return model.AuctionResult{}, fmt.Errorf("settlement: %w - auction %s ends at %s", biddingerrors.ErrSettlementNotDue, auctionID, auction.EndTime.Format(time.RFC3339))
		}

		result, err := e.evaluate(ctx, auction, now)
		if err != nil {
			return model.AuctionResult{}, err
		}
		if stored, done, err := e.finalize(ctx, auction, result); done {
			return stored, err
		}
	}
	return model.AuctionResult{}, fmt.Errorf("settlement: failed to settle auction %s: %w", auctionID, biddingerrors.ErrStaleRead)
}

// evaluate decides the outcome from the highest bid and the reserve
func (e *Engine) evaluate(ctx context.Context, auction model.Auction, now time.Time) (model.AuctionResult, error) {
	result := model.AuctionResult{
		AuctionID: auction.AuctionID,
		Outcome:   model.OutcomeUnsold,
		SettledAt: now,
	}

	highest, err := e.repo.HighestBid(ctx, auction.AuctionID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return result, nil
	}
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("settlement: failed to read highest bid of auction %s: %w", auction.AuctionID, err)
	}

	if auction.ReservePrice.Valid && highest.Amount.LessThan(auction.ReservePrice.Decimal) {
		return result, nil
	}
	result.Outcome = model.OutcomeSold
	result.WinnerUserID = highest.UserID
	result.WinningBid = decimal.NewNullDecimal(highest.Amount)
	result.WinningSequence = highest.Sequence
	return result, nil
}

// Cancel ends a scheduled or active auction without a winner. Cancelling
// an already cancelled auction returns the stored result; an auction that
// ended otherwise keeps its outcome and ErrInvalidTransition is returned.
func (e *Engine) Cancel(ctx context.Context, auctionID, reason string) (model.AuctionResult, error) {
	if auctionID == "" {
		return model.AuctionResult{}, fmt.Errorf("settlement: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		stored, ok, err := e.storedResult(ctx, auctionID)
		if err != nil {
			return model.AuctionResult{}, err
		}
		if ok {
			if stored.Outcome == model.OutcomeCancelled {
				return stored, nil
			}
			return stored, fmt.Errorf("settlement: %w - auction %s already ended %s", biddingerrors.ErrInvalidTransition, auctionID, stored.Outcome)
		}

		auction, err := e.auctions.Current(ctx, auctionID)
		if err != nil {
			return model.AuctionResult{}, fmt.Errorf("settlement: failed to read auction %s: %w", auctionID, err)
		}
		if auction.Status.IsTerminal() {
			continue
		}
		if !auctionstate.CanTransition(auction.Status, model.StatusCancelled) {
			return model.AuctionResult{}, fmt.Errorf("settlement: %w - cannot cancel auction %s in status %s", biddingerrors.ErrInvalidTransition, auctionID, auction.Status)
		}

		result := model.AuctionResult{
			AuctionID: auctionID,
			Outcome:   model.OutcomeCancelled,
			SettledAt: utils.Timestamp(e.clock.Now()),
		}
		stored, done, err := e.finalize(ctx, auction, result)
		if !done {
			continue
		}
		if err != nil {
			return model.AuctionResult{}, err
		}
		if stored.Outcome != model.OutcomeCancelled {
			return stored, fmt.Errorf("settlement: %w - auction %s already ended %s", biddingerrors.ErrInvalidTransition, auctionID, stored.Outcome)
		}
		utils.Info("Auction cancelled", map[string]any{"auction_id": auctionID, "reason": reason})
		return stored, nil
	}
	return model.AuctionResult{}, fmt.Errorf("settlement: failed to cancel auction %s: %w", auctionID, biddingerrors.ErrStaleRead)
}

// Result returns the stored result of an auction
func (e *Engine) Result(ctx context.Context, auctionID string) (model.AuctionResult, error) {
	if auctionID == "" {
		return model.AuctionResult{}, fmt.Errorf("settlement: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	result, err := e.repo.GetResult(ctx, auctionID)
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("settlement: failed to get result for auction %s: %w", auctionID, err)
	}
	return result, nil
}

func (e *Engine) storedResult(ctx context.Context, auctionID string) (model.AuctionResult, bool, error) {
	stored, err := e.repo.GetResult(ctx, auctionID)
	switch {
	case err == nil:
		return stored, true, nil
	case errors.Is(err, biddingerrors.ErrResultNotFound):
		return model.AuctionResult{}, false, nil
	default:
		return model.AuctionResult{}, false, fmt.Errorf("settlement: failed to read result of auction %s: %w", auctionID, err)
	}
}

// finalize writes the result. done is false when the caller should re-read
// and try again.
func (e *Engine) finalize(ctx context.Context, auction model.Auction, result model.AuctionResult) (model.AuctionResult, bool, error) {
	stored, err := e.repo.FinalizeAuction(ctx, auction.Version, result)
	switch {
	case err == nil:
		e.metrics.Settled(string(stored.Outcome))
		utils.Info("Auction settled", map[string]any{
			"auction_id": stored.AuctionID,
			"outcome":    string(stored.Outcome),
			"winner":     stored.WinnerUserID,
			"sequence":   stored.WinningSequence,
		})
		if e.notifier != nil {
			e.notifier.AuctionSettled(stored)
		}
		return stored, true, nil
	case errors.Is(err, biddingerrors.ErrAlreadySettled):
		return stored, true, nil
	case errors.Is(err, biddingerrors.ErrStaleRead), errors.Is(err, biddingerrors.ErrInvalidTransition):
		e.metrics.SettlementConflict()
		utils.Debug("Settlement lost a race, re-evaluating", map[string]any{"auction_id": auction.AuctionID, "version": auction.Version})
		return model.AuctionResult{}, false, nil
	default:
		return model.AuctionResult{}, true, fmt.Errorf("settlement: failed to finalize auction %s: %w", auction.AuctionID, err)
	}
}
