package ledger

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPageSize is used by History when no page size is given
const DefaultPageSize = 100

// AppendParams describes a bid about to be admitted to the ledger
type AppendParams struct {
	AuctionID       string
	UserID          string
	Amount          decimal.Decimal
	ClientTimestamp time.Time
	AcceptedAt      time.Time
	ExpectedVersion int64
	NewEndTime      time.Time
}

// Ledger is the append-only record of accepted bids, ordered per auction by sequence
type Ledger struct {
	store repository.AuctionDB
}

// New creates a ledger over the given store
func New(store repository.AuctionDB) *Ledger {
	return &Ledger{store: store}
}

// Append is the only way a bid enters the ledger. The bid is stored and the
// auction updated in one conditional write on ExpectedVersion.
func (l *Ledger) Append(ctx context.Context, p AppendParams) (model.AcceptedBid, error) {
	if p.AuctionID == "" || p.UserID == "" {
		return model.AcceptedBid{}, fmt.Errorf("ledger: %w - auction and user are required", biddingerrors.ErrInvalidBid)
	}
	if !p.Amount.IsPositive() {
		return model.AcceptedBid{}, fmt.Errorf("ledger: %w - amount must be positive", biddingerrors.ErrInvalidBid)
	}

	bid := model.Bid{
		BidID:           utils.GenerateID(),
		AuctionID:       p.AuctionID,
		UserID:          p.UserID,
		Amount:          p.Amount,
		AcceptedAt:      utils.Timestamp(p.AcceptedAt),
		ClientTimestamp: p.ClientTimestamp,
	}
	if !p.ClientTimestamp.IsZero() {
		bid.ClientTimestamp = utils.Timestamp(p.ClientTimestamp)
	}
	newEnd := p.NewEndTime
	if !newEnd.IsZero() {
		newEnd = utils.Timestamp(newEnd)
	}

	accepted, err := l.store.AcceptBid(ctx, model.AcceptBidParams{
		Bid:             bid,
		ExpectedVersion: p.ExpectedVersion,
		NewEndTime:      newEnd,
	})
	if err != nil {
		return model.AcceptedBid{}, fmt.Errorf("ledger: %w", err)
	}
	return accepted, nil
}

// HighestBid returns the bid with the highest sequence, or ErrNoBids
func (l *Ledger) HighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	bid, err := l.store.HighestBid(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("ledger: %w", err)
	}
	return bid, nil
}

// Page returns up to limit bids after the given sequence
func (l *Ledger) Page(ctx context.Context, auctionID string, afterSequence int64, limit int) ([]model.Bid, error) {
	bids, err := l.store.ListBids(ctx, auctionID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return bids, nil
}

// History iterates over every bid of an auction in sequence order, fetching
// one page at a time. Iteration stops at the first error, which is yielded
// once. Calling History again restarts from the first bid.
func (l *Ledger) History(ctx context.Context, auctionID string, pageSize int) iter.Seq2[model.Bid, error] {
	return l.HistoryAfter(ctx, auctionID, 0, pageSize)
}

// HistoryAfter is History starting after the given sequence
func (l *Ledger) HistoryAfter(ctx context.Context, auctionID string, afterSequence int64, pageSize int) iter.Seq2[model.Bid, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(model.Bid, error) bool) {
		after := afterSequence
		for {
			if err := ctx.Err(); err != nil {
				yield(model.Bid{}, err)
				return
			}
			page, err := l.Page(ctx, auctionID, after, pageSize)
			if err != nil {
				yield(model.Bid{}, err)
				return
			}
			for _, b := range page {
				if !yield(b, nil) {
					return
				}
				after = b.Sequence
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}
