package notify

import (
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Fanout turns committed ledger and settlement changes into events
type Fanout struct {
	pub Publisher
}

// NewFanout creates a fanout that publishes to pub
func NewFanout(pub Publisher) *Fanout {
	return &Fanout{pub: pub}
}

// BidEvents derives the events of an accepted bid: always NewBid, plus
// Outbid when a different user held the lead before it.
func BidEvents(accepted model.AcceptedBid) []model.Event {
	bid := accepted.Bid
	events := []model.Event{{
		Type:       model.EventNewBid,
		AuctionID:  bid.AuctionID,
		Sequence:   bid.Sequence,
		Amount:     decimal.NewNullDecimal(bid.Amount),
		Bidder:     bid.UserID,
		OccurredAt: bid.AcceptedAt,
	}}
	if accepted.PreviousLeader != "" && accepted.PreviousLeader != bid.UserID {
		events = append(events, model.Event{
			Type:           model.EventOutbid,
			AuctionID:      bid.AuctionID,
			Sequence:       bid.Sequence,
			Amount:         decimal.NewNullDecimal(bid.Amount),
			Bidder:         bid.UserID,
			PreviousLeader: accepted.PreviousLeader,
			OccurredAt:     bid.AcceptedAt,
		})
	}
	return events
}

// SettledEvent derives the event announcing a final result
func SettledEvent(result model.AuctionResult) model.Event {
	return model.Event{
		Type:       model.EventAuctionSettled,
		AuctionID:  result.AuctionID,
		Sequence:   result.WinningSequence,
		Amount:     result.WinningBid,
		Outcome:    result.Outcome,
		Winner:     result.WinnerUserID,
		OccurredAt: result.SettledAt,
	}
}

// BidAccepted publishes the events of a committed bid
func (f *Fanout) BidAccepted(accepted model.AcceptedBid) {
	if f == nil || f.pub == nil {
		return
	}
	for _, ev := range BidEvents(accepted) {
		f.pub.Publish(ev)
	}
}

// AuctionSettled publishes the settlement of an auction
func (f *Fanout) AuctionSettled(result model.AuctionResult) {
	if f == nil || f.pub == nil {
		return
	}
	f.pub.Publish(SettledEvent(result))
}
