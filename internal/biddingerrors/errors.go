package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrAuctionNotFound       = errors.New("auction not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrNoBids                = errors.New("no bids found for auction")
	ErrUserNoBids            = errors.New("user has not placed any bids")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrResultNotFound        = errors.New("auction result not found")
	ErrDuplicateAuction      = errors.New("auction already exists")
	ErrDuplicateRegistration = errors.New("registration already exists")
	ErrAlreadySettled        = errors.New("auction already settled")
)

// business logic errors
var (
	ErrInvalidBid         = errors.New("invalid bid")
	ErrInvalidAuction     = errors.New("invalid auction")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrSettlementNotDue   = errors.New("auction has not reached its end time")
	ErrInvalidToken       = errors.New("invalid registration token")
	ErrFeeNotPaid         = errors.New("registration fee not paid")
	ErrRegistrationClosed = errors.New("registration deadline has passed")
)

// bid rejection reasons, reported to the caller and never retried by the engine
var (
	ErrNotEligible      = errors.New("user is not eligible to bid")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrBidTooLow        = errors.New("bid amount too low")
	ErrStaleRead        = errors.New("auction changed since it was read")
)

// RejectionError carries the auction price at the time a bid was refused so
// the client can resubmit without another read
type RejectionError struct {
	Reason     error
	CurrentBid decimal.NullDecimal
	MinimumBid decimal.Decimal
	Sequence   int64
}

func (e *RejectionError) Error() string {
	if e.CurrentBid.Valid {
		return fmt.Sprintf("%v - current bid is %s, minimum next bid is %s", e.Reason, e.CurrentBid.Decimal, e.MinimumBid)
	}
	return fmt.Sprintf("%v - minimum next bid is %s", e.Reason, e.MinimumBid)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// ReasonCode returns the stable name of a rejection reason
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotEligible):
		return "NotEligible"
	case errors.Is(err, ErrAuctionNotActive):
		return "AuctionNotActive"
	case errors.Is(err, ErrBidTooLow):
		return "BidTooLow"
	case errors.Is(err, ErrStaleRead):
		return "StaleRead"
	default:
		return ""
	}
}
