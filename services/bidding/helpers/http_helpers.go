package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"auction-engine/internal/biddingerrors"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, biddingerrors.ErrResultNotFound):
		return http.StatusNotFound, "auction has not been settled"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrInvalidToken):
		return http.StatusBadRequest, "invalid registration token"
	case errors.Is(err, biddingerrors.ErrFeeNotPaid):
		return http.StatusPaymentRequired, "registration fee not paid"
	case errors.Is(err, biddingerrors.ErrNotEligible):
		return http.StatusForbidden, "user is not registered for this auction"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionNotActive):
		return http.StatusConflict, "auction is not accepting bids"
	case errors.Is(err, biddingerrors.ErrStaleRead):
		return http.StatusConflict, "auction changed, retry with the latest price"
	case errors.Is(err, biddingerrors.ErrSettlementNotDue):
		return http.StatusConflict, "auction has not ended yet"
	case errors.Is(err, biddingerrors.ErrInvalidTransition):
		return http.StatusConflict, "operation not allowed in the current auction status"
	case errors.Is(err, biddingerrors.ErrRegistrationClosed):
		return http.StatusConflict, "registration is closed"
	case errors.Is(err, biddingerrors.ErrDuplicateAuction):
		return http.StatusConflict, "auction already exists"
	case errors.Is(err, biddingerrors.ErrUserNoBids):
		return http.StatusOK, "no auctions found for user"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error. Bid rejections carry the price the
// client needs to resubmit.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()

	var rejection *biddingerrors.RejectionError
	if errors.As(err, &rejection) {
		utils.JSONErrorWithData(c, status, fmt.Errorf("%s: %w", message, err), message, NewRejectionData(rejection))
		utils.Info(handlerName+": bid rejected", fields)
		return
	}

	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request refused", fields)
}

// QueryInt64 reads an optional non-negative integer query parameter
func QueryInt64(c *gin.Context, key string, defaultValue int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("query parameter %s must be a non-negative integer, got %q", key, raw)
	}
	return v, nil
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
