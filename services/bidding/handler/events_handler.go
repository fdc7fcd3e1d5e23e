package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"code.cloudfoundry.org/clock"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const defaultKeepAlive = 15 * time.Second

// EventsHandler streams auction events over server-sent events. A client
// resumes with Last-Event-ID, the last bid sequence it saw: bids after it are
// replayed from the ledger before live events start.
type EventsHandler struct {
	auctions  AuctionServiceInterface
	results   SettlementServiceInterface
	history   BidHistory
	source    EventSource
	clock     clock.Clock
	keepAlive time.Duration
}

func NewEventsHandler(auctions AuctionServiceInterface, results SettlementServiceInterface, history BidHistory, source EventSource, clk clock.Clock, keepAlive time.Duration) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &EventsHandler{
		auctions:  auctions,
		results:   results,
		history:   history,
		source:    source,
		clock:     clk,
		keepAlive: keepAlive,
	}
}

// StreamEventsHandler handles GET /auctions/:auction_id/events
func (h *EventsHandler) StreamEventsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	ctx := c.Request.Context()

	after, err := resumePoint(c)
	if err != nil {
		helpers.HandleBindError(c, "StreamEventsHandler", err)
		return
	}
	if _, err := h.auctions.Current(ctx, auctionID); err != nil {
		helpers.RespondError(c, "StreamEventsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	// subscribe before replaying so a bid committed in between is not lost
	events := h.source.Subscribe(ctx, auctionID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	replayedThrough := after
	previous, err := h.leaderAt(ctx, auctionID, after)
	if err != nil {
		utils.Warn("StreamEventsHandler: replay failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	for bid, err := range h.history.HistoryAfter(ctx, auctionID, after, 0) {
		if err != nil {
			utils.Warn("StreamEventsHandler: replay failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
			return
		}
		for _, ev := range notify.BidEvents(model.AcceptedBid{Bid: bid, PreviousLeader: previous}) {
			render(c, ev)
		}
		previous = bid.UserID
		replayedThrough = bid.Sequence
	}
	c.Writer.Flush()

	result, err := h.results.Result(ctx, auctionID)
	switch {
	case err == nil:
		render(c, notify.SettledEvent(result))
		c.Writer.Flush()
		return
	case !errors.Is(err, biddingerrors.ErrResultNotFound):
		utils.Warn("StreamEventsHandler: result lookup failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}

	utils.Debug("StreamEventsHandler: streaming", map[string]any{"auction_id": auctionID, "after": replayedThrough})

	ticker := h.clock.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, err := c.Writer.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				// evicted or shutting down; the client reconnects with Last-Event-ID
				return
			}
			if ev.Type != model.EventAuctionSettled && ev.Sequence <= replayedThrough {
				continue
			}
			render(c, ev)
			c.Writer.Flush()
			if ev.Type == model.EventAuctionSettled {
				return
			}
		}
	}
}

// leaderAt returns the bidder of the bid at sequence, or "" before the first bid
func (h *EventsHandler) leaderAt(ctx context.Context, auctionID string, sequence int64) (string, error) {
	if sequence <= 0 {
		return "", nil
	}
	leader := ""
	for bid, err := range h.history.HistoryAfter(ctx, auctionID, sequence-1, 1) {
		if err != nil {
			return "", err
		}
		if bid.Sequence >= sequence {
			if bid.Sequence == sequence {
				leader = bid.UserID
			}
			break
		}
	}
	return leader, nil
}

func render(c *gin.Context, ev model.Event) {
	c.Render(-1, sse.Event{
		Id:    strconv.FormatInt(ev.Sequence, 10),
		Event: string(ev.Type),
		Data:  ev,
	})
}

// resumePoint reads the last seen sequence from Last-Event-ID or ?after=
func resumePoint(c *gin.Context) (int64, error) {
	if id := c.GetHeader("Last-Event-ID"); id != "" {
		seq, err := strconv.ParseInt(id, 10, 64)
		if err != nil || seq < 0 {
			return 0, errors.New("Last-Event-ID must be a bid sequence")
		}
		return seq, nil
	}
	return helpers.QueryInt64(c, "after", 0)
}
