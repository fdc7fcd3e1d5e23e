package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	handler "auction-engine/services/bidding/handler"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	bidding *handler.MockBiddingServiceInterface
	gate    *handler.MockRegistrationServiceInterface
	clock   *fakeclock.FakeClock
	metrics *metrics.Metrics
	router  *gin.Engine
}

func newRouterFixture(t *testing.T, perSecond float64, burst int) routerFixture {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	gin.SetMode(gin.TestMode)

	f := routerFixture{
		bidding: handler.NewMockBiddingServiceInterface(ctrl),
		gate:    handler.NewMockRegistrationServiceInterface(ctrl),
		clock:   fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		metrics: metrics.New(),
	}
	f.router = SetupRouter(Dependencies{
		Bidding:          f.bidding,
		Auctions:         handler.NewMockAuctionServiceInterface(ctrl),
		Products:         handler.NewMockProductReader(ctrl),
		Settlement:       handler.NewMockSettlementServiceInterface(ctrl),
		Registration:     f.gate,
		History:          handler.NewMockBidHistory(ctrl),
		Events:           handler.NewMockEventSource(ctrl),
		Metrics:          f.metrics,
		Clock:            f.clock,
		BidRatePerSecond: perSecond,
		BidRateBurst:     burst,
	})
	return f
}

func postBid(router *gin.Engine, requestID string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]any{"auction_id": "a1", "user_id": "alice", "amount": "150"})
	req := httptest.NewRequest(http.MethodPost, "/bids", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	req.RemoteAddr = "10.0.0.1:5000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Healthz(t *testing.T) {
	f := newRouterFixture(t, 0, 0)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestSetupRouter_RequestIDPropagated(t *testing.T) {
	f := newRouterFixture(t, 0, 0)
	f.bidding.EXPECT().SubmitBid(gomock.Any(), gomock.Any()).Return(model.BidReceipt{BidID: "b1", AuctionID: "a1", UserID: "alice", Sequence: 1}, nil)

	w := postBid(f.router, "req-123")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestSetupRouter_BidRateLimited(t *testing.T) {
	f := newRouterFixture(t, 1, 2)
	f.bidding.EXPECT().SubmitBid(gomock.Any(), gomock.Any()).Return(model.BidReceipt{BidID: "b1", Sequence: 1}, nil).Times(3)

	require.Equal(t, http.StatusCreated, postBid(f.router, "").Code)
	require.Equal(t, http.StatusCreated, postBid(f.router, "").Code)

	w := postBid(f.router, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// one token refills per second
	f.clock.Increment(time.Second)
	require.Equal(t, http.StatusCreated, postBid(f.router, "").Code)
}

func TestSetupRouter_MetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t, 0, 0)
	f.gate.EXPECT().IsEligible(gomock.Any(), "a1", "alice").Return(true, nil)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/a1/registrations/alice", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `http_requests_total{method="GET",path="/auctions/:auction_id/registrations/:user_id",status="200"} 1`)
}

func TestSetupRouter_UnknownRoute(t *testing.T) {
	f := newRouterFixture(t, 0, 0)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/item1/bids", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
