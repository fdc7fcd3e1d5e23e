package integrationtests

import (
	"auction-engine/internal/auctionstate"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/ledger"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/registration"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/internal/settlement"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// epoch is the fake "now" every test environment starts at
var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv is the full engine on an in-memory store with a fake clock
type testEnv struct {
	router  *gin.Engine
	clock   *fakeclock.FakeClock
	repo    *repository.MemoryRepo
	tokens  *registration.Tokens
	broker  *notify.Broker
	sweeper *settlement.Sweeper
}

// SetupTestEnv wires every service the way main does
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := fakeclock.NewFakeClock(epoch)
	repo := repository.NewMemoryRepo()
	m := metrics.New()

	tokens, err := registration.NewTokens([]byte("integration-secret"), "", clk)
	require.NoError(t, err)
	gate := registration.NewGate(repo, tokens, clk)
	machine := auctionstate.NewMachine(repo, clk, 0)

	broker := notify.NewBroker(64, m)
	t.Cleanup(broker.Close)
	fanout := notify.NewFanout(broker)

	svc := bidding.NewBiddingService(repo, bidding.Config{
		Clock:     clk,
		Extension: auctionstate.DefaultExtensionPolicy(),
		Gate:      gate,
		Auctions:  machine,
		Notifier:  fanout,
		Metrics:   m,
	})
	engine := settlement.NewEngine(repo, settlement.Config{Clock: clk, Auctions: machine, Notifier: fanout, Metrics: m})

	router := server.SetupRouter(server.Dependencies{
		Bidding:      svc,
		Auctions:     machine,
		Products:     repo,
		Settlement:   engine,
		Registration: gate,
		History:      ledger.New(repo),
		Events:       broker,
		Metrics:      m,
		Clock:        clk,
	})

	return &testEnv{
		router:  router,
		clock:   clk,
		repo:    repo,
		tokens:  tokens,
		broker:  broker,
		sweeper: settlement.NewSweeper(repo, engine, settlement.SweeperConfig{Workers: 4}),
	}
}

// auctionSpec describes an auction to publish through the API
type auctionSpec struct {
	AuctionID string
	Starting  string
	Increment string
	Reserve   string
	StartsIn  time.Duration
	Duration  time.Duration
}

// PublishAuction creates a product and an auction for it, then walks the
// auction through submit and approve so it is scheduled
func (e *testEnv) PublishAuction(t *testing.T, spec auctionSpec) {
	t.Helper()
	productID := "product-" + spec.AuctionID
	require.NoError(t, e.repo.AddProduct(context.Background(), model.Product{
		ProductID: productID,
		Name:      "Lot " + spec.AuctionID,
		BasePrice: decimal.RequireFromString(spec.Starting),
	}))

	if spec.StartsIn == 0 {
		spec.StartsIn = time.Minute
	}
	if spec.Duration == 0 {
		spec.Duration = 10 * time.Minute
	}
	start := e.clock.Now().Add(spec.StartsIn)
	body := map[string]any{
		"auction_id":    spec.AuctionID,
		"product_id":    productID,
		"start_time":    start.Format(time.RFC3339Nano),
		"end_time":      start.Add(spec.Duration).Format(time.RFC3339Nano),
		"starting_bid":  spec.Starting,
		"bid_increment": spec.Increment,
	}
	if spec.Reserve != "" {
		body["reserve_price"] = spec.Reserve
	}

	_, w := ExecuteRequestAndParse(t, e.router, http.MethodPost, "/auctions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	for _, step := range []string{"submit", "approve"} {
		_, w = ExecuteRequestAndParse(t, e.router, http.MethodPost, "/auctions/"+spec.AuctionID+"/"+step, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

// Register pays and registers a user through a signed token
func (e *testEnv) Register(t *testing.T, auctionID, userID string) {
	t.Helper()
	token, err := e.tokens.Issue(userID, auctionID, true, e.clock.Now(), time.Hour)
	require.NoError(t, err)

	_, w := ExecuteRequestAndParse(t, e.router, http.MethodPost, "/auctions/"+auctionID+"/registrations", map[string]any{"token": token})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// Bid submits a bid and returns the parsed envelope
func (e *testEnv) Bid(t *testing.T, auctionID, userID, amount string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return ExecuteRequestAndParse(t, e.router, http.MethodPost, "/bids", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
		"amount":     amount,
	})
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and
// parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// Data returns the data object of an envelope
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "envelope has no data object: %v", resp)
	return data
}
