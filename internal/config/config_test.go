package config

import (
	"auction-engine/internal/auctionstate"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/sqlstore"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, ":9090", cfg.GRPCPort)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, auctionstate.DefaultExtensionPolicy(), cfg.Auction.Extension)
	assert.Equal(t, time.Duration(0), cfg.Auction.RegistrationLead)
	assert.Equal(t, time.Second, cfg.Settlement.Interval)
	assert.Equal(t, 8, cfg.Settlement.Workers)
	assert.Equal(t, 100, cfg.Settlement.Batch)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_DSN", "file:auctions.db")
	t.Setenv("ANTI_SNIPE_WINDOW", "30s")
	t.Setenv("ANTI_SNIPE_EXTENSION", "1m")
	t.Setenv("SETTLEMENT_WORKERS", "3")
	t.Setenv("BID_RATE_PER_SEC", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, auctionstate.ExtensionPolicy{Window: 30 * time.Second, Extension: time.Minute}, cfg.Auction.Extension)
	assert.Equal(t, 3, cfg.Settlement.Workers)
	assert.Equal(t, 2.5, cfg.RateLimit.PerSecond)

	sql := cfg.Store.SQL()
	assert.Equal(t, sqlstore.SQLite, sql.Dialect)
	assert.Equal(t, "file:auctions.db", sql.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad_duration", env: map[string]string{"SWEEP_INTERVAL": "soon"}},
		{name: "unknown_driver", env: map[string]string{"STORE_DRIVER": "mongo"}},
		{name: "sql_without_dsn", env: map[string]string{"STORE_DRIVER": "postgres"}},
		{name: "negative_window", env: map[string]string{"ANTI_SNIPE_WINDOW": "-1s"}},
		{name: "bad_rate", env: map[string]string{"BID_RATE_PER_SEC": "fast"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SWEEP_BATCH=7\n"), 0o600))
	t.Setenv("SWEEP_BATCH", "")
	require.NoError(t, os.Unsetenv("SWEEP_BATCH"))

	LoadDotEnv(path)
	t.Cleanup(func() { os.Unsetenv("SWEEP_BATCH") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Settlement.Batch)
}

const seedYAML = `
products:
  - product_id: p1
    name: Vintage camera
    base_price: "80"
auctions:
  - auction_id: a1
    product_id: p1
    starting_bid: "100"
    bid_increment: "50"
    reserve_price: "500"
    duration: 10m
    approved: true
  - auction_id: a2
    product_id: p1
    starting_bid: "10"
    bid_increment: "1"
    starts_in: 1h
    duration: 30m
registrations:
  - auction_id: a1
    user_id: alice
`

func TestSeed_Apply(t *testing.T) {
	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryRepo()
	machine := auctionstate.NewMachine(repo, fakeclock.NewFakeClock(now), 0)
	ctx := context.Background()

	require.NoError(t, seed.Apply(ctx, repo, machine, now))

	product, err := repo.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "80", product.BasePrice.String())

	a1, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, a1.Status)
	assert.Equal(t, now.Add(10*time.Minute), a1.EndTime)
	assert.Equal(t, "500", a1.ReservePrice.Decimal.String())

	a2, err := repo.GetAuction(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, a2.Status)
	assert.Equal(t, now.Add(time.Hour), a2.StartTime)
	assert.False(t, a2.ReservePrice.Valid)

	reg, err := repo.GetRegistration(ctx, "a1", "alice")
	require.NoError(t, err)
	assert.True(t, reg.FeePaid)

	// applying again leaves existing entries untouched
	require.NoError(t, seed.Apply(ctx, repo, machine, now.Add(time.Hour)))
	again, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a1, again)

	_, err = repo.GetAuction(ctx, "a3")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "not_yaml", yaml: "products: [:"},
		{name: "product_without_id", yaml: "products:\n  - name: x\n"},
		{name: "auction_without_product", yaml: "auctions:\n  - auction_id: a1\n    duration: 1m\n"},
		{name: "auction_without_duration", yaml: "auctions:\n  - auction_id: a1\n    product_id: p1\n"},
		{name: "registration_without_user", yaml: "registrations:\n  - auction_id: a1\n"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSeed([]byte(tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestSeed_ApplyBadAmount(t *testing.T) {
	seed, err := ParseSeed([]byte("auctions:\n  - auction_id: a1\n    product_id: p1\n    starting_bid: lots\n    duration: 1m\n"))
	require.NoError(t, err)

	repo := repository.NewMemoryRepo()
	now := time.Now()
	err = seed.Apply(context.Background(), repo, auctionstate.NewMachine(repo, fakeclock.NewFakeClock(now), 0), now)
	require.Error(t, err)
}

func TestLoadSeed_MissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
