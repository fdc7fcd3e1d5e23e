package main

import (
	"auction-engine/internal/auctionstate"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/ledger"
	"auction-engine/internal/metrics"
	"auction-engine/internal/notify"
	"auction-engine/internal/registration"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/sqlstore"
	"auction-engine/internal/server"
	"auction-engine/internal/settlement"
	"auction-engine/utils"
	"context"
	"os"

	"code.cloudfoundry.org/clock"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/http_server"
	"github.com/tedsuo/ifrit/sigmon"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("Invalid configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Warn("Unknown LOG_LEVEL, keeping info", map[string]any{"level": cfg.LogLevel})
	}

	ctx := context.Background()
	clk := clock.NewClock()
	m := metrics.New()

	repo, closeStore := openStore(ctx, cfg)
	defer closeStore()

	machine := auctionstate.NewMachine(repo, clk, cfg.Auction.RegistrationLead)

	secret := cfg.Registration.TokenSecret
	if secret == "" {
		secret = utils.GenerateID()
		utils.Warn("REGISTRATION_TOKEN_SECRET not set, using an ephemeral secret", nil)
	}
	tokens, err := registration.NewTokens([]byte(secret), cfg.Registration.TokenIssuer, clk)
	if err != nil {
		utils.Fatal("Failed to set up registration tokens", map[string]any{"error": err.Error()})
	}
	gate := registration.NewGate(repo, tokens, clk)

	broker := notify.NewBroker(cfg.SubscriberBuffer, m)
	fanout := notify.NewFanout(broker)

	biddingSvc := bidding.NewBiddingService(repo, bidding.Config{
		Clock:     clk,
		Extension: cfg.Auction.Extension,
		Gate:      gate,
		Auctions:  machine,
		Notifier:  fanout,
		Metrics:   m,
	})
	engine := settlement.NewEngine(repo, settlement.Config{
		Clock:    clk,
		Auctions: machine,
		Notifier: fanout,
		Metrics:  m,
	})
	sweeper := settlement.NewSweeper(repo, engine, cfg.Settlement)

	if cfg.SeedFile != "" {
		seedAuctions(ctx, cfg.SeedFile, repo, machine, clk)
	}

	router := server.SetupRouter(server.Dependencies{
		Bidding:          biddingSvc,
		Auctions:         machine,
		Products:         repo,
		Settlement:       engine,
		Registration:     gate,
		History:          ledger.New(repo),
		Events:           broker,
		Metrics:          m,
		Clock:            clk,
		BidRatePerSecond: cfg.RateLimit.PerSecond,
		BidRateBurst:     cfg.RateLimit.Burst,
	})

	grpcServer, health := server.NewGRPCServer()

	// members stop in reverse order: closing the broker ends open event
	// streams before the HTTP server drains
	members := grouper.Members{
		{Name: "sweeper", Runner: sweeper},
		{Name: "grpc", Runner: &server.GRPCRunner{Addr: cfg.GRPCPort, Server: grpcServer, Health: health}},
		{Name: "http", Runner: http_server.New(cfg.Port, router)},
		{Name: "events", Runner: ifrit.RunFunc(func(signals <-chan os.Signal, ready chan<- struct{}) error {
			close(ready)
			<-signals
			broker.Close()
			return nil
		})},
	}

	utils.Info("Starting auction server", map[string]any{
		"port":      cfg.Port,
		"grpc_port": cfg.GRPCPort,
		"store":     cfg.Store.Driver,
	})

	process := ifrit.Invoke(sigmon.New(grouper.NewOrdered(os.Interrupt, members)))
	if err := <-process.Wait(); err != nil {
		utils.Error("Auction server exited with error", map[string]any{"error": err.Error()})
		closeStore()
		os.Exit(1)
	}
	utils.Info("Auction server stopped", nil)
}

// openStore returns the configured auction store and a func releasing it
func openStore(ctx context.Context, cfg *config.Config) (repository.AuctionDB, func()) {
	if cfg.Store.Driver == config.DriverMemory {
		return repository.NewMemoryRepo(), func() {}
	}

	store, err := sqlstore.Open(ctx, cfg.Store.SQL())
	if err != nil {
		utils.Fatal("Failed to open store", map[string]any{"driver": cfg.Store.Driver, "error": err.Error()})
	}
	return store, func() {
		if err := store.Close(); err != nil {
			utils.Warn("Failed to close store", map[string]any{"error": err.Error()})
		}
	}
}

// seedAuctions loads demo products, auctions and registrations
func seedAuctions(ctx context.Context, path string, repo repository.AuctionDB, machine *auctionstate.Machine, clk clock.Clock) {
	seed, err := config.LoadSeed(path)
	if err != nil {
		utils.Fatal("Failed to load seed file", map[string]any{"path": path, "error": err.Error()})
	}
	if err := seed.Apply(ctx, repo, machine, clk.Now()); err != nil {
		utils.Fatal("Failed to apply seed", map[string]any{"path": path, "error": err.Error()})
	}
	utils.Info("Seed applied", map[string]any{
		"path":     path,
		"products": len(seed.Products),
		"auctions": len(seed.Auctions),
	})
}
