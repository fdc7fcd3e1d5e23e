package settlement

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/workpool"
)

// SweeperConfig controls how often and how widely the sweeper looks for due auctions
type SweeperConfig struct {
	Interval time.Duration
	Batch    int
	Workers  int
}

// Sweeper periodically activates auctions past their start and settles
// auctions past their end. Every action it takes is idempotent, so ticks
// may overlap with API calls or with another sweeper.
type Sweeper struct {
	repo     repository.AuctionDB
	engine   *Engine
	auctions AuctionReader
	clock    clock.Clock
	cfg      SweeperConfig
}

// NewSweeper creates a sweeper; it does nothing until run
func NewSweeper(repo repository.AuctionDB, engine *Engine, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Sweeper{
		repo:     repo,
		engine:   engine,
		auctions: engine.auctions,
		clock:    engine.clock,
		cfg:      cfg,
	}
}

// Run implements ifrit.Runner
func (s *Sweeper) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	pool, err := workpool.NewWorkPool(s.cfg.Workers)
	if err != nil {
		return err
	}
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	utils.Info("Settlement sweeper started", map[string]any{"interval": s.cfg.Interval.String(), "workers": s.cfg.Workers})
	close(ready)

	for {
		select {
		case <-signals:
			utils.Info("Settlement sweeper stopping", nil)
			return nil
		case <-ticker.C():
			s.sweep(ctx, pool.Submit)
		}
	}
}

// Sweep runs one pass inline and returns the number of auctions settled
func (s *Sweeper) Sweep(ctx context.Context) int {
	return s.sweep(ctx, func(work func()) { work() })
}

func (s *Sweeper) sweep(ctx context.Context, submit func(func())) int {
	due, err := s.repo.ListDueAuctions(ctx, utils.Timestamp(s.clock.Now()), s.cfg.Batch)
	if err != nil {
		utils.Error("Failed to list due auctions", map[string]any{"error": err.Error()})
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for _, a := range due {
		a := a
		wg.Add(1)
		submit(func() {
			defer wg.Done()
			if s.process(ctx, a) {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return settled
}

func (s *Sweeper) process(ctx context.Context, a model.Auction) bool {
	if a.Status == model.StatusScheduled {
		activated, err := s.auctions.Current(ctx, a.AuctionID)
		if err != nil {
			utils.Error("Failed to activate auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
			return false
		}
		// an auction may start and end between two ticks
		if activated.Status != model.StatusActive || s.clock.Now().Before(activated.EndTime) {
			return false
		}
	}

	_, err := s.engine.Settle(ctx, a.AuctionID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, biddingerrors.ErrSettlementNotDue):
		// extended by a late bid since it was listed
		return false
	default:
		utils.Error("Failed to settle auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
		return false
	}
}
