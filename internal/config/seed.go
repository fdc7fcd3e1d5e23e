package config

import (
	"auction-engine/internal/auctionstate"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Seed is the yaml file of demo data loaded at startup
type Seed struct {
	Products      []SeedProduct      `yaml:"products"`
	Auctions      []SeedAuction      `yaml:"auctions"`
	Registrations []SeedRegistration `yaml:"registrations"`
}

type SeedProduct struct {
	ProductID string `yaml:"product_id"`
	Name      string `yaml:"name"`
	ImageURL  string `yaml:"image_url"`
	BasePrice string `yaml:"base_price"`
}

// SeedAuction times are offsets from the moment the seed is applied
type SeedAuction struct {
	AuctionID    string `yaml:"auction_id"`
	ProductID    string `yaml:"product_id"`
	StartingBid  string `yaml:"starting_bid"`
	BidIncrement string `yaml:"bid_increment"`
	ReservePrice string `yaml:"reserve_price"`
	StartsIn     string `yaml:"starts_in"`
	Duration     string `yaml:"duration"`
	Approved     bool   `yaml:"approved"`
}

type SeedRegistration struct {
	AuctionID string `yaml:"auction_id"`
	UserID    string `yaml:"user_id"`
}

// LoadSeed reads and parses a seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed yaml and checks required fields
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("unable to parse seed: %w", err)
	}
	for i, p := range seed.Products {
		if p.ProductID == "" {
			return nil, fmt.Errorf("product at index %d missing product_id", i)
		}
	}
	for i, a := range seed.Auctions {
		if a.AuctionID == "" || a.ProductID == "" {
			return nil, fmt.Errorf("auction at index %d missing auction_id or product_id", i)
		}
		if a.Duration == "" {
			return nil, fmt.Errorf("auction %s missing duration", a.AuctionID)
		}
	}
	for i, r := range seed.Registrations {
		if r.AuctionID == "" || r.UserID == "" {
			return nil, fmt.Errorf("registration at index %d missing auction_id or user_id", i)
		}
	}
	return &seed, nil
}

// Apply writes the seed through the state machine so seeded auctions follow
// the normal lifecycle. Entries that already exist are skipped, so the same
// seed can be applied on every start against a persistent store.
func (s *Seed) Apply(ctx context.Context, repo repository.AuctionDB, machine *auctionstate.Machine, now time.Time) error {
	for _, p := range s.Products {
		price, err := parseDecimal(p.BasePrice)
		if err != nil {
			return fmt.Errorf("product %s: %w", p.ProductID, err)
		}
		product := model.Product{ProductID: p.ProductID, Name: p.Name, ImageURL: p.ImageURL, BasePrice: price}
		if err := repo.AddProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ProductID, err)
		}
	}

	for _, a := range s.Auctions {
		params, err := a.params(now)
		if err != nil {
			return fmt.Errorf("auction %s: %w", a.AuctionID, err)
		}
		_, err = machine.Create(ctx, params)
		if errors.Is(err, biddingerrors.ErrDuplicateAuction) {
			utils.Debug("Seed auction already exists", map[string]any{"auction_id": a.AuctionID})
			continue
		}
		if err != nil {
			return fmt.Errorf("seed auction %s: %w", a.AuctionID, err)
		}
		if !a.Approved {
			continue
		}
		if _, err := machine.Submit(ctx, a.AuctionID); err != nil {
			return fmt.Errorf("seed auction %s: %w", a.AuctionID, err)
		}
		if _, err := machine.Approve(ctx, a.AuctionID); err != nil {
			return fmt.Errorf("seed auction %s: %w", a.AuctionID, err)
		}
	}

	for _, r := range s.Registrations {
		err := repo.AddRegistration(ctx, model.Registration{AuctionID: r.AuctionID, UserID: r.UserID, FeePaid: true, PaidAt: now})
		if err != nil && !errors.Is(err, biddingerrors.ErrDuplicateRegistration) {
			return fmt.Errorf("seed registration %s/%s: %w", r.AuctionID, r.UserID, err)
		}
	}

	utils.Info("Seed applied", map[string]any{
		"products":      len(s.Products),
		"auctions":      len(s.Auctions),
		"registrations": len(s.Registrations),
	})
	return nil
}

func (a SeedAuction) params(now time.Time) (auctionstate.CreateAuctionParams, error) {
	var startsIn time.Duration
	if a.StartsIn != "" {
		d, err := time.ParseDuration(a.StartsIn)
		if err != nil {
			return auctionstate.CreateAuctionParams{}, fmt.Errorf("invalid starts_in %q: %w", a.StartsIn, err)
		}
		startsIn = d
	}
	duration, err := time.ParseDuration(a.Duration)
	if err != nil {
		return auctionstate.CreateAuctionParams{}, fmt.Errorf("invalid duration %q: %w", a.Duration, err)
	}
	starting, err := parseDecimal(a.StartingBid)
	if err != nil {
		return auctionstate.CreateAuctionParams{}, err
	}
	increment, err := parseDecimal(a.BidIncrement)
	if err != nil {
		return auctionstate.CreateAuctionParams{}, err
	}
	var reserve decimal.NullDecimal
	if a.ReservePrice != "" {
		r, err := parseDecimal(a.ReservePrice)
		if err != nil {
			return auctionstate.CreateAuctionParams{}, err
		}
		reserve = decimal.NewNullDecimal(r)
	}

	start := now.Add(startsIn)
	return auctionstate.CreateAuctionParams{
		AuctionID:    a.AuctionID,
		ProductID:    a.ProductID,
		StartTime:    start,
		EndTime:      start.Add(duration),
		StartingBid:  starting,
		BidIncrement: increment,
		ReservePrice: reserve,
	}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}
