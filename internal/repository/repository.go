package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the storage interface for the auction engine.
// AcceptBid, UpdateStatus and FinalizeAuction are conditional writes keyed on
// the auction version; a mismatch returns biddingerrors.ErrStaleRead.
type AuctionDB interface {
	AddProduct(ctx context.Context, product model.Product) error
	GetProduct(ctx context.Context, productID string) (model.Product, error)

	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	UpdateStatus(ctx context.Context, auctionID string, expectedVersion int64, to model.AuctionStatus, at time.Time) (model.Auction, error)
	ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]model.Auction, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)

	AddRegistration(ctx context.Context, reg model.Registration) error
	GetRegistration(ctx context.Context, auctionID, userID string) (model.Registration, error)

	AcceptBid(ctx context.Context, params model.AcceptBidParams) (model.AcceptedBid, error)
	HighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	ListBids(ctx context.Context, auctionID string, afterSequence int64, limit int) ([]model.Bid, error)

	FinalizeAuction(ctx context.Context, expectedVersion int64, result model.AuctionResult) (model.AuctionResult, error)
	GetResult(ctx context.Context, auctionID string) (model.AuctionResult, error)
}

// auctionEntry holds one auction and its ledger. Its mutex scopes all
// concurrency control to a single auction.
type auctionEntry struct {
	mu      sync.RWMutex
	auction model.Auction
	bids    []model.Bid // index i holds sequence i+1
	result  *model.AuctionResult
}

type registrationKey struct {
	auctionID string
	userID    string
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu            sync.RWMutex // guards map membership only
	auctions      map[string]*auctionEntry
	products      map[string]model.Product
	registrations map[registrationKey]model.Registration
	userAuctions  map[string][]string // key: userID -> value: auctionIDs the user has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:      make(map[string]*auctionEntry),
		products:      make(map[string]model.Product),
		registrations: make(map[registrationKey]model.Registration),
		userAuctions:  make(map[string][]string),
	}
}

func (r *MemoryRepo) entry(auctionID string) (*auctionEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return e, nil
}

// AddProduct stores catalog reference data
func (r *MemoryRepo) AddProduct(_ context.Context, product model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ProductID] = product
	return nil
}

// GetProduct returns catalog reference data for a product
func (r *MemoryRepo) GetProduct(_ context.Context, productID string) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[productID]
	if !ok {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return p, nil
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrDuplicateAuction)
	}
	r.auctions[auction.AuctionID] = &auctionEntry{auction: auction}
	return nil
}

// GetAuction returns the current state of an auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	e, err := r.entry(auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.auction, nil
}

// UpdateStatus moves an auction to a non-terminal status if its version is unchanged
func (r *MemoryRepo) UpdateStatus(_ context.Context, auctionID string, expectedVersion int64, to model.AuctionStatus, at time.Time) (model.Auction, error) {
	if to.IsTerminal() {
		return model.Auction{}, fmt.Errorf("update status of %s to %s: %w", auctionID, to, biddingerrors.ErrInvalidTransition)
	}
	e, err := r.entry(auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("update status: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.auction.Version != expectedVersion {
		return model.Auction{}, fmt.Errorf("update status of %s: %w", auctionID, biddingerrors.ErrStaleRead)
	}
	if e.auction.Status.IsTerminal() {
		return model.Auction{}, fmt.Errorf("update status of %s from %s: %w", auctionID, e.auction.Status, biddingerrors.ErrInvalidTransition)
	}
	e.auction.Status = to
	e.auction.Version++
	e.auction.UpdatedAt = at
	return e.auction, nil
}

// ListDueAuctions returns scheduled auctions past their start and active auctions past their end
func (r *MemoryRepo) ListDueAuctions(_ context.Context, now time.Time, limit int) ([]model.Auction, error) {
	r.mu.RLock()
	entries := make([]*auctionEntry, 0, len(r.auctions))
	for _, e := range r.auctions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var due []model.Auction
	for _, e := range entries {
		e.mu.RLock()
		a := e.auction
		e.mu.RUnlock()
		switch {
		case a.Status == model.StatusScheduled && !now.Before(a.StartTime):
			due = append(due, a)
		case a.Status == model.StatusActive && !now.Before(a.EndTime):
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndTime.Before(due[j].EndTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByUser(_ context.Context, userID string) ([]model.Auction, error) {
	r.mu.RLock()
	ids := append([]string(nil), r.userAuctions[userID]...)
	r.mu.RUnlock()

	if len(ids) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	auctions := make([]model.Auction, 0, len(ids))
	for _, id := range ids {
		e, err := r.entry(id)
		if err != nil {
			continue
		}
		e.mu.RLock()
		auctions = append(auctions, e.auction)
		e.mu.RUnlock()
	}
	return auctions, nil
}

// AddRegistration records a paid registration; each (auction, user) pair is stored once
func (r *MemoryRepo) AddRegistration(_ context.Context, reg model.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.auctions[reg.AuctionID]; !ok {
		return fmt.Errorf("add registration for auction %s: %w", reg.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	key := registrationKey{auctionID: reg.AuctionID, userID: reg.UserID}
	if _, ok := r.registrations[key]; ok {
		return fmt.Errorf("add registration for auction %s user %s: %w", reg.AuctionID, reg.UserID, biddingerrors.ErrDuplicateRegistration)
	}
	r.registrations[key] = reg
	return nil
}

// GetRegistration returns the registration of a user for an auction
func (r *MemoryRepo) GetRegistration(_ context.Context, auctionID, userID string) (model.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registrations[registrationKey{auctionID: auctionID, userID: userID}]
	if !ok {
		return model.Registration{}, fmt.Errorf("get registration for auction %s user %s: %w", auctionID, userID, biddingerrors.ErrRegistrationNotFound)
	}
	return reg, nil
}

// AcceptBid appends a bid and updates the auction price, leader and end time in
// one step, provided the auction version still matches
func (r *MemoryRepo) AcceptBid(_ context.Context, params model.AcceptBidParams) (model.AcceptedBid, error) {
	bid := params.Bid
	e, err := r.entry(bid.AuctionID)
	if err != nil {
		return model.AcceptedBid{}, fmt.Errorf("accept bid: %w", err)
	}

	e.mu.Lock()
	if e.auction.Version != params.ExpectedVersion {
		e.mu.Unlock()
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrStaleRead)
	}
	if !e.auction.AcceptsBidsAt(bid.AcceptedAt) {
		e.mu.Unlock()
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotActive)
	}

	previousLeader := e.auction.LeaderID
	extended := params.NewEndTime.After(e.auction.EndTime)

	bid.Sequence = e.auction.BidCount + 1
	e.bids = append(e.bids, bid)
	e.auction.BidCount = bid.Sequence
	e.auction.CurrentBid.Decimal = bid.Amount
	e.auction.CurrentBid.Valid = true
	e.auction.LeaderID = bid.UserID
	if extended {
		e.auction.EndTime = params.NewEndTime
	}
	e.auction.Version++
	e.auction.UpdatedAt = bid.AcceptedAt
	auction := e.auction
	e.mu.Unlock()

	r.trackUserAuction(bid.UserID, bid.AuctionID)

	return model.AcceptedBid{
		Bid:            bid,
		PreviousLeader: previousLeader,
		Auction:        auction,
		Extended:       extended,
	}, nil
}

func (r *MemoryRepo) trackUserAuction(userID, auctionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.userAuctions[userID] {
		if id == auctionID {
			return
		}
	}
	r.userAuctions[userID] = append(r.userAuctions[userID], auctionID)
}

// HighestBid returns the bid with the highest sequence for an auction
func (r *MemoryRepo) HighestBid(_ context.Context, auctionID string) (model.Bid, error) {
	e, err := r.entry(auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("get highest bid: %w", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return e.bids[len(e.bids)-1], nil
}

// ListBids returns up to limit bids with a sequence greater than afterSequence, in order
func (r *MemoryRepo) ListBids(_ context.Context, auctionID string, afterSequence int64, limit int) ([]model.Bid, error) {
	e, err := r.entry(auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if afterSequence < 0 {
		afterSequence = 0
	}
	if afterSequence >= int64(len(e.bids)) {
		return []model.Bid{}, nil
	}
	end := int64(len(e.bids))
	if limit > 0 && afterSequence+int64(limit) < end {
		end = afterSequence + int64(limit)
	}
	return append([]model.Bid(nil), e.bids[afterSequence:end]...), nil
}

// FinalizeAuction moves an auction to the terminal status of the result and
// stores the result, at most once per auction. A second call returns the
// stored result with biddingerrors.ErrAlreadySettled.
func (r *MemoryRepo) FinalizeAuction(_ context.Context, expectedVersion int64, result model.AuctionResult) (model.AuctionResult, error) {
	e, err := r.entry(result.AuctionID)
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("finalize auction: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result != nil {
		return *e.result, fmt.Errorf("finalize auction %s: %w", result.AuctionID, biddingerrors.ErrAlreadySettled)
	}
	if e.auction.Version != expectedVersion {
		return model.AuctionResult{}, fmt.Errorf("finalize auction %s: %w", result.AuctionID, biddingerrors.ErrStaleRead)
	}
	if e.auction.Status.IsTerminal() {
		return model.AuctionResult{}, fmt.Errorf("finalize auction %s in status %s: %w", result.AuctionID, e.auction.Status, biddingerrors.ErrInvalidTransition)
	}

	e.auction.Status = result.Outcome.Status()
	e.auction.Version++
	e.auction.UpdatedAt = result.SettledAt
	stored := result
	e.result = &stored
	return stored, nil
}

// GetResult returns the settled result of an auction
func (r *MemoryRepo) GetResult(_ context.Context, auctionID string) (model.AuctionResult, error) {
	e, err := r.entry(auctionID)
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("get result: %w", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.result == nil {
		return model.AuctionResult{}, fmt.Errorf("get result for auction %s: %w", auctionID, biddingerrors.ErrResultNotFound)
	}
	return *e.result, nil
}
