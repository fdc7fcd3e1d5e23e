package auctionstate

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"context"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validParams() CreateAuctionParams {
	return CreateAuctionParams{
		AuctionID:    "a1",
		ProductID:    "p1",
		StartTime:    baseTime.Add(time.Hour),
		EndTime:      baseTime.Add(2 * time.Hour),
		StartingBid:  decimal.NewFromInt(100),
		BidIncrement: decimal.NewFromInt(10),
	}
}

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to model.AuctionStatus
		want     bool
	}{
		{model.StatusDraft, model.StatusPendingApproval, true},
		{model.StatusPendingApproval, model.StatusScheduled, true},
		{model.StatusPendingApproval, model.StatusDraft, true},
		{model.StatusScheduled, model.StatusActive, true},
		{model.StatusScheduled, model.StatusCancelled, true},
		{model.StatusActive, model.StatusEndedSold, true},
		{model.StatusActive, model.StatusEndedUnsold, true},
		{model.StatusActive, model.StatusCancelled, true},
		{model.StatusDraft, model.StatusActive, false},
		{model.StatusDraft, model.StatusCancelled, false},
		{model.StatusScheduled, model.StatusEndedSold, false},
		{model.StatusEndedSold, model.StatusActive, false},
		{model.StatusCancelled, model.StatusScheduled, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCreate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(p *CreateAuctionParams)
		wantErr error
	}{
		{name: "valid", mutate: func(p *CreateAuctionParams) {}},
		{name: "missing product", mutate: func(p *CreateAuctionParams) { p.ProductID = "" }, wantErr: biddingerrors.ErrInvalidAuction},
		{name: "end before start", mutate: func(p *CreateAuctionParams) { p.EndTime = p.StartTime }, wantErr: biddingerrors.ErrInvalidAuction},
		{name: "zero increment", mutate: func(p *CreateAuctionParams) { p.BidIncrement = decimal.Zero }, wantErr: biddingerrors.ErrInvalidAuction},
		{name: "negative starting bid", mutate: func(p *CreateAuctionParams) { p.StartingBid = decimal.NewFromInt(-1) }, wantErr: biddingerrors.ErrInvalidAuction},
		{
			name:    "negative reserve",
			mutate:  func(p *CreateAuctionParams) { p.ReservePrice = decimal.NewNullDecimal(decimal.NewFromInt(-5)) },
			wantErr: biddingerrors.ErrInvalidAuction,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewMachine(repository.NewMemoryRepo(), fakeclock.NewFakeClock(baseTime), 30*time.Minute)
			p := validParams()
			tc.mutate(&p)

			a, err := m.Create(context.Background(), p)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.StatusDraft, a.Status)
			assert.Equal(t, int64(1), a.Version)
			assert.Equal(t, p.StartTime.Add(-30*time.Minute), a.RegistrationDeadline)
			assert.Equal(t, baseTime, a.CreatedAt)
		})
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	clk := fakeclock.NewFakeClock(baseTime)
	m := NewMachine(repository.NewMemoryRepo(), clk, 0)

	_, err := m.Create(ctx, validParams())
	require.NoError(t, err)

	_, err = m.Approve(ctx, "a1")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)

	a, err := m.Submit(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, a.Status)

	a, err = m.Reject(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, a.Status)

	_, err = m.Submit(ctx, "a1")
	require.NoError(t, err)
	a, err = m.Approve(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, a.Status)

	// before start the auction stays scheduled
	a, err = m.Current(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, a.Status)

	clk.Increment(time.Hour)
	a, err = m.Current(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, a.Status)

	_, err = m.Transition(ctx, "a1", model.StatusEndedSold)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)

	_, err = m.Current(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
}

func TestCurrent_ConcurrentActivation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, model.Auction{
		AuctionID: "a1",
		StartTime: baseTime,
		EndTime:   baseTime.Add(time.Hour),
		Status:    model.StatusScheduled,
		Version:   1,
	}))
	m := NewMachine(repo, fakeclock.NewFakeClock(baseTime.Add(time.Second)), 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := m.Current(ctx, "a1")
			assert.NoError(t, err)
			assert.Equal(t, model.StatusActive, a.Status)
		}()
	}
	wg.Wait()

	a, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, a.Status)
	assert.Equal(t, int64(2), a.Version, "activation happens exactly once")
}

func TestTransition_RetriesStaleRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := repository.NewMockAuctionDB(ctrl)
	m := NewMachine(repo, fakeclock.NewFakeClock(baseTime), 0)

	draftV1 := model.Auction{AuctionID: "a1", Status: model.StatusDraft, Version: 1}
	draftV2 := model.Auction{AuctionID: "a1", Status: model.StatusDraft, Version: 2}
	pending := model.Auction{AuctionID: "a1", Status: model.StatusPendingApproval, Version: 3}

	gomock.InOrder(
		repo.EXPECT().GetAuction(gomock.Any(), "a1").Return(draftV1, nil),
		repo.EXPECT().UpdateStatus(gomock.Any(), "a1", int64(1), model.StatusPendingApproval, baseTime).
			Return(model.Auction{}, biddingerrors.ErrStaleRead),
		repo.EXPECT().GetAuction(gomock.Any(), "a1").Return(draftV2, nil),
		repo.EXPECT().UpdateStatus(gomock.Any(), "a1", int64(2), model.StatusPendingApproval, baseTime).
			Return(pending, nil),
	)

	a, err := m.Submit(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, pending, a)
}

func TestExtensionPolicy(t *testing.T) {
	end := baseTime
	p := DefaultExtensionPolicy()

	testCases := []struct {
		name       string
		acceptedAt time.Time
		want       time.Time
	}{
		{name: "five minutes before end", acceptedAt: end.Add(-5 * time.Minute), want: end},
		{name: "just outside window", acceptedAt: end.Add(-61 * time.Second), want: end},
		{name: "window boundary", acceptedAt: end.Add(-60 * time.Second), want: end.Add(2 * time.Minute)},
		{name: "ten seconds before end", acceptedAt: end.Add(-10 * time.Second), want: end.Add(2 * time.Minute)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.EndTimeAfterBid(end, tc.acceptedAt))
		})
	}

	disabled := ExtensionPolicy{}
	assert.Equal(t, end, disabled.EndTimeAfterBid(end, end.Add(-time.Second)))
}
