package registration

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *repository.MemoryRepo
	clock  *fakeclock.FakeClock
	tokens *Tokens
	gate   *Gate
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	clk := fakeclock.NewFakeClock(baseTime)

	require.NoError(t, repo.CreateAuction(ctx, model.Auction{
		AuctionID:            "open",
		StartTime:            baseTime.Add(time.Hour),
		EndTime:              baseTime.Add(2 * time.Hour),
		RegistrationDeadline: baseTime.Add(30 * time.Minute),
		Status:               model.StatusScheduled,
		Version:              1,
	}))
	require.NoError(t, repo.CreateAuction(ctx, model.Auction{
		AuctionID:            "closed",
		StartTime:            baseTime.Add(-2 * time.Hour),
		EndTime:              baseTime.Add(-time.Hour),
		RegistrationDeadline: baseTime.Add(-2 * time.Hour),
		Status:               model.StatusEndedSold,
		Version:              3,
	}))

	tokens, err := NewTokens([]byte("test-secret"), "", clk)
	require.NoError(t, err)
	return fixture{repo: repo, clock: clk, tokens: tokens, gate: NewGate(repo, tokens, clk)}
}

func TestNewTokens_RequiresSecret(t *testing.T) {
	_, err := NewTokens(nil, "", fakeclock.NewFakeClock(baseTime))
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	other, err := NewTokens([]byte("other-secret"), "", f.clock)
	require.NoError(t, err)
	foreign, err := NewTokens([]byte("test-secret"), "someone-else", f.clock)
	require.NoError(t, err)

	valid, err := f.tokens.Issue("alice", "open", true, baseTime, time.Hour)
	require.NoError(t, err)
	wrongKey, err := other.Issue("alice", "open", true, baseTime, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := foreign.Issue("alice", "open", true, baseTime, time.Hour)
	require.NoError(t, err)
	shortLived, err := f.tokens.Issue("alice", "open", true, baseTime, time.Minute)
	require.NoError(t, err)

	claims, err := f.tokens.Verify(valid)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "open", claims.AuctionID)
	assert.True(t, claims.FeePaid)

	for name, token := range map[string]string{"empty": "", "garbage": "not-a-jwt", "wrong key": wrongKey, "wrong issuer": wrongIssuer} {
		_, err := f.tokens.Verify(token)
		assert.ErrorIs(t, err, biddingerrors.ErrInvalidToken, name)
	}

	f.clock.Increment(2 * time.Minute)
	_, err = f.tokens.Verify(shortLived)
	assert.ErrorIs(t, err, biddingerrors.ErrInvalidToken, "expired")
}

func TestRegister(t *testing.T) {
	testCases := []struct {
		name    string
		token   func(f fixture) string
		advance time.Duration
		wantErr error
	}{
		{
			name: "paid registration",
			token: func(f fixture) string {
				tok, _ := f.tokens.Issue("alice", "open", true, baseTime.Add(-time.Minute), time.Hour)
				return tok
			},
		},
		{
			name: "fee not paid",
			token: func(f fixture) string {
				tok, _ := f.tokens.Issue("alice", "open", false, time.Time{}, time.Hour)
				return tok
			},
			wantErr: biddingerrors.ErrFeeNotPaid,
		},
		{
			name: "unknown auction",
			token: func(f fixture) string {
				tok, _ := f.tokens.Issue("alice", "missing", true, baseTime, time.Hour)
				return tok
			},
			wantErr: biddingerrors.ErrAuctionNotFound,
		},
		{
			name: "terminal auction",
			token: func(f fixture) string {
				tok, _ := f.tokens.Issue("alice", "closed", true, baseTime, time.Hour)
				return tok
			},
			wantErr: biddingerrors.ErrRegistrationClosed,
		},
		{
			name: "after deadline",
			token: func(f fixture) string {
				tok, _ := f.tokens.Issue("alice", "open", true, baseTime, 3*time.Hour)
				return tok
			},
			advance: 31 * time.Minute,
			wantErr: biddingerrors.ErrRegistrationClosed,
		},
		{
			name:    "invalid token",
			token:   func(f fixture) string { return "bogus" },
			wantErr: biddingerrors.ErrInvalidToken,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			token := tc.token(f)
			f.clock.Increment(tc.advance)

			reg, err := f.gate.Register(context.Background(), "", token)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", reg.UserID)
			assert.True(t, reg.FeePaid)
			assert.Equal(t, baseTime.Add(-time.Minute), reg.PaidAt)
		})
	}
}

func TestRegister_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, err := f.tokens.Issue("alice", "open", true, baseTime, 3*time.Hour)
	require.NoError(t, err)

	first, err := f.gate.Register(ctx, "open", token)
	require.NoError(t, err)

	// a repeat after the deadline still returns the stored registration
	f.clock.Increment(time.Hour)
	second, err := f.gate.Register(ctx, "open", token)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRegister_AuctionMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, err := f.tokens.Issue("alice", "open", true, baseTime, time.Hour)
	require.NoError(t, err)

	_, err = f.gate.Register(ctx, "closed", token)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidToken)

	_, err = f.repo.GetRegistration(ctx, "open", "alice")
	require.ErrorIs(t, err, biddingerrors.ErrRegistrationNotFound, "nothing is stored for a mismatched token")
}

func TestIsEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.AddRegistration(ctx, model.Registration{AuctionID: "open", UserID: "alice", FeePaid: true, PaidAt: baseTime}))
	require.NoError(t, f.repo.AddRegistration(ctx, model.Registration{AuctionID: "open", UserID: "bob", FeePaid: false}))
	require.NoError(t, f.repo.AddRegistration(ctx, model.Registration{AuctionID: "closed", UserID: "alice", FeePaid: true, PaidAt: baseTime}))

	testCases := []struct {
		auction, user string
		want          bool
		wantErr       error
	}{
		{auction: "open", user: "alice", want: true},
		{auction: "open", user: "bob", want: false},
		{auction: "open", user: "carol", want: false},
		{auction: "closed", user: "alice", want: false},
		{auction: "missing", user: "alice", wantErr: biddingerrors.ErrAuctionNotFound},
	}
	for _, tc := range testCases {
		got, err := f.gate.IsEligible(ctx, tc.auction, tc.user)
		if tc.wantErr != nil {
			require.ErrorIs(t, err, tc.wantErr)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s/%s", tc.auction, tc.user)
	}
}

func TestIsEligible_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	boom := errors.New("disk full")
	repo := repository.NewMockAuctionDB(ctrl)
	repo.EXPECT().GetAuction(gomock.Any(), "a1").Return(model.Auction{AuctionID: "a1", Status: model.StatusActive}, nil)
	repo.EXPECT().GetRegistration(gomock.Any(), "a1", "alice").Return(model.Registration{}, boom)

	ok, err := NewGate(repo, nil, fakeclock.NewFakeClock(baseTime)).IsEligible(context.Background(), "a1", "alice")
	require.ErrorIs(t, err, boom)
	assert.False(t, ok)
}
