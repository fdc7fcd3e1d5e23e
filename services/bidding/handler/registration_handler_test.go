package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGate := NewMockRegistrationServiceInterface(ctrl)
	handler := NewRegistrationHandler(mockGate)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/auctions/:auction_id/registrations", handler.RegisterHandler)

	paidAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           any
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "registered",
			body: map[string]any{"token": "tok-ok"},
			mockSetup: func() {
				mockGate.EXPECT().Register(gomock.Any(), "a1", "tok-ok").
					Return(model.Registration{AuctionID: "a1", UserID: "alice", FeePaid: true, PaidAt: paidAt}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "registration recorded successfully",
		},
		{
			name:           "missing_token",
			body:           map[string]any{},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "bad_signature",
			body: map[string]any{"token": "tok-forged"},
			mockSetup: func() {
				mockGate.EXPECT().Register(gomock.Any(), "a1", "tok-forged").
					Return(model.Registration{}, fmt.Errorf("registration: %w", biddingerrors.ErrInvalidToken))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid registration token",
		},
		{
			name: "fee_unpaid",
			body: map[string]any{"token": "tok-unpaid"},
			mockSetup: func() {
				mockGate.EXPECT().Register(gomock.Any(), "a1", "tok-unpaid").
					Return(model.Registration{}, fmt.Errorf("registration: %w", biddingerrors.ErrFeeNotPaid))
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedMsg:    "fee not paid",
		},
		{
			name: "deadline_passed",
			body: map[string]any{"token": "tok-late"},
			mockSetup: func() {
				mockGate.EXPECT().Register(gomock.Any(), "a1", "tok-late").
					Return(model.Registration{}, fmt.Errorf("registration: %w", biddingerrors.ErrRegistrationClosed))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "registration is closed",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.mockSetup()

			w := serve(router, http.MethodPost, "/auctions/a1/registrations", tc.body)
			require.Equal(t, tc.expectedStatus, w.Code)
			resp := decodeEnvelope(t, w)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, "alice", data["user_id"])
				require.Equal(t, true, data["fee_paid"])
				require.Equal(t, paidAt.Format(time.RFC3339Nano), data["paid_at"])
			}
		})
	}
}

func TestEligibilityHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGate := NewMockRegistrationServiceInterface(ctrl)
	handler := NewRegistrationHandler(mockGate)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/auctions/:auction_id/registrations/:user_id", handler.EligibilityHandler)

	tests := []struct {
		name           string
		userID         string
		mockSetup      func()
		expectedStatus int
		eligible       bool
	}{
		{
			name:   "eligible",
			userID: "alice",
			mockSetup: func() {
				mockGate.EXPECT().IsEligible(gomock.Any(), "a1", "alice").Return(true, nil)
			},
			expectedStatus: http.StatusOK,
			eligible:       true,
		},
		{
			name:   "not_registered",
			userID: "bob",
			mockSetup: func() {
				mockGate.EXPECT().IsEligible(gomock.Any(), "a1", "bob").Return(false, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "unknown_auction",
			userID: "carol",
			mockSetup: func() {
				mockGate.EXPECT().IsEligible(gomock.Any(), "a1", "carol").Return(false, biddingerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.mockSetup()

			w := serve(router, http.MethodGet, "/auctions/a1/registrations/"+tc.userID, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			if w.Code == http.StatusOK {
				data := decodeEnvelope(t, w)["data"].(map[string]any)
				require.Equal(t, tc.eligible, data["eligible"])
			}
		})
	}
}
