package registration

import (
	"auction-engine/internal/biddingerrors"
	"errors"
	"fmt"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is the issuer expected on registration tokens when none is configured
const DefaultIssuer = "registration-gate"

// Claims are carried by the signed token the identity gate hands to an
// eligible bidder. Subject is the user ID.
type Claims struct {
	AuctionID string           `json:"auction_id"`
	FeePaid   bool             `json:"fee_paid"`
	PaidAt    *jwt.NumericDate `json:"paid_at,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 registration tokens with a shared secret
type Tokens struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

// NewTokens creates a token codec. An empty issuer falls back to DefaultIssuer.
func NewTokens(secret []byte, issuer string, clk clock.Clock) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("registration token secret is not configured")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Tokens{secret: secret, issuer: issuer, clock: clk}, nil
}

// Issue mints a token for a user and auction. It stands in for the identity
// gate in development and tests.
func (t *Tokens) Issue(userID, auctionID string, feePaid bool, paidAt time.Time, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || auctionID == "" {
		return "", errors.New("userID and auctionID are required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}

	now := t.clock.Now().UTC()
	claims := Claims{
		AuctionID: auctionID,
		FeePaid:   feePaid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if !paidAt.IsZero() {
		claims.PaidAt = jwt.NewNumericDate(paidAt)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry of a token and returns its claims
func (t *Tokens) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w - empty token", biddingerrors.ErrInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w - %v", biddingerrors.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, biddingerrors.ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.AuctionID == "" {
		return nil, fmt.Errorf("%w - subject and auction_id are required", biddingerrors.ErrInvalidToken)
	}
	return claims, nil
}
