package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid cancellation token")
	ErrExpiredToken = errors.New("cancellation token expired")
)

// CancelClaims is the capability token embedded in confirmation emails.
// It authorizes cancelling exactly one booking, nothing else.
type CancelClaims struct {
	jwt.RegisteredClaims
	BookingID uuid.UUID `json:"booking_id"`
}

// Signer issues and verifies booking cancellation tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// GenerateCancelToken signs a token that allows cancelling the given booking.
func (s *Signer) GenerateCancelToken(bookingID uuid.UUID) (string, error) {
	now := time.Now()
	claims := CancelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "booking.cancel",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		BookingID: bookingID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign cancel token: %w", err)
	}
	return signed, nil
}

// VerifyCancelToken checks the signature and expiry and returns the booking id
// the token was issued for.
func (s *Signer) VerifyCancelToken(raw string) (uuid.UUID, error) {
	var claims CancelClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrExpiredToken
		}
		return uuid.Nil, ErrInvalidToken
	}
	if !token.Valid || claims.Subject != "booking.cancel" || claims.BookingID == uuid.Nil {
		return uuid.Nil, ErrInvalidToken
	}
	return claims.BookingID, nil
}
