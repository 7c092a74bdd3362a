package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
)

// Claims represents JWT token claims
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier checks tokens minted by a TokenIssuer.
type TokenVerifier interface {
	Validate(token string) (*Claims, error)
}

type TokenIssuer interface {
	TokenVerifier
	Issue(uid, email string) (token string, expiresAt time.Time, err error)
}

type JWTTokenGenerator struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Clock  clock.Clock
}

// NewJWTTokenGenerator creates an HS256 issuer for identity tokens.
func NewJWTTokenGenerator(secret string, ttl time.Duration, clk clock.Clock) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &JWTTokenGenerator{
		Secret: []byte(secret),
		TTL:    ttl,
		Issuer: "sss-portal",
		Clock:  clk,
	}
}

func (j *JWTTokenGenerator) Issue(uid, email string) (string, time.Time, error) {
	now := j.Clock.Now()
	expiresAt := now.Add(j.TTL)

	claims := &Claims{
		UID:   uid,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Validate validates a JWT token and returns claims
func (j *JWTTokenGenerator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, jwt.WithTimeFunc(j.Clock.Now), jwt.WithIssuer(j.Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
