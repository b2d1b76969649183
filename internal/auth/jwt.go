package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid claims")
)

// Subject is who a token is issued to.
type Subject struct {
	UserID    uuid.UUID
	Role      string
	FirstName string
	LastName  string
}

type Claims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	jwt.RegisteredClaims
}

func GenerateToken(secret string, s Subject, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    s.UserID.String(),
		Role:      s.Role,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if id, err := uuid.Parse(claims.UserID); err != nil || id == uuid.Nil {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// User returns the validated user id.
func (c *Claims) User() uuid.UUID {
	id, _ := uuid.Parse(c.UserID)
	return id
}
