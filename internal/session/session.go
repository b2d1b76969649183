package session

import (
	"errors"
	"fmt"

	"taskboard/internal/permission"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the signed-in user as the client sees it.
type Identity struct {
	UserID    uuid.UUID
	Role      permission.Role
	FirstName string
	LastName  string
	Token     string
}

func (i Identity) Gate() permission.Gate {
	return permission.NewGate(i.Role, i.UserID)
}

// Provider supplies the current identity. Read-only.
type Provider interface {
	Identity() Identity
}

type Static Identity

func (s Static) Identity() Identity { return Identity(s) }

var ErrInvalidToken = errors.New("invalid session token")

// FromToken reads the identity out of a server-issued token without
// verifying its signature; the server verifies it on every request.
func FromToken(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	raw, _ := claims["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad user_id", ErrInvalidToken)
	}
	role, _ := claims["role"].(string)
	first, _ := claims["first_name"].(string)
	last, _ := claims["last_name"].(string)
	return Identity{
		UserID:    id,
		Role:      permission.ParseRole(role),
		FirstName: first,
		LastName:  last,
		Token:     token,
	}, nil
}
