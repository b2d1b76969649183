package session_test

import (
	"testing"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/permission"
	"taskboard/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromToken(t *testing.T) {
	id := uuid.New()
	token, err := auth.GenerateToken("secret", auth.Subject{
		UserID: id, Role: "Manager", FirstName: "Ada", LastName: "L",
	}, time.Hour)
	require.NoError(t, err)

	ident, err := session.FromToken(token)

	require.NoError(t, err)
	assert.Equal(t, id, ident.UserID)
	assert.Equal(t, permission.RoleManager, ident.Role)
	assert.Equal(t, "Ada", ident.FirstName)
	assert.True(t, ident.Gate().CanMoveTask(nil))
}

func TestFromToken_Invalid(t *testing.T) {
	_, err := session.FromToken("garbage")
	assert.ErrorIs(t, err, session.ErrInvalidToken)
}

func TestStaticProvider(t *testing.T) {
	ident := session.Identity{UserID: uuid.New(), Role: permission.RoleUser}
	var p session.Provider = session.Static(ident)
	assert.Equal(t, ident, p.Identity())
}
