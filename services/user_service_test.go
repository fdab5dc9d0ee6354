package services

import (
	"testing"
	"time"

	"teamdrive/utils"

	"github.com/stretchr/testify/require"
)

func TestUserServiceRegisterNormalizesEmail(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.svc.Users.Register(env.ctx, "  Alice@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)

	_, err = env.svc.Users.Register(env.ctx, "alice@example.com")
	requireAppError(t, err, 409)

	_, err = env.svc.Users.Register(env.ctx, "not-an-email")
	requireAppError(t, err, 400)
}

func TestUserServiceIssueToken(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")

	out, err := env.svc.Users.IssueToken(env.ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, alice.Email, out.User.Email)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), out.ExpiresAt, time.Minute)

	claims, err := utils.ParseToken(out.Token, testConfig().JWT.Secret)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.UserID)

	_, err = env.svc.Users.IssueToken(env.ctx, 999)
	requireAppError(t, err, 404)
}
