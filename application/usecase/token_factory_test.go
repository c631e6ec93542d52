package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
)

func TestTokenFactory_Mint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.seedUser(t, "alice", true)
	device := uuid.New()

	t.Run("access token bound at mint", func(t *testing.T) {
		token, err := h.factory.Mint(ctx, alice, entity.TokenKindAccess, true, device)
		require.NoError(t, err)

		assert.NotEmpty(t, token.ID)
		assert.Equal(t, alice.ID, token.OwnerID)
		assert.True(t, token.BoundTo(device))
		assert.Equal(t, h.clock.Now().Add(15*time.Minute), token.ExpiresAt)

		claims, err := h.signer.Decode(token.Value)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject)
		assert.Equal(t, []string{"user"}, claims.Groups)
		assert.True(t, h.exists(t, token))
	})

	t.Run("email confirm tokens are never bound", func(t *testing.T) {
		token, err := h.factory.Mint(ctx, alice, entity.TokenKindEmailConfirm, false, uuid.Nil)
		require.NoError(t, err)
		assert.Nil(t, token.DeviceID)
		assert.Equal(t, h.clock.Now().Add(24*time.Hour), token.ExpiresAt)

		_, err = h.factory.Mint(ctx, alice, entity.TokenKindEmailConfirm, true, device)
		assert.ErrorIs(t, err, domainerr.ErrInvalidRequest)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := h.factory.Mint(ctx, alice, entity.TokenKind("PASSWORD_RESET"), false, uuid.Nil)
		assert.ErrorIs(t, err, domainerr.ErrInvalidRequest)
	})
}

func TestTokenFactory_BindDevice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.seedUser(t, "alice", true)
	device := uuid.New()

	token, err := h.factory.Mint(ctx, alice, entity.TokenKindRefresh, false, uuid.Nil)
	require.NoError(t, err)
	assert.Nil(t, token.DeviceID)

	bound, err := h.factory.BindDevice(ctx, token, device)
	require.NoError(t, err)
	assert.Equal(t, token.ID, bound.ID)

	stored, err := h.tokens.FindByValueAndDevice(ctx, entity.TokenKindRefresh, token.Value, device)
	require.NoError(t, err)
	assert.Equal(t, token.ID, stored.ID)

	_, err = h.factory.BindDevice(ctx, stored, uuid.New())
	assert.ErrorIs(t, err, domainerr.ErrDeviceAlreadyBound)
}

func TestTokenFactory_SaveFailureIsPersistenceError(t *testing.T) {
	h := newHarness(t)
	alice := h.seedUser(t, "alice", true)
	cause := errors.New("connection reset")
	h.tokens.fail(&h.tokens.saveErr, cause)

	_, err := h.factory.Mint(context.Background(), alice, entity.TokenKindAccess, true, uuid.New())
	assert.ErrorIs(t, err, domainerr.ErrPersistence)
	assert.ErrorIs(t, err, cause)
}

func TestLifetimePolicy(t *testing.T) {
	policy := LifetimePolicy{entity.TokenKindAccess: time.Minute}

	assert.Equal(t, time.Minute, policy.Lifetime(entity.TokenKindAccess))
	assert.Equal(t, 30*24*time.Hour, policy.Lifetime(entity.TokenKindRefresh))
	assert.Equal(t, 24*time.Hour, policy.Lifetime(entity.TokenKindEmailConfirm))
}
