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
	jwtservice "github.com/mentorclub/auth-service/infrastructure/service/jwt"
)

func TestWhitelistValidator_Validate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.seedUser(t, "alice", true)
	device := uuid.New()
	access := h.mustMint(t, alice, entity.TokenKindAccess, device)

	result, err := h.validator.Validate(ctx, access.Value)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, result.User.ID)
	assert.Equal(t, access.ID, result.Token.ID)
	assert.Equal(t, "alice", result.Claims.Subject)

	h.assertNoTokenInLogs(t, access.Value)
}

func TestWhitelistValidator_DeletedTokenIsNotWhitelisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.seedUser(t, "alice", true)
	access := h.mustMint(t, alice, entity.TokenKindAccess, uuid.New())

	require.NoError(t, h.tokens.Delete(ctx, access))

	_, err := h.validator.Validate(ctx, access.Value)
	assert.ErrorIs(t, err, domainerr.ErrNotWhitelisted)
}

func TestWhitelistValidator_ExpiredTokenIsPurged(t *testing.T) {
	h := newHarness(t, func(d *SessionDeps) {
		d.Lifetimes[entity.TokenKindAccess] = time.Second
	})
	ctx := context.Background()
	alice := h.seedUser(t, "alice", true)
	access := h.mustMint(t, alice, entity.TokenKindAccess, uuid.New())

	h.clock.Advance(2 * time.Second)

	_, err := h.validator.Validate(ctx, access.Value)
	assert.ErrorIs(t, err, domainerr.ErrExpired)
	assert.False(t, h.exists(t, access))

	_, err = h.validator.Validate(ctx, access.Value)
	assert.ErrorIs(t, err, domainerr.ErrNotWhitelisted)
}

func TestWhitelistValidator_ExpiredEvenWhenPurgeFails(t *testing.T) {
	h := newHarness(t, func(d *SessionDeps) {
		d.Lifetimes[entity.TokenKindAccess] = time.Second
	})
	alice := h.seedUser(t, "alice", true)
	access := h.mustMint(t, alice, entity.TokenKindAccess, uuid.New())
	h.tokens.fail(&h.tokens.deleteErr, errors.New("db down"))

	h.clock.Advance(2 * time.Second)

	_, err := h.validator.Validate(context.Background(), access.Value)
	assert.ErrorIs(t, err, domainerr.ErrExpired)
	assert.True(t, h.exists(t, access))
}

func TestWhitelistValidator_DecodeFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "alice", true)

	_, err := h.validator.Validate(ctx, "")
	assert.ErrorIs(t, err, domainerr.ErrInvalidToken)

	_, err = h.validator.Validate(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, domainerr.ErrInvalidToken)

	privatePEM, _, err := jwtservice.GenerateKeyPairPEM(jwtservice.AlgorithmEdDSA)
	require.NoError(t, err)
	other, err := jwtservice.NewJWTService(jwtservice.Config{Algorithm: jwtservice.AlgorithmEdDSA, PrivateKeyPEM: privatePEM})
	require.NoError(t, err)
	forged, err := other.Sign("alice", []string{"user"}, time.Hour)
	require.NoError(t, err)

	_, err = h.validator.Validate(ctx, forged)
	assert.ErrorIs(t, err, domainerr.ErrSignatureInvalid)
}

func TestWhitelistValidator_UnknownSubject(t *testing.T) {
	h := newHarness(t)
	token, err := h.signer.Sign("ghost", []string{"user"}, time.Hour)
	require.NoError(t, err)

	_, err = h.validator.Validate(context.Background(), token)
	assert.ErrorIs(t, err, domainerr.ErrNotWhitelisted)
}

func TestWhitelistValidator_OtherUsersTokenIsNotWhitelisted(t *testing.T) {
	h := newHarness(t)
	alice := h.seedUser(t, "alice", true)
	h.seedUser(t, "bob", true)
	h.mustMint(t, alice, entity.TokenKindAccess, uuid.New())

	// a correctly signed token for bob that was never stored
	unstored, err := h.signer.Sign("bob", []string{"user"}, time.Hour)
	require.NoError(t, err)

	_, err = h.validator.Validate(context.Background(), unstored)
	assert.ErrorIs(t, err, domainerr.ErrNotWhitelisted)
}

func TestWhitelistValidator_StoreFailure(t *testing.T) {
	h := newHarness(t)
	alice := h.seedUser(t, "alice", true)
	access := h.mustMint(t, alice, entity.TokenKindAccess, uuid.New())
	h.tokens.fail(&h.tokens.findErr, errors.New("db down"))

	_, err := h.validator.Validate(context.Background(), access.Value)
	assert.ErrorIs(t, err, domainerr.ErrPersistence)
}

func TestWhitelistValidator_ValidateForDevice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.seedUser(t, "alice", true)
	device := uuid.New()
	access := h.mustMint(t, alice, entity.TokenKindAccess, device)

	result, err := h.validator.ValidateForDevice(ctx, access.Value, device)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, result.User.ID)

	_, err = h.validator.ValidateForDevice(ctx, access.Value, uuid.New())
	assert.ErrorIs(t, err, domainerr.ErrDeviceMismatch)
}
