package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
)

func newToken(kind entity.TokenKind, owner, value string) *entity.Token {
	now := time.Now()
	return entity.NewToken(kind, owner, value, now, now.Add(time.Hour))
}

func TestTokenRepository_SaveAndFind(t *testing.T) {
	repo := NewTokenRepository()
	ctx := context.Background()
	device := uuid.New()

	token := newToken(entity.TokenKindRefresh, "u1", "v1")
	require.NoError(t, token.BindDevice(device))

	saved, err := repo.Save(ctx, token)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	found, err := repo.FindByValue(ctx, entity.TokenKindRefresh, "v1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	_, err = repo.FindByValue(ctx, entity.TokenKindAccess, "v1")
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)

	found, err = repo.FindByValueAndDevice(ctx, entity.TokenKindRefresh, "v1", device)
	require.NoError(t, err)
	assert.True(t, found.BoundTo(device))

	_, err = repo.FindByValueAndDevice(ctx, entity.TokenKindRefresh, "v1", uuid.New())
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)
}

func TestTokenRepository_ReturnsCopies(t *testing.T) {
	repo := NewTokenRepository()
	ctx := context.Background()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindRefresh, "u1", "v1"))
	require.NoError(t, err)
	require.NoError(t, saved.BindDevice(uuid.New()))

	found, err := repo.FindByValue(ctx, entity.TokenKindRefresh, "v1")
	require.NoError(t, err)
	assert.Nil(t, found.DeviceID)
}

func TestTokenRepository_SaveOnlyBindsDevice(t *testing.T) {
	repo := NewTokenRepository()
	ctx := context.Background()
	first := uuid.New()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindRefresh, "u1", "v1"))
	require.NoError(t, err)
	require.NoError(t, saved.BindDevice(first))
	bound, err := repo.Save(ctx, saved)
	require.NoError(t, err)
	assert.True(t, bound.BoundTo(first))

	changed := *bound
	second := uuid.New()
	changed.DeviceID = &second
	changed.Value = "v2"
	changed.ExpiresAt = changed.ExpiresAt.Add(time.Hour)
	stored, err := repo.Save(ctx, &changed)
	require.NoError(t, err)
	assert.True(t, stored.BoundTo(first))
	assert.Equal(t, "v1", stored.Value)
	assert.True(t, stored.ExpiresAt.Equal(bound.ExpiresAt))

	_, err = repo.FindByValue(ctx, entity.TokenKindRefresh, "v2")
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)
}

func TestTokenRepository_Consume(t *testing.T) {
	repo := NewTokenRepository()
	ctx := context.Background()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindEmailConfirm, "u1", "confirm"))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Consume(ctx, saved); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.ErrorIs(t, repo.Consume(ctx, saved), outbound.ErrTokenNotFound)
}

func TestTokenRepository_UniqueValue(t *testing.T) {
	repo := NewTokenRepository()
	ctx := context.Background()

	_, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "u1", "same"))
	require.NoError(t, err)

	_, err = repo.Save(ctx, newToken(entity.TokenKindAccess, "u2", "same"))
	assert.ErrorIs(t, err, outbound.ErrTokenAlreadyExists)
}

func TestTokenRepository_ConcurrentSaveOfSameValue(t *testing.T) {
	repo := NewTokenRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Save(ctx, newToken(entity.TokenKindRefresh, "u1", "race")); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestTokenRepository_OwnerQueriesAndDeletes(t *testing.T) {
	repo := NewTokenRepository()
	ctx := context.Background()
	deviceA, deviceB := uuid.New(), uuid.New()

	for i, device := range []uuid.UUID{deviceA, deviceA, deviceB} {
		token := newToken(entity.TokenKindAccess, "u1", "a"+string(rune('0'+i)))
		require.NoError(t, token.BindDevice(device))
		_, err := repo.Save(ctx, token)
		require.NoError(t, err)
	}
	_, err := repo.Save(ctx, newToken(entity.TokenKindEmailConfirm, "u1", "confirm"))
	require.NoError(t, err)
	_, err = repo.Save(ctx, newToken(entity.TokenKindAccess, "u2", "other"))
	require.NoError(t, err)

	all, err := repo.FindAllForOwner(ctx, entity.TokenKindAccess, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onA, err := repo.FindAllForOwnerAndDevice(ctx, entity.TokenKindAccess, "u1", deviceA)
	require.NoError(t, err)
	assert.Len(t, onA, 2)

	require.NoError(t, repo.Delete(ctx, onA[0]))
	require.NoError(t, repo.Delete(ctx, onA[0]))
	_, err = repo.FindByValue(ctx, entity.TokenKindAccess, onA[0].Value)
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)

	require.NoError(t, repo.DeleteAllForOwner(ctx, "u1"))
	all, err = repo.FindAllForOwner(ctx, entity.TokenKindAccess, "u1")
	require.NoError(t, err)
	assert.Empty(t, all)

	other, err := repo.FindByValue(ctx, entity.TokenKindAccess, "other")
	require.NoError(t, err)
	assert.Equal(t, "u2", other.OwnerID)
}

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	user := entity.NewUser("u1", "alice", "Alice@Example.com", "Alice", "hash", "")
	require.NoError(t, repo.Save(ctx, user))

	found, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.ID)

	dup := entity.NewUser("u2", "alice", "other@example.com", "", "hash", "")
	assert.ErrorIs(t, repo.Save(ctx, dup), outbound.ErrUserAlreadyExists)

	found.ConfirmEmail()
	require.NoError(t, repo.Save(ctx, found))
	reloaded, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, reloaded.IsEmailConfirmed())

	require.NoError(t, repo.Delete(ctx, "u1"))
	_, err = repo.FindByID(ctx, "u1")
	assert.ErrorIs(t, err, outbound.ErrUserNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "u1"), outbound.ErrUserNotFound)
}
