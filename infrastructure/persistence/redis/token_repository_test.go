package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
)

const owner = "0b8f7c3e-1d2a-4c5b-9e6f-7a8b9c0d1e2f"

func setupRepo(t *testing.T) (*tokenRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewTokenRepository(client, time.Minute).(*tokenRepository), mr
}

func newToken(kind entity.TokenKind, value string, created time.Time) *entity.Token {
	return entity.NewToken(kind, owner, value, created, created.Add(15*time.Minute))
}

func TestSaveAndFindByValue(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "a.b.c", now))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	found, err := repo.FindByValue(ctx, entity.TokenKindAccess, "a.b.c")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, owner, found.OwnerID)
	assert.True(t, found.ExpiresAt.Equal(saved.ExpiresAt))
	assert.Nil(t, found.DeviceID)

	assert.False(t, mr.Exists(keyPrefix+"value:a.b.c"), "raw token values must not appear in keys")
	assert.True(t, mr.Exists(valueKey("a.b.c")))
	assert.Greater(t, mr.TTL(idKey(saved.ID)), 15*time.Minute)
}

func TestFindByValueWrongKind(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, newToken(entity.TokenKindRefresh, "r.e.f", time.Now()))
	require.NoError(t, err)

	_, err = repo.FindByValue(ctx, entity.TokenKindAccess, "r.e.f")
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)

	_, err = repo.FindByValue(ctx, entity.TokenKindRefresh, "missing")
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)
}

func TestSaveRejectsDuplicateValue(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "dup", time.Now()))
	require.NoError(t, err)

	_, err = repo.Save(ctx, newToken(entity.TokenKindRefresh, "dup", time.Now()))
	assert.ErrorIs(t, err, outbound.ErrTokenAlreadyExists)
}

func TestSaveUpdatesDeviceBinding(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	device := uuid.New()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindRefresh, "r.e.f", time.Now()))
	require.NoError(t, err)
	require.NoError(t, saved.BindDevice(device))
	_, err = repo.Save(ctx, saved)
	require.NoError(t, err)

	found, err := repo.FindByValueAndDevice(ctx, entity.TokenKindRefresh, "r.e.f", device)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	_, err = repo.FindByValueAndDevice(ctx, entity.TokenKindRefresh, "r.e.f", uuid.New())
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)

	all, err := repo.FindAllForOwner(ctx, entity.TokenKindRefresh, owner)
	require.NoError(t, err)
	assert.Len(t, all, 1, "re-saving must not duplicate the owner index")
}

func TestFindAllForOwnerAndDevice(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	base := time.Now()
	phone, laptop := uuid.New(), uuid.New()

	for i, d := range []uuid.UUID{phone, laptop, phone} {
		tok := newToken(entity.TokenKindAccess, uuid.NewString(), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, tok.BindDevice(d))
		_, err := repo.Save(ctx, tok)
		require.NoError(t, err)
	}

	onPhone, err := repo.FindAllForOwnerAndDevice(ctx, entity.TokenKindAccess, owner, phone)
	require.NoError(t, err)
	require.Len(t, onPhone, 2)
	assert.True(t, onPhone[0].CreatedAt.Before(onPhone[1].CreatedAt))

	all, err := repo.FindAllForOwner(ctx, entity.TokenKindAccess, owner)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := repo.FindAllForOwner(ctx, entity.TokenKindEmailConfirm, owner)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteIsIdempotent(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "a.b.c", time.Now()))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, saved))
	require.NoError(t, repo.Delete(ctx, saved))

	_, err = repo.FindByValue(ctx, entity.TokenKindAccess, "a.b.c")
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)
	assert.False(t, mr.Exists(idKey(saved.ID)))
	assert.False(t, mr.Exists(valueKey("a.b.c")))

	// the value is free again once deleted
	_, err = repo.Save(ctx, newToken(entity.TokenKindAccess, "a.b.c", time.Now()))
	assert.NoError(t, err)
}

func TestDeleteByIDOnly(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "a.b.c", time.Now()))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, &entity.Token{ID: saved.ID}))
	assert.False(t, mr.Exists(valueKey("a.b.c")))
}

func TestDeleteAllForOwner(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for _, kind := range entity.TokenKinds {
		_, err := repo.Save(ctx, newToken(kind, uuid.NewString(), time.Now()))
		require.NoError(t, err)
	}
	other := entity.NewToken(entity.TokenKindAccess, "someone-else", "keep.me", time.Now(), time.Now().Add(time.Minute))
	_, err := repo.Save(ctx, other)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteAllForOwner(ctx, owner))

	for _, kind := range entity.TokenKinds {
		left, err := repo.FindAllForOwner(ctx, kind, owner)
		require.NoError(t, err)
		assert.Empty(t, left, kind)
	}
	_, err = repo.FindByValue(ctx, entity.TokenKindAccess, "keep.me")
	assert.NoError(t, err)
}

func TestExpiredHashIsDroppedFromIndex(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "a.b.c", time.Now()))
	require.NoError(t, err)

	mr.FastForward(15*time.Minute + 2*time.Minute)

	all, err := repo.FindAllForOwner(ctx, entity.TokenKindAccess, owner)
	require.NoError(t, err)
	assert.Empty(t, all)

	members, err := mr.Members(ownerKey(entity.TokenKindAccess, owner))
	if err == nil {
		assert.NotContains(t, members, saved.ID)
	}
}

func TestConcurrentSaveSameValue(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "race", time.Now())); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestSaveFailsWhenServerDown(t *testing.T) {
	repo, mr := setupRepo(t)
	mr.Close()

	_, err := repo.Save(context.Background(), newToken(entity.TokenKindAccess, "a.b.c", time.Now()))
	require.Error(t, err)
	assert.NotErrorIs(t, err, outbound.ErrTokenAlreadyExists)
}

func TestConsumeHasOneWinner(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newToken(entity.TokenKindRefresh, "r.e.f", time.Now()))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Consume(ctx, saved)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, outbound.ErrTokenNotFound)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.False(t, mr.Exists(idKey(saved.ID)))
	assert.False(t, mr.Exists(valueKey("r.e.f")))
}

func TestSaveKeepsStoredFields(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()
	now := time.Now().UTC()

	tok := newToken(entity.TokenKindRefresh, "r.e.f", now)
	require.NoError(t, tok.BindDevice(first))
	saved, err := repo.Save(ctx, tok)
	require.NoError(t, err)

	changed := *saved
	changed.DeviceID = &second
	changed.ExpiresAt = now.Add(48 * time.Hour)
	stored, err := repo.Save(ctx, &changed)
	require.NoError(t, err)
	require.NotNil(t, stored.DeviceID)
	assert.Equal(t, first, *stored.DeviceID)
	assert.True(t, stored.ExpiresAt.Equal(saved.ExpiresAt))

	_, err = repo.FindByValueAndDevice(ctx, entity.TokenKindRefresh, "r.e.f", second)
	assert.ErrorIs(t, err, outbound.ErrTokenNotFound)
}

func TestOwnerIndexExpires(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Save(ctx, newToken(entity.TokenKindAccess, "short", now))
	require.NoError(t, err)
	set := ownerKey(entity.TokenKindAccess, owner)
	short := mr.TTL(set)
	assert.Greater(t, short, 15*time.Minute)

	long := entity.NewToken(entity.TokenKindAccess, owner, "long", now, now.Add(2*time.Hour))
	_, err = repo.Save(ctx, long)
	require.NoError(t, err)
	assert.Greater(t, mr.TTL(set), 2*time.Hour, "a longer lived member extends the index")

	_, err = repo.Save(ctx, newToken(entity.TokenKindAccess, "another", now))
	require.NoError(t, err)
	assert.Greater(t, mr.TTL(set), 2*time.Hour, "a shorter lived member never shortens it")

	mr.FastForward(3*time.Hour + 2*time.Minute)
	assert.False(t, mr.Exists(set))
}
