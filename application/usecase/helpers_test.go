package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/infrastructure/persistence/memory"
	jwtservice "github.com/mentorclub/auth-service/infrastructure/service/jwt"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
	"github.com/mentorclub/auth-service/infrastructure/service/password"
)

const testPassword = "correct-horse-battery"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendConfirmationEmail(ctx context.Context, confirmURL string, user *entity.User) outbound.DeliveryStatus {
	args := m.Called(ctx, confirmURL, user)
	return args.Get(0).(outbound.DeliveryStatus)
}

func (m *MockMailer) SendConfirmationSuccessfulEmail(ctx context.Context, user *entity.User) outbound.DeliveryStatus {
	args := m.Called(ctx, user)
	return args.Get(0).(outbound.DeliveryStatus)
}

func (m *MockMailer) SendPasswordResetEmail(ctx context.Context, resetURL string, email string) outbound.DeliveryStatus {
	args := m.Called(ctx, resetURL, email)
	return args.Get(0).(outbound.DeliveryStatus)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockRateLimiter) Increment(ctx context.Context, key string, window time.Duration) error {
	return m.Called(ctx, key, window).Error(0)
}

func (m *MockRateLimiter) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	return m.Called(ctx, key, duration, reason).Error(0)
}

func (m *MockRateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockRateLimiter) GetAttempts(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

func (m *MockRateLimiter) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// flakyTokenRepository wraps a working store and injects failures.
type flakyTokenRepository struct {
	outbound.TokenRepository
	mu        sync.Mutex
	deleteErr error
	saveErr   error
	findErr   error
	// beforeConsume runs before a consume reaches the wrapped store.
	beforeConsume func()
}

func (r *flakyTokenRepository) fail(target *error, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*target = err
}

func (r *flakyTokenRepository) Save(ctx context.Context, token *entity.Token) (*entity.Token, error) {
	r.mu.Lock()
	err := r.saveErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.TokenRepository.Save(ctx, token)
}

func (r *flakyTokenRepository) Delete(ctx context.Context, token *entity.Token) error {
	r.mu.Lock()
	err := r.deleteErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.TokenRepository.Delete(ctx, token)
}

func (r *flakyTokenRepository) Consume(ctx context.Context, token *entity.Token) error {
	r.mu.Lock()
	err, hook := r.deleteErr, r.beforeConsume
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return err
	}
	return r.TokenRepository.Consume(ctx, token)
}

// rendezvous returns a hook that holds each of the first n callers until all
// n have arrived, or a second has passed.
func rendezvous(n int) func() {
	var (
		arrived atomic.Int32
		wg      sync.WaitGroup
	)
	wg.Add(n)
	all := make(chan struct{})
	go func() {
		wg.Wait()
		close(all)
	}()

	return func() {
		if arrived.Add(1) > int32(n) {
			return
		}
		wg.Done()
		select {
		case <-all:
		case <-time.After(time.Second):
		}
	}
}

func (r *flakyTokenRepository) FindAllForOwner(ctx context.Context, kind entity.TokenKind, ownerID string) ([]*entity.Token, error) {
	r.mu.Lock()
	err := r.findErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.TokenRepository.FindAllForOwner(ctx, kind, ownerID)
}

type harness struct {
	clock     *fakeClock
	users     outbound.UserRepository
	tokens    *flakyTokenRepository
	signer    *jwtservice.JWTService
	passwords *password.BcryptPasswordService
	mailer    *MockMailer
	hook      *test.Hook
	log       logger.Logger
	uc        *SessionUseCase
	factory   *TokenFactory
	validator *WhitelistValidator
	rotation  *RotationCoordinator
}

func newHarness(t *testing.T, opts ...func(*SessionDeps)) *harness {
	t.Helper()

	clock := newFakeClock()
	privatePEM, _, err := jwtservice.GenerateKeyPairPEM(jwtservice.AlgorithmEdDSA)
	require.NoError(t, err)
	signer, err := jwtservice.NewJWTService(jwtservice.Config{
		Algorithm:     jwtservice.AlgorithmEdDSA,
		PrivateKeyPEM: privatePEM,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	log := logger.New(base, "test")

	h := &harness{
		clock:     clock,
		users:     memory.NewUserRepository(),
		tokens:    &flakyTokenRepository{TokenRepository: memory.NewTokenRepository()},
		signer:    signer,
		passwords: password.NewBcryptPasswordService(bcrypt.MinCost),
		mailer:    &MockMailer{},
		hook:      hook,
		log:       log,
	}

	deps := SessionDeps{
		Users:      h.users,
		Tokens:     h.tokens,
		Signer:     signer,
		Passwords:  h.passwords,
		Mailer:     h.mailer,
		Logger:     log,
		BackendURL: "https://api.example.com/",
		Now:        clock.Now,
		Lifetimes: LifetimePolicy{
			entity.TokenKindAccess:       15 * time.Minute,
			entity.TokenKindRefresh:      30 * 24 * time.Hour,
			entity.TokenKindEmailConfirm: 24 * time.Hour,
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}

	h.uc = NewSessionUseCase(deps).(*SessionUseCase)
	h.factory = h.uc.factory
	h.validator = h.uc.validator
	h.rotation = h.uc.rotation
	return h
}

func (h *harness) seedUser(t *testing.T, username string, confirmed bool) *entity.User {
	t.Helper()
	hash, err := h.passwords.HashPassword(testPassword)
	require.NoError(t, err)

	user := entity.NewUser(uuid.NewString(), username, username+"@example.com", "", hash, "")
	if confirmed {
		user.ConfirmEmail()
	}
	require.NoError(t, h.users.Save(context.Background(), user))
	return user
}

func (h *harness) mustMint(t *testing.T, user *entity.User, kind entity.TokenKind, deviceID uuid.UUID) *entity.Token {
	t.Helper()
	token, err := h.factory.Mint(context.Background(), user, kind, kind.DeviceScoped(), deviceID)
	require.NoError(t, err)
	return token
}

func (h *harness) exists(t *testing.T, token *entity.Token) bool {
	t.Helper()
	_, err := h.tokens.FindByValue(context.Background(), token.Kind, token.Value)
	if err == nil {
		return true
	}
	require.ErrorIs(t, err, outbound.ErrTokenNotFound)
	return false
}

// assertNoTokenInLogs fails if any captured log field contains a token value.
func (h *harness) assertNoTokenInLogs(t *testing.T, values ...string) {
	t.Helper()
	for _, entry := range h.hook.AllEntries() {
		for key, v := range entry.Data {
			s, ok := v.(string)
			if !ok {
				continue
			}
			for _, value := range values {
				require.NotContains(t, s, value, "token value leaked in log field %q", key)
			}
		}
	}
}
