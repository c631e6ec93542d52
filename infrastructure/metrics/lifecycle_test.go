package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
)

var _ outbound.LifecycleMetrics = (*LifecycleMetrics)(nil)

func scrape(t *testing.T, m *LifecycleMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestLifecycleMetrics(t *testing.T) {
	m := NewLifecycleMetrics()

	m.TokenMinted(entity.TokenKindAccess)
	m.TokenMinted(entity.TokenKindAccess)
	m.TokenPurged(entity.TokenKindRefresh, "expired")
	m.ValidationFailed("not_whitelisted")
	m.RotationCompleted()
	m.LoginAttempt("success")

	out := scrape(t, m)
	assert.Contains(t, out, `auth_tokens_minted_total{kind="ACCESS"} 2`)
	assert.Contains(t, out, `auth_tokens_purged_total{kind="REFRESH",reason="expired"} 1`)
	assert.Contains(t, out, `auth_token_validation_failures_total{reason="not_whitelisted"} 1`)
	assert.Contains(t, out, `auth_refresh_rotations_total 1`)
	assert.Contains(t, out, `auth_login_attempts_total{outcome="success"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestLifecycleMetrics_IndependentRegistries(t *testing.T) {
	first := NewLifecycleMetrics()
	second := NewLifecycleMetrics()

	first.RotationCompleted()

	assert.Contains(t, scrape(t, first), "auth_refresh_rotations_total 1")
	assert.Contains(t, scrape(t, second), "auth_refresh_rotations_total 0")
}
