package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/wb-tariffs-sync/app/dto"
	"github.com/amirphl/wb-tariffs-sync/app/handlers"
	"github.com/amirphl/wb-tariffs-sync/app/middleware"
	"github.com/amirphl/wb-tariffs-sync/app/scheduler"
	"github.com/amirphl/wb-tariffs-sync/app/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeSync struct {
	status   scheduler.Status
	accept   bool
	triggers atomic.Int32
}

func (f *fakeSync) Status() scheduler.Status { return f.status }

func (f *fakeSync) TryTrigger() bool {
	f.triggers.Add(1)
	return f.accept
}

func newTestRouter(t *testing.T, sync *fakeSync, withAuth bool) (Router, services.AdminTokenService) {
	t.Helper()

	tokens, err := services.NewAdminTokenService(testSecret, "wb-tariffs-sync")
	require.NoError(t, err)

	var auth *middleware.AuthMiddleware
	if withAuth {
		auth = middleware.NewAuthMiddleware(tokens)
	}

	r := NewFiberRouter(
		handlers.NewTariffSyncHandler(sync, "test", zerolog.Nop()),
		auth,
		Options{ReadTimeout: time.Second, WriteTimeout: time.Second, MetricsPath: "/metrics"},
		zerolog.Nop(),
	)
	r.SetupRoutes()
	return r, tokens
}

func doRequest(t *testing.T, r Router, req *http.Request) (int, dto.APIResponse) {
	t.Helper()
	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, &fakeSync{}, false)

	status, body := doRequest(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)

	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "test", data["version"])
}

func TestStatus(t *testing.T) {
	last := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	sync := &fakeSync{status: scheduler.Status{
		State:             scheduler.StateRunning,
		LastSuccessAt:     &last,
		ConfiguredTargets: 3,
	}}
	r, _ := newTestRouter(t, sync, false)

	status, body := doRequest(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, status)

	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "running", data["state"])
	assert.Equal(t, "2024-06-01T10:00:00Z", data["last_success_at"])
	assert.Nil(t, data["next_run_at"])
	assert.EqualValues(t, 3, data["configured_targets"])
}

func TestRefresh(t *testing.T) {
	t.Run("not registered without secret", func(t *testing.T) {
		sync := &fakeSync{accept: true}
		r, _ := newTestRouter(t, sync, false)

		status, body := doRequest(t, r, httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "NOT_FOUND", errorCode(t, body))
		assert.Zero(t, sync.triggers.Load())
	})

	t.Run("missing token", func(t *testing.T) {
		sync := &fakeSync{accept: true}
		r, _ := newTestRouter(t, sync, true)

		status, body := doRequest(t, r, httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "MISSING_AUTHORIZATION_HEADER", errorCode(t, body))
		assert.Zero(t, sync.triggers.Load())
	})

	t.Run("wrong scheme", func(t *testing.T) {
		r, _ := newTestRouter(t, &fakeSync{accept: true}, true)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil)
		req.Header.Set("Authorization", "Basic abc")
		status, body := doRequest(t, r, req)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "INVALID_AUTHORIZATION_FORMAT", errorCode(t, body))
	})

	t.Run("invalid token", func(t *testing.T) {
		r, _ := newTestRouter(t, &fakeSync{accept: true}, true)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		status, body := doRequest(t, r, req)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_INVALID", errorCode(t, body))
	})

	t.Run("expired token", func(t *testing.T) {
		r, tokens := newTestRouter(t, &fakeSync{accept: true}, true)
		token, err := tokens.GenerateAdminToken("ops", -time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		status, body := doRequest(t, r, req)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_EXPIRED", errorCode(t, body))
	})

	t.Run("accepted", func(t *testing.T) {
		sync := &fakeSync{accept: true}
		r, tokens := newTestRouter(t, sync, true)
		token, err := tokens.GenerateAdminToken("ops", time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		status, body := doRequest(t, r, req)
		assert.Equal(t, http.StatusAccepted, status)
		assert.True(t, body.Success)
		assert.EqualValues(t, 1, sync.triggers.Load())
	})

	t.Run("accepts any HS256 token signed with the secret", func(t *testing.T) {
		sync := &fakeSync{accept: true}
		r, _ := newTestRouter(t, sync, true)
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "ops",
			Issuer:    "wb-tariffs-sync",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		status, _ := doRequest(t, r, req)
		assert.Equal(t, http.StatusAccepted, status)
		assert.EqualValues(t, 1, sync.triggers.Load())
	})

	t.Run("already running", func(t *testing.T) {
		sync := &fakeSync{accept: false}
		r, tokens := newTestRouter(t, sync, true)
		token, err := tokens.GenerateAdminToken("ops", time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		status, body := doRequest(t, r, req)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "SYNC_ALREADY_RUNNING", errorCode(t, body))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeSync{}, false)

	_, _ = doRequest(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	resp, err := r.GetApp().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(raw), "tariff_sync_http_requests_total"))
}

func TestRequestIDHeader(t *testing.T) {
	r, _ := newTestRouter(t, &fakeSync{}, false)

	resp, err := r.GetApp().Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Request-ID"), 16)
}

func errorCode(t *testing.T, body dto.APIResponse) string {
	t.Helper()
	detail, ok := body.Error.(map[string]any)
	require.True(t, ok)
	code, _ := detail["code"].(string)
	return code
}
