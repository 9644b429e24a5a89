package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"cuebook/internal/config"
	"cuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "front-desk", Extra: "secret", Permissions: []string{permReadReservations, permWriteReservations}},
				{Key: "dashboard", Extra: "secret", Permissions: []string{permReadReservations}},
				{Key: "ops", Extra: "secret"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

func TestHTTPAuth(t *testing.T) {
	auth := NewHTTPAuth(authConfig())
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(method, path, key, extra string) int {
		req := httptest.NewRequest(method, path, http.NoBody)
		if key != "" {
			req.Header.Set("x-api-key", key)
		}
		if extra != "" {
			req.Header.Set("x-api-extra", extra)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("Success", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/api/v1/reservations", "front-desk", "secret"))
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/reservations/1", "", ""))
		assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/reservations/1", "front-desk", ""))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/reservations/1", "nope", "secret"))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/reservations/1", "front-desk", "wrong"))
	})

	t.Run("ReadOnlyKeyCannotWrite", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "/api/v1/tables/1/reservations", "dashboard", "secret"))
		assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "/api/v1/reservations/1/cancel", "dashboard", "secret"))
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/api/v1/reservations/1/complete", "ops", "secret"))
	})
}

func TestHTTPAuth_Disabled(t *testing.T) {
	cfg := authConfig()
	cfg.Auth.Enabled = false
	auth := NewHTTPAuth(cfg)
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reservations/1", http.NoBody))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHTTPAuth_RateLimitPerKey(t *testing.T) {
	cfg := authConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 1}
	auth := NewHTTPAuth(cfg)
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/me/reservations", http.NoBody)
		req.Header.Set("x-api-key", key)
		req.Header.Set("x-api-extra", "secret")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("front-desk"))
	assert.Equal(t, http.StatusTooManyRequests, call("front-desk"))
	// у другого ключа свой бакет
	assert.Equal(t, http.StatusNoContent, call("ops"))
}

func TestClientKey(t *testing.T) {
	auth := NewHTTPAuth(authConfig())

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", auth.clientKey(req))

	req.Header.Set("x-api-key", "front-desk")
	assert.Equal(t, "front-desk", auth.clientKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "garbage"
	assert.Equal(t, clientKeyUnknown, auth.clientKey(req))
}

func TestActorFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		customerID string
		role       string
		want       models.Actor
		wantErr    error
	}{
		{name: "DefaultsToCustomer", customerID: "42", want: models.Actor{CustomerID: 42, Role: models.RoleCustomer}},
		{name: "Staff", role: "Staff", want: models.Actor{Role: models.RoleStaff}},
		{name: "AdminWithID", customerID: "1", role: "admin", want: models.Actor{CustomerID: 1, Role: models.RoleAdmin}},
		{name: "BadID", customerID: "abc", wantErr: errInvalidCustomerID},
		{name: "NegativeID", customerID: "-3", wantErr: errInvalidCustomerID},
		{name: "UnknownRole", customerID: "5", role: "owner", wantErr: errInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.customerID != "" {
				req.Header.Set(headerCustomerID, tt.customerID)
			}
			if tt.role != "" {
				req.Header.Set(headerActorRole, tt.role)
			}

			actor, err := actorFromRequest(req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, actor)
		})
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("k"))
	}
	assert.Same(t, l.getLimiter("x"), l.getLimiter("x"))
}
