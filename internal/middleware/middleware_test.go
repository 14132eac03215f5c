package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/mobile-money/internal/auth"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/repository"
)

const testSecret = "test-secret"

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*repository.IdempotencyCacheEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*repository.IdempotencyCacheEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string, accountID uuid.UUID) (*repository.IdempotencyCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[accountID.String()+"/"+key], nil
}

func (c *memoryCache) Set(_ context.Context, e *repository.IdempotencyCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.AccountID.String()+"/"+e.Key] = e
	return nil
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAuth(t *testing.T) {
	accountID := uuid.New()
	valid, err := auth.GenerateToken(accountID, domain.RoleAgent, testSecret, time.Hour)
	require.NoError(t, err)
	foreign, err := auth.GenerateToken(accountID, domain.RoleAgent, "other-secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantCode: "MISSING_TOKEN"},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "wrong secret", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen domain.Actor
			h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = auth.ActorFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				return
			}
			assert.Equal(t, accountID, seen.ID)
			assert.Equal(t, domain.RoleAgent, seen.Role)
		})
	}
}

func TestIdempotency(t *testing.T) {
	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleUser}

	newHandler := func(status int) (http.Handler, *int) {
		calls := 0
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"success":true}`))
		})
		return Idempotency(newMemoryCache())(next), &calls
	}

	send := func(h http.Handler, method, key, body string, a *domain.Actor) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/transfers", strings.NewReader(body))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		if a != nil {
			req = req.WithContext(auth.ContextWithActor(req.Context(), *a))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("replays the first response", func(t *testing.T) {
		h, calls := newHandler(http.StatusCreated)

		first := send(h, http.MethodPost, "k1", `{"amount":"10"}`, &actor)
		second := send(h, http.MethodPost, "k1", `{"amount":"10"}`, &actor)

		assert.Equal(t, 1, *calls)
		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
		assert.JSONEq(t, first.Body.String(), second.Body.String())
	})

	t.Run("different body conflicts", func(t *testing.T) {
		h, calls := newHandler(http.StatusCreated)

		send(h, http.MethodPost, "k1", `{"amount":"10"}`, &actor)
		rec := send(h, http.MethodPost, "k1", `{"amount":"20"}`, &actor)

		assert.Equal(t, 1, *calls)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "IDEMPOTENCY_CONFLICT", errorCode(t, rec))
	})

	t.Run("keys are scoped to the caller", func(t *testing.T) {
		h, calls := newHandler(http.StatusCreated)
		other := domain.Actor{ID: uuid.New(), Role: domain.RoleUser}

		send(h, http.MethodPost, "k1", `{}`, &actor)
		send(h, http.MethodPost, "k1", `{}`, &other)

		assert.Equal(t, 2, *calls)
	})

	t.Run("server errors are not cached", func(t *testing.T) {
		h, calls := newHandler(http.StatusBadGateway)

		send(h, http.MethodPost, "k1", `{}`, &actor)
		send(h, http.MethodPost, "k1", `{}`, &actor)

		assert.Equal(t, 2, *calls)
	})

	t.Run("missing key", func(t *testing.T) {
		h, calls := newHandler(http.StatusCreated)

		rec := send(h, http.MethodPost, "", `{}`, &actor)

		assert.Zero(t, *calls)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MISSING_IDEMPOTENCY_KEY", errorCode(t, rec))
	})

	t.Run("reads pass through", func(t *testing.T) {
		h, calls := newHandler(http.StatusOK)

		send(h, http.MethodGet, "", "", &actor)
		send(h, http.MethodGet, "", "", &actor)

		assert.Equal(t, 2, *calls)
	})
}

func TestRecoveryAndTracing(t *testing.T) {
	h := Tracing(Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}
