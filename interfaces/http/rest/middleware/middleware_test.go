package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"topicref/pkg/auth"
	"topicref/pkg/common"
	apperrors "topicref/pkg/errors"
)

type checkerFunc func(ctx context.Context, key string) (bool, error)

func (f checkerFunc) IsLoggedIn(ctx context.Context, key string) (bool, error) { return f(ctx, key) }

func sessionEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _ := common.SessionKey(r.Context())
		_, _ = w.Write([]byte(key))
	})
}

func TestRequireSession(t *testing.T) {
	errs := apperrors.NewErrorHandler(zap.NewNop(), false, "test")
	checker := checkerFunc(func(_ context.Context, key string) (bool, error) {
		switch key {
		case "good":
			return true, nil
		case "broken":
			return false, apperrors.NewUnavailableError("graph store")
		}
		return false, nil
	})
	h := RequireSession(checker, errs)(sessionEcho())

	cases := map[string]int{"": http.StatusUnauthorized, "bad": http.StatusUnauthorized, "broken": http.StatusServiceUnavailable, "good": http.StatusOK}
	for key, status := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if key != "" {
			req.AddCookie(&http.Cookie{Name: common.SessionCookie, Value: key})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, status, rec.Code, key)
		if status == http.StatusOK {
			assert.Equal(t, key, rec.Body.String())
		}
	}
}

func TestRequireLogin_RedirectsWithReferrer(t *testing.T) {
	errs := apperrors.NewErrorHandler(zap.NewNop(), false, "test")
	h := RequireLogin(checkerFunc(func(context.Context, string) (bool, error) { return false, nil }), errs)(sessionEcho())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/refs/patience?x=1", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/v1/auth/login?referrer=%2Fapi%2Fv1%2Frefs%2Fpatience%3Fx%3D1", rec.Header().Get("Location"))
}

func TestRequireLogin_StoreErrorIsNotARedirect(t *testing.T) {
	errs := apperrors.NewErrorHandler(zap.NewNop(), false, "test")
	h := RequireLogin(checkerFunc(func(context.Context, string) (bool, error) { return false, errors.New("boom") }), errs)(sessionEcho())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/topics", nil)
	req.AddCookie(&http.Cookie{Name: common.SessionCookie, Value: "k"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetClientIP_IgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, "10.0.0.9", getClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "10.0.0.9", getClientIP(req))

	req.RemoteAddr = "10.0.0.9"
	assert.Equal(t, "10.0.0.9", getClientIP(req))
}

func TestRateLimit_RotatingForwardedForStillLimited(t *testing.T) {
	errs := apperrors.NewErrorHandler(zap.NewNop(), false, "test")
	h := RateLimit(auth.NewIPRateLimiter(1), errs)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.2.3.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusNoContent {
			allowed++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, 1, allowed)
}
