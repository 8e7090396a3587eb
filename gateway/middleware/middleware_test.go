package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tokensale/crypto"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestIDFromContext(r.Context())
		if !ok {
			t.Fatalf("request id missing from context")
		}
		seen = id
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatalf("no request id generated")
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Fatalf("response header = %q, context = %q", rec.Header().Get("X-Request-Id"), seen)
	}

	// An inbound identifier is kept.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "caller-supplied" {
		t.Fatalf("inbound id not kept: %q", seen)
	}
}

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2}, nil)
	handler := limiter.Middleware()(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("10.0.0.1:1000") != http.StatusOK || send("10.0.0.1:1000") != http.StatusOK {
		t.Fatalf("burst requests must pass")
	}
	if send("10.0.0.1:1000") != http.StatusTooManyRequests {
		t.Fatalf("third request must be throttled")
	}
	// A different client has its own budget.
	if send("10.0.0.2:1000") != http.StatusOK {
		t.Fatalf("other client must not be throttled")
	}
}

func TestRateLimiterUsesForwardedFor(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil)
	handler := limiter.Middleware()(okHandler())

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:1000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("1.2.3.4, 10.0.0.9") != http.StatusOK {
		t.Fatalf("first request must pass")
	}
	if send("1.2.3.4, 10.0.0.9") != http.StatusTooManyRequests {
		t.Fatalf("same forwarded identity must be throttled")
	}
	if send("5.6.7.8") != http.StatusOK {
		t.Fatalf("distinct forwarded identity must pass")
	}
}

func TestRateLimiterDisabledWhenZero(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{}, nil)
	handler := limiter.Middleware()(okHandler())
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled limiter must never throttle")
		}
	}
}

func testBearer(t *testing.T, secret string, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(expires)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func TestAuthenticator(t *testing.T) {
	auth := NewAuthenticator("secret")
	raw := make([]byte, 20)
	raw[0] = 0x7F
	subject := crypto.NewAddress(crypto.SalePrefix, raw).String()

	var caller [20]byte
	var present bool
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, present = CallerFromContext(r.Context())
	}))

	send := func(bearer string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if bearer != "" {
			req.Header.Set("Authorization", bearer)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("") != http.StatusUnauthorized {
		t.Fatalf("missing token must be rejected")
	}
	if send("Bearer garbage") != http.StatusUnauthorized {
		t.Fatalf("malformed token must be rejected")
	}
	if send(testBearer(t, "wrong-secret", subject, time.Now().Add(time.Hour))) != http.StatusUnauthorized {
		t.Fatalf("wrong signature must be rejected")
	}
	if send(testBearer(t, "secret", subject, time.Now().Add(-time.Hour))) != http.StatusUnauthorized {
		t.Fatalf("expired token must be rejected")
	}
	if send(testBearer(t, "secret", "not-an-address", time.Now().Add(time.Hour))) != http.StatusUnauthorized {
		t.Fatalf("non-address subject must be rejected")
	}

	if send(testBearer(t, "secret", subject, time.Now().Add(time.Hour))) != http.StatusOK {
		t.Fatalf("valid token must pass")
	}
	if !present || caller[0] != 0x7F {
		t.Fatalf("caller not attached: %v %x", present, caller)
	}
}
