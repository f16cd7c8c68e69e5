package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type counterFake struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *counterFake) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func checkoutRequest(remote, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.RemoteAddr = remote
	return req
}

func TestRateLimitKeepsBodyForHandler(t *testing.T) {
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, PerIP: 5, PerEmail: 5}
	var seen string
	h := RateLimit(policy, &counterFake{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
	}))

	body := `{"guest":{"email":"ana@example.com"}}`
	h.ServeHTTP(httptest.NewRecorder(), checkoutRequest("1.2.3.4:99", body))
	if seen != body {
		t.Fatalf("handler saw %q", seen)
	}
}

func TestRateLimitGuestEmailAcrossAddresses(t *testing.T) {
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, PerEmail: 2}
	h := RateLimit(policy, &counterFake{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	addrs := []string{"1.1.1.1:1", "2.2.2.2:2", "3.3.3.3:3"}
	emails := []string{"Ana@Example.com", " ana@example.com", "ANA@EXAMPLE.COM "}
	for i := range addrs {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, checkoutRequest(addrs[i], `{"guest":{"email":"`+emails[i]+`"}}`))
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i, want, rec.Code)
		}
		if i == 2 && rec.Header().Get("Retry-After") != "60" {
			t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimitPerIP(t *testing.T) {
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, PerIP: 1}
	h := RateLimit(policy, &counterFake{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, checkoutRequest("5.6.7.8:1234", `{}`))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, checkoutRequest("5.6.7.8:9999", `{}`))
	other := httptest.NewRecorder()
	h.ServeHTTP(other, checkoutRequest("9.9.9.9:1", `{}`))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests || other.Code != http.StatusOK {
		t.Fatalf("unexpected codes %d %d %d", first.Code, second.Code, other.Code)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, PerIP: 1}
	h := RateLimit(policy, &counterFake{err: errors.New("redis down")}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("5.6.7.8:1", `{}`))
	if rec.Code < http.StatusInternalServerError {
		t.Fatalf("expected dependency failure status, got %d", rec.Code)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := checkoutRequest("10.0.0.2:80", `{}`)
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("got %q", ip)
	}
}
