package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/pastrypickup-backend/api/responses"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimitPolicy is a fixed-window budget for one route. PerIP counts every
// caller address; PerEmail counts the guest contact email found in the body.
type RateLimitPolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

func (p RateLimitPolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0)
}

type bucket struct {
	dimension string
	value     string
	limit     int
}

func (p RateLimitPolicy) bucketKey(b bucket) string {
	return "rl:" + p.Name + ":" + b.dimension + ":" + b.value
}

// RateLimit rejects requests over budget with 429 and a Retry-After hint.
// Counter failures surface as dependency errors rather than letting traffic
// through unmetered.
func RateLimit(policy RateLimitPolicy, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if policy.Name == "" {
		policy.Name = "default"
	}
	return func(next http.Handler) http.Handler {
		if store == nil || !policy.active() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			buckets, err := policy.buckets(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			for _, b := range buckets {
				count, err := store.IncrWithTTL(ctx, policy.bucketKey(b), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(b.limit) {
					policy.reject(ctx, logg, w, b, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p RateLimitPolicy) buckets(r *http.Request) ([]bucket, error) {
	var out []bucket
	if p.PerIP > 0 {
		if ip := clientIP(r); ip != "" {
			out = append(out, bucket{dimension: "ip", value: ip, limit: p.PerIP})
		}
	}
	if p.PerEmail <= 0 || r.Body == nil {
		return out, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if email := guestEmail(body); email != "" {
		sum := sha256.Sum256([]byte(email))
		out = append(out, bucket{dimension: "email", value: hex.EncodeToString(sum[:]), limit: p.PerEmail})
	}
	return out, nil
}

func (p RateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, b bucket, count int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    p.Name,
			"dimension": b.dimension,
			"key":       b.value,
			"attempts":  count,
			"limit":     b.limit,
		}), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.Window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, slow down"))
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// guestEmail pulls guest.email out of a checkout body; anything unparsable
// counts as no email.
func guestEmail(body []byte) string {
	var payload struct {
		Guest struct {
			Email string `json:"email"`
		} `json:"guest"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Guest.Email))
}
