package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware rejects requests over budget with 429 and a Retry-After hint.
// onReject, when non-nil, runs before the response is written.
func Middleware(limiter Limiter, cfg Config, onReject func(r *http.Request)) func(http.Handler) http.Handler {
	retryAfter := retryAfterSeconds(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(GetClientIP(r, cfg.TrustProxy)) {
				if onReject != nil {
					onReject(r)
				}
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds is the time one token takes to refill, rounded up.
func retryAfterSeconds(cfg Config) string {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return "60"
	}
	per := cfg.Window / time.Duration(cfg.Requests)
	secs := int(math.Ceil(per.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// GetClientIP returns the caller's address. Forwarding headers are only
// consulted when trustProxy is set.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
