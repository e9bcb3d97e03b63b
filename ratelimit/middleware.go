package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error codes carried in the 429 body so clients can tell which bucket
// rejected them.
const (
	CodeIPLimited   = "AUTH_RATE_LIMITED"
	CodeUserLimited = "USER_RATE_LIMITED"
)

// KeyFunc derives the rate-limit key for a request. Returning "" skips
// limiting for that request.
type KeyFunc func(*http.Request) string

// IdentityFunc resolves the authenticated user behind a request. ok=false
// means unauthenticated; those requests pass through a user limiter
// untouched (the IP limiter is the outer guard for them).
type IdentityFunc func(*http.Request) (userID, role string, ok bool)

// ClientIP extracts the caller address: first hop of X-Forwarded-For, then
// X-Real-IP, then the transport peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IPLimit admits at most limit requests per window per client IP. Every
// response carries X-RateLimit-Limit/-Remaining/-Reset; rejections answer
// 429 with a Retry-After header and an AUTH_RATE_LIMITED body.
func IPLimit(l *Limiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return limitWith(l, limit, window, ClientIP, CodeIPLimited)
}

// KeyLimit is IPLimit with a caller-supplied key derivation (API key,
// tenant, route+IP composites and so on).
func KeyLimit(l *Limiter, limit int, window time.Duration, key KeyFunc) func(http.Handler) http.Handler {
	return limitWith(l, limit, window, key, CodeIPLimited)
}

// UserLimit admits requests per authenticated user under role-derived
// limits. Unauthenticated requests pass through.
func UserLimit(l *Limiter, limits RoleLimits, identify IdentityFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, role, ok := identify(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			res := l.CheckUser(id, role, limits)
			writeLimitHeaders(w, res)
			if !res.Allowed {
				reject(w, res, CodeUserLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitWith(l *Limiter, limit int, window time.Duration, key KeyFunc, code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			res := l.Check(k, limit, window)
			writeLimitHeaders(w, res)
			if !res.Allowed {
				reject(w, res, code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeLimitHeaders(w http.ResponseWriter, res Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

func reject(w http.ResponseWriter, res Result, code string) {
	retryAfter := int64(time.Until(res.ResetAt).Seconds() + 0.999)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": "too many requests",
		},
	})
}
