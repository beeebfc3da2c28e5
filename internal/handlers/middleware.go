package handlers

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/types"
	"golang.org/x/time/rate"
)

// RequireAuth resolves the bearer token into an account and stores it in the
// request context.
func RequireAuth(guard *services.Guard, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
				return
			}

			account, err := guard.Authenticate(r.Context(), token)
			if err != nil {
				writeServiceError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
		})
	}
}

// RequireRoles rejects authenticated accounts whose role is not listed. It
// must run after RequireAuth.
func RequireRoles(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := accountFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
				return
			}
			if !services.Authorize(account, roles...) {
				writeError(w, http.StatusForbidden, "role "+string(account.Role)+" is not authorized to access this route")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per IP, bursting up to the same
// amount. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	l := &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Inf,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.idle {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.idle {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Middleware answers 429 once a client exceeds its budget.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many attempts, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
