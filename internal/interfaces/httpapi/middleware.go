package httpapi

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"aagateway/internal/domain"

	"golang.org/x/time/rate"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

// IdempotencyStore keeps the first response produced for an Idempotency-Key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (domain.StoredResponse, bool, error)
	Save(ctx context.Context, key string, response domain.StoredResponse) error
	Release(ctx context.Context, key string) error
}

// idempotent replays the stored response for a repeated Idempotency-Key and
// rejects repeats that arrive while the first request is still running.
func (s *Server) idempotent(next http.Handler) http.Handler {
	if s.idempotency == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			respondJSON(w, http.StatusBadRequest, failure{Message: "Idempotency-Key is too long", Kind: domain.KindValidation})
			return
		}
		// keys are scoped per route so one key cannot replay another route's response
		scoped := r.Method + " " + r.URL.Path + " " + key

		stored, reserved, err := s.idempotency.Reserve(r.Context(), scoped)
		if err != nil {
			slog.Warn("idempotency store unavailable", "path", r.URL.Path, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !reserved {
			if stored.Pending {
				respondJSON(w, http.StatusConflict, failure{Message: "A request with this Idempotency-Key is still in progress"})
				return
			}
			s.metrics.replays.Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}

		rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			// the request outlives a disconnected client
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
			defer cancel()
			if !completed {
				if err := s.idempotency.Release(ctx, scoped); err != nil {
					slog.Warn("idempotency release failed", "path", r.URL.Path, "err", err)
				}
				return
			}
			response := domain.StoredResponse{Status: rec.status, Body: rec.body.Bytes()}
			if err := s.idempotency.Save(ctx, scoped, response); err != nil {
				slog.Warn("idempotency save failed", "path", r.URL.Path, "err", err)
			}
		}()
		next.ServeHTTP(rec, r)
		completed = true
	})
}

type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *capturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *capturingWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Prune drops limiters of clients idle longer than the idle window.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Run prunes idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientAddress(r)
		if !s.limiter.Allow(key) {
			s.metrics.rateLimited.Inc()
			slog.Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			respondJSON(w, http.StatusTooManyRequests, failure{Message: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
