package testtarget

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const tenantKey contextKey = "tenant"

func tenantFrom(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey).(string)
	return tenant
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			s.unauthorized.Add(1)
			respondError(w, http.StatusUnauthorized, codeUnauthorized, "X-API-Key header is required")
			return
		}
		tenant, ok := s.cfg.APIKeys[apiKey]
		if !ok {
			s.unauthorized.Add(1)
			respondError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tenant)))
	})
}

func (s *Server) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Latency > 0 {
			timer := time.NewTimer(s.cfg.Latency)
			select {
			case <-timer.C:
			case <-r.Context().Done():
				timer.Stop()
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) forceStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.FixedStatus == 0 {
			next.ServeHTTP(w, r)
			return
		}
		s.forced.Add(1)
		if s.cfg.FixedStatus == http.StatusAccepted {
			respondJSON(w, http.StatusAccepted, ingestResponse{
				Status:    "accepted",
				RequestID: middleware.GetReqID(r.Context()),
			})
			return
		}
		respondError(w, s.cfg.FixedStatus, codeForced, http.StatusText(s.cfg.FixedStatus))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimitPerMinute > 0 && !s.allow(tenantFrom(r.Context())) {
			s.rateLimited.Add(1)
			respondError(w, http.StatusTooManyRequests, codeRateLimited,
				fmt.Sprintf("Rate limit exceeded: %d requests per minute", s.cfg.RateLimitPerMinute))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow counts a request against the tenant's budget for the current
// minute.
func (s *Server) allow(tenant string) bool {
	window := s.now().UTC().Format("2006-01-02T15:04")

	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	if window != s.window {
		s.window = window
		s.usage = make(map[string]int)
	}
	s.usage[tenant]++
	return s.usage[tenant] <= s.cfg.RateLimitPerMinute
}
