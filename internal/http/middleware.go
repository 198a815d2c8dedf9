package httpserver

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/identity"
	"github.com/studyshare/studyshare-api/internal/metrics"
)

type tokenCtxKey struct{}

// instrument logs every request and records it in the HTTP metrics, labelled
// by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote", r.RemoteAddr),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("request", fields...)
			return
		}
		s.logger.Info("request", fields...)
	})
}

// requireAuth resolves the bearer token to an identity. A missing token is
// 401 and a rejected one is 403.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := identity.BearerToken(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "Access token required")
			return
		}
		if s.auth == nil {
			s.respondError(w, http.StatusForbidden, "Invalid token")
			return
		}

		id, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrMissingToken) {
				s.respondError(w, http.StatusForbidden, "Invalid token")
				return
			}
			s.logger.Error("authenticate", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "Authentication failed")
			return
		}

		ctx := identity.WithIdentity(r.Context(), id)
		ctx = context.WithValue(ctx, tokenCtxKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit applies the fixed-window limiter per client IP. Limiter errors
// let the request through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		decision, err := s.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			s.logger.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		if !decision.Allowed {
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("X-RateLimit-Remaining", "0")
			s.metrics.AIRequests.WithLabelValues(metrics.OutcomeRateLimited).Inc()
			s.respondError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		next.ServeHTTP(w, r)
	})
}

// forwardedFor lets chi's RealIP rewrite RemoteAddr from forwarded-for headers
// only when the socket peer is a trusted proxy. Anyone else could pick their
// own rate-limit key by sending the header.
func (s *Server) forwardedFor(next http.Handler) http.Handler {
	viaProxy := middleware.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.trustedPeer(r.RemoteAddr) {
			viaProxy.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) trustedPeer(remoteAddr string) bool {
	if len(s.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(hostOnly(remoteAddr))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range s.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func hostOnly(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func clientIP(r *http.Request) string {
	return hostOnly(r.RemoteAddr)
}

func callerFrom(r *http.Request) (string, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

func tokenFrom(r *http.Request) string {
	token, _ := r.Context().Value(tokenCtxKey{}).(string)
	return token
}
