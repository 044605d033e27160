// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/mysurvey/mysurvey/internal/auth"
)

type profileKey struct{}

// ProfileFrom returns the authenticated profile stored by the bearer middleware.
func ProfileFrom(ctx context.Context) (*auth.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(*auth.Profile)
	return p, ok
}

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// logRequests logs each routed request and records it in metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		s.metrics.ObserveHTTPRequest(r.Method, route, rec.status, elapsed)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"remote", clientKey(r),
		)
	})
}

// requireAuth resolves the bearer access token to a profile.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, r, oops.Code(auth.CodeInvalidToken).Errorf("Missing bearer token"))
			return
		}
		profile, err := s.auth.Authenticate(r.Context(), auth.AccessTokenCredential(token))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey{}, profile)))
	})
}

// requireRole must run after requireAuth.
func (s *Server) requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, ok := ProfileFrom(r.Context())
			if !ok || !slices.Contains(roles, profile.Role) {
				s.writeError(w, r, oops.Code(auth.CodeForbidden).Errorf("Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimited applies the per-client limiter. A nil limiter lets everything through.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed, retryAfter := s.limiter.Allow(clientKey(r)); !allowed {
			s.logger.WarnContext(r.Context(), "rate limit exceeded", "remote", clientKey(r), "path", r.URL.Path)
			writeRateLimited(w, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// clientKey identifies the caller for rate limiting. Behind a trusted proxy,
// handlers.ProxyHeaders has already rewritten RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// originMatcher compiles CORS origin patterns such as https://*.example.com.
// A '*' never crosses a dot.
func originMatcher(patterns []string) (func(origin string) bool, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("cors_origin", p).Wrap(err)
		}
		globs = append(globs, g)
	}
	return func(origin string) bool {
		for _, g := range globs {
			if g.Match(origin) {
				return true
			}
		}
		return false
	}, nil
}

func corsHandler(patterns []string) (func(http.Handler) http.Handler, error) {
	match, err := originMatcher(patterns)
	if err != nil {
		return nil, err
	}
	return handlers.CORS(
		handlers.AllowedOriginValidator(match),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.ExposedHeaders([]string{"Retry-After"}),
		handlers.AllowCredentials(),
		handlers.MaxAge(3600),
	), nil
}

// recoveryLogger adapts the server logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	s *Server
}

func (l recoveryLogger) Println(v ...any) {
	l.s.logger.Error("panic serving request", "panic", fmt.Sprint(v...))
}
