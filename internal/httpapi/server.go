// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package httpapi exposes the auth service as a JSON REST API under /api/v1.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/mysurvey/mysurvey/internal/auth"
)

// AuthService is the subset of auth.Service the API calls.
type AuthService interface {
	Register(ctx context.Context, reg auth.Registration) (*auth.AuthResult, error)
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*auth.AuthResult, error)
	Authenticate(ctx context.Context, cred auth.Credential) (*auth.Profile, error)
	ChangePassword(ctx context.Context, accountID ulid.ULID, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Logout(ctx context.Context, accountID ulid.ULID) error
	Profile(ctx context.Context, accountID ulid.ULID) (*auth.Profile, error)
	SetActive(ctx context.Context, accountID ulid.ULID, active bool) (*auth.Profile, error)
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(key string) (allowed bool, retryAfter time.Duration)
}

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// ReadinessChecker returns nil when dependencies are reachable.
type ReadinessChecker func(ctx context.Context) error

// Options configures a Server. Zero values disable the optional parts.
type Options struct {
	Logger      *slog.Logger
	Limiter     Limiter
	Metrics     RequestObserver
	Readiness   ReadinessChecker
	CORSOrigins []string

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

// Server routes API requests to the auth service.
type Server struct {
	auth      AuthService
	logger    *slog.Logger
	limiter   Limiter
	metrics   RequestObserver
	readiness ReadinessChecker
	handler   http.Handler
}

type nopObserver struct{}

func (nopObserver) ObserveHTTPRequest(string, string, int, time.Duration) {}

// NewServer builds the API handler chain.
func NewServer(svc AuthService, opts Options) (*Server, error) {
	s := &Server{
		auth:      svc,
		logger:    opts.Logger,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		readiness: opts.Readiness,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = nopObserver{}
	}

	var h http.Handler = s.routes()
	if len(opts.CORSOrigins) > 0 {
		cors, err := corsHandler(opts.CORSOrigins)
		if err != nil {
			return nil, err
		}
		h = cors(h)
	}
	if opts.TrustProxy {
		h = handlers.ProxyHeaders(h)
	}
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s}))(h)
	s.handler = h
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	setFallbacks(r)
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReady).Methods(http.MethodGet)

	// Subrouters answer method mismatches themselves.
	api := r.PathPrefix("/api/v1").Subrouter()
	setFallbacks(api)

	api.Handle("/auth/register", s.rateLimited(http.HandlerFunc(s.handleRegister))).Methods(http.MethodPost)
	api.Handle("/auth/login", s.rateLimited(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	api.Handle("/auth/refresh", s.rateLimited(http.HandlerFunc(s.handleRefresh))).Methods(http.MethodPost)
	api.Handle("/auth/forgot-password", s.rateLimited(http.HandlerFunc(s.handleForgotPassword))).Methods(http.MethodPost)
	api.Handle("/auth/reset-password", s.rateLimited(http.HandlerFunc(s.handleResetPassword))).Methods(http.MethodPost)

	api.Handle("/auth/change-password", s.requireAuth(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPatch)
	api.Handle("/auth/profile", s.requireAuth(http.HandlerFunc(s.handleProfile))).Methods(http.MethodGet)
	api.Handle("/auth/logout", s.requireAuth(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)

	admin := func(h http.HandlerFunc) http.Handler {
		return s.requireAuth(s.requireRole(auth.RoleAdmin)(h))
	}
	api.Handle("/users/{id}/activate", admin(s.handleSetActive(true))).Methods(http.MethodPatch)
	api.Handle("/users/{id}/deactivate", admin(s.handleSetActive(false))).Methods(http.MethodPatch)

	return r
}

func setFallbacks(r *mux.Router) {
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusNotFound, CodeNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
	})
}
