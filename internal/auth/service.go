// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mysurvey/mysurvey/internal/auth")

// Operation names used for tracing and metrics.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpRefresh        = "refresh"
	OpChangePassword = "change_password"
	OpForgotPassword = "forgot_password"
	OpResetPassword  = "reset_password"
	OpLogout         = "logout"
	OpAuthenticate   = "authenticate"
	OpSetActive      = "set_active"
	OpUnlock         = "unlock"
)

// TokenService mints and verifies token pairs.
type TokenService interface {
	Issue(a *Account) (TokenPair, error)
	VerifyAccess(token string) (*Claims, error)
	VerifyRefresh(token string) (*Claims, error)
}

// Recorder receives authentication outcomes for metrics.
type Recorder interface {
	RecordAuthOperation(operation, outcome string)
	RecordLockout()
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOperation(string, string) {}
func (nopRecorder) RecordLockout()                     {}

// AuthResult is returned by operations that sign an account in.
type AuthResult struct {
	User *Profile `json:"user"`
	TokenPair
}

// Service provides authentication operations.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	tokens   TokenService
	lockout  LockoutPolicy
	resetTTL time.Duration
	notifier ResetNotifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithLockoutPolicy sets the lockout threshold and duration.
func WithLockoutPolicy(p LockoutPolicy) Option {
	return func(s *Service) { s.lockout = p }
}

// WithResetTokenTTL sets how long password reset tokens stay valid.
func WithResetTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.resetTTL = ttl }
}

// WithResetNotifier sets where reset tokens are delivered.
func WithResetNotifier(n ResetNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(accounts AccountRepository, hasher PasswordHasher, tokens TokenService, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token service is required")
	}
	s := &Service{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		lockout:  DefaultLockoutPolicy(),
		resetTTL: DefaultResetTokenTTL,
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger cannot be nil")
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTokenTTL
	}
	return s, nil
}

// dummyPasswordHash is verified against when an email is unknown so that
// lookups of missing accounts cost the same as real ones.
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password-0!A")
		if err != nil {
			// A malformed hash still makes Verify return false.
			hash = "$2a$12$000000000000000000000000000000000000000000000000000000"
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "auth."+op, trace.WithAttributes(attribute.String("auth.operation", op)))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.recorder.RecordAuthOperation(op, outcome)
	span.End()
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, reg Registration) (result *AuthResult, err error) {
	ctx, span := s.start(ctx, OpRegister)
	defer func() { s.finish(span, OpRegister, err) }()

	_, err = s.accounts.FindByEmail(ctx, reg.Email)
	switch {
	case err == nil:
		return nil, errEmailTaken()
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAccount(reg, hash, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, errEmailTaken()
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())
	return s.issue(account)
}

// Login authenticates with email and password and returns a token pair.
// Unknown emails and wrong passwords yield the same error.
func (s *Service) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, span := s.start(ctx, OpLogin)
	defer func() { s.finish(span, OpLogin, err) }()

	account, err := s.authenticatePassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account logged in", "account_id", account.ID.String())
	return s.issue(account)
}

// RefreshToken exchanges a valid refresh token for a new token pair.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (result *AuthResult, err error) {
	ctx, span := s.start(ctx, OpRefresh)
	defer func() { s.finish(span, OpRefresh, err) }()

	account, err := s.resolve(ctx, RefreshTokenCredential(refreshToken))
	if err != nil {
		return nil, err
	}
	return s.issue(account)
}

// Authenticate resolves a credential to the profile of an active account.
func (s *Service) Authenticate(ctx context.Context, cred Credential) (profile *Profile, err error) {
	ctx, span := s.start(ctx, OpAuthenticate)
	span.SetAttributes(attribute.String("auth.credential", cred.Kind.String()))
	defer func() { s.finish(span, OpAuthenticate, err) }()

	account, err := s.resolve(ctx, cred)
	if err != nil {
		return nil, err
	}
	return account.Profile(), nil
}

func (s *Service) resolve(ctx context.Context, cred Credential) (*Account, error) {
	switch cred.Kind {
	case CredentialPassword:
		return s.authenticatePassword(ctx, cred.Email, cred.Secret)
	case CredentialAccessToken:
		claims, err := s.tokens.VerifyAccess(cred.Secret)
		if err != nil {
			return nil, errInvalidToken("Invalid access token", err)
		}
		return s.accountFromClaims(ctx, claims, "Invalid access token")
	case CredentialRefreshToken:
		claims, err := s.tokens.VerifyRefresh(cred.Secret)
		if err != nil {
			return nil, errInvalidToken("Invalid refresh token", err)
		}
		return s.accountFromClaims(ctx, claims, "Invalid refresh token")
	default:
		return nil, oops.Code("AUTH_UNSUPPORTED_CREDENTIAL").
			With("kind", int(cred.Kind)).
			Errorf("unsupported credential kind")
	}
}

func (s *Service) accountFromClaims(ctx context.Context, claims *Claims, msg string) (*Account, error) {
	id, err := claims.AccountID()
	if err != nil {
		return nil, errInvalidToken(msg, err)
	}
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidToken(msg, nil)
		}
		return nil, oops.Code("AUTH_TOKEN_LOOKUP_FAILED").
			With("operation", "find account by id").
			With("account_id", id.String()).
			Wrap(err)
	}
	if !account.Active {
		return nil, errInvalidToken(msg, nil)
	}
	return account, nil
}

// authenticatePassword verifies an email/password pair, maintaining the
// lockout counters on the way.
func (s *Service) authenticatePassword(ctx context.Context, email, password string) (*Account, error) {
	now := s.now()

	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Verify(password, s.dummyPasswordHash())
			return nil, errInvalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}

	if s.lockout.Release(account, now) {
		if err := s.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to clear elapsed lockout",
				"account_id", account.ID.String(), "error", err)
		}
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		s.recordFailure(ctx, account, now)
		return nil, errInvalidCredentials()
	}

	if !account.Active {
		return nil, oops.Code(CodeAccountInactive).
			With("account_id", account.ID.String()).
			Errorf("Account is deactivated")
	}

	if s.lockout.IsLocked(account, now) {
		return nil, oops.Code(CodeAccountLocked).
			With("account_id", account.ID.String()).
			With("locked_until", *account.LockedUntil).
			With("retry_after", s.lockout.Remaining(account, now)).
			Errorf("Account is temporarily locked")
	}

	s.recordSuccess(ctx, account, password, now)
	return account, nil
}

func (s *Service) recordFailure(ctx context.Context, account *Account, now time.Time) {
	lockedNow := s.lockout.RecordFailure(account, now)
	if err := s.accounts.UpdateFailedAttempts(ctx, account.ID, account.FailedAttempts, account.LockedUntil); err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure",
			"account_id", account.ID.String(), "error", err)
	}
	if lockedNow {
		s.recorder.RecordLockout()
		s.logger.WarnContext(ctx, "account locked after repeated login failures",
			"account_id", account.ID.String(),
			"failed_attempts", account.FailedAttempts,
			"locked_until", *account.LockedUntil,
		)
	}
}

// recordSuccess applies the post-login bookkeeping. Failures are logged and
// do not fail the login.
func (s *Service) recordSuccess(ctx context.Context, account *Account, password string, now time.Time) {
	s.lockout.RecordSuccess(account, now)
	if err := s.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login failures",
			"account_id", account.ID.String(), "error", err)
	}

	last := now.UTC()
	account.LastLoginAt = &last
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, last); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login",
			"account_id", account.ID.String(), "error", err)
	}

	if s.hasher.NeedsRehash(account.PasswordHash) {
		hash, err := s.hasher.Hash(password)
		if err == nil {
			err = s.accounts.RehashPassword(ctx, account.ID, hash)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "failed to upgrade password hash",
				"account_id", account.ID.String(), "error", err)
		} else {
			account.PasswordHash = hash
		}
	}
}

// ChangePassword replaces the password of an authenticated account after
// checking the current one.
func (s *Service) ChangePassword(ctx context.Context, accountID ulid.ULID, currentPassword, newPassword string) (err error) {
	ctx, span := s.start(ctx, OpChangePassword)
	defer func() { s.finish(span, OpChangePassword, err) }()

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidInput).
				With("field", "accountId").
				With("account_id", accountID.String()).
				Errorf("User not found")
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "find account by id").
			Wrap(err)
	}

	if !s.hasher.Verify(currentPassword, account.PasswordHash) {
		return oops.Code(CodeIncorrectPassword).
			With("account_id", accountID.String()).
			Errorf("Current password is incorrect")
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, hash); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "account_id", accountID.String())
	return nil
}

// ForgotPassword issues a reset token for the account with the given email.
// Unknown emails are silently ignored so callers cannot enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := s.start(ctx, OpForgotPassword)
	defer func() { s.finish(span, OpForgotPassword, err) }()

	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	expiresAt := s.now().Add(s.resetTTL).UTC()
	if err := s.accounts.SetResetToken(ctx, account.ID, hash, expiresAt); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	if err := s.notifier.NotifyPasswordReset(ctx, account.Profile(), token, expiresAt); err != nil {
		s.logger.WarnContext(ctx, "failed to deliver password reset token",
			"account_id", account.ID.String(), "error", err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID.String())
	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// consumed on success.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := s.start(ctx, OpResetPassword)
	defer func() { s.finish(span, OpResetPassword, err) }()

	if token == "" {
		return oops.Code(CodeResetTokenInvalid).Errorf("Invalid or expired reset token")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	digest := HashResetToken(token)
	account, err := s.accounts.FindByResetToken(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetTokenInvalid).Errorf("Invalid or expired reset token")
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "find account by reset token").
			Wrap(err)
	}

	now := s.now()
	if account.ResetExpiresAt == nil || !account.ResetExpiresAt.After(now) {
		if err := s.accounts.ClearResetToken(ctx, account.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to clear expired reset token",
				"account_id", account.ID.String(), "error", err)
		}
		return oops.Code(CodeResetTokenExpired).
			With("account_id", account.ID.String()).
			Errorf("Invalid or expired reset token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.accounts.CompleteReset(ctx, account.ID, digest, hash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Consumed by a concurrent reset or replaced by a newer request.
			return oops.Code(CodeResetTokenInvalid).Errorf("Invalid or expired reset token")
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "complete reset").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "account_id", account.ID.String())
	return nil
}

// Logout records a logout. Tokens are not revoked server side; clients
// discard them.
func (s *Service) Logout(ctx context.Context, accountID ulid.ULID) (err error) {
	ctx, span := s.start(ctx, OpLogout)
	defer func() { s.finish(span, OpLogout, err) }()

	s.logger.InfoContext(ctx, "account logged out", "account_id", accountID.String())
	return nil
}

// Profile returns the profile of an account.
func (s *Service) Profile(ctx context.Context, accountID ulid.ULID) (*Profile, error) {
	account, err := s.find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return account.Profile(), nil
}

// SetActive activates or deactivates an account. Activation also clears any
// lockout so the account comes back unlocked.
func (s *Service) SetActive(ctx context.Context, accountID ulid.ULID, active bool) (profile *Profile, err error) {
	ctx, span := s.start(ctx, OpSetActive)
	span.SetAttributes(attribute.Bool("auth.active", active))
	defer func() { s.finish(span, OpSetActive, err) }()

	account, err := s.find(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.SetActive(ctx, accountID, active); err != nil {
		return nil, oops.Code("AUTH_SET_ACTIVE_FAILED").
			With("account_id", accountID.String()).
			With("active", active).
			Wrap(err)
	}
	account.Active = active
	account.UpdatedAt = s.now().UTC()

	if active {
		if err := s.accounts.ResetFailedAttempts(ctx, accountID); err != nil {
			return nil, oops.Code("AUTH_SET_ACTIVE_FAILED").
				With("operation", "reset failed attempts").
				With("account_id", accountID.String()).
				Wrap(err)
		}
		s.lockout.RecordSuccess(account, account.UpdatedAt)
		s.logger.InfoContext(ctx, "account activated", "account_id", accountID.String())
	} else {
		s.logger.InfoContext(ctx, "account deactivated", "account_id", accountID.String())
	}
	return account.Profile(), nil
}

// Unlock clears an account's failure counter and lockout.
func (s *Service) Unlock(ctx context.Context, accountID ulid.ULID) (err error) {
	ctx, span := s.start(ctx, OpUnlock)
	defer func() { s.finish(span, OpUnlock, err) }()

	if _, err := s.find(ctx, accountID); err != nil {
		return err
	}
	if err := s.accounts.ResetFailedAttempts(ctx, accountID); err != nil {
		return oops.Code("AUTH_UNLOCK_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "account unlocked", "account_id", accountID.String())
	return nil
}

// FindByEmail returns the profile for an email. Used by administrative tooling.
func (s *Service) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountMissing).With("email", email).Errorf("User not found")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").With("operation", "find account by email").Wrap(err)
	}
	return account.Profile(), nil
}

func (s *Service) find(ctx context.Context, accountID ulid.ULID) (*Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountMissing).
				With("account_id", accountID.String()).
				Errorf("User not found")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "find account by id").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return account, nil
}

func (s *Service) issue(account *Account) (*AuthResult, error) {
	pair, err := s.tokens.Issue(account)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_ISSUE_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return &AuthResult{User: account.Profile(), TokenPair: pair}, nil
}

func errEmailTaken() error {
	return oops.Code(CodeEmailTaken).Errorf("User with this email already exists")
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("Invalid credentials")
}

// errInvalidToken deliberately drops cause from the returned chain: the
// verification code on cause would otherwise shadow this one.
func errInvalidToken(msg string, cause error) error {
	b := oops.Code(CodeInvalidToken)
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Errorf("%s", msg)
}
