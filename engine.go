package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/activity"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Engine runs every authentication and token lifecycle operation. Build it
// with New().WithStore(...).Build().
type Engine struct {
	config    Config
	store     credential.Store
	hasher    *password.Hasher
	dummyHash string
	tokens    *jwt.Manager
	totp      *totpService
	limiter   *limiters.TwoFactor
	notifier  Notifier
	activity  *activity.Dispatcher
	metrics   *Metrics
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// Close drains and stops the activity dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.activity != nil {
		e.activity.Close()
	}
}

// ActivityDropped returns the number of activity events discarded because
// the dispatcher buffer was full.
func (e *Engine) ActivityDropped() uint64 {
	if e == nil || e.activity == nil {
		return 0
	}
	return e.activity.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Register creates a local record and opens its first session. When
// EmailVerification.SendOnRegister is set a verification token is sent too;
// a delivery failure there is logged and does not fail the registration.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	req.Email = credential.NormalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := e.validateRegister(req); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	rec, err := e.store.Create(ctx, &credential.Record{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Provider:     credential.ProviderLocal,
		Role:         e.config.Account.DefaultRole,
	})
	switch {
	case errors.Is(err, credential.ErrDuplicateEmail), errors.Is(err, credential.ErrDuplicateUsername):
		e.metricInc(MetricRegisterDuplicate)
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("create record: %w", err)
	}

	sessionID := internal.NewSessionID()
	if e.config.Session.TrackSessions {
		if err := e.store.AddSession(ctx, rec.ID, sessionID); err != nil {
			return nil, fmt.Errorf("add session: %w", err)
		}
		rec.ActiveSessionIDs = append(rec.ActiveSessionIDs, sessionID)
	}
	token, err := e.issueSession(rec, sessionID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emit(ctx, ActionRegister, rec.ID, map[string]string{"provider": string(credential.ProviderLocal)})

	if e.config.EmailVerification.SendOnRegister {
		if _, err := e.issueVerification(ctx, rec); err != nil {
			e.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("verification email not sent after registration")
		}
	}

	return &RegisterResult{Record: rec.Redacted(), SessionToken: token, SessionID: sessionID}, nil
}

func (e *Engine) validateRegister(req RegisterRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return invalidInput(err)
	}
	if flows.IsPlaceholderEmail(req.Email) {
		return fmt.Errorf("%w: email domain is reserved", ErrInvalidInput)
	}
	usernameRule := fmt.Sprintf("min=%d,max=%d", e.config.Account.UsernameMinLength, e.config.Account.UsernameMaxLength)
	if err := e.validate.Var(req.Username, usernameRule); err != nil {
		return fmt.Errorf("%w: username must be %d to %d characters", ErrInvalidInput,
			e.config.Account.UsernameMinLength, e.config.Account.UsernameMaxLength)
	}
	return e.checkPasswordPolicy(req.Password)
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	rule := fmt.Sprintf("required,min=%d,max=%d", e.config.Password.MinLength, e.config.Password.MaxLength)
	if err := e.validate.Var(pw, rule); err != nil {
		return fmt.Errorf("%w: password must be %d to %d characters", ErrInvalidInput,
			e.config.Password.MinLength, e.config.Password.MaxLength)
	}
	return nil
}

func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s failed %s", ErrInvalidInput, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// Login runs password check, lockout, second factor and session issue in
// that order. A record with two-factor enabled and no code in req yields
// LoginResult{TwoFactorRequired: true} and no error.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email := credential.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	out, err := flows.RunLogin(ctx, flows.LoginRequest{
		Email:         email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
	}, e.loginDeps())
	if err != nil {
		return nil, err
	}
	if out.TwoFactorRequired {
		return &LoginResult{TwoFactorRequired: true}, nil
	}
	return &LoginResult{
		Record:       out.Record.Redacted(),
		SessionToken: out.Token,
		SessionID:    out.SessionID,
	}, nil
}

// LoginToken is Login for callers that only want the session token. A
// pending second factor is reported as ErrTwoFactorRequired.
func (e *Engine) LoginToken(ctx context.Context, email, password, code string) (string, error) {
	res, err := e.Login(ctx, LoginRequest{Email: email, Password: password, TwoFactorCode: code})
	if err != nil {
		return "", err
	}
	if res.TwoFactorRequired {
		return "", ErrTwoFactorRequired
	}
	return res.SessionToken, nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	deps := flows.LoginDeps{
		LockoutThreshold: e.config.Lockout.Threshold,
		LockoutDuration:  e.config.Lockout.Duration,
		TrackSessions:    e.config.Session.TrackSessions,
		UpgradeOnLogin:   e.config.Password.UpgradeOnLogin,
		Now:              e.now,

		FindByEmail:           e.store.FindByEmail,
		RegisterFailedLogin:   e.store.RegisterFailedLogin,
		RecordSuccessfulLogin: e.store.RecordSuccessfulLogin,
		UpdatePasswordHash:    e.store.UpdatePasswordHash,

		VerifyPassword: e.hasher.Verify,
		EqualizeTiming: func(pw string) {
			_, _ = e.hasher.Verify(pw, e.dummyHash)
		},
		PasswordNeedsUpgrade: e.hasher.NeedsUpgrade,
		HashPassword:         e.hasher.Hash,

		VerifyTwoFactorCode: e.totp.Validate,

		NewSessionID: internal.NewSessionID,
		IssueToken:   e.issueSession,
		EmitLogin: func(ctx context.Context, rec *credential.Record, _ string) {
			e.emit(ctx, ActionLogin, rec.ID, map[string]string{"method": "password"})
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		Warn: func(msg string, err error) {
			e.logger.Warn().Err(err).Msg(msg)
		},
		Metrics: flows.LoginMetrics{
			LoginSuccess:         int(MetricLoginSuccess),
			LoginFailure:         int(MetricLoginFailure),
			LoginLocked:          int(MetricLoginLocked),
			LockoutTriggered:     int(MetricLockoutTriggered),
			TwoFactorRequired:    int(MetricTwoFactorRequired),
			TwoFactorFailure:     int(MetricTwoFactorFailure),
			TwoFactorRateLimited: int(MetricTwoFactorRateLimited),
			PasswordUpgraded:     int(MetricPasswordUpgraded),
		},
		Errors: flows.LoginErrors{
			EngineNotReady:       ErrEngineNotReady,
			InvalidCredentials:   ErrInvalidCredentials,
			AccountLocked:        ErrAccountLocked,
			InvalidTwoFactorCode: ErrInvalidTwoFactorCode,
		},
	}
	if e.limiter != nil {
		deps.CheckTwoFactorRate = e.limiter.Check
		deps.RecordTwoFactorFailure = e.recordTwoFactorFailure
		deps.ResetTwoFactorRate = e.limiter.Reset
	}
	return deps
}

func (e *Engine) issueSession(rec *credential.Record, sessionID string) (string, error) {
	token, err := e.tokens.Issue(jwt.Subject{UserID: rec.ID, Email: rec.Email, SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("issue session token: %w", err)
	}
	return token, nil
}

// Logout ends sessionID for userID. It is idempotent.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.config.Session.TrackSessions {
		if err := e.store.RemoveSession(ctx, userID, sessionID); err != nil {
			return fmt.Errorf("remove session: %w", err)
		}
	}
	e.metricInc(MetricLogout)
	e.emit(ctx, ActionLogout, userID, nil)
	return nil
}

// Authenticate verifies a session token and loads the current record.
// With session tracking on, tokens of ended sessions are ErrTokenInvalid.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}()

	claims, err := e.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.FindByID(ctx, claims.UID)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if e.config.Session.TrackSessions && !rec.HasSession(claims.SessionID()) {
		return nil, ErrTokenInvalid
	}
	return &Principal{Record: rec.Redacted(), SessionID: claims.SessionID(), Claims: claims}, nil
}

// GetRecord returns the redacted record for userID.
func (e *Engine) GetRecord(ctx context.Context, userID string) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rec.Redacted(), nil
}

// recordTwoFactorFailure counts a failed code. Reaching the limit is not an
// error here; the next Check reports it.
func (e *Engine) recordTwoFactorFailure(ctx context.Context, userID string) error {
	err := e.limiter.RecordFailure(ctx, userID)
	if errors.Is(err, limiters.ErrTwoFactorRateLimited) {
		return nil
	}
	return err
}
