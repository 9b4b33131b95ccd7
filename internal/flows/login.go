package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/credential"
)

// LoginRequest is the flow-local login input. Email is already normalized.
type LoginRequest struct {
	Email         string
	Password      string
	TwoFactorCode string
}

// LoginOutcome is either a completed login or a second-factor challenge.
type LoginOutcome struct {
	Record            *credential.Record
	SessionID         string
	Token             string
	TwoFactorRequired bool
}

// LoginMetrics carries metric IDs incremented by the login flow.
type LoginMetrics struct {
	LoginSuccess         int
	LoginFailure         int
	LoginLocked          int
	LockoutTriggered     int
	TwoFactorRequired    int
	TwoFactorFailure     int
	TwoFactorRateLimited int
	PasswordUpgraded     int
}

// LoginErrors carries host sentinels returned by the login flow.
type LoginErrors struct {
	EngineNotReady       error
	InvalidCredentials   error
	AccountLocked        error
	InvalidTwoFactorCode error
}

// LoginDeps captures everything the login flow touches.
type LoginDeps struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	TrackSessions    bool
	UpgradeOnLogin   bool
	Now              func() time.Time

	FindByEmail           func(ctx context.Context, email string) (*credential.Record, error)
	RegisterFailedLogin   func(ctx context.Context, id string, policy credential.LockoutPolicy) (*credential.Record, error)
	RecordSuccessfulLogin func(ctx context.Context, id, sessionID string, now time.Time) (*credential.Record, error)
	UpdatePasswordHash    func(ctx context.Context, id, oldHash, newHash string) error

	VerifyPassword       func(password, hash string) (bool, error)
	EqualizeTiming       func(password string)
	PasswordNeedsUpgrade func(hash string) (bool, error)
	HashPassword         func(password string) (string, error)

	VerifyTwoFactorCode func(secret, code string, at time.Time) bool
	// CheckTwoFactorRate returns a host error when attempts are exhausted.
	CheckTwoFactorRate     func(ctx context.Context, userID string) error
	RecordTwoFactorFailure func(ctx context.Context, userID string) error
	ResetTwoFactorRate     func(ctx context.Context, userID string) error

	NewSessionID func() string
	IssueToken   func(rec *credential.Record, sessionID string) (string, error)
	EmitLogin    func(ctx context.Context, rec *credential.Record, sessionID string)

	MetricInc func(int)
	Warn      func(msg string, err error)

	Metrics LoginMetrics
	Errors  LoginErrors
}

// RunLogin authenticates req.
//
// Order of checks: unknown email or no local password, active lock (no
// password comparison), password mismatch (counted towards lockout),
// second factor, then session issue. Second-factor failures never touch the
// lockout counter.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) (*LoginOutcome, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}
	if deps.EqualizeTiming == nil {
		deps.EqualizeTiming = func(string) {}
	}
	if deps.EmitLogin == nil {
		deps.EmitLogin = func(context.Context, *credential.Record, string) {}
	}
	if deps.FindByEmail == nil ||
		deps.RegisterFailedLogin == nil ||
		deps.RecordSuccessfulLogin == nil ||
		deps.VerifyPassword == nil ||
		deps.VerifyTwoFactorCode == nil ||
		deps.NewSessionID == nil ||
		deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	now := deps.Now()

	rec, err := deps.FindByEmail(ctx, req.Email)
	if errors.Is(err, credential.ErrNotFound) {
		deps.EqualizeTiming(req.Password)
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, deps.Errors.InvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !rec.HasPassword() {
		deps.EqualizeTiming(req.Password)
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, deps.Errors.InvalidCredentials
	}

	if rec.Locked(now) {
		deps.MetricInc(deps.Metrics.LoginLocked)
		return nil, deps.Errors.AccountLocked
	}

	ok, err := deps.VerifyPassword(req.Password, rec.PasswordHash)
	if err != nil {
		deps.Warn("stored password hash could not be verified", err)
	}
	if err != nil || !ok {
		return nil, registerFailure(ctx, rec, now, deps)
	}

	if rec.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			deps.MetricInc(deps.Metrics.TwoFactorRequired)
			return &LoginOutcome{TwoFactorRequired: true}, nil
		}
		if err := verifySecondFactor(ctx, rec, req.TwoFactorCode, now, deps); err != nil {
			return nil, err
		}
	}

	sessionID := deps.NewSessionID()
	tracked := ""
	if deps.TrackSessions {
		tracked = sessionID
	}
	updated, err := deps.RecordSuccessfulLogin(ctx, rec.ID, tracked, now)
	if errors.Is(err, credential.ErrLocked) {
		deps.MetricInc(deps.Metrics.LoginLocked)
		return nil, deps.Errors.AccountLocked
	}
	if err != nil {
		return nil, err
	}

	if deps.UpgradeOnLogin {
		upgradePasswordHash(ctx, rec, req.Password, deps)
	}

	token, err := deps.IssueToken(updated, sessionID)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitLogin(ctx, updated, sessionID)
	return &LoginOutcome{Record: updated, SessionID: sessionID, Token: token}, nil
}

func registerFailure(ctx context.Context, rec *credential.Record, now time.Time, deps LoginDeps) error {
	out, err := deps.RegisterFailedLogin(ctx, rec.ID, credential.LockoutPolicy{
		Threshold: deps.LockoutThreshold,
		Until:     now.Add(deps.LockoutDuration),
		Now:       now,
	})
	switch {
	case errors.Is(err, credential.ErrLocked):
		deps.MetricInc(deps.Metrics.LoginLocked)
		return deps.Errors.AccountLocked
	case err != nil:
		return err
	case out.Locked(now):
		deps.MetricInc(deps.Metrics.LockoutTriggered)
		return deps.Errors.AccountLocked
	}
	deps.MetricInc(deps.Metrics.LoginFailure)
	return deps.Errors.InvalidCredentials
}

func verifySecondFactor(ctx context.Context, rec *credential.Record, code string, now time.Time, deps LoginDeps) error {
	if deps.CheckTwoFactorRate != nil {
		if err := deps.CheckTwoFactorRate(ctx, rec.ID); err != nil {
			deps.MetricInc(deps.Metrics.TwoFactorRateLimited)
			return err
		}
	}
	if !deps.VerifyTwoFactorCode(rec.TwoFactorSecret, code, now) {
		deps.MetricInc(deps.Metrics.TwoFactorFailure)
		if deps.RecordTwoFactorFailure != nil {
			if err := deps.RecordTwoFactorFailure(ctx, rec.ID); err != nil {
				deps.Warn("two-factor failure not recorded", err)
			}
		}
		return deps.Errors.InvalidTwoFactorCode
	}
	if deps.ResetTwoFactorRate != nil {
		if err := deps.ResetTwoFactorRate(ctx, rec.ID); err != nil {
			deps.Warn("two-factor counter not reset", err)
		}
	}
	return nil
}

func upgradePasswordHash(ctx context.Context, rec *credential.Record, password string, deps LoginDeps) {
	if deps.PasswordNeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needs, err := deps.PasswordNeedsUpgrade(rec.PasswordHash)
	if err != nil || !needs {
		return
	}
	fresh, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("password rehash failed", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, rec.ID, rec.PasswordHash, fresh); err != nil {
		deps.Warn("password rehash not stored", err)
		return
	}
	deps.MetricInc(deps.Metrics.PasswordUpgraded)
}
