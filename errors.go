package authcore

import (
	"errors"

	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
)

var (
	// ErrDuplicateEmail is returned by Register when the email is taken.
	ErrDuplicateEmail = credential.ErrDuplicateEmail
	// ErrDuplicateUsername is returned by Register when the username is taken.
	ErrDuplicateUsername = credential.ErrDuplicateUsername
	// ErrRecordNotFound is returned when a referenced principal does not exist.
	ErrRecordNotFound = credential.ErrNotFound

	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout is active, and by the
	// failed attempt that triggers one.
	ErrAccountLocked = errors.New("account locked")
	// ErrTwoFactorRequired is returned by LoginToken when a second factor is
	// needed to complete the login.
	ErrTwoFactorRequired       = errors.New("two-factor code required")
	ErrInvalidTwoFactorCode    = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnrolled    = errors.New("two-factor not enrolled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	ErrTwoFactorRateLimited    = limiters.ErrTwoFactorRateLimited
	// ErrTwoFactorUnavailable means the attempt limiter backend failed; codes
	// are not checked while it is down.
	ErrTwoFactorUnavailable = limiters.ErrTwoFactorUnavailable

	// ErrTokenInvalidOrExpired is returned for any unusable single-use token.
	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")
	ErrEmailAlreadyVerified  = errors.New("email already verified")
	// ErrNotificationFailed means a token was stored but could not be
	// delivered. The token stays valid.
	ErrNotificationFailed = errors.New("notification delivery failed")

	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidRole     = errors.New("invalid role")

	ErrTokenExpired     = jwt.ErrTokenExpired
	ErrTokenInvalid     = jwt.ErrTokenInvalid
	ErrRoleDenied       = permission.ErrRoleDenied
	ErrPermissionDenied = permission.ErrPermissionDenied

	ErrEngineNotReady = errors.New("engine not initialized")
)
