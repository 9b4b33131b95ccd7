package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/credential"
)

// EnrollTwoFactor generates a pending TOTP secret for userID. The secret is
// returned only here and becomes active after ConfirmTwoFactor.
func (e *Engine) EnrollTwoFactor(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	enrollment, err := e.totp.Generate(rec.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	err = e.store.SetPendingTwoFactorSecret(ctx, rec.ID, enrollment.Secret)
	if errors.Is(err, credential.ErrTwoFactorEnabled) {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if err != nil {
		return nil, fmt.Errorf("store pending secret: %w", err)
	}
	return enrollment, nil
}

// ConfirmTwoFactor checks code against the pending secret and enables
// two-factor on success. A wrong code returns (false, nil) and changes
// nothing, so enrollment can be retried.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, userID, code string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	switch {
	case rec.TwoFactorEnabled:
		return false, ErrTwoFactorAlreadyEnabled
	case rec.TwoFactorSecret == "":
		return false, ErrTwoFactorNotEnrolled
	}

	ok, err := e.checkTwoFactorCode(ctx, rec, code)
	if err != nil || !ok {
		return false, err
	}

	err = e.store.EnableTwoFactor(ctx, rec.ID, rec.TwoFactorSecret)
	if errors.Is(err, credential.ErrConflict) {
		// Re-enrolled or enabled concurrently; the code belonged to a stale secret.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enable two-factor: %w", err)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emit(ctx, ActionTwoFactorEnabled, rec.ID, nil)
	if err := e.notifier.SendTwoFactorEnabled(ctx, rec.Redacted()); err != nil {
		e.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("two-factor confirmation notice not sent")
	}
	return true, nil
}

// VerifyTwoFactor checks code against the active secret without mutating
// the record.
func (e *Engine) VerifyTwoFactor(ctx context.Context, userID, code string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if !rec.TwoFactorEnabled {
		return false, ErrTwoFactorNotEnrolled
	}
	return e.checkTwoFactorCode(ctx, rec, code)
}

// DisableTwoFactor clears the second factor after re-checking the current
// password. A pending, unconfirmed secret is cleared the same way.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, currentPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !rec.TwoFactorEnabled && rec.TwoFactorSecret == "" {
		return ErrTwoFactorNotEnrolled
	}
	if !rec.HasPassword() {
		return ErrInvalidPassword
	}
	ok, err := e.hasher.Verify(currentPassword, rec.PasswordHash)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("stored password hash could not be verified")
	}
	if !ok {
		return ErrInvalidPassword
	}

	if err := e.store.DisableTwoFactor(ctx, rec.ID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, rec.ID); err != nil {
			e.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("two-factor counter not reset")
		}
	}
	e.metricInc(MetricTwoFactorDisabled)
	e.emit(ctx, ActionTwoFactorDisabled, rec.ID, nil)
	return nil
}

// checkTwoFactorCode validates code against rec's current secret, going
// through the attempt limiter when one is configured.
func (e *Engine) checkTwoFactorCode(ctx context.Context, rec *credential.Record, code string) (bool, error) {
	if e.limiter != nil {
		if err := e.limiter.Check(ctx, rec.ID); err != nil {
			e.metricInc(MetricTwoFactorRateLimited)
			return false, err
		}
	}
	if !e.totp.Validate(rec.TwoFactorSecret, code, e.now()) {
		e.metricInc(MetricTwoFactorFailure)
		if e.limiter != nil {
			if err := e.recordTwoFactorFailure(ctx, rec.ID); err != nil {
				e.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("two-factor failure not recorded")
			}
		}
		return false, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, rec.ID); err != nil {
			e.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("two-factor counter not reset")
		}
	}
	e.metricInc(MetricTwoFactorSuccess)
	return true, nil
}
