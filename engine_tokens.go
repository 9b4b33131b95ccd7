package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/internal"
)

// IssueVerificationToken replaces any outstanding verification token of
// userID and sends the new one. When delivery fails the token is still
// stored and valid, and ErrNotificationFailed is returned.
func (e *Engine) IssueVerificationToken(ctx context.Context, userID string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return e.issueVerification(ctx, rec)
}

func (e *Engine) issueVerification(ctx context.Context, rec *credential.Record) (string, error) {
	if rec.EmailVerified {
		return "", ErrEmailAlreadyVerified
	}
	token, err := internal.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	expires := e.now().Add(e.config.EmailVerification.TokenTTL)
	if err := e.store.SetEmailVerificationToken(ctx, rec.ID, token, expires); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	e.metricInc(MetricVerificationIssued)

	if err := e.notifier.SendVerification(ctx, rec.Redacted(), token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return token, nil
}

// ConsumeVerificationToken marks the owning record verified and burns the
// token. Malformed, unknown, expired and reused tokens are all
// ErrTokenInvalidOrExpired.
func (e *Engine) ConsumeVerificationToken(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !internal.ValidOpaqueToken(token) {
		e.metricInc(MetricVerificationFailure)
		return ErrTokenInvalidOrExpired
	}
	rec, err := e.store.ConsumeEmailVerificationToken(ctx, token, e.now())
	if errors.Is(err, credential.ErrNotFound) {
		e.metricInc(MetricVerificationFailure)
		return ErrTokenInvalidOrExpired
	}
	if err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}
	e.metricInc(MetricVerificationConsumed)
	e.emit(ctx, ActionEmailVerification, rec.ID, nil)
	return nil
}

// IssueResetToken starts a password reset for email. The result is the same
// whether or not the address is registered; state changes and a message is
// sent only for records that have a local password.
func (e *Engine) IssueResetToken(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = credential.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	rec, err := e.store.FindByEmail(ctx, email)
	if errors.Is(err, credential.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find record: %w", err)
	}
	if !rec.HasPassword() {
		return nil
	}

	token, err := internal.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expires := e.now().Add(e.config.PasswordReset.TokenTTL)
	if err := e.store.SetPasswordResetToken(ctx, rec.ID, token, expires); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	e.metricInc(MetricResetIssued)

	if err := e.notifier.SendPasswordReset(ctx, rec.Redacted(), token); err != nil {
		e.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("password reset email not sent")
	}
	return nil
}

// ConsumeResetToken replaces the password of the token's owner and burns
// the token in one store update. The new password is checked against the
// policy first, so a rejected password leaves the token usable.
func (e *Engine) ConsumeResetToken(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !internal.ValidOpaqueToken(token) {
		e.metricInc(MetricResetFailure)
		return ErrTokenInvalidOrExpired
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	rec, err := e.store.ConsumePasswordResetToken(ctx, token, hash, e.now())
	if errors.Is(err, credential.ErrNotFound) {
		e.metricInc(MetricResetFailure)
		return ErrTokenInvalidOrExpired
	}
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	e.metricInc(MetricResetConsumed)
	e.emit(ctx, ActionPasswordReset, rec.ID, nil)
	return nil
}
