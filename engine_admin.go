package authcore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrEthical07/authcore/credential"
)

// ListSessions returns the active session ids of userID.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rec.ActiveSessionIDs), nil
}

// RevokeSession ends one session of userID, typically another device of
// the caller. It is idempotent.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if err := e.store.RemoveSession(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emit(ctx, ActionSessionRevoked, userID, nil)
	return nil
}

// SetRole changes the role of userID. Roles outside the closed set are
// ErrInvalidRole.
func (e *Engine) SetRole(ctx context.Context, userID string, role Role) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := e.store.UpdateRole(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	e.metricInc(MetricRoleChanged)
	e.emit(ctx, ActionRoleChanged, userID, map[string]string{"role": string(role)})
	return e.GetRecord(ctx, userID)
}

// SetPermissions replaces the fine-grained permissions of userID.
func (e *Engine) SetPermissions(ctx context.Context, userID string, permissions []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	normalized := credential.NormalizePermissions(permissions)
	if err := e.store.SetPermissions(ctx, userID, normalized); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	e.metricInc(MetricPermissionsChanged)
	e.emit(ctx, ActionPermissionsChanged, userID, map[string]string{"permissions": strings.Join(normalized, ",")})
	return nil
}
