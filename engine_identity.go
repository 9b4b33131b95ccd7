package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// ResolveExternalIdentity maps an identity asserted by an upstream provider
// to a record: an existing link wins, then a record with the same email is
// linked (and its email marked verified), otherwise a passwordless record is
// created with a generated unique username. It never opens a session.
func (e *Engine) ResolveExternalIdentity(ctx context.Context, id ExternalIdentity) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := flows.RunResolveExternalIdentity(ctx, flows.ExternalIdentityRequest{
		Provider:    id.Provider,
		ExternalID:  id.ExternalID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
	}, flows.ExternalIdentityDeps{
		DefaultRole:       e.config.Account.DefaultRole,
		UsernameMinLength: e.config.Account.UsernameMinLength,
		UsernameMaxLength: e.config.Account.UsernameMaxLength,

		FindByExternalID:     e.store.FindByExternalID,
		FindByEmail:          e.store.FindByEmail,
		LinkExternalIdentity: e.store.LinkExternalIdentity,
		Create:               e.store.Create,

		EmitRegister: func(ctx context.Context, rec *Record) {
			e.emit(ctx, ActionRegister, rec.ID, map[string]string{"provider": string(rec.Provider)})
		},
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		Metrics: flows.ExternalIdentityMetrics{
			Resolved: int(MetricExternalResolved),
			Linked:   int(MetricExternalLinked),
			Created:  int(MetricExternalCreated),
		},
		Errors: flows.ExternalIdentityErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidInput:   ErrInvalidInput,
		},
	})
	if err != nil {
		return nil, err
	}
	return rec.Redacted(), nil
}
