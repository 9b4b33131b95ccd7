package authcore

import (
	"context"
)

// emit records an activity event. It never blocks the caller beyond the
// dispatcher's buffer policy and never fails the operation.
func (e *Engine) emit(ctx context.Context, action ActivityAction, userID string, metadata map[string]string) {
	if e == nil || e.activity == nil {
		return
	}
	e.activity.Emit(ctx, ActivityEvent{
		Timestamp: e.now(),
		Action:    action,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Metadata:  metadata,
	})
}
