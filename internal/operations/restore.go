package operations

import (
	"context"

	"github.com/kebairia/neoback/internal/metrics"
	"github.com/kebairia/neoback/internal/restore"
)

// Restore drives one restore session for the given artifact to its
// validated-or-failed verdict.
func (o *Operator) Restore(ctx context.Context, artifactID string) (*restore.Session, error) {
	session, err := o.controller.Restore(ctx, artifactID)

	verdict := "validated"
	if err != nil {
		verdict = "failed"
	}
	metrics.RestoreSessionsTotal.WithLabelValues(verdict).Inc()

	o.appendAudit(ctx, "restore", err, artifactID, map[string]any{
		"session": session.ID(),
		"state":   string(session.State()),
		"target":  session.Target(),
	})
	return session, err
}

// Promote records the operator's promotion decision on a validated
// session.
func (o *Operator) Promote(ctx context.Context, sessionID string) error {
	err := o.controller.Promote(sessionID)
	o.appendAudit(ctx, "promote", err, sessionID, nil)
	return err
}

// Discard tears down a session's restore target.
func (o *Operator) Discard(ctx context.Context, sessionID string) error {
	err := o.controller.Discard(ctx, sessionID)
	o.appendAudit(ctx, "discard", err, sessionID, nil)
	return err
}
