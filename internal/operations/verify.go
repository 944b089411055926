package operations

import (
	"context"
	"errors"

	"github.com/kebairia/neoback/internal/health"
	"github.com/kebairia/neoback/internal/metrics"
)

// ErrUnhealthy means at least one health check did not pass.
var ErrUnhealthy = errors.New("health verification failed")

// Verify runs the consistency checks against the production database. The
// report always comes back complete; the error only signals an unhealthy
// verdict for exit-code purposes.
func (o *Operator) Verify(ctx context.Context) (*health.Report, error) {
	report := o.ProductionVerifier().Run(ctx)

	for _, c := range report.Checks {
		metrics.HealthChecksTotal.WithLabelValues(c.Name, string(c.Status)).Inc()
	}

	var err error
	if !report.Healthy {
		err = ErrUnhealthy
	}
	o.appendAudit(ctx, "verify", err, o.cfg.Graph.Database, map[string]any{
		"healthy": report.Healthy,
	})
	return report, err
}
