package operations

import (
	"context"

	"github.com/kebairia/neoback/internal/metrics"
	"github.com/kebairia/neoback/internal/retention"
)

// Prune applies the retention policy under the store's cross-process lock.
func (o *Operator) Prune(ctx context.Context) (*retention.Result, error) {
	release, err := o.store.Lock()
	if err != nil {
		return nil, err
	}
	defer release()

	pruner := retention.NewPruner(o.store, o.registry, retention.WithPrunerLogger(o.log))
	result, err := pruner.Prune(ctx, retention.Policy{
		WindowDays:          o.cfg.Retention.WindowDays,
		MinFreeSpacePercent: o.cfg.Retention.MinFreeSpacePercent,
	})
	o.updateFreeSpace()
	if err != nil {
		o.appendAudit(ctx, "prune", err, "", nil)
		return nil, err
	}

	metrics.PrunedArtifactsTotal.Add(float64(len(result.Deleted)))

	o.appendAudit(ctx, "prune", nil, "", map[string]any{
		"deleted":            len(result.Deleted),
		"kept":               len(result.Kept),
		"errors":             len(result.Errors),
		"free_space_percent": result.FreeSpacePercent,
		"low_space":          result.LowSpace,
	})
	return result, nil
}
