package operations

import (
	"context"
	"errors"

	"github.com/kebairia/neoback/internal/backup"
)

// ErrStoreCorruption means the store scan found artifacts and manifests
// that no longer agree.
var ErrStoreCorruption = errors.New("backup store corruption signals found")

// AuditStore scans the backup root for orphaned artifacts, orphaned
// manifests, and checksum mismatches. Signals are reported, never
// repaired.
func (o *Operator) AuditStore(ctx context.Context) (*backup.AuditReport, error) {
	report, err := o.store.Audit(ctx)
	if err != nil {
		o.appendAudit(ctx, "store_audit", err, o.store.Root(), nil)
		return nil, err
	}

	var verdict error
	if !report.Clean() {
		verdict = ErrStoreCorruption
	}
	o.appendAudit(ctx, "store_audit", verdict, o.store.Root(), map[string]any{
		"artifacts":           len(report.Artifacts),
		"orphaned_artifacts":  len(report.OrphanedArtifacts),
		"orphaned_manifests":  len(report.OrphanedManifests),
		"checksum_mismatches": len(report.ChecksumMismatches),
	})
	return report, verdict
}
