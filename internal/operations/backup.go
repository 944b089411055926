package operations

import (
	"context"
	"time"

	"github.com/kebairia/neoback/internal/backup"
	"github.com/kebairia/neoback/internal/metrics"
)

// Backup takes one full backup under the store's cross-process lock and
// returns the recorded manifest.
func (o *Operator) Backup(ctx context.Context) (*backup.Manifest, error) {
	release, err := o.store.Lock()
	if err != nil {
		return nil, err
	}
	defer release()

	exec := backup.NewExecutor(o.store, backup.NewRecorder(o.store, o.log), o.admin, o.client,
		backup.WithDatabase(o.cfg.Graph.Database),
		backup.WithCompression(o.cfg.Backup.Compression),
		backup.WithMinFreeSpace(o.cfg.Backup.MinFreeSpacePercent),
		backup.WithTimeout(o.cfg.Backup.Timeout),
		backup.WithExecutorLogger(o.log),
	)

	start := time.Now()
	m, err := exec.Run(ctx)
	o.updateFreeSpace()
	if err != nil {
		metrics.BackupRunsTotal.WithLabelValues("failure").Inc()
		o.appendAudit(ctx, "backup", err, o.cfg.Graph.Database, nil)
		return nil, err
	}

	metrics.BackupRunsTotal.WithLabelValues("success").Inc()
	metrics.BackupDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.BackupCompressedBytes.Set(float64(m.CompressedSizeBytes))

	o.appendAudit(ctx, "backup", nil, m.ID, map[string]any{
		"database":           o.cfg.Graph.Database,
		"backup_file":        m.BackupFile,
		"checksum_sha256":    m.ChecksumSHA256,
		"compressed_bytes":   m.CompressedSizeBytes,
		"uncompressed_bytes": m.UncompressedSizeBytes,
		"node_count":         m.GraphStats.NodeCount,
		"relationship_count": m.GraphStats.RelationshipCount,
	})
	return m, nil
}
