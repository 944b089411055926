package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kebairia/neoback/internal/graph"
	"github.com/kebairia/neoback/internal/logger"
)

// FailureReason classifies where a backup run broke down.
type FailureReason string

const (
	ReasonSpace    FailureReason = "insufficient_space"
	ReasonTool     FailureReason = "dump_tool"
	ReasonIO       FailureReason = "artifact_io"
	ReasonRecorder FailureReason = "metadata_recorder"
)

// Failure carries the stage a backup failed in, so alerting can tell a full
// disk from a broken dump tool without parsing messages.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("backup failed (%s): %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func failed(reason FailureReason, err error) error {
	return &Failure{Reason: reason, Err: err}
}

// Dumper produces the native dump stream for one database.
type Dumper interface {
	DumpTo(ctx context.Context, database string, w io.Writer) error
}

// Source answers questions about the live graph that annotate the manifest.
type Source interface {
	Stats(ctx context.Context) (graph.Stats, error)
	Version(ctx context.Context) (string, error)
}

// Executor runs one full backup: free-space precheck, native dump streamed
// through compression into scratch, then checksum and promotion via the
// recorder. Nothing is visible in the backup root until the whole chain
// succeeds.
type Executor struct {
	store    *Store
	recorder *Recorder
	dumper   Dumper
	source   Source

	database string
	method   string
	minFree  float64
	timeout  time.Duration
	now      func() time.Time
	log      logger.Logger
}

// ExecutorOption adjusts an Executor.
type ExecutorOption func(*Executor)

// WithDatabase sets the database to dump.
func WithDatabase(name string) ExecutorOption {
	return func(e *Executor) {
		if name != "" {
			e.database = name
		}
	}
}

// WithCompression sets the compression method for new artifacts.
func WithCompression(method string) ExecutorOption {
	return func(e *Executor) {
		if method != "" {
			e.method = method
		}
	}
}

// WithMinFreeSpace sets the free-space floor, in percent, below which a
// backup refuses to start.
func WithMinFreeSpace(pct float64) ExecutorOption {
	return func(e *Executor) { e.minFree = pct }
}

// WithTimeout bounds the dump phase.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithClock overrides the executor's time source.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(log logger.Logger) ExecutorOption {
	return func(e *Executor) { e.log = log }
}

// NewExecutor builds an Executor over the given store, recorder, dump tool
// and graph source.
func NewExecutor(store *Store, recorder *Recorder, dumper Dumper, source Source, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		recorder: recorder,
		dumper:   dumper,
		source:   source,
		database: "neo4j",
		method:   MethodZstd,
		now:      time.Now,
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs one backup and returns the recorded manifest.
func (e *Executor) Run(ctx context.Context) (*Manifest, error) {
	started := e.now()

	if e.minFree > 0 {
		free, err := e.store.FreeSpacePercent()
		if err != nil {
			return nil, failed(ReasonIO, err)
		}
		if free < e.minFree {
			return nil, failed(ReasonSpace,
				fmt.Errorf("free space %.1f%% below required %.1f%%", free, e.minFree))
		}
	}

	stats, err := e.source.Stats(ctx)
	if err != nil {
		return nil, failed(ReasonTool, fmt.Errorf("collect graph stats: %w", err))
	}
	version, err := e.source.Version(ctx)
	if err != nil {
		return nil, failed(ReasonTool, fmt.Errorf("read source version: %w", err))
	}

	id := e.store.NewID(started)
	filename := fmt.Sprintf("%s-%s.dump%s", e.database, id, CompressionExt(e.method))

	scratch, err := e.store.Scratch(filename + ".partial-*")
	if err != nil {
		return nil, failed(ReasonIO, err)
	}
	promoted := false
	defer func() {
		if !promoted {
			scratch.Close()
			if err := os.Remove(scratch.Name()); err != nil && !os.IsNotExist(err) {
				e.log.Warn("remove scratch file failed", "path", scratch.Name(), "error", err.Error())
			}
		}
	}()

	uncompressed, err := e.dump(ctx, scratch)
	if err != nil {
		return nil, err
	}
	if err := scratch.Sync(); err != nil {
		return nil, failed(ReasonIO, fmt.Errorf("sync artifact: %w", err))
	}
	if err := scratch.Close(); err != nil {
		return nil, failed(ReasonIO, fmt.Errorf("close artifact: %w", err))
	}

	m := &Manifest{
		Version:               ManifestSchemaVersion,
		Timestamp:             started.UTC(),
		BackupDurationSeconds: int64(e.now().Sub(started).Seconds()),
		SourceDBVersion:       version,
		GraphStats:            stats,
		BackupFile:            filename,
		UncompressedSizeBytes: uncompressed,
		ID:                    id,
	}

	if err := e.recorder.Record(scratch.Name(), m); err != nil {
		return nil, failed(ReasonRecorder, err)
	}
	promoted = true

	e.log.Info("backup completed",
		"id", m.ID,
		"database", e.database,
		"nodes", stats.NodeCount,
		"relationships", stats.RelationshipCount,
		"uncompressed_bytes", m.UncompressedSizeBytes,
		"compressed_bytes", m.CompressedSizeBytes,
		"duration", e.now().Sub(started).String(),
	)
	return m, nil
}

// dump streams the native dump through the compressor into scratch and
// returns the uncompressed byte count.
func (e *Executor) dump(ctx context.Context, scratch *os.File) (int64, error) {
	comp, err := NewCompressor(e.method, scratch)
	if err != nil {
		return 0, failed(ReasonIO, err)
	}

	counted := &countWriter{w: comp}

	dumpCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		dumpCtx, cancel = context.WithTimeoutCause(ctx, e.timeout, graph.ErrTimeout)
		defer cancel()
	}

	if err := e.dumper.DumpTo(dumpCtx, e.database, counted); err != nil {
		comp.Close()
		return 0, failed(ReasonTool, err)
	}
	if err := comp.Close(); err != nil {
		return 0, failed(ReasonIO, fmt.Errorf("flush compressor: %w", err))
	}
	return counted.n, nil
}
