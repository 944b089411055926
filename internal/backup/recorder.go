package backup

import (
	"errors"
	"fmt"

	"github.com/kebairia/neoback/internal/logger"
)

// ErrRecorder marks a failure while checksumming or persisting backup
// metadata. A backup whose metadata cannot be recorded is a failed backup.
var ErrRecorder = errors.New("record backup metadata")

// Recorder turns a finished scratch artifact into a store entry: it reads
// the artifact back from disk, computes its checksum, completes the
// manifest, and promotes both into the backup root.
type Recorder struct {
	store *Store
	log   logger.Logger
}

// NewRecorder returns a Recorder persisting into store.
func NewRecorder(store *Store, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Global()
	}
	return &Recorder{store: store, log: log}
}

// Record checksums the artifact at scratchPath, fills the manifest's
// checksum and compressed size from what is actually on disk, and promotes
// artifact plus manifest into their final location. The manifest only ever
// lands after the artifact it describes.
func (r *Recorder) Record(scratchPath string, m *Manifest) error {
	sum, size, err := ChecksumFile(scratchPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRecorder, err)
	}

	m.ChecksumSHA256 = sum
	m.CompressedSizeBytes = size
	if m.Version == "" {
		m.Version = ManifestSchemaVersion
	}

	if err := r.store.Promote(scratchPath, m); err != nil {
		return fmt.Errorf("%w: %w", ErrRecorder, err)
	}

	r.log.Info("backup metadata recorded",
		"id", m.ID,
		"checksum", sum,
		"compressed_bytes", size,
	)
	return nil
}
