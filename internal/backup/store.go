package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/kebairia/neoback/internal/logger"
)

const (
	scratchDirName = ".tmp"
	lockFilename   = ".lock"
)

var (
	// ErrStoreLocked means another process is operating on the backup root.
	ErrStoreLocked = errors.New("backup store locked by another process")
	// ErrArtifactNotFound means no manifest exists for the requested id.
	ErrArtifactNotFound = errors.New("backup artifact not found")
	// ErrChecksumMismatch means an artifact's bytes no longer match its manifest.
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")
)

// Store manages the backup root: one directory per artifact, named from the
// backup's creation timestamp, holding the compressed dump and its manifest.
// Writers stage under .tmp and promote by rename; deleters remove the
// artifact before its manifest.
type Store struct {
	root     string
	tsFormat string
	log      logger.Logger
}

// NewStore opens (creating if needed) the backup root at path.
func NewStore(root, timestampFormat string, log logger.Logger) (*Store, error) {
	if timestampFormat == "" {
		timestampFormat = "2006-01-02_15-04-05"
	}
	if log == nil {
		log = logger.Global()
	}

	for _, dir := range []string{root, filepath.Join(root, scratchDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup directory %q: %w", dir, err)
		}
	}

	return &Store{root: root, tsFormat: timestampFormat, log: log}, nil
}

// Root returns the backup root path.
func (s *Store) Root() string { return s.root }

// NewID derives the artifact identifier from its creation timestamp.
func (s *Store) NewID(t time.Time) string {
	return t.Format(s.tsFormat)
}

// ManifestPath returns where the manifest for id lives.
func (s *Store) ManifestPath(id string) string {
	return filepath.Join(s.root, id, ManifestFilename)
}

// ArtifactPath returns the full path of the artifact described by m.
func (s *Store) ArtifactPath(m *Manifest) string {
	return filepath.Join(s.root, m.ID, m.BackupFile)
}

// Scratch creates a temporary file under the store's scratch directory, on
// the same filesystem as the final artifact paths so promotion is a rename.
func (s *Store) Scratch(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(filepath.Join(s.root, scratchDirName), pattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	return f, nil
}

// Promote moves a finished scratch file into its final artifact directory
// and writes the manifest beside it. The artifact lands first; if the
// manifest cannot be written the artifact is rolled back so no
// manifest-less artifact remains visible.
func (s *Store) Promote(scratchPath string, m *Manifest) error {
	dir := filepath.Join(s.root, m.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory %q: %w", dir, err)
	}

	final := filepath.Join(dir, m.BackupFile)
	if err := os.Rename(scratchPath, final); err != nil {
		return fmt.Errorf("promote artifact to %q: %w", final, err)
	}

	if err := m.Write(s.ManifestPath(m.ID)); err != nil {
		if rmErr := os.Remove(final); rmErr != nil {
			s.log.Warn("rollback of promoted artifact failed", "path", final, "error", rmErr.Error())
		}
		_ = os.Remove(dir)
		return err
	}
	return nil
}

// Get loads the manifest for one artifact id.
func (s *Store) Get(id string) (*Manifest, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: invalid id %q", ErrArtifactNotFound, id)
	}

	m := &Manifest{}
	if err := m.Load(s.ManifestPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
		}
		return nil, err
	}
	m.ID = id
	return m, nil
}

// List returns the manifests of all well-formed artifacts, oldest first.
// Entries without a manifest are skipped here; Audit surfaces them.
func (s *Store) List() ([]*Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read backup root %q: %w", s.root, err)
	}

	var manifests []*Manifest
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m, err := s.Get(e.Name())
		if err != nil {
			if errors.Is(err, ErrArtifactNotFound) {
				continue
			}
			return nil, err
		}
		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Timestamp.Before(manifests[j].Timestamp)
	})
	return manifests, nil
}

// Delete removes one artifact and its manifest. The artifact goes first:
// failing half-way leaves an artifact-less manifest, which Audit reports,
// rather than a manifest silently masking a missing backup.
func (s *Store) Delete(id string) error {
	m, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := os.Remove(s.ArtifactPath(m)); err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	if err := os.Remove(s.ManifestPath(id)); err != nil {
		return fmt.Errorf("delete manifest %s: %w", id, err)
	}
	if err := os.Remove(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("delete artifact directory %s: %w", id, err)
	}
	return nil
}

// VerifyChecksum recomputes the artifact's digest and compares it with the
// manifest, bit for bit.
func (s *Store) VerifyChecksum(m *Manifest) error {
	sum, _, err := ChecksumFile(s.ArtifactPath(m))
	if err != nil {
		return err
	}
	if sum != m.ChecksumSHA256 {
		return fmt.Errorf("%w: artifact %s has %s, manifest records %s",
			ErrChecksumMismatch, m.ID, sum, m.ChecksumSHA256)
	}
	return nil
}

// FreeSpacePercent reports the free share of the filesystem holding the
// backup root.
func (s *Store) FreeSpacePercent() (float64, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(s.root, &fs); err != nil {
		return 0, fmt.Errorf("statfs %q: %w", s.root, err)
	}
	if fs.Blocks == 0 {
		return 0, fmt.Errorf("statfs %q: zero block count", s.root)
	}
	return float64(fs.Bavail) / float64(fs.Blocks) * 100, nil
}

// Lock takes an exclusive cross-process lock on the backup root. It returns
// a release func, or ErrStoreLocked when another process holds it.
func (s *Store) Lock() (func(), error) {
	fl := flock.New(filepath.Join(s.root, lockFilename))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock backup store: %w", err)
	}
	if !ok {
		return nil, ErrStoreLocked
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("release store lock failed", "error", err.Error())
		}
	}, nil
}

// AuditReport lists what a store scan found. Corruption signals are
// reported, never repaired here.
type AuditReport struct {
	Artifacts          []string `json:"artifacts"`
	OrphanedArtifacts  []string `json:"orphaned_artifacts"`
	OrphanedManifests  []string `json:"orphaned_manifests"`
	ChecksumMismatches []string `json:"checksum_mismatches"`
}

// Clean reports whether the scan found no corruption signals.
func (r *AuditReport) Clean() bool {
	return len(r.OrphanedArtifacts) == 0 &&
		len(r.OrphanedManifests) == 0 &&
		len(r.ChecksumMismatches) == 0
}

// Audit scans every artifact directory for what a healthy store upholds:
// each artifact paired with a manifest whose checksum still matches the
// bytes on disk.
func (s *Store) Audit(ctx context.Context) (*AuditReport, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read backup root %q: %w", s.root, err)
	}

	report := &AuditReport{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		id := e.Name()
		m, err := s.Get(id)
		if errors.Is(err, ErrArtifactNotFound) {
			report.OrphanedArtifacts = append(report.OrphanedArtifacts, id)
			continue
		}
		if err != nil {
			return nil, err
		}

		if _, statErr := os.Stat(s.ArtifactPath(m)); statErr != nil {
			report.OrphanedManifests = append(report.OrphanedManifests, id)
			continue
		}

		if err := s.VerifyChecksum(m); err != nil {
			if errors.Is(err, ErrChecksumMismatch) {
				report.ChecksumMismatches = append(report.ChecksumMismatches, id)
				continue
			}
			return nil, err
		}

		report.Artifacts = append(report.Artifacts, id)
	}
	return report, nil
}
