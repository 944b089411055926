package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"github.com/kebairia/neoback/internal/graph"
)

const (
	// ManifestFilename is the manifest's name inside each artifact directory.
	ManifestFilename = "manifest.json"

	// ManifestSchemaVersion versions the manifest format itself, independent
	// of the database version it records.
	ManifestSchemaVersion = "1.0.0"
)

// Manifest is the metadata record proving an artifact's integrity and
// provenance. It is written next to the artifact and never modified after.
type Manifest struct {
	Version               string      `json:"version"`
	Timestamp             time.Time   `json:"timestamp"`
	BackupDurationSeconds int64       `json:"backup_duration_seconds"`
	SourceDBVersion       string      `json:"source_db_version"`
	GraphStats            graph.Stats `json:"graph_stats"`
	BackupFile            string      `json:"backup_file"`
	UncompressedSizeBytes int64       `json:"uncompressed_size_bytes"`
	CompressedSizeBytes   int64       `json:"compressed_size_bytes"`
	ChecksumSHA256        string      `json:"checksum_sha256"`

	// ID is derived from the artifact directory name, not serialized.
	ID string `json:"-"`
}

// Load reads and decodes a manifest file.
func (m *Manifest) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open manifest %q: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(m); err != nil {
		return fmt.Errorf("decode manifest %q: %w", path, err)
	}
	return nil
}

// Write serializes the manifest to path atomically, so a crash mid-write
// never leaves a truncated manifest next to a good artifact.
func (m *Manifest) Write(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write manifest %q: %w", path, err)
	}
	return nil
}

// Age reports how old the backup is relative to now.
func (m *Manifest) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}
