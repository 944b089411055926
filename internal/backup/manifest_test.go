package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/neoback/internal/graph"
)

func testManifest() *Manifest {
	return &Manifest{
		Version:               ManifestSchemaVersion,
		Timestamp:             time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
		BackupDurationSeconds: 42,
		SourceDBVersion:       "5.26.0",
		GraphStats:            graph.Stats{NodeCount: 1500, RelationshipCount: 3200},
		BackupFile:            "memory-2025-06-01_02-00-00.dump.zst",
		UncompressedSizeBytes: 1 << 20,
		CompressedSizeBytes:   1 << 18,
		ChecksumSHA256:        "aa11bb22cc33dd44ee55ff66aa11bb22cc33dd44ee55ff66aa11bb22cc33dd44",
		ID:                    "2025-06-01_02-00-00",
	}
}

func TestManifest_WriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFilename)

	want := testManifest()
	require.NoError(t, want.Write(path))

	got := &Manifest{}
	require.NoError(t, got.Load(path))
	got.ID = want.ID

	assert.Equal(t, want, got)
}

func TestManifest_SerializedFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFilename)
	require.NoError(t, testManifest().Write(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))

	for _, key := range []string{
		"version",
		"timestamp",
		"backup_duration_seconds",
		"source_db_version",
		"graph_stats",
		"backup_file",
		"uncompressed_size_bytes",
		"compressed_size_bytes",
		"checksum_sha256",
	} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "ID", "internal id must not serialize")

	var stats map[string]int64
	require.NoError(t, json.Unmarshal(fields["graph_stats"], &stats))
	assert.Equal(t, int64(1500), stats["node_count"])
	assert.Equal(t, int64(3200), stats["relationship_count"])
}

func TestManifest_Age(t *testing.T) {
	m := testManifest()
	now := m.Timestamp.Add(72 * time.Hour)
	assert.Equal(t, 72*time.Hour, m.Age(now))
}

func TestManifest_LoadMissingFile(t *testing.T) {
	m := &Manifest{}
	err := m.Load(filepath.Join(t.TempDir(), "nope", ManifestFilename))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
