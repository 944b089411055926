package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/neoback/internal/graph"
)

type fakeDumper struct {
	payload []byte
	err     error
}

func (d *fakeDumper) DumpTo(_ context.Context, _ string, w io.Writer) error {
	if d.err != nil {
		return d.err
	}
	_, err := w.Write(d.payload)
	return err
}

type fakeSource struct {
	stats    graph.Stats
	version  string
	statsErr error
}

func (s *fakeSource) Stats(context.Context) (graph.Stats, error) {
	return s.stats, s.statsErr
}

func (s *fakeSource) Version(context.Context) (string, error) {
	return s.version, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestExecutor_Run(t *testing.T) {
	s := newTestStore(t)
	rec := NewRecorder(s, nil)

	payload := bytes.Repeat([]byte("agent memory node "), 4096)
	dumper := &fakeDumper{payload: payload}
	source := &fakeSource{
		stats:   graph.Stats{NodeCount: 1500, RelationshipCount: 3200},
		version: "5.26.0",
	}
	started := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)

	exec := NewExecutor(s, rec, dumper, source,
		WithDatabase("memory"),
		WithCompression(MethodZstd),
		WithClock(fixedClock(started)),
	)

	m, err := exec.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, s.NewID(started), m.ID)
	assert.Equal(t, "memory-"+m.ID+".dump.zst", m.BackupFile)
	assert.Equal(t, started, m.Timestamp)
	assert.Equal(t, "5.26.0", m.SourceDBVersion)
	assert.Equal(t, int64(1500), m.GraphStats.NodeCount)
	assert.Equal(t, int64(3200), m.GraphStats.RelationshipCount)
	assert.Equal(t, int64(len(payload)), m.UncompressedSizeBytes)
	assert.Greater(t, m.CompressedSizeBytes, int64(0))
	assert.Less(t, m.CompressedSizeBytes, m.UncompressedSizeBytes)
	assert.Len(t, m.ChecksumSHA256, 64)

	// The artifact on disk must match what the manifest claims.
	require.NoError(t, s.VerifyChecksum(m))

	stored, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ChecksumSHA256, stored.ChecksumSHA256)

	// Decompressing the artifact yields the dump bytes back.
	f, err := os.Open(s.ArtifactPath(m))
	require.NoError(t, err)
	defer f.Close()
	r, err := NewDecompressor(MethodForFile(m.BackupFile), f)
	require.NoError(t, err)
	restored, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, restored)

	assertScratchEmpty(t, s)
}

func TestExecutor_DumpToolFailure(t *testing.T) {
	s := newTestStore(t)
	rec := NewRecorder(s, nil)

	dumper := &fakeDumper{err: errors.New("neo4j-admin exited with status 1")}
	exec := NewExecutor(s, rec, dumper, &fakeSource{version: "5.26.0"},
		WithDatabase("memory"),
	)

	_, err := exec.Run(context.Background())
	require.Error(t, err)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, ReasonTool, f.Reason)

	manifests, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, manifests, "failed backup must not surface an artifact")
	assertScratchEmpty(t, s)
}

func TestExecutor_InsufficientSpace(t *testing.T) {
	s := newTestStore(t)
	rec := NewRecorder(s, nil)

	exec := NewExecutor(s, rec, &fakeDumper{payload: []byte("x")}, &fakeSource{},
		WithMinFreeSpace(101),
	)

	_, err := exec.Run(context.Background())
	require.Error(t, err)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, ReasonSpace, f.Reason)

	manifests, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, manifests)
	assertScratchEmpty(t, s)
}

func TestExecutor_StatsFailure(t *testing.T) {
	s := newTestStore(t)
	rec := NewRecorder(s, nil)

	source := &fakeSource{statsErr: graph.ErrUnreachable}
	exec := NewExecutor(s, rec, &fakeDumper{payload: []byte("x")}, source)

	_, err := exec.Run(context.Background())
	require.Error(t, err)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, ReasonTool, f.Reason)
	assert.ErrorIs(t, err, graph.ErrUnreachable)
}

func assertScratchEmpty(t *testing.T, s *Store) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(s.Root(), scratchDirName))
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be clean")
}
