package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestFileLog_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "neoback.jsonl")
	l, err := NewFileLog(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Append(ctx, Record{
		Operation: "backup",
		Outcome:   OutcomeSuccess,
		Subject:   "2025-06-01_02-00-00",
		Fields:    map[string]any{"compressed_bytes": 1024},
	}))
	require.NoError(t, l.Append(ctx, Record{
		Operation: "prune",
		Outcome:   OutcomeFailure,
		Detail:    "permission denied",
	}))

	records := readRecords(t, path)
	require.Len(t, records, 2)

	assert.Equal(t, "backup", records[0].Operation)
	assert.Equal(t, OutcomeSuccess, records[0].Outcome)
	assert.Equal(t, "2025-06-01_02-00-00", records[0].Subject)
	assert.False(t, records[0].Timestamp.IsZero(), "zero timestamps are filled in")

	assert.Equal(t, "prune", records[1].Operation)
	assert.Equal(t, "permission denied", records[1].Detail)
}

func TestFileLog_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neoback.jsonl")
	l, err := NewFileLog(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(context.Background(), Record{
				Operation: "verify",
				Outcome:   OutcomeSuccess,
			}))
		}()
	}
	wg.Wait()

	assert.Len(t, readRecords(t, path), 20, "every line must stay intact")
}

func TestNopAppender(t *testing.T) {
	assert.NoError(t, NopAppender{}.Append(context.Background(), Record{Operation: "backup"}))
}
