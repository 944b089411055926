package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	pingErr   error
	pingDelay time.Duration
	queryErr  error
	counts    map[string]int64

	mu      sync.Mutex
	queries []string
}

func (f *fakeClient) Ping(ctx context.Context) error {
	if f.pingDelay > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping: %w", ctx.Err())
		case <-time.After(f.pingDelay):
		}
	}
	return f.pingErr
}

func (f *fakeClient) QueryInt(_ context.Context, cypher string, _ map[string]any) (int64, error) {
	f.mu.Lock()
	f.queries = append(f.queries, cypher)
	f.mu.Unlock()

	if f.queryErr != nil {
		return 0, f.queryErr
	}
	for substr, n := range f.counts {
		if strings.Contains(cypher, substr) {
			return n, nil
		}
	}
	return 0, nil
}

func (f *fakeClient) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func memorySchema() Schema {
	return Schema{
		Nodes: map[string][]string{
			"Memory": {"id", "content"},
			"Agent":  {"id"},
		},
		Relationships: map[string][]string{
			"REMEMBERS": {"created_at"},
		},
	}
}

func TestVerifier_AllChecksPass(t *testing.T) {
	client := &fakeClient{}
	v := NewVerifier(client, WithSchema(memorySchema()))

	report := v.Run(context.Background())

	assert.True(t, report.Healthy)
	require.Len(t, report.Checks, 3)
	assert.Equal(t, CheckReachability, report.Checks[0].Name)
	assert.Equal(t, CheckSchema, report.Checks[1].Name)
	assert.Equal(t, CheckOrphans, report.Checks[2].Name)
	for _, c := range report.Checks {
		assert.Equal(t, StatusPassed, c.Status, c.Name)
		assert.True(t, c.Passed, c.Name)
	}
}

func TestVerifier_FailFastWhenUnreachable(t *testing.T) {
	client := &fakeClient{pingErr: errors.New("connection refused")}
	v := NewVerifier(client, WithSchema(memorySchema()))

	report := v.Run(context.Background())

	assert.False(t, report.Healthy)
	require.Len(t, report.Checks, 3)

	reach := report.Check(CheckReachability)
	require.NotNil(t, reach)
	assert.Equal(t, StatusFailed, reach.Status)
	assert.Equal(t, ReasonUnreachable, reach.Reason)

	assert.Equal(t, StatusNotRun, report.Check(CheckSchema).Status)
	assert.Equal(t, StatusNotRun, report.Check(CheckOrphans).Status)
	assert.Zero(t, client.queryCount(), "skipped checks must not query")
}

func TestVerifier_ReachabilityTimeout(t *testing.T) {
	client := &fakeClient{pingDelay: 500 * time.Millisecond}
	v := NewVerifier(client, WithReachabilityTimeout(20*time.Millisecond))

	report := v.Run(context.Background())

	assert.False(t, report.Healthy)
	reach := report.Check(CheckReachability)
	assert.Equal(t, StatusFailed, reach.Status)
	assert.Equal(t, ReasonTimeout, reach.Reason)
	assert.Equal(t, StatusNotRun, report.Check(CheckSchema).Status)
	assert.Equal(t, StatusNotRun, report.Check(CheckOrphans).Status)
}

func TestVerifier_SingleOrphanDetected(t *testing.T) {
	client := &fakeClient{counts: map[string]int64{"labels(a)": 1}}
	v := NewVerifier(client, WithSchema(memorySchema()))

	report := v.Run(context.Background())

	assert.False(t, report.Healthy)
	assert.True(t, report.Check(CheckReachability).Passed)
	assert.True(t, report.Check(CheckSchema).Passed)

	orphans := report.Check(CheckOrphans)
	assert.Equal(t, StatusFailed, orphans.Status)
	assert.Equal(t, ReasonOrphanFound, orphans.Reason)
	assert.Equal(t, int64(1), orphans.Violations)
}

func TestVerifier_SchemaViolationsCountedPerType(t *testing.T) {
	client := &fakeClient{counts: map[string]int64{
		"(n:`Memory`)":    2,
		"[r:`REMEMBERS`]": 1,
	}}
	v := NewVerifier(client, WithSchema(memorySchema()))

	report := v.Run(context.Background())

	assert.False(t, report.Healthy)
	schema := report.Check(CheckSchema)
	assert.Equal(t, StatusFailed, schema.Status)
	assert.Equal(t, ReasonSchemaViolation, schema.Reason)
	assert.Equal(t, int64(3), schema.Violations)
	assert.Equal(t, map[string]int64{"Memory": 2, "REMEMBERS": 1}, schema.ViolationsByType)

	assert.True(t, report.Check(CheckOrphans).Passed)
}

func TestVerifier_QueryErrorFailsChecks(t *testing.T) {
	client := &fakeClient{queryErr: errors.New("transaction rolled back")}
	v := NewVerifier(client, WithSchema(memorySchema()))

	report := v.Run(context.Background())

	assert.False(t, report.Healthy)
	assert.Equal(t, ReasonQuery, report.Check(CheckSchema).Reason)
	assert.Equal(t, ReasonQuery, report.Check(CheckOrphans).Reason)
}

func TestMissingPropertyQuery(t *testing.T) {
	q := missingPropertyQuery("(n:`Memory`)", "n", []string{"id", "content"})
	assert.Equal(t,
		"MATCH (n:`Memory`) WHERE n.`id` IS NULL OR n.`content` IS NULL RETURN count(n)", q)

	assert.Empty(t, missingPropertyQuery("(n:`Memory`)", "n", nil))
}
