package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kebairia/neoback/internal/logger"
)

// ErrTimeout is the cancel cause when the reachability probe exceeds its
// bound.
var ErrTimeout = errors.New("reachability check timed out")

const (
	defaultReachabilityTimeout = 3 * time.Second
	defaultQueryTimeout        = 30 * time.Second
)

// orphanQuery counts relationships whose endpoints no longer resolve to a
// typed node. A structurally dangling edge cannot be observed through the
// query surface, so endpoints stripped of all labels stand in for deleted
// nodes, which is what a botched load actually leaves behind.
const orphanQuery = `MATCH (a)-[r]->(b) WHERE size(labels(a)) = 0 OR size(labels(b)) = 0 RETURN count(r)`

// QueryClient is the read-only graph surface the verifier probes.
type QueryClient interface {
	Ping(ctx context.Context) error
	QueryInt(ctx context.Context, cypher string, params map[string]any) (int64, error)
}

// Schema declares the required-property sets the graph must uphold, keyed
// by node label and by relationship type.
type Schema struct {
	Nodes         map[string][]string
	Relationships map[string][]string
}

// Verifier runs the three consistency checks against one database:
// reachability, schema consistency, orphan relationships. Reachability
// gates the other two; those run concurrently since they only read.
type Verifier struct {
	client       QueryClient
	schema       Schema
	reachTimeout time.Duration
	queryTimeout time.Duration
	log          logger.Logger
}

// VerifierOption adjusts a Verifier.
type VerifierOption func(*Verifier)

// WithSchema sets the required-property expectations.
func WithSchema(s Schema) VerifierOption {
	return func(v *Verifier) { v.schema = s }
}

// WithReachabilityTimeout bounds the round-trip probe.
func WithReachabilityTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.reachTimeout = d
		}
	}
}

// WithQueryTimeout bounds each scan query.
func WithQueryTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.queryTimeout = d
		}
	}
}

// WithVerifierLogger sets the verifier's logger.
func WithVerifierLogger(log logger.Logger) VerifierOption {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// NewVerifier builds a Verifier over client.
func NewVerifier(client QueryClient, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		client:       client,
		reachTimeout: defaultReachabilityTimeout,
		queryTimeout: defaultQueryTimeout,
		log:          logger.Global(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run executes the checks and returns the complete report. It never
// returns an error; failures live inside the report.
func (v *Verifier) Run(ctx context.Context) *Report {
	report := &Report{Timestamp: time.Now().UTC()}

	reach := v.checkReachability(ctx)
	report.Checks = append(report.Checks, reach)

	if !reach.Passed {
		report.Checks = append(report.Checks, notRun(CheckSchema), notRun(CheckOrphans))
		v.log.Warn("health verification aborted, target unreachable",
			"reason", reach.Reason, "detail", reach.Detail)
		return report
	}

	var (
		wg        sync.WaitGroup
		schemaRes CheckResult
		orphanRes CheckResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		schemaRes = v.checkSchema(ctx)
	}()
	go func() {
		defer wg.Done()
		orphanRes = v.checkOrphans(ctx)
	}()
	wg.Wait()

	report.Checks = append(report.Checks, schemaRes, orphanRes)
	report.Healthy = reach.Passed && schemaRes.Passed && orphanRes.Passed

	v.log.Info("health verification finished",
		"healthy", report.Healthy,
		"schema", schemaRes.Status,
		"orphans", orphanRes.Status,
	)
	return report
}

func (v *Verifier) checkReachability(ctx context.Context) CheckResult {
	pctx, cancel := context.WithTimeoutCause(ctx, v.reachTimeout, ErrTimeout)
	defer cancel()

	start := time.Now()
	err := v.client.Ping(pctx)
	elapsed := time.Since(start)

	if err == nil {
		return passed(CheckReachability, elapsed)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(context.Cause(pctx), ErrTimeout) {
		return failedCheck(CheckReachability, ReasonTimeout,
			fmt.Sprintf("no response within %s", v.reachTimeout), elapsed)
	}
	return failedCheck(CheckReachability, ReasonUnreachable, err.Error(), elapsed)
}

// checkSchema counts, per declared label and relationship type, instances
// missing any required property.
func (v *Verifier) checkSchema(ctx context.Context) CheckResult {
	qctx, cancel := context.WithTimeout(ctx, v.queryTimeout)
	defer cancel()

	start := time.Now()
	byType := make(map[string]int64)
	var total int64

	for _, label := range sortedKeys(v.schema.Nodes) {
		query := missingPropertyQuery("(n:`"+label+"`)", "n", v.schema.Nodes[label])
		if query == "" {
			continue
		}
		count, err := v.client.QueryInt(qctx, query, nil)
		if err != nil {
			return failedCheck(CheckSchema, ReasonQuery,
				fmt.Sprintf("scan label %s: %v", label, err), time.Since(start))
		}
		if count > 0 {
			byType[label] = count
			total += count
		}
	}

	for _, relType := range sortedKeys(v.schema.Relationships) {
		query := missingPropertyQuery("()-[r:`"+relType+"`]->()", "r", v.schema.Relationships[relType])
		if query == "" {
			continue
		}
		count, err := v.client.QueryInt(qctx, query, nil)
		if err != nil {
			return failedCheck(CheckSchema, ReasonQuery,
				fmt.Sprintf("scan relationship %s: %v", relType, err), time.Since(start))
		}
		if count > 0 {
			byType[relType] = count
			total += count
		}
	}

	elapsed := time.Since(start)
	if total > 0 {
		res := failedCheck(CheckSchema, ReasonSchemaViolation,
			fmt.Sprintf("%d instances missing required properties", total), elapsed)
		res.Violations = total
		res.ViolationsByType = byType
		return res
	}
	return passed(CheckSchema, elapsed)
}

func (v *Verifier) checkOrphans(ctx context.Context) CheckResult {
	qctx, cancel := context.WithTimeout(ctx, v.queryTimeout)
	defer cancel()

	start := time.Now()
	count, err := v.client.QueryInt(qctx, orphanQuery, nil)
	elapsed := time.Since(start)

	if err != nil {
		return failedCheck(CheckOrphans, ReasonQuery, err.Error(), elapsed)
	}
	if count > 0 {
		res := failedCheck(CheckOrphans, ReasonOrphanFound,
			fmt.Sprintf("%d relationships with unresolvable endpoints", count), elapsed)
		res.Violations = count
		return res
	}
	return passed(CheckOrphans, elapsed)
}

// missingPropertyQuery builds a count query over pattern for entities
// missing any of the required properties. Empty when nothing is required.
func missingPropertyQuery(pattern, binding string, required []string) string {
	if len(required) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(required))
	for _, prop := range required {
		clauses = append(clauses, fmt.Sprintf("%s.`%s` IS NULL", binding, prop))
	}
	return fmt.Sprintf("MATCH %s WHERE %s RETURN count(%s)",
		pattern, strings.Join(clauses, " OR "), binding)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
