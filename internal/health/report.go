package health

import (
	"time"
)

// Status is the three-valued outcome of one check. A skipped check is
// recorded as not run, never as a pass.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusNotRun Status = "not_run"
)

// Check names, in their fixed execution order.
const (
	CheckReachability = "reachability"
	CheckSchema       = "schema_consistency"
	CheckOrphans      = "orphan_relationships"
)

// Failure reasons attached to failed checks.
const (
	ReasonTimeout         = "timeout"
	ReasonUnreachable     = "unreachable"
	ReasonQuery           = "query_error"
	ReasonSchemaViolation = "schema_violation"
	ReasonOrphanFound     = "orphan_found"
)

// CheckResult is the structured outcome of a single check.
type CheckResult struct {
	Name             string           `json:"name"`
	Status           Status           `json:"status"`
	Passed           bool             `json:"passed"`
	Reason           string           `json:"reason,omitempty"`
	Detail           string           `json:"detail,omitempty"`
	Violations       int64            `json:"violations,omitempty"`
	ViolationsByType map[string]int64 `json:"violations_by_type,omitempty"`
	DurationMS       int64            `json:"duration_ms"`
}

// Report is the complete result of one verification run. It always lists
// all three checks, even the ones that did not run.
type Report struct {
	Healthy   bool          `json:"healthy"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

// Check returns the result with the given name, or nil.
func (r *Report) Check(name string) *CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}

func passed(name string, elapsed time.Duration) CheckResult {
	return CheckResult{
		Name:       name,
		Status:     StatusPassed,
		Passed:     true,
		DurationMS: elapsed.Milliseconds(),
	}
}

func failedCheck(name, reason, detail string, elapsed time.Duration) CheckResult {
	return CheckResult{
		Name:       name,
		Status:     StatusFailed,
		Reason:     reason,
		Detail:     detail,
		DurationMS: elapsed.Milliseconds(),
	}
}

func notRun(name string) CheckResult {
	return CheckResult{Name: name, Status: StatusNotRun}
}
