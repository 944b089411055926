package restore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/neoback/internal/health"
)

// State of a restore session.
type State string

const (
	StateIdle         State = "idle"
	StateProvisioning State = "provisioning"
	StateRestoring    State = "restoring"
	StateVerifying    State = "verifying"
	StateValidated    State = "validated"
	StateFailed       State = "failed"
	StatePromoted     State = "promoted"
	StateDiscarded    State = "discarded"
)

// Terminal reports whether no further transition can leave the state.
// Failed is not terminal: a failed session's target can still be discarded
// after inspection.
func (s State) Terminal() bool {
	return s == StatePromoted || s == StateDiscarded
}

// Active reports whether the session still holds a claim on its artifact.
// A failed session keeps its target database but releases the artifact.
func (s State) Active() bool {
	switch s {
	case StateIdle, StateProvisioning, StateRestoring, StateVerifying, StateValidated:
		return true
	}
	return false
}

// transitions maps each state to the states it may move to.
var transitions = map[State][]State{
	StateIdle:         {StateProvisioning, StateFailed},
	StateProvisioning: {StateRestoring, StateFailed},
	StateRestoring:    {StateVerifying, StateFailed},
	StateVerifying:    {StateValidated, StateFailed},
	StateValidated:    {StatePromoted, StateDiscarded},
	StateFailed:       {StateDiscarded},
}

// ErrInvalidTransition means a state change was requested that the
// session's lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid restore state transition")

// Transition is one recorded state change.
type Transition struct {
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Session tracks a single restore attempt from artifact selection to a
// terminal decision. A session never retries; a fresh attempt is a fresh
// session.
type Session struct {
	mu sync.Mutex

	id         string
	artifactID string
	target     string
	state      State
	history    []Transition
	report     *health.Report
	err        error
	now        func() time.Time
}

func newSession(artifactID string, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	s := &Session{
		id:         uuid.NewString(),
		artifactID: artifactID,
		state:      StateIdle,
		now:        now,
	}
	s.history = append(s.history, Transition{To: StateIdle, At: now().UTC()})
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// ArtifactID returns the artifact this session restores.
func (s *Session) ArtifactID() string { return s.artifactID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target returns the provisioned database name, empty before provisioning.
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Report returns the health report from the verifying phase, if reached.
func (s *Session) Report() *health.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Err returns the failure diagnostic, if the session failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// History returns a copy of the ordered state transitions.
func (s *Session) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

// transition moves the session to the given state, enforcing the lifecycle.
func (s *Session) transition(to State, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !allowed(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	s.history = append(s.history, Transition{To: to, At: s.now().UTC(), Detail: detail})
	return nil
}

// fail moves the session to failed, keeping err as the diagnostic.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
	s.state = StateFailed
	s.history = append(s.history, Transition{To: StateFailed, At: s.now().UTC(), Detail: err.Error()})
}

func (s *Session) setTarget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = name
}

func (s *Session) setReport(r *health.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
}

func allowed(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Snapshot is the externally visible view of a session, safe to serialize.
type Snapshot struct {
	ID         string         `json:"id"`
	ArtifactID string         `json:"artifact_id"`
	Target     string         `json:"target,omitempty"`
	State      State          `json:"state"`
	History    []Transition   `json:"history"`
	Report     *health.Report `json:"health_report,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Snapshot captures the session's current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		ArtifactID: s.artifactID,
		Target:     s.target,
		State:      s.state,
		Report:     s.report,
	}
	snap.History = make([]Transition, len(s.history))
	copy(snap.History, s.history)
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}
