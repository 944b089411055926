package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kebairia/neoback/internal/backup"
	"github.com/kebairia/neoback/internal/health"
	"github.com/kebairia/neoback/internal/logger"
)

var (
	// ErrSessionNotFound means no session with the given id is registered.
	ErrSessionNotFound = errors.New("restore session not found")
	// ErrVerificationFailed means the restored target did not pass its
	// health checks.
	ErrVerificationFailed = errors.New("restored target failed verification")
)

const defaultTargetPrefix = "restore"

// Loader loads a native dump stream into a stopped database.
type Loader interface {
	LoadFrom(ctx context.Context, database string, r io.Reader) error
}

// SessionVerifier runs health checks against one restored target.
type SessionVerifier interface {
	Run(ctx context.Context) *health.Report
}

// VerifierFactory builds a verifier bound to the named target database.
type VerifierFactory func(target string) SessionVerifier

// Controller drives restore sessions through their lifecycle: checksum
// gate, provisioning an isolated target, offline load, verification, and
// the operator's promote-or-discard decision. It never touches the
// production database.
type Controller struct {
	store        *backup.Store
	provisioner  Provisioner
	loader       Loader
	newVerifier  VerifierFactory
	registry     *Registry
	targetPrefix string
	now          func() time.Time
	log          logger.Logger
}

// ControllerOption adjusts a Controller.
type ControllerOption func(*Controller)

// WithTargetPrefix sets the name prefix for provisioned target databases.
func WithTargetPrefix(prefix string) ControllerOption {
	return func(c *Controller) { c.targetPrefix = prefix }
}

// WithRegistry shares an externally owned session registry.
func WithRegistry(r *Registry) ControllerOption {
	return func(c *Controller) { c.registry = r }
}

// WithControllerClock overrides the controller's time source.
func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(log logger.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

// NewController builds a Controller over the given collaborators.
func NewController(store *backup.Store, p Provisioner, l Loader, vf VerifierFactory, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:        store,
		provisioner:  p,
		loader:       l,
		newVerifier:  vf,
		registry:     NewRegistry(),
		targetPrefix: defaultTargetPrefix,
		now:          time.Now,
		log:          logger.Global(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the controller's session registry.
func (c *Controller) Registry() *Registry { return c.registry }

// Restore runs one restore session to its validated-or-failed verdict and
// returns it. The artifact's checksum is verified before anything is
// provisioned: a tampered artifact fails the session without a load ever
// being attempted. The returned error, if any, is also recorded on the
// session.
func (c *Controller) Restore(ctx context.Context, artifactID string) (*Session, error) {
	session := newSession(artifactID, c.now)
	c.registry.add(session)

	c.log.Info("restore session started", "session", session.ID(), "artifact", artifactID)

	if err := c.run(ctx, session); err != nil {
		session.fail(err)
		c.log.Error("restore session failed",
			"session", session.ID(),
			"artifact", artifactID,
			"state", string(session.State()),
			"error", err.Error(),
		)
		return session, err
	}

	c.log.Info("restore session validated, awaiting promotion decision",
		"session", session.ID(),
		"target", session.Target(),
	)
	return session, nil
}

func (c *Controller) run(ctx context.Context, session *Session) error {
	m, err := c.store.Get(session.ArtifactID())
	if err != nil {
		return err
	}

	if err := c.store.VerifyChecksum(m); err != nil {
		return err
	}

	target := c.targetName(m.ID, session.ID())
	session.setTarget(target)
	if err := session.transition(StateProvisioning, "target "+target); err != nil {
		return err
	}
	if err := c.provisioner.Provision(ctx, target); err != nil {
		return err
	}
	if err := c.provisioner.Stop(ctx, target); err != nil {
		return err
	}

	if err := session.transition(StateRestoring, "loading "+m.BackupFile); err != nil {
		return err
	}
	if err := c.load(ctx, m, target); err != nil {
		return err
	}
	if err := c.provisioner.Start(ctx, target); err != nil {
		return err
	}

	if err := session.transition(StateVerifying, ""); err != nil {
		return err
	}
	report := c.newVerifier(target).Run(ctx)
	session.setReport(report)

	if !report.Healthy {
		return fmt.Errorf("%w: target %s", ErrVerificationFailed, target)
	}
	return session.transition(StateValidated, "all health checks passed")
}

// load decompresses the artifact and pipes it into the stopped target.
func (c *Controller) load(ctx context.Context, m *backup.Manifest, target string) error {
	f, err := os.Open(c.store.ArtifactPath(m))
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", m.ID, err)
	}
	defer f.Close()

	dec, err := backup.NewDecompressor(backup.MethodForFile(m.BackupFile), f)
	if err != nil {
		return err
	}
	defer dec.Close()

	return c.loader.LoadFrom(ctx, target, dec)
}

// Promote records the operator's promotion decision on a validated
// session. The production binding swap itself happens outside this
// component.
func (c *Controller) Promote(sessionID string) error {
	session, ok := c.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err := session.transition(StatePromoted, "promotion recorded"); err != nil {
		return err
	}
	c.log.Info("restore session promoted", "session", sessionID, "target", session.Target())
	return nil
}

// Discard tears down a session's target database. Allowed from validated
// and from failed, after inspection.
func (c *Controller) Discard(ctx context.Context, sessionID string) error {
	session, ok := c.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if !allowed(session.State(), StateDiscarded) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.State(), StateDiscarded)
	}

	if target := session.Target(); target != "" {
		if err := c.provisioner.Drop(ctx, target); err != nil {
			return err
		}
	}
	if err := session.transition(StateDiscarded, "target dropped"); err != nil {
		return err
	}
	c.log.Info("restore session discarded", "session", sessionID)
	return nil
}

// targetName derives an isolated database name from the artifact and
// session, using only characters the DBMS accepts in database names.
func (c *Controller) targetName(artifactID, sessionID string) string {
	var b strings.Builder
	b.WriteString(c.targetPrefix)
	for _, r := range artifactID {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		}
	}
	short := strings.ReplaceAll(sessionID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	b.WriteString(short)
	return b.String()
}
