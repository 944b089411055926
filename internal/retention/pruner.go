package retention

import (
	"context"
	"time"

	"github.com/kebairia/neoback/internal/backup"
	"github.com/kebairia/neoback/internal/logger"
)

// Policy governs one prune run.
type Policy struct {
	WindowDays          int
	MinFreeSpacePercent float64
}

// Window returns the retention window as a duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.WindowDays) * 24 * time.Hour
}

// SessionChecker reports whether a restore session still claims an
// artifact. Claimed artifacts are never pruned.
type SessionChecker interface {
	InUse(artifactID string) bool
}

// Result describes what one prune run did. Per-artifact failures land in
// Errors; they never abort the rest of the run.
type Result struct {
	Deleted          []string `json:"deleted"`
	Kept             []string `json:"kept"`
	Errors           []string `json:"errors"`
	FreeSpacePercent float64  `json:"free_space_percent"`
	LowSpace         bool     `json:"low_space"`
}

// Pruner removes artifacts older than the retention window, artifact
// before manifest, skipping anything a restore session still reads.
type Pruner struct {
	store    *backup.Store
	sessions SessionChecker
	now      func() time.Time
	log      logger.Logger
}

// PrunerOption adjusts a Pruner.
type PrunerOption func(*Pruner)

// WithPrunerClock overrides the pruner's time source.
func WithPrunerClock(now func() time.Time) PrunerOption {
	return func(p *Pruner) { p.now = now }
}

// WithPrunerLogger sets the pruner's logger.
func WithPrunerLogger(log logger.Logger) PrunerOption {
	return func(p *Pruner) { p.log = log }
}

// NewPruner builds a Pruner over store. sessions may be nil when no
// restore controller runs in this process.
func NewPruner(store *backup.Store, sessions SessionChecker, opts ...PrunerOption) *Pruner {
	p := &Pruner{
		store:    store,
		sessions: sessions,
		now:      time.Now,
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prune applies policy to every artifact in the store. The returned error
// covers only a failure to enumerate; everything per-artifact is in the
// Result.
func (p *Pruner) Prune(ctx context.Context, policy Policy) (*Result, error) {
	if free, err := p.store.FreeSpacePercent(); err == nil && free < policy.MinFreeSpacePercent {
		p.log.Warn("free space below threshold before pruning",
			"free_percent", free,
			"min_percent", policy.MinFreeSpacePercent,
		)
	}

	manifests, err := p.store.List()
	if err != nil {
		return nil, err
	}

	result := &Result{}
	now := p.now()
	for _, m := range manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if m.Age(now) <= policy.Window() {
			result.Kept = append(result.Kept, m.ID)
			continue
		}
		if p.sessions != nil && p.sessions.InUse(m.ID) {
			p.log.Info("keeping expired artifact, restore session active", "id", m.ID)
			result.Kept = append(result.Kept, m.ID)
			continue
		}

		if err := p.store.Delete(m.ID); err != nil {
			p.log.Error("prune failed for artifact", "id", m.ID, "error", err.Error())
			result.Errors = append(result.Errors, m.ID)
			continue
		}
		p.log.Info("artifact pruned", "id", m.ID, "age", m.Age(now).String())
		result.Deleted = append(result.Deleted, m.ID)
	}

	free, err := p.store.FreeSpacePercent()
	if err != nil {
		p.log.Warn("free space check failed after pruning", "error", err.Error())
	} else {
		result.FreeSpacePercent = free
		result.LowSpace = free < policy.MinFreeSpacePercent
	}
	if result.LowSpace {
		p.log.Warn("free space still below threshold after pruning",
			"free_percent", result.FreeSpacePercent,
			"min_percent", policy.MinFreeSpacePercent,
		)
	}

	p.log.Info("prune finished",
		"deleted", len(result.Deleted),
		"kept", len(result.Kept),
		"errors", len(result.Errors),
	)
	return result, nil
}
