package restore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kebairia/neoback/internal/graph"
	"github.com/kebairia/neoback/internal/logger"
)

// ErrProvision marks a failure while managing a restore target database.
var ErrProvision = errors.New("provision restore target")

const defaultProvisionTimeout = 2 * time.Minute

// Provisioner manages the lifecycle of isolated target databases. The
// production database is never a restore target.
type Provisioner interface {
	Provision(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Drop(ctx context.Context, name string) error
}

// GraphProvisioner administers targets through the DBMS system database.
type GraphProvisioner struct {
	system  *graph.Client
	timeout time.Duration
	log     logger.Logger
}

// ProvisionerOption adjusts a GraphProvisioner.
type ProvisionerOption func(*GraphProvisioner)

// WithProvisionTimeout bounds how long to wait for a target to come online.
func WithProvisionTimeout(d time.Duration) ProvisionerOption {
	return func(p *GraphProvisioner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProvisionerLogger sets the provisioner's logger.
func WithProvisionerLogger(log logger.Logger) ProvisionerOption {
	return func(p *GraphProvisioner) {
		if log != nil {
			p.log = log
		}
	}
}

// NewGraphProvisioner builds a provisioner speaking to client's DBMS.
func NewGraphProvisioner(client *graph.Client, opts ...ProvisionerOption) *GraphProvisioner {
	p := &GraphProvisioner{
		system:  client.ForDatabase("system"),
		timeout: defaultProvisionTimeout,
		log:     logger.Global(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision creates the target database and waits until it is online.
func (p *GraphProvisioner) Provision(ctx context.Context, name string) error {
	if err := p.system.Exec(ctx, "CREATE DATABASE `"+name+"` IF NOT EXISTS WAIT"); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrProvision, name, err)
	}
	if err := p.waitOnline(ctx, name); err != nil {
		return err
	}
	p.log.Info("restore target provisioned", "database", name)
	return nil
}

// Stop takes the target offline so the dump can be loaded into it.
func (p *GraphProvisioner) Stop(ctx context.Context, name string) error {
	if err := p.system.Exec(ctx, "STOP DATABASE `"+name+"` WAIT"); err != nil {
		return fmt.Errorf("%w: stop %s: %w", ErrProvision, name, err)
	}
	return nil
}

// Start brings the target back online after a load and waits for it.
func (p *GraphProvisioner) Start(ctx context.Context, name string) error {
	if err := p.system.Exec(ctx, "START DATABASE `"+name+"` WAIT"); err != nil {
		return fmt.Errorf("%w: start %s: %w", ErrProvision, name, err)
	}
	return p.waitOnline(ctx, name)
}

// Drop tears the target down, destroying its data.
func (p *GraphProvisioner) Drop(ctx context.Context, name string) error {
	if err := p.system.Exec(ctx, "DROP DATABASE `"+name+"` IF EXISTS DESTROY DATA WAIT"); err != nil {
		return fmt.Errorf("%w: drop %s: %w", ErrProvision, name, err)
	}
	p.log.Info("restore target dropped", "database", name)
	return nil
}

func (p *GraphProvisioner) waitOnline(ctx context.Context, name string) error {
	query := "SHOW DATABASE `" + name + "` YIELD currentStatus RETURN currentStatus"

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = p.timeout

	probe := func() error {
		status, err := p.system.QueryString(ctx, query, nil)
		if err != nil {
			return err
		}
		if status != "online" {
			return fmt.Errorf("database %s is %q", name, status)
		}
		return nil
	}
	if err := backoff.Retry(probe, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("%w: wait for %s: %w", ErrProvision, name, err)
	}
	return nil
}
