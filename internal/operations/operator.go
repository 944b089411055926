package operations

import (
	"context"
	"fmt"

	"github.com/kebairia/neoback/internal/auditlog"
	"github.com/kebairia/neoback/internal/backup"
	"github.com/kebairia/neoback/internal/config"
	"github.com/kebairia/neoback/internal/graph"
	"github.com/kebairia/neoback/internal/health"
	"github.com/kebairia/neoback/internal/logger"
	"github.com/kebairia/neoback/internal/metrics"
	"github.com/kebairia/neoback/internal/restore"
	"github.com/kebairia/neoback/internal/vault"
)

// Operator wires the configuration into runnable operations. The CLI
// subcommands and the scheduler both drive the same Operator.
type Operator struct {
	cfg        *config.Config
	store      *backup.Store
	client     *graph.Client
	admin      *graph.Admin
	registry   *restore.Registry
	controller *restore.Controller
	audit      auditlog.Appender
	log        logger.Logger
}

// New builds an Operator from cfg. Graph credentials come from Vault when
// a credentials path is configured, otherwise from the config itself.
func New(ctx context.Context, cfg *config.Config) (*Operator, error) {
	log := logger.Global()

	store, err := backup.NewStore(cfg.Backup.Root, cfg.Backup.TimestampFormat, log)
	if err != nil {
		return nil, err
	}

	username, password, err := resolveCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := graph.NewClient(
		graph.WithAddress(cfg.Graph.URI),
		graph.WithDatabase(cfg.Graph.Database),
		graph.WithCredentials(username, password),
		graph.WithTimeout(cfg.Graph.Timeout),
		graph.WithClientLogger(log),
	)
	admin := graph.NewAdmin(cfg.Graph.AdminPath, log)

	var audit auditlog.Appender = auditlog.NopAppender{}
	if cfg.Audit.Path != "" {
		fileLog, err := auditlog.NewFileLog(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		audit = fileLog
	}

	o := &Operator{
		cfg:      cfg,
		store:    store,
		client:   client,
		admin:    admin,
		registry: restore.NewRegistry(),
		audit:    audit,
		log:      log,
	}

	provisioner := restore.NewGraphProvisioner(client,
		restore.WithProvisionTimeout(cfg.Restore.ProvisionTimeout),
		restore.WithProvisionerLogger(log),
	)
	o.controller = restore.NewController(store, provisioner, admin,
		func(target string) restore.SessionVerifier { return o.verifierFor(target) },
		restore.WithTargetPrefix(cfg.Restore.TargetPrefix),
		restore.WithRegistry(o.registry),
		restore.WithControllerLogger(log),
	)
	return o, nil
}

// resolveCredentials picks the graph user's credentials: Vault when
// configured, the config file otherwise.
func resolveCredentials(ctx context.Context, cfg *config.Config) (string, string, error) {
	if cfg.Graph.CredentialsPath == "" || cfg.Vault.Address == "" {
		return cfg.Graph.Username, cfg.Graph.Password, nil
	}

	vc, err := vault.NewClient(ctx,
		vault.WithAddress(cfg.Vault.Address),
		vault.WithAppRole(cfg.Vault.RoleID, cfg.Vault.RoleName),
	)
	if err != nil {
		return "", "", fmt.Errorf("graph credentials: %w", err)
	}

	creds, err := vc.GetStaticCredentials(ctx, cfg.Graph.CredentialsPath)
	if err != nil {
		return "", "", fmt.Errorf("graph credentials: %w", err)
	}
	return creds.Username, creds.Password, nil
}

// verifierFor builds a health verifier bound to one database.
func (o *Operator) verifierFor(database string) *health.Verifier {
	return health.NewVerifier(
		o.client.ForDatabase(database),
		health.WithSchema(health.Schema{
			Nodes:         o.cfg.Health.Schema.Nodes,
			Relationships: o.cfg.Health.Schema.Relationships,
		}),
		health.WithReachabilityTimeout(o.cfg.Health.ReachabilityTimeout),
		health.WithQueryTimeout(o.cfg.Health.QueryTimeout),
		health.WithVerifierLogger(o.log),
	)
}

// Store exposes the artifact store.
func (o *Operator) Store() *backup.Store { return o.store }

// Registry exposes the restore session registry.
func (o *Operator) Registry() *restore.Registry { return o.registry }

// ProductionVerifier returns a verifier bound to the production database.
func (o *Operator) ProductionVerifier() *health.Verifier {
	return o.verifierFor(o.client.Database())
}

// appendAudit writes one audit record; append failures are logged, never
// escalated into operation failures.
func (o *Operator) appendAudit(ctx context.Context, operation string, opErr error, subject string, fields map[string]any) {
	rec := auditlog.Record{
		Operation: operation,
		Outcome:   auditlog.OutcomeSuccess,
		Subject:   subject,
		Fields:    fields,
	}
	if opErr != nil {
		rec.Outcome = auditlog.OutcomeFailure
		rec.Detail = opErr.Error()
	}
	if err := o.audit.Append(ctx, rec); err != nil {
		o.log.Warn("audit append failed", "operation", operation, "error", err.Error())
	}
}

func (o *Operator) updateFreeSpace() {
	if free, err := o.store.FreeSpacePercent(); err == nil {
		metrics.StoreFreeSpacePercent.Set(free)
	}
}
