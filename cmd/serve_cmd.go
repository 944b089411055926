package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/neoback/internal/logger"
	"github.com/kebairia/neoback/internal/operations"
	"github.com/kebairia/neoback/internal/scheduler"
	"github.com/kebairia/neoback/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backup daemon: scheduler plus HTTP endpoints",
	Long: `serve runs backups and pruning on their cron cadences and exposes
/healthz, /manifests, /sessions and /metrics over HTTP. An empty
cadence disables that task. SIGINT or SIGTERM stops future triggers,
drains in-flight runs, and shuts the HTTP server down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log := logger.Global()

		op, err := operations.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		sched := scheduler.New(scheduler.WithLogger(log))

		if cfg.Schedule.Backup != "" {
			err := sched.Register("backup", cfg.Schedule.Backup, func(ctx context.Context) error {
				_, err := op.Backup(ctx)
				return err
			})
			if err != nil {
				return err
			}
		}
		if cfg.Schedule.Prune != "" {
			err := sched.Register("prune", cfg.Schedule.Prune, func(ctx context.Context) error {
				result, err := op.Prune(ctx)
				if err != nil {
					return err
				}
				if result.LowSpace {
					sched.Notify("prune", scheduler.AlertLowSpace,
						fmt.Sprintf("free space %.1f%% below configured floor %.1f%%",
							result.FreeSpacePercent, cfg.Retention.MinFreeSpacePercent))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		srv := server.New(cfg.Server.Listen, op.ProductionVerifier(), op.Store(),
			server.WithRegistry(op.Registry()),
			server.WithLogger(log),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		serverErr := make(chan error, 1)
		go func() { serverErr <- srv.Start(ctx) }()

		schedDone := make(chan struct{})
		go func() {
			sched.Run(ctx)
			close(schedDone)
		}()

		select {
		case err := <-serverErr:
			// Bind failures land here; take the scheduler down with us.
			stop()
			<-schedDone
			return err
		case <-schedDone:
			return <-serverErr
		}
	},
}
