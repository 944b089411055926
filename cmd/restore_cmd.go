package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/neoback/internal/operations"
)

var (
	restorePromote bool
	restoreDiscard bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <artifact-id>",
	Short: "Restore a backup into an isolated target and verify it",
	Long: `restore provisions an isolated target database, loads the named
artifact into it, and runs the health checks against the result. The
production database is never touched.

A validated session waits for an explicit decision. Pass --promote to
record promotion, or --discard to drop the target, in the same run;
with neither flag the validated target is left in place for manual
inspection and the session snapshot is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if restorePromote && restoreDiscard {
			return fmt.Errorf("--promote and --discard are mutually exclusive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		op, err := operations.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		session, restoreErr := op.Restore(cmd.Context(), args[0])

		switch {
		case restoreErr != nil:
			// Failed sessions keep their target for inspection; discard
			// tears it down.
			if restoreDiscard {
				if err := op.Discard(cmd.Context(), session.ID()); err != nil {
					return err
				}
			}
		case restorePromote:
			if err := op.Promote(cmd.Context(), session.ID()); err != nil {
				return err
			}
		case restoreDiscard:
			if err := op.Discard(cmd.Context(), session.ID()); err != nil {
				return err
			}
		}

		if err := printJSON(session.Snapshot()); err != nil {
			return err
		}
		return restoreErr
	},
}

func init() {
	restoreCmd.Flags().
		BoolVar(&restorePromote, "promote", false, "record promotion when the session validates")
	restoreCmd.Flags().
		BoolVar(&restoreDiscard, "discard", false, "drop the target database after the session settles")
}
