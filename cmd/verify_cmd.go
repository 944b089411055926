package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/neoback/internal/operations"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the consistency checks against the production graph",
	Long: `verify runs the ordered health checks (reachability, schema
consistency, orphan relationships) against the production database and
prints the report. The exit code is non-zero when any check does not
pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		op, err := operations.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		report, verdict := op.Verify(cmd.Context())
		if err := printJSON(report); err != nil {
			return err
		}
		return verdict
	},
}
