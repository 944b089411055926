package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/neoback/internal/operations"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan the backup store for corruption signals",
	Long: `audit walks the backup root and reports artifacts without a
manifest, manifests without an artifact, and artifacts whose bytes no
longer match their recorded checksum. Nothing is repaired; the exit
code is non-zero when any signal is found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		op, err := operations.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		report, verdict := op.AuditStore(cmd.Context())
		if report != nil {
			if err := printJSON(report); err != nil {
				return err
			}
		}
		return verdict
	},
}
