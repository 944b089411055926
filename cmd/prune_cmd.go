package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/neoback/internal/operations"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete artifacts older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		op, err := operations.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		result, err := op.Prune(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}
