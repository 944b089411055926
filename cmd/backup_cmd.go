package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/neoback/internal/backup"
	"github.com/kebairia/neoback/internal/operations"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a full backup of the memory graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		op, err := operations.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		m, err := op.Backup(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(struct {
			ID string `json:"id"`
			*backup.Manifest
		}{m.ID, m})
	},
}
