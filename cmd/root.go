package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/neoback/internal/config"
	"github.com/kebairia/neoback/internal/logger"
)

// ConfigFile is the path to the YAML configuration.
var (
	ConfigFile string

	// rootCmd is the base command for neoback.
	rootCmd = &cobra.Command{
		Use:   "neoback",
		Short: "Backup, restore rehearsal and consistency verification for the memory graph",
		Long: `neoback takes full backups of the Neo4j memory graph, verifies its
consistency, rehearses restores into isolated target databases, and
prunes expired artifacts, based on your YAML configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() {
	log, err := logger.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration file every subcommand
// starts from.
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if err := cfg.Load(ConfigFile); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// printJSON writes v to stdout, indented for operators and parseable for
// scripts.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "./configs/config.yaml", "path to YAML config file")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serveCmd)
}
