package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pixrecon/internal/app/config"
	"pixrecon/internal/app/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "pixrecon",
		Short:         "PIX deposit and withdrawal reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Global().Error().Err(err).Msg("Command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads environment, .env and the persistent flags of cmd
func loadConfig(cmd *cobra.Command) (config.Config, logger.Logger, error) {
	c := config.New()
	if err := c.Load(cmd.Flags()); err != nil {
		return c, *logger.Global(), fmt.Errorf("config load: %w", err)
	}

	return c, logger.New(c.LogVerbose, c.LogPretty), nil
}
