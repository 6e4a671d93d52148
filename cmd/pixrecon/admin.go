package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixrecon/internal/app/app"
	"pixrecon/internal/app/config"
	"pixrecon/internal/app/model"
)

func purgeCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete stored transactions, all kinds unless --kind is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := model.Kind(kind)
			if k != "" && !k.Valid() {
				return fmt.Errorf("unknown kind %q", kind)
			}

			c, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), c, l, embedMigrations)
			if err != nil {
				return fmt.Errorf("app init: %w", err)
			}
			defer a.Close()

			n, err := a.Store().DeleteAll(cmd.Context(), k)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			l.Info().Str("kind", kind).Int("deleted", n).Msg("Purged")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)

			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "deposit or withdrawal")

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if c.Store.Driver != config.StorePostgres {
				return fmt.Errorf("migrations apply to the postgres store only, STORE_DRIVER is %q", c.Store.Driver)
			}

			if err := app.Migrate(cmd.Context(), c.Store.Postgres.DSN, embedMigrations); err != nil {
				return err
			}

			l.Info().Msg("Migrations applied")
			return nil
		},
	}
}
