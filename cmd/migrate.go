package cmd

import (
	"errors"
	"fmt"

	"diabetesdx/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Database.Enabled() {
				return errors.New("database.dsn is empty, nothing to migrate")
			}
			g, err := db.NewGateway(a.cfg.Database.Driver, a.cfg.Database.DSN, a.logger)
			if err != nil {
				return err
			}
			if err := g.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", g.Driver())
			return nil
		},
	}
}
