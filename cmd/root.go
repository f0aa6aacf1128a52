package cmd

import (
	"context"
	"fmt"

	"diabetesdx/config"
	"diabetesdx/db"
	"diabetesdx/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "diabetesdx",
		Short:         "Diabetes risk screening: train the model, score patients and serve the form",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $CONFIG_PATH, then ./config.yaml)")

	cmd.AddCommand(
		newServeCmd(a),
		newTrainCmd(a),
		newPredictCmd(a),
		newMigrateCmd(a),
	)
	return cmd
}

func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	}
	return err
}

func (a *app) load() error {
	cfg, err := config.Load(config.ResolvePath(a.configPath), a.configPath != "")
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg, a.logger = cfg, log
	return nil
}

// gateway returns nil when no database is configured. The schema is brought
// up to date first when auto_migrate is set.
func (a *app) gateway(ctx context.Context) (*db.Gateway, error) {
	if !a.cfg.Database.Enabled() {
		return nil, nil
	}
	g, err := db.NewGateway(a.cfg.Database.Driver, a.cfg.Database.DSN, a.logger)
	if err != nil {
		return nil, err
	}
	if a.cfg.Database.AutoMigrate {
		if err := g.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return g, nil
}
