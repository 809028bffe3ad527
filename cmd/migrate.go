package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{store.MigrateUp, store.MigrateDown},
	Run: func(cmd *cobra.Command, args []string) {
		runMigrate(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().IntP("steps", "n", 0, "number of migrations to apply, 0 means all")
}

func runMigrate(cmd *cobra.Command, direction string) {
	ctx := context.Background()

	config, logger := setup()

	s, err := store.Open(ctx, config.Database)
	if err != nil {
		logger.Fatal("opening the database", zap.Error(err))
	}
	defer s.Close()

	steps, _ := cmd.Flags().GetInt("steps")

	if err := s.Migrate(direction, steps, logger); err != nil {
		logger.Error("migration failed", zap.String("direction", direction), zap.Error(err))
		return
	}

	logger.Info("migrations applied", zap.String("direction", direction), zap.Int("steps", steps))
}
