package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-outreach/internal/api"
	"github.com/spigell/talent-outreach/internal/followup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching and scheduler endpoints over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "address to listen on (default :8080)")
	serveCmd.Flags().Bool("periodic", false, "run the follow-up scheduler for every organization on a schedule")
	serveCmd.Flags().Bool("migrate", false, "apply database migrations before serving")

	viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("scheduler.periodic", serveCmd.Flags().Lookup("periodic"))
	viper.BindPFlag("database.migrate", serveCmd.Flags().Lookup("migrate"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()
	logger.Info("starting the talent-outreach server", zap.String("version", version))

	rt, err := newRuntime(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the runtime", zap.Error(err))
	}
	defer rt.close()

	server := api.NewServer(config.HTTP, api.Deps{
		Matcher:   rt.matcher,
		Scheduler: rt.scheduler,
		DB:        rt.store,
		Metrics:   rt.metrics,
		Gatherer:  rt.registry,
		Logger:    logger,
	})

	var periodic *followup.Periodic
	if config.Scheduler.Periodic {
		periodic = followup.NewPeriodic(rt.scheduler, rt.store, config.Scheduler.Schedule, config.Scheduler.Timeout, logger)
		if err := periodic.Start(ctx); err != nil {
			logger.Fatal("starting the periodic scheduler", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.String("reason", context.Cause(gctx).Error()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if periodic != nil {
			periodic.Stop(shutdownCtx)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with an error", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
