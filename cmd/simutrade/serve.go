package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/internal/cfg"
	"github.com/peter-kozarec/simutrade/pkg/middleware"
	"github.com/peter-kozarec/simutrade/pkg/server"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
	"github.com/peter-kozarec/simutrade/pkg/utility"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve simulation sessions over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := setup()
			if err != nil {
				return err
			}
			defer func(logger *zap.Logger) {
				_ = logger.Sync()
			}(logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, logger, c)
		},
	}
}

func serve(ctx context.Context, logger *zap.Logger, c cfg.Config) error {
	logger.Info("simutrade starting",
		zap.String("version", Version),
		zap.Stringer("execution_id", utility.GetExecutionID()))
	defer logger.Info("done")

	gin.SetMode(c.Mode)

	feed, closeFeed, err := c.OpenFeed(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFeed(); err != nil {
			logger.Warn("unable to close feed", zap.Error(err))
		}
	}()

	recorder, err := c.OpenRecorder(ctx, logger)
	if err != nil {
		return err
	}

	flags, err := c.MonitorFlags()
	if err != nil {
		return err
	}

	monitor := middleware.NewMonitor(logger, flags)
	telemetry := middleware.NewTelemetry(logger)
	performance := middleware.NewPerformance(logger)

	manager := simulation.NewManager(logger, feed, c.ManagerOptions(recorder)...)

	srv := server.New(logger, manager, c.ServerConfig(),
		server.WithHandlerMiddleware(telemetry.WithHandler, performance.WithHandler, monitor.WithHandler),
		server.WithSinkMiddleware(telemetry.WithSink, performance.WithSink, monitor.WithSink))

	defer telemetry.PrintStatistics()
	defer performance.PrintStatistics()

	return srv.ListenAndServe(ctx)
}
