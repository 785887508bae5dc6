package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketdir/internal/observability"
	"github.com/3leaps/bucketdir/internal/server"
	"github.com/3leaps/bucketdir/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve directory operations over HTTP",
	Long: `Start an HTTP server exposing directory operations.

Routes:
  GET    /health, /health/live, /health/ready, /health/startup
  GET    /version
  GET    /v1/buckets/{bucket}/keys?prefix=&max_keys=
  POST   /v1/directories/copy   {"from_bucket","from_prefix","to_bucket","to_prefix"}
  POST   /v1/directories/move   {"bucket","from_prefix","to_prefix"}
  DELETE /v1/buckets/{bucket}/directories?prefix=

Use "_" as {bucket} for the default bucket. Operations where some keys
failed reply 207 with per-key results.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (default from config)")
	serveCmd.Flags().Int("port", 0, "Listen port (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.CLILogger
	defer func() { _ = logger.Sync() }()

	d, client, err := openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("store", handlers.StoreChecker{Lister: client, Bucket: appConfig.Bucket})

	srv := server.New(appConfig.Server.Host, appConfig.Server.Port,
		server.WithDriver(d),
		server.WithLogger(logger),
		server.WithVersion(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate),
		server.WithTimeouts(appConfig.Server.ReadTimeout, appConfig.Server.WriteTimeout, appConfig.Server.IdleTimeout),
	)

	logger.Info("Starting bucketdir server",
		zap.String("backend", appConfig.Backend),
		zap.String("bucket", appConfig.Bucket),
		zap.Int("port", appConfig.Server.Port))

	if err := srv.Start(ctx, appConfig.Server.ShutdownTimeout); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	if ctx.Err() != nil && cmd.Context().Err() == nil {
		logger.Info("Received shutdown signal")
	}
	return nil
}
